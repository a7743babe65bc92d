package iolib

import (
	"io"

	"github.com/pkg/errors"
)

// LimitReader creates new [LimitedReader]
func LimitReader(r io.Reader, n uint) io.Reader { return &LimitedReader{r, n} }

// LimitedReader is uint port of [io.LimitedReader]
type LimitedReader struct {
	R io.Reader // underlying reader
	N uint      // max bytes remaining
}

func (l *LimitedReader) Read(p []byte) (n int, err error) {
	if l.N == 0 {
		return 0, io.EOF
	}
	if uint(len(p)) > l.N {
		p = p[:l.N]
	}
	n, err = l.R.Read(p)
	l.N -= uint(n)
	return
}

var ErrLimitExceeded = errors.New("read limit exceeded")

// CapReader creates new [CappedReader].
func CapReader(r io.Reader, n uint) io.Reader { return &CappedReader{R: r, N: n} }

// CappedReader reads at most N bytes from R. Unlike [LimitedReader] it
// fails with [ErrLimitExceeded] when R has more to give, instead of
// silently stopping at N.
type CappedReader struct {
	R io.Reader
	N uint // max bytes remaining
}

func (c *CappedReader) Read(p []byte) (int, error) {
	if c.N == 0 {
		// Probe for one more byte to tell EOF and overflow apart.
		var probe [1]byte
		n, err := c.R.Read(probe[:])
		if n > 0 {
			return 0, ErrLimitExceeded
		}
		if err == nil {
			return 0, nil
		}
		return 0, err
	}

	if uint(len(p)) > c.N {
		p = p[:c.N]
	}
	n, err := c.R.Read(p)
	c.N -= uint(n)
	return n, err
}
