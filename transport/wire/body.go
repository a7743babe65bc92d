package wire

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strconv"
	"strings"

	"scan-http/application/http"
	"scan-http/application/http/transfer"
	iolib "scan-http/lib/io"
	"scan-http/transport"

	"github.com/pkg/errors"
)

var ErrResponseTooLarge = errors.WithMessage(transport.ErrFileSizeExceeded, "response body exceeds max file size")

func bodyless(method string, code uint) bool {
	return strings.EqualFold(method, "HEAD") || code/100 == 1 || code == 204 || code == 304
}

// readBody reads the body of resp off c. reusable reports whether the
// message was framed so c can carry another one.
func readBody(c *conn, resp *http.Response, method string, maxSize *int64) (body []byte, reusable bool, err error) {
	if bodyless(method, resp.StatusCode) {
		return nil, true, nil
	}

	br := c.dec.Buffered()

	var (
		r      io.Reader
		length = int64(-1)
	)
	switch {
	case resp.Headers.Has("Transfer-Encoding", transfer.CodingChunked):
		cr := transfer.NewChunkedReader(br)
		cr.SetOnTrailerReceived(func(trailers http.Headers) {
			resp.Headers = append(resp.Headers, trailers...)
		})
		r, reusable = cr, true

	default:
		if cl, ok := resp.Headers.Get("Content-Length"); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
			if err != nil || n < 0 {
				return nil, false, errors.Errorf("malformed content-length: %q", cl)
			}
			if maxSize != nil && n > *maxSize {
				return nil, false, errors.Wrapf(ErrResponseTooLarge, "content-length %d over %d", n, *maxSize)
			}
			r, reusable, length = iolib.LimitReader(br, uint(n)), true, n
		} else {
			// Delimited by close.
			r, reusable = br, false
		}
	}

	if maxSize != nil {
		r = iolib.CapReader(r, uint(max(*maxSize, 0)))
	}

	body, err = io.ReadAll(r)
	if err != nil {
		if errors.Is(err, iolib.ErrLimitExceeded) {
			return nil, false, errors.Wrapf(ErrResponseTooLarge, "body over %d bytes", *maxSize)
		}
		return nil, false, errors.Wrap(err, "reading body")
	}

	if length >= 0 && int64(len(body)) != length {
		return nil, false, errors.Wrap(io.ErrUnexpectedEOF, "body shorter than content-length")
	}

	return body, reusable, nil
}

// decodeContent undoes gzip and deflate content codings. A body that does
// not decode is returned as it was received.
func decodeContent(headers http.Headers, body []byte) []byte {
	coding, ok := headers.Get("Content-Encoding")
	if !ok || len(body) == 0 {
		return body
	}

	var (
		r   io.Reader
		err error
	)
	switch strings.ToLower(strings.TrimSpace(coding)) {
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(bytes.NewReader(body))
	case "deflate":
		// Servers send both zlib wrapped and raw deflate.
		if r, err = zlib.NewReader(bytes.NewReader(body)); err != nil {
			r, err = flate.NewReader(bytes.NewReader(body)), nil
		}
	default:
		return body
	}
	if err != nil {
		return body
	}

	decoded, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return decoded
}
