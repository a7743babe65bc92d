package iolib

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitReader(t *testing.T) {
	b, err := io.ReadAll(LimitReader(strings.NewReader("Hello, World!"), 5))
	assert.NoError(t, err)
	assert.Equal(t, "Hello", string(b))
}

func TestCapReader(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		cap      uint
		expected string
		wantErr  error
	}{
		{
			desc:     "shorter than cap",
			input:    "abc",
			cap:      5,
			expected: "abc",
		},
		{
			desc:     "exactly cap",
			input:    "abcde",
			cap:      5,
			expected: "abcde",
		},
		{
			desc:    "over cap",
			input:   "abcdef",
			cap:     5,
			wantErr: ErrLimitExceeded,
		},
		{
			desc:    "zero cap",
			input:   "a",
			cap:     0,
			wantErr: ErrLimitExceeded,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			b, err := io.ReadAll(CapReader(strings.NewReader(tc.input), tc.cap))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, string(b))
		})
	}
}
