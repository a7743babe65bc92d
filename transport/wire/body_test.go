package wire

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"testing"

	"scan-http/application/http"

	"github.com/stretchr/testify/assert"
)

func squeeze(buf *bytes.Buffer, w io.WriteCloser) []byte {
	w.Write([]byte("payload"))
	w.Close()
	return buf.Bytes()
}

func TestDecodeContent(t *testing.T) {
	gzBuf, zlBuf, flBuf := new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer)
	fw, _ := flate.NewWriter(flBuf, flate.DefaultCompression)

	gzipped := squeeze(gzBuf, gzip.NewWriter(gzBuf))
	zlibbed := squeeze(zlBuf, zlib.NewWriter(zlBuf))
	deflated := squeeze(flBuf, fw)

	testcases := []struct {
		desc     string
		coding   string
		body     []byte
		expected string
	}{
		{desc: "identity", body: []byte("payload"), expected: "payload"},
		{desc: "gzip", coding: "gzip", body: gzipped, expected: "payload"},
		{desc: "x-gzip", coding: "x-gzip", body: gzipped, expected: "payload"},
		{desc: "zlib deflate", coding: "deflate", body: zlibbed, expected: "payload"},
		{desc: "raw deflate", coding: "deflate", body: deflated, expected: "payload"},
		{desc: "undecodable kept", coding: "gzip", body: []byte("plain"), expected: "plain"},
		{desc: "unknown coding kept", coding: "br", body: []byte("opaque"), expected: "opaque"},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			var headers http.Headers
			if tc.coding != "" {
				headers = http.Headers{{Name: "Content-Encoding", Value: tc.coding}}
			}
			assert.Equal(t, tc.expected, string(decodeContent(headers, tc.body)))
		})
	}
}

func TestBodyless(t *testing.T) {
	assert.True(t, bodyless("HEAD", 200))
	assert.True(t, bodyless("get", 204))
	assert.True(t, bodyless("GET", 304))
	assert.True(t, bodyless("GET", 100))
	assert.False(t, bodyless("GET", 200))
}
