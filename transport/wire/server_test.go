package wire

import (
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"scan-http/application/http"

	"github.com/stretchr/testify/require"
)

// handlerFunc answers req. A zero StatusCode drops the connection instead.
type handlerFunc func(req *http.Request, body string) (resp http.Response, closeAfter bool)

// testServer speaks HTTP/1.1 through the message codec, one goroutine per
// connection.
type testServer struct {
	ln      net.Listener
	handler handlerFunc

	accepted atomic.Int32

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func newTestServer(t *testing.T, handler handlerFunc) *testServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &testServer{ln: ln, handler: handler, conns: make(map[net.Conn]struct{})}

	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			srv.accepted.Add(1)

			srv.mu.Lock()
			srv.conns[c] = struct{}{}
			srv.mu.Unlock()

			srv.wg.Add(1)
			go srv.serve(c)
		}
	}()

	return srv
}

func (srv *testServer) Addr() string { return srv.ln.Addr().String() }

func (srv *testServer) URL(path string) string { return "http://" + srv.Addr() + path }

func (srv *testServer) Accepted() int { return int(srv.accepted.Load()) }

func (srv *testServer) serve(c net.Conn) {
	defer srv.wg.Done()
	defer func() {
		srv.mu.Lock()
		delete(srv.conns, c)
		srv.mu.Unlock()
		c.Close()
	}()

	dec := http.NewRequestDecoder(c, http.DefaultDecodeOptions)
	for {
		var req http.Request
		if err := dec.Decode(&req); err != nil {
			return
		}

		var body string
		if cl, ok := req.Headers.Get("Content-Length"); ok {
			n, _ := strconv.Atoi(cl)
			b := make([]byte, n)
			if _, err := io.ReadFull(dec.Buffered(), b); err != nil {
				return
			}
			body = string(b)
		}

		resp, closeAfter := srv.handler(&req, body)
		if resp.StatusCode == 0 {
			// Drop the connection without answering.
			return
		}
		if resp.Version == (http.Version{}) {
			resp.Version = http.Version11
		}
		if err := http.NewResponseEncoder(c, http.DefaultEncodeOptions).Encode(resp); err != nil {
			return
		}
		if closeAfter {
			return
		}
	}
}

func (srv *testServer) Close() {
	srv.ln.Close()

	srv.mu.Lock()
	for c := range srv.conns {
		c.Close()
	}
	srv.mu.Unlock()

	srv.wg.Wait()
}

func textResponse(code uint, reason, body string, headers ...http.Field) http.Response {
	h := append(http.Headers{{Name: "Content-Length", Value: strconv.Itoa(len(body))}}, headers...)
	return http.Response{
		StatusLine: http.StatusLine{Version: http.Version11, StatusCode: code, ReasonPhrase: reason},
		Headers:    h,
		Body:       strings.NewReader(body),
	}
}
