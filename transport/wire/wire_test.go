package wire

import (
	"bytes"
	"compress/gzip"
	"context"
	"log/slog"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scan-http/application/http"
	"scan-http/application/http/transfer"
	"scan-http/lib/types/pointer"
	"scan-http/transport"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type TransportTestSuite struct {
	suite.Suite

	tr      *Transport
	servers []*testServer
	release chan struct{}
}

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(TransportTestSuite))
}

func (s *TransportTestSuite) SetupTest() {
	s.tr = New(slog.New(slog.DiscardHandler), clock.New(), DefaultOptions)
	s.servers = nil
	s.release = make(chan struct{})
}

func (s *TransportTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())

	close(s.release)
	s.tr.CloseIdle()
	for _, srv := range s.servers {
		srv.Close()
	}
}

func (s *TransportTestSuite) serve(handler handlerFunc) *testServer {
	srv := newTestServer(s.T(), handler)
	s.servers = append(s.servers, srv)
	return srv
}

func (s *TransportTestSuite) perform(opts *transport.Options) (*transport.Reply, error) {
	if opts.Method == "" {
		opts.Method = "GET"
	}
	return s.tr.Perform(context.Background(), opts)
}

func (s *TransportTestSuite) TestHeadersString() {
	var received http.Request
	srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		received = *req
		return textResponse(200, "OK", "hello", http.Field{Name: "X-Test", Value: "1"}), false
	})

	reply, err := s.perform(&transport.Options{
		URL: srv.URL("/path?x=1"),
		Headers: http.Headers{
			{Name: "Accept-Encoding", Value: "gzip, deflate"},
			{Name: "User-Agent", Value: "probe"},
			{Name: "Accept", Value: "*/*"},
		},
		ForbidReuse: true,
	})
	s.Require().NoError(err)

	s.Equal("GET /path?x=1 HTTP/1.1\r\n"+
		"Host: "+srv.Addr()+"\r\n"+
		"Accept-Encoding: gzip, deflate\r\n"+
		"User-Agent: probe\r\n"+
		"Accept: */*\r\n"+
		"\r\n", reply.RequestHeaders)

	s.Equal("/path?x=1", received.Target)
	host, _ := received.Headers.Get("Host")
	s.Equal(srv.Addr(), host)

	s.Equal(uint(200), reply.StatusCode)
	s.Equal("OK", reply.ReasonPhrase)
	s.Equal("hello", string(reply.Body))
	s.Equal("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nX-Test: 1\r\n\r\n", reply.HeadersText)
	s.Equal(srv.URL("/path?x=1"), reply.URL)
}

func (s *TransportTestSuite) TestPostBody() {
	var received string
	srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		received = req.Method + " " + body
		return textResponse(201, "Created", ""), false
	})

	reply, err := s.perform(&transport.Options{
		Method: "POST",
		URL:    srv.URL("/"),
		Headers: http.Headers{
			{Name: "Content-Type", Value: "application/x-www-form-urlencoded"},
		},
		Body: "a=1&b=%202",
	})
	s.Require().NoError(err)

	s.Equal(uint(201), reply.StatusCode)
	s.Equal("POST a=1&b=%202", received)
	s.Equal("a=1&b=%202", reply.RequestBody)
	s.Contains(reply.RequestHeaders, "Content-Length: 10\r\n")
}

func (s *TransportTestSuite) TestEmptyBodyFraming() {
	testcases := []struct {
		desc   string
		method string
		framed bool
	}{
		{desc: "post", method: "POST", framed: true},
		{desc: "put", method: "PUT", framed: true},
		{desc: "get", method: "GET", framed: false},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			var length string
			srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
				length, _ = req.Headers.Get("Content-Length")
				return textResponse(200, "OK", ""), false
			})

			reply, err := s.perform(&transport.Options{Method: tc.method, URL: srv.URL("/")})
			s.Require().NoError(err)

			if tc.framed {
				s.Equal("0", length)
				s.Contains(reply.RequestHeaders, "Content-Length: 0\r\n")
				return
			}
			s.Empty(length)
			s.NotContains(reply.RequestHeaders, "Content-Length")
		})
	}
}

func (s *TransportTestSuite) TestChunkedResponse() {
	srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		buf := bytes.NewBuffer(nil)
		cw := transfer.NewChunkedWriter(buf)
		cw.SetSendTrailers(func() http.Headers { return http.Headers{{Name: "X-Trailer", Value: "done"}} })
		cw.Write([]byte("hello, "))
		cw.Write([]byte("world"))
		cw.Close()

		return http.Response{
			StatusLine: http.StatusLine{StatusCode: 200, ReasonPhrase: "OK"},
			Headers:    http.Headers{{Name: "Transfer-Encoding", Value: "chunked"}},
			Body:       buf,
		}, false
	})

	reply, err := s.perform(&transport.Options{URL: srv.URL("/")})
	s.Require().NoError(err)

	s.Equal("hello, world", string(reply.Body))
	trailer, ok := reply.Headers.Get("X-Trailer")
	s.True(ok)
	s.Equal("done", trailer)

	// The connection is framed, so it goes back to the pool.
	s.Equal(1, s.tr.IdleConns())
}

func (s *TransportTestSuite) TestGzipResponse() {
	srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		buf := bytes.NewBuffer(nil)
		zw := gzip.NewWriter(buf)
		zw.Write([]byte("compressed"))
		zw.Close()

		return textResponse(200, "OK", buf.String(), http.Field{Name: "Content-Encoding", Value: "gzip"}), false
	})

	reply, err := s.perform(&transport.Options{URL: srv.URL("/")})
	s.Require().NoError(err)
	s.Equal("compressed", string(reply.Body))
}

func (s *TransportTestSuite) TestCloseDelimitedResponse() {
	srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		return http.Response{
			StatusLine: http.StatusLine{StatusCode: 200, ReasonPhrase: "OK"},
			Body:       strings.NewReader("until close"),
		}, true
	})

	reply, err := s.perform(&transport.Options{URL: srv.URL("/")})
	s.Require().NoError(err)
	s.Equal("until close", string(reply.Body))
	s.Zero(s.tr.IdleConns())
}

func (s *TransportTestSuite) TestMaxFileSize() {
	srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		if req.Target == "/chunked" {
			buf := bytes.NewBuffer(nil)
			cw := transfer.NewChunkedWriter(buf)
			cw.Write([]byte("0123456789"))
			cw.Close()
			return http.Response{
				StatusLine: http.StatusLine{StatusCode: 200, ReasonPhrase: "OK"},
				Headers:    http.Headers{{Name: "Transfer-Encoding", Value: "chunked"}},
				Body:       buf,
			}, false
		}
		return textResponse(200, "OK", "0123456789"), false
	})

	testcases := []struct {
		desc    string
		path    string
		max     *int64
		wantErr bool
	}{
		{desc: "content-length over cap", path: "/", max: pointer.To[int64](5), wantErr: true},
		{desc: "streamed over cap", path: "/chunked", max: pointer.To[int64](5), wantErr: true},
		{desc: "exactly cap", path: "/", max: pointer.To[int64](10)},
		{desc: "no cap", path: "/chunked"},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			reply, err := s.perform(&transport.Options{URL: srv.URL(tc.path), MaxFileSize: tc.max})
			if tc.wantErr {
				s.ErrorIs(err, transport.ErrFileSizeExceeded)
				s.ErrorIs(err, ErrResponseTooLarge)
				return
			}

			s.Require().NoError(err)
			s.Equal("0123456789", string(reply.Body))
		})
	}
}

func (s *TransportTestSuite) TestConnectionReuse() {
	srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		return textResponse(200, "OK", "ok"), false
	})

	for range 3 {
		_, err := s.perform(&transport.Options{URL: srv.URL("/")})
		s.Require().NoError(err)
	}
	s.Equal(1, srv.Accepted())

	for range 2 {
		_, err := s.perform(&transport.Options{URL: srv.URL("/"), ForbidReuse: true})
		s.Require().NoError(err)
	}
	s.Equal(3, srv.Accepted())
	s.Equal(1, s.tr.IdleConns())
}

func (s *TransportTestSuite) TestStaleConnectionRetried() {
	srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		// Closing after every response leaves the pooled conn dead.
		return textResponse(200, "OK", "ok"), true
	})

	for range 2 {
		reply, err := s.perform(&transport.Options{URL: srv.URL("/")})
		s.Require().NoError(err)
		s.Equal("ok", string(reply.Body))
	}
}

func (s *TransportTestSuite) TestDroppedRequestRetriedOnlyWhenIdempotent() {
	testcases := []struct {
		desc    string
		method  string
		hits    int32
		wantErr bool
	}{
		{desc: "get is sent again", method: "GET", hits: 2},
		{desc: "put is sent again", method: "PUT", hits: 2},
		{desc: "post is not", method: "POST", hits: 1, wantErr: true},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			var hits atomic.Int32
			srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
				if req.Target == "/warm" {
					return textResponse(200, "OK", ""), false
				}
				if hits.Add(1) == 1 {
					// Received, then gone without an answer.
					return http.Response{}, false
				}
				return textResponse(200, "OK", "again"), false
			})

			_, err := s.perform(&transport.Options{URL: srv.URL("/warm")})
			s.Require().NoError(err)
			s.Require().Equal(1, s.tr.IdleConns())

			reply, err := s.perform(&transport.Options{Method: tc.method, URL: srv.URL("/drop")})
			s.Equal(tc.hits, hits.Load())
			if tc.wantErr {
				s.Error(err)
				return
			}
			s.Require().NoError(err)
			s.Equal("again", string(reply.Body))
		})
	}
}

func (s *TransportTestSuite) TestBasicAuthChallenge() {
	want := basicCredentials("user:pass")
	srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		if authz, _ := req.Headers.Get("Authorization"); authz == want {
			return textResponse(200, "OK", "secret"), false
		}
		return textResponse(401, "Unauthorized", "", http.Field{Name: "WWW-Authenticate", Value: `Basic realm="test"`}), false
	})

	testcases := []struct {
		desc     string
		auth     transport.AuthType
		expected uint
	}{
		{desc: "auto answers challenge", auth: transport.AuthAuto, expected: 200},
		{desc: "basic is preemptive", auth: transport.AuthBasic, expected: 200},
		{desc: "digest only ignores basic challenge", auth: transport.AuthDigest, expected: 401},
		{desc: "none", auth: transport.AuthNone, expected: 401},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			reply, err := s.perform(&transport.Options{
				URL:          srv.URL("/"),
				UserPassword: "user:pass",
				HTTPAuth:     tc.auth,
			})
			s.Require().NoError(err)
			s.Equal(tc.expected, reply.StatusCode)
		})
	}
}

func (s *TransportTestSuite) TestTimeout() {
	srv := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		<-s.release
		return textResponse(200, "OK", ""), true
	})

	_, err := s.perform(&transport.Options{URL: srv.URL("/"), Timeout: 50 * time.Millisecond})
	s.ErrorIs(err, transport.ErrTimedOut)
}

func (s *TransportTestSuite) TestSilentProxyHonorsContext() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns []net.Conn
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	defer func() {
		ln.Close()
		wg.Wait()
		for _, c := range conns {
			c.Close()
		}
	}()

	testcases := []struct {
		desc    string
		timeout time.Duration
		cancel  time.Duration
	}{
		{desc: "request timeout", timeout: 200 * time.Millisecond},
		{desc: "cancelled context", cancel: 100 * time.Millisecond},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tc.cancel > 0 {
				time.AfterFunc(tc.cancel, cancel)
			}

			start := time.Now()
			_, err := s.tr.Perform(ctx, &transport.Options{
				Method:  "GET",
				URL:     "https://target.test/",
				Proxy:   ln.Addr().String(),
				Timeout: tc.timeout,
			})
			s.ErrorIs(err, transport.ErrTimedOut)
			s.Less(time.Since(start), 2*time.Second)
		})
	}
}

func (s *TransportTestSuite) TestCouldNotConnect() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	addr := ln.Addr().String()
	s.Require().NoError(ln.Close())

	_, err = s.perform(&transport.Options{URL: "http://" + addr + "/"})
	s.ErrorIs(err, transport.ErrCouldNotConnect)
}

func (s *TransportTestSuite) TestForwardProxy() {
	var received http.Request
	proxy := s.serve(func(req *http.Request, body string) (http.Response, bool) {
		received = *req
		return textResponse(200, "OK", "proxied"), false
	})

	reply, err := s.perform(&transport.Options{
		URL:               "http://target.test/page?q=1",
		Proxy:             proxy.Addr(),
		ProxyType:         transport.ProxyHTTP,
		ProxyUserPassword: "p:w",
	})
	s.Require().NoError(err)

	s.Equal("proxied", string(reply.Body))
	s.Equal("http://target.test:80/page?q=1", received.Target)
	host, _ := received.Headers.Get("Host")
	s.Equal("target.test:80", host)
	authz, _ := received.Headers.Get("Proxy-Authorization")
	s.Equal(basicCredentials("p:w"), authz)
}

func (s *TransportTestSuite) TestUnsupportedProxyType() {
	_, err := s.perform(&transport.Options{
		URL:       "http://target.test/",
		Proxy:     "127.0.0.1:1",
		ProxyType: "socks4",
	})
	s.ErrorIs(err, ErrUnsupportedProxyType)
}

func (s *TransportTestSuite) TestTLS() {
	ts := httptest.NewTLSServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Write([]byte("over tls"))
	}))
	defer ts.Close()

	reply, err := s.perform(&transport.Options{URL: ts.URL + "/", ForbidReuse: true})
	s.Require().NoError(err)
	s.Equal("over tls", string(reply.Body))

	_, err = s.perform(&transport.Options{
		URL:         ts.URL + "/",
		ForbidReuse: true,
		TLS:         transport.TLSOptions{VerifyPeer: true, VerifyHost: transport.HostCheckStrict},
	})
	s.ErrorIs(err, transport.ErrCouldNotConnect)
}

func (s *TransportTestSuite) TestConnectTunnel() {
	testcases := []struct {
		desc    string
		status  string
		wantErr error
	}{
		{desc: "established", status: "HTTP/1.1 200 Connection established\r\n\r\n"},
		{desc: "refused", status: "HTTP/1.1 407 Proxy Authentication Required\r\n\r\n", wantErr: ErrTunnelRefused},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			client, server := net.Pipe()
			defer client.Close()

			var (
				wg       sync.WaitGroup
				received http.Request
			)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer server.Close()

				dec := http.NewRequestDecoder(server, http.DefaultDecodeOptions)
				if err := dec.Decode(&received); err != nil {
					return
				}
				server.Write([]byte(tc.status))
			}()

			_, err := s.tr.connect(context.Background(), client, target{addr: "target.test:443"}, "u:p")
			wg.Wait()

			s.Equal("CONNECT", received.Method)
			s.Equal("target.test:443", received.Target)
			authz, _ := received.Headers.Get("Proxy-Authorization")
			s.Equal(basicCredentials("u:p"), authz)

			if tc.wantErr != nil {
				s.ErrorIs(err, tc.wantErr)
				return
			}
			s.NoError(err)
		})
	}
}

func TestParseTarget(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		expected target
		wantErr  bool
	}{
		{
			desc:     "default http port",
			input:    "http://example.com",
			expected: target{scheme: "http", host: "example.com", addr: "example.com:80", requestURI: "/"},
		},
		{
			desc:     "https with port and query",
			input:    "HTTPS://example.com:8443/a%20b?x=1",
			expected: target{scheme: "https", host: "example.com", addr: "example.com:8443", requestURI: "/a%20b?x=1"},
		},
		{
			desc:     "ipv6",
			input:    "http://[::1]/",
			expected: target{scheme: "http", host: "::1", addr: "[::1]:80", requestURI: "/"},
		},
		{desc: "unsupported scheme", input: "ftp://example.com/", wantErr: true},
		{desc: "no host", input: "http:///path", wantErr: true},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := parseTarget(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.expected {
				t.Fatalf("got %+v, want %+v", got, tc.expected)
			}
		})
	}
}

func TestProxyAddr(t *testing.T) {
	testcases := []struct {
		desc      string
		proxy     string
		proxyType transport.ProxyType
		expected  string
	}{
		{desc: "host and port", proxy: "stuff:8080", expected: "stuff:8080"},
		{desc: "http url", proxy: "http://stuff/", expected: "stuff:80"},
		{desc: "url with port", proxy: "http://stuff:3128/", expected: "stuff:3128"},
		{desc: "https url", proxy: "https://stuff", expected: "stuff:443"},
		{desc: "socks url", proxy: "socks5://stuff", proxyType: transport.ProxySOCKS5, expected: "stuff:1080"},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			if got := proxyAddr(tc.proxy, tc.proxyType); got != tc.expected {
				t.Fatalf("got %q, want %q", got, tc.expected)
			}
		})
	}
}
