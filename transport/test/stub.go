// Package test provides an in-memory [transport.Transport] for tests.
package test

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"scan-http/application/http"
	"scan-http/transport"
)

type Handler func(ctx context.Context, opts *transport.Options) (*transport.Reply, error)

// Stub records every performed option set and replies through its handler.
type Stub struct {
	handler Handler

	mu        sync.Mutex
	performed []transport.Options
}

var _ transport.Transport = (*Stub)(nil)

// NewStub returns a stub replying with handler, or [Echo] when nil.
func NewStub(handler Handler) *Stub {
	if handler == nil {
		handler = Echo
	}
	return &Stub{handler: handler}
}

func (s *Stub) Perform(ctx context.Context, opts *transport.Options) (*transport.Reply, error) {
	s.mu.Lock()
	recorded := *opts
	recorded.Headers = append(http.Headers(nil), opts.Headers...)
	s.performed = append(s.performed, recorded)
	s.mu.Unlock()

	return s.handler(ctx, opts)
}

// Performed returns the options of every call so far, in call order.
func (s *Stub) Performed() []transport.Options {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]transport.Options(nil), s.performed...)
}

// Echo replies 200 with the request body, and a request header block built
// the way the wire transport writes it.
func Echo(_ context.Context, opts *transport.Options) (*transport.Reply, error) {
	return Reply(opts, 200, "OK", opts.Body), nil
}

// Reply builds a reply to opts.
func Reply(opts *transport.Options, code uint, reason, body string, headers ...http.Field) *transport.Reply {
	return &transport.Reply{
		Version:        http.Version11,
		StatusCode:     code,
		ReasonPhrase:   reason,
		Headers:        headers,
		HeadersText:    fmt.Sprintf("HTTP/1.1 %d %s\r\n%s\r\n", code, reason, http.Headers(headers).Text()),
		Body:           []byte(body),
		RequestHeaders: RequestHeaders(opts),
		RequestBody:    opts.Body,
		URL:            opts.URL,
	}
}

// bodyMethods get a Content-Length even when the body is empty.
var bodyMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true}

// RequestHeaders renders the request line and header section of opts with
// Host first and the port always present.
func RequestHeaders(opts *transport.Options) string {
	target, host := opts.URL, ""
	if u, err := url.Parse(opts.URL); err == nil {
		target = u.RequestURI()
		port := u.Port()
		if port == "" {
			port = "80"
			if u.Scheme == "https" {
				port = "443"
			}
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	headers := append(http.Headers{{Name: "Host", Value: host}}, opts.Headers...)
	if len(opts.Body) > 0 || bodyMethods[strings.ToUpper(opts.Method)] {
		headers = append(headers, http.Field{Name: "Content-Length", Value: strconv.Itoa(len(opts.Body))})
	}

	buf := bytes.NewBuffer(nil)
	http.NewRequestEncoder(buf, http.DefaultEncodeOptions).EncodeHead(http.Request{
		RequestLine: http.RequestLine{Method: opts.Method, Target: target, Version: http.Version11},
		Headers:     headers,
	})
	return buf.String()
}
