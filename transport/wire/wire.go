// Package wire performs requests over HTTP/1.1 on TCP, TLS and proxies.
package wire

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"scan-http/application/http"
	"scan-http/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type Transport struct {
	opts   Options
	logger *slog.Logger
	clock  clock.Clock

	pool       *connPool
	tlsConfigs sync.Map // transport.TLSOptions -> *tls.Config
}

var _ transport.Transport = (*Transport)(nil)

func New(logger *slog.Logger, clock clock.Clock, opts Options) *Transport {
	return &Transport{
		opts:   opts,
		logger: logger,
		clock:  clock,
		pool:   newConnPool(opts.Conn.MaxIdleConnsPerHost, opts.Timeout.IdleTimeout, clock),
	}
}

// CloseIdle closes every pooled connection.
func (tr *Transport) CloseIdle() { tr.pool.closeIdle() }

// IdleConns returns the number of pooled connections.
func (tr *Transport) IdleConns() int { return tr.pool.len() }

func (tr *Transport) Perform(ctx context.Context, opts *transport.Options) (*transport.Reply, error) {
	t, err := parseTarget(opts.URL)
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var authz string
	if opts.UserPassword != "" && opts.HTTPAuth == transport.AuthBasic {
		authz = basicCredentials(opts.UserPassword)
	}

	reply, err := tr.roundTrip(ctx, t, opts, authz)
	if err != nil {
		return nil, classify(ctx, err)
	}

	if reply.StatusCode == 401 && authz == "" && opts.UserPassword != "" && opts.HTTPAuth != transport.AuthNone {
		challenges := parseChallenges(reply.Headers.Values("WWW-Authenticate"))
		if v, ok := authorization(challenges, opts.HTTPAuth, opts.UserPassword, opts.Method, t.requestURI); ok {
			tr.logger.Debug("answering auth challenge", slog.String("url", opts.URL))

			reply, err = tr.roundTrip(ctx, t, opts, v)
			if err != nil {
				return nil, classify(ctx, err)
			}
		}
	}

	return reply, nil
}

// classify maps err onto the transport error kinds.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, transport.ErrFileSizeExceeded) || errors.Is(err, transport.ErrCouldNotConnect) {
		return err
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return errors.WithMessage(transport.ErrTimedOut, err.Error())
	}

	return err
}

func (tr *Transport) poolKey(t target, opts *transport.Options) poolKey {
	return poolKey{
		scheme:    t.scheme,
		addr:      t.addr,
		proxy:     opts.Proxy,
		proxyType: opts.ProxyType,
		proxyAuth: opts.ProxyUserPassword,
		tls:       opts.TLS,
	}
}

func (tr *Transport) getConn(ctx context.Context, key poolKey, t target, opts *transport.Options) (c *conn, reused bool, err error) {
	if !opts.ForbidReuse {
		if c := tr.pool.get(key); c != nil {
			return c, true, nil
		}
	}

	nc, err := tr.dial(ctx, t, opts)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) || errors.Is(err, ErrUnsupportedProxyType) {
			return nil, false, err
		}
		return nil, false, errors.WithMessage(transport.ErrCouldNotConnect, err.Error())
	}

	return &conn{
		Conn: nc,
		dec:  http.NewResponseDecoder(nc, tr.opts.Receive.Decode),
	}, false, nil
}

func (tr *Transport) roundTrip(ctx context.Context, t target, opts *transport.Options, authz string) (*transport.Reply, error) {
	key := tr.poolKey(t, opts)

	c, reused, err := tr.getConn(ctx, key, t, opts)
	if err != nil {
		return nil, err
	}

	reply, reusable, err := tr.exchange(ctx, c, t, opts, authz)
	var stale *staleConnError
	if err != nil && reused && errors.As(err, &stale) && ctx.Err() == nil {
		// The server dropped the idle connection; try once on a fresh one.
		c.Close()
		tr.logger.Debug("retrying on fresh connection", slog.String("addr", t.addr))

		fresh := *opts
		fresh.ForbidReuse = true
		if c, _, err = tr.getConn(ctx, key, t, &fresh); err != nil {
			return nil, err
		}
		reply, reusable, err = tr.exchange(ctx, c, t, opts, authz)
	}
	if err != nil {
		c.Close()
		return nil, err
	}

	if reusable && !opts.ForbidReuse && tr.opts.Conn.MaxIdleConnsPerHost > 0 {
		c.SetDeadline(time.Time{})
		tr.pool.put(key, c)
	} else {
		c.Close()
	}

	return reply, nil
}

func isStale(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// staleConnError marks a pooled connection that failed before the server
// could have acted on the request, so sending it again is safe.
type staleConnError struct{ err error }

func (e *staleConnError) Error() string { return e.err.Error() }
func (e *staleConnError) Unwrap() error { return e.err }

// idempotent reports whether a repeated request has the same effect as a
// single one.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-9.2.2
func idempotent(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "OPTIONS", "TRACE", "PUT", "DELETE":
		return true
	}
	return false
}

// carriesBody reports whether method frames a body even when it is empty.
func carriesBody(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// buildRequest returns the request to write. Host always carries the port.
func (tr *Transport) buildRequest(t target, opts *transport.Options, authz string) http.Request {
	reqTarget := t.requestURI
	if forwardsThroughProxy(t, opts) {
		reqTarget = t.absoluteURI()
	}

	headers := make(http.Headers, 0, len(opts.Headers)+4)
	headers = append(headers, http.Field{Name: "Host", Value: t.addr})
	for _, f := range opts.Headers {
		if strings.EqualFold(f.Name, "Host") || strings.EqualFold(f.Name, "Content-Length") {
			continue
		}
		headers = append(headers, f)
	}
	if len(opts.Body) > 0 || carriesBody(opts.Method) {
		headers = append(headers, http.Field{Name: "Content-Length", Value: strconv.Itoa(len(opts.Body))})
	}
	if authz != "" {
		headers = append(headers, http.Field{Name: "Authorization", Value: authz})
	}
	if forwardsThroughProxy(t, opts) && opts.ProxyUserPassword != "" {
		headers = append(headers, http.Field{Name: "Proxy-Authorization", Value: basicCredentials(opts.ProxyUserPassword)})
	}

	return http.Request{
		RequestLine: http.RequestLine{
			Method:  opts.Method,
			Target:  reqTarget,
			Version: http.Version11,
		},
		Headers: headers,
		Body:    strings.NewReader(opts.Body),
	}
}

func (tr *Transport) exchange(ctx context.Context, c *conn, t target, opts *transport.Options, authz string) (*transport.Reply, bool, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		// Unblock pending reads and writes.
		c.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	req := tr.buildRequest(t, opts, authz)

	buf := bytes.NewBuffer(nil)
	enc := http.NewRequestEncoder(buf, tr.opts.Send.Encode)
	if err := enc.EncodeHead(req); err != nil {
		return nil, false, errors.Wrap(err, "encoding request head")
	}
	requestHeaders := buf.String()
	buf.WriteString(opts.Body)

	if _, err := c.Write(buf.Bytes()); err != nil {
		err = errors.Wrap(err, "writing request")
		if isStale(err) {
			err = &staleConnError{err}
		}
		return nil, false, err
	}

	var (
		resp  http.Response
		first = true
	)
	for {
		if err := c.dec.Decode(&resp); err != nil {
			err = errors.Wrap(err, "reading response head")
			// Nothing came back; only a request that may be repeated is retried.
			if first && isStale(err) && len(c.dec.Head()) == 0 && idempotent(opts.Method) {
				err = &staleConnError{err}
			}
			return nil, false, err
		}
		first = false
		// Interim responses precede the final one.
		if resp.StatusCode/100 != 1 || resp.StatusCode == 101 {
			break
		}
	}
	head := c.dec.Head()

	body, reusable, err := readBody(c, &resp, opts.Method, opts.MaxFileSize)
	if err != nil {
		return nil, false, err
	}
	if resp.Headers.Has("Connection", "close") || resp.Version != http.Version11 {
		reusable = false
	}

	return &transport.Reply{
		Version:        resp.Version,
		StatusCode:     resp.StatusCode,
		ReasonPhrase:   resp.ReasonPhrase,
		Headers:        resp.Headers,
		HeadersText:    string(head),
		Body:           decodeContent(resp.Headers, body),
		RequestHeaders: requestHeaders,
		RequestBody:    opts.Body,
		URL:            opts.URL,
	}, reusable, nil
}
