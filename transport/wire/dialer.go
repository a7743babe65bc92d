package wire

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"scan-http/application/http"
	"scan-http/transport"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
)

var (
	ErrUnsupportedScheme    = errors.New("unsupported url scheme")
	ErrUnsupportedProxyType = errors.New("unsupported proxy type")
)

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// target is where a request is sent.
type target struct {
	scheme string
	host   string
	// addr is host:port with the port always present.
	addr       string
	requestURI string
}

func parseTarget(raw string) (target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return target{}, errors.Wrap(err, "parsing url")
	}

	scheme := strings.ToLower(u.Scheme)
	port, ok := defaultPorts[scheme]
	if !ok {
		return target{}, errors.Wrapf(ErrUnsupportedScheme, "%q", u.Scheme)
	}
	if u.Hostname() == "" {
		return target{}, errors.Errorf("url has no host: %q", raw)
	}
	if p := u.Port(); p != "" {
		port = p
	}

	return target{
		scheme:     scheme,
		host:       u.Hostname(),
		addr:       net.JoinHostPort(u.Hostname(), port),
		requestURI: u.RequestURI(),
	}, nil
}

// absoluteURI is the request target sent to a forwarding proxy.
func (t target) absoluteURI() string {
	return t.scheme + "://" + t.addr + t.requestURI
}

func basicCredentials(userPassword string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(userPassword))
}

// forwardsThroughProxy reports whether requests to t are sent to an HTTP
// proxy in absolute-form rather than through a tunnel.
func forwardsThroughProxy(t target, opts *transport.Options) bool {
	if opts.Proxy == "" || t.scheme != "http" {
		return false
	}
	return opts.ProxyType == transport.ProxyHTTP || opts.ProxyType == transport.ProxyHTTPS || opts.ProxyType == ""
}

func (tr *Transport) dial(ctx context.Context, t target, opts *transport.Options) (net.Conn, error) {
	d := &net.Dialer{Timeout: tr.opts.Conn.DialTimeout}

	var (
		c   net.Conn
		err error
	)
	switch {
	case opts.Proxy == "":
		c, err = d.DialContext(ctx, "tcp", t.addr)
	default:
		c, err = tr.dialProxy(ctx, d, t, opts)
	}
	if err != nil {
		return nil, err
	}

	if t.scheme != "https" {
		return c, nil
	}

	cfg, err := tr.tlsConfig(opts.TLS)
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "building tls config")
	}
	cfg = cfg.Clone()
	cfg.ServerName = t.host

	tc := tls.Client(c, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "tls handshake")
	}

	return tc, nil
}

// proxyAddr accepts host:port or a URL such as http://host:port/.
func proxyAddr(proxy string, proxyType transport.ProxyType) string {
	if !strings.Contains(proxy, "://") {
		return proxy
	}

	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		return proxy
	}
	if u.Port() != "" {
		return u.Host
	}

	port := "1080"
	switch {
	case strings.EqualFold(u.Scheme, "https"):
		port = "443"
	case strings.EqualFold(u.Scheme, "http"):
		port = "80"
	case proxyType == transport.ProxyHTTPS:
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func (tr *Transport) dialProxy(ctx context.Context, d *net.Dialer, t target, opts *transport.Options) (net.Conn, error) {
	addr := proxyAddr(opts.Proxy, opts.ProxyType)

	switch opts.ProxyType {
	case transport.ProxyHTTP, transport.ProxyHTTPS, "":
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, errors.Wrap(err, "dialing proxy")
		}

		if opts.ProxyType == transport.ProxyHTTPS {
			host, _, _ := net.SplitHostPort(addr)
			tc := tls.Client(c, &tls.Config{
				ServerName:         host,
				InsecureSkipVerify: !opts.TLS.VerifyPeer,
			})
			if err := tc.HandshakeContext(ctx); err != nil {
				c.Close()
				return nil, errors.Wrap(err, "tls handshake with proxy")
			}
			c = tc
		}

		if forwardsThroughProxy(t, opts) {
			return c, nil
		}

		tunnel, err := tr.connect(ctx, c, t, opts.ProxyUserPassword)
		if err != nil {
			c.Close()
			return nil, errors.Wrap(err, "opening tunnel")
		}
		return tunnel, nil

	case transport.ProxySOCKS5, transport.ProxySOCKS5H:
		var auth *proxy.Auth
		if opts.ProxyUserPassword != "" {
			user, password, _ := strings.Cut(opts.ProxyUserPassword, ":")
			auth = &proxy.Auth{User: user, Password: password}
		}

		socks, err := proxy.SOCKS5("tcp", addr, auth, d)
		if err != nil {
			return nil, errors.Wrap(err, "creating socks5 dialer")
		}

		dst := t.addr
		if opts.ProxyType == transport.ProxySOCKS5 {
			// socks5 resolves locally, socks5h leaves it to the proxy.
			if dst, err = resolve(ctx, t.addr); err != nil {
				return nil, err
			}
		}

		c, err := socks.(proxy.ContextDialer).DialContext(ctx, "tcp", dst)
		if err != nil {
			return nil, errors.Wrap(err, "dialing through socks5 proxy")
		}
		return c, nil
	}

	return nil, errors.Wrapf(ErrUnsupportedProxyType, "%q", opts.ProxyType)
}

func resolve(ctx context.Context, addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", errors.Wrap(err, "splitting address")
	}
	if net.ParseIP(host) != nil {
		return addr, nil
	}

	ips, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return "", errors.Wrapf(err, "resolving %q", host)
	}
	if len(ips) == 0 {
		return "", errors.Errorf("no address for %q", host)
	}
	return net.JoinHostPort(ips[0], port), nil
}

var ErrTunnelRefused = errors.New("proxy refused tunnel")

// connect opens a CONNECT tunnel to t over c. The handshake is bounded by
// ctx; c carries no deadline once the tunnel is up.
func (tr *Transport) connect(ctx context.Context, c net.Conn, t target, proxyUserPassword string) (net.Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		c.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	req := http.Request{
		RequestLine: http.RequestLine{Method: "CONNECT", Target: t.addr, Version: http.Version11},
		Headers:     http.Headers{{Name: "Host", Value: t.addr}},
	}
	if proxyUserPassword != "" {
		req.Headers = append(req.Headers, http.Field{Name: "Proxy-Authorization", Value: basicCredentials(proxyUserPassword)})
	}

	if err := http.NewRequestEncoder(c, tr.opts.Send.Encode).Encode(req); err != nil {
		return nil, errors.Wrap(err, "writing connect request")
	}

	dec := http.NewResponseDecoder(c, tr.opts.Receive.Decode)

	var resp http.Response
	if err := dec.Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "reading connect response")
	}

	if resp.StatusCode/100 != 2 {
		return nil, errors.Wrapf(ErrTunnelRefused, "status %d", resp.StatusCode)
	}

	if !stop() {
		return nil, errors.Wrap(ctx.Err(), "opening tunnel")
	}
	c.SetDeadline(time.Time{})

	if dec.Buffered().Buffered() > 0 {
		return &bufferedConn{Conn: c, r: dec.Buffered()}, nil
	}
	return c, nil
}

// bufferedConn reads what was buffered past a handshake before the conn.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

var _ io.Reader = (*bufferedConn)(nil)

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }
