// Package adapter resolves a request against the process-wide defaults
// into the options the transport performs it with.
package adapter

import (
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"

	"scan-http/application/http"
	"scan-http/application/http/cookie"
	"scan-http/application/http/form"
	"scan-http/application/http/message"
	"scan-http/config"
	"scan-http/lib/types/pointer"
	"scan-http/transport"
)

const DefaultAcceptEncoding = "gzip, deflate"

// Resolve merges req with defaults. A value set on the request always wins.
func Resolve(req *message.Request, defaults config.HTTP) transport.Options {
	opts := transport.Options{
		Method:      req.Method().Wire(),
		URL:         req.URL(),
		Body:        req.EffectiveBody(),
		Timeout:     pointer.Or(req.Timeout(), defaults.Timeout),
		ForbidReuse: req.Blocking(),
		TLS:         tlsOptions(defaults),
		MaxFileSize: maxFileSize(req.ResponseMaxSize(), defaults.ResponseMaxSize),
	}

	var contentType string
	if params := req.Parameters(); params.Len() > 0 {
		if req.Method() == message.MethodPost && req.Body().IsZero() {
			opts.Body = form.Encode(params)
			contentType = form.ContentTypeURLEncoded
		} else {
			opts.URL = withQuery(opts.URL, form.Encode(params))
		}
	}
	opts.Headers = headers(req, defaults, contentType)

	opts.Proxy = pointer.Or(req.Proxy(), "")
	if opts.Proxy == "" && defaults.ProxyHost != "" {
		opts.Proxy = net.JoinHostPort(defaults.ProxyHost, strconv.Itoa(defaults.ProxyPort))
	}

	opts.ProxyUserPassword = pointer.Or(req.ProxyUserPassword(), "")
	if opts.ProxyUserPassword == "" && (defaults.ProxyUsername != "" || defaults.ProxyPassword != "") {
		opts.ProxyUserPassword = defaults.ProxyUsername + ":" + defaults.ProxyPassword
	}

	if proxyType := pointer.Or(req.ProxyType(), defaults.ProxyType); proxyType != "" {
		opts.ProxyType = transport.ProxyType(strings.ToLower(proxyType))
	}

	switch {
	case req.Username() != nil || req.Password() != nil:
		opts.UserPassword = pointer.Or(req.Username(), "") + ":" + pointer.Or(req.Password(), "")
	case defaults.AuthenticationUsername != "" || defaults.AuthenticationPassword != "":
		opts.UserPassword = defaults.AuthenticationUsername + ":" + defaults.AuthenticationPassword
	}
	if opts.UserPassword != "" {
		opts.HTTPAuth = transport.AuthAuto
	}

	return opts
}

// headers orders the fields as Accept-Encoding, User-Agent and Accept,
// then the request's own sorted by name, then Cookie.
func headers(req *message.Request, defaults config.HTTP, contentType string) http.Headers {
	own := req.Headers()

	fixed := []http.Field{
		{Name: "Accept-Encoding", Value: DefaultAcceptEncoding},
		{Name: "User-Agent", Value: defaults.UserAgent},
		{Name: "Accept", Value: defaults.Accept},
	}
	overridden := make(map[string]bool)
	for idx, f := range fixed {
		for name, v := range own {
			if strings.EqualFold(name, f.Name) {
				fixed[idx].Value = v
				overridden[name] = true
			}
		}
	}

	headers := make(http.Headers, 0, len(fixed)+len(own)+2)
	for _, f := range fixed {
		if f.Value != "" {
			headers = append(headers, f)
		}
	}

	hasContentType := false
	for _, name := range slices.Sorted(maps.Keys(own)) {
		if overridden[name] || strings.EqualFold(name, "Cookie") {
			continue
		}
		if strings.EqualFold(name, "Content-Type") {
			hasContentType = true
		}
		headers = append(headers, http.Field{Name: name, Value: own[name]})
	}
	if contentType != "" && !hasContentType {
		headers = append(headers, http.Field{Name: "Content-Type", Value: contentType})
	}

	if cookies := req.EffectiveCookies(); len(cookies) > 0 {
		headers = append(headers, http.Field{Name: "Cookie", Value: cookie.Encode(cookies)})
	}

	return headers
}

func withQuery(rawURL, query string) string {
	base, fragment, hasFragment := strings.Cut(rawURL, "#")

	switch {
	case !strings.Contains(base, "?"):
		base += "?" + query
	case strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&"):
		base += query
	default:
		base += "&" + query
	}

	if hasFragment {
		return base + "#" + fragment
	}
	return base
}

// maxFileSize lets a request value win when it is not negative. A negative
// request value removes the cap.
func maxFileSize(requested, fallback *int64) *int64 {
	if requested != nil {
		if *requested < 0 {
			return nil
		}
		return pointer.Clone(requested)
	}
	if fallback != nil && *fallback >= 0 {
		return pointer.Clone(fallback)
	}
	return nil
}

func tlsOptions(defaults config.HTTP) transport.TLSOptions {
	hostCheck := transport.HostCheckNone
	if defaults.SSLVerifyHost {
		hostCheck = transport.HostCheckStrict
	}

	return transport.TLSOptions{
		VerifyPeer:  defaults.SSLVerifyPeer,
		VerifyHost:  hostCheck,
		CertFile:    defaults.SSLCertificateFilepath,
		CertType:    defaults.SSLCertificateType,
		KeyFile:     defaults.SSLKeyFilepath,
		KeyType:     defaults.SSLKeyType,
		KeyPassword: defaults.SSLKeyPassword,
		CAFile:      defaults.SSLCAFilepath,
		CAPath:      defaults.SSLCADirectory,
		Version:     defaults.SSLVersion,
	}
}
