// Package message holds the request and response of a single probe.
package message

import (
	"maps"
	"net/url"
	"strings"
	"sync"
	"time"

	"scan-http/application/http/cookie"
	"scan-http/application/http/form"
	"scan-http/lib/types/pointer"

	"github.com/pkg/errors"
)

type RequestOptions struct {
	// URL is required.
	URL    string
	Method string
	// Parameters and Body accept anything [form.Coerce] does; Body also
	// takes a string.
	Parameters any
	Body       any
	Headers    map[string]string
	Cookies    map[string]string

	Timeout           *time.Duration
	Username          *string
	Password          *string
	Proxy             *string
	ProxyUserPassword *string
	ProxyType         *string
	ResponseMaxSize   *int64

	Mode string
	// Fingerprint is on unless explicitly false.
	Fingerprint *bool

	HeadersString string
	EffectiveBody *string
}

// Request describes one outbound probe.
//
// Setters are not safe for concurrent use. The fields written while a
// request is dispatched (ID, HeadersString, EffectiveBody) and the
// callback list are.
type Request struct {
	url        string
	method     Method
	parameters *form.Params
	body       Body
	headers    map[string]string
	cookies    map[string]string

	timeout           *time.Duration
	username          *string
	password          *string
	proxy             *string
	proxyUserPassword *string
	proxyType         *string
	responseMaxSize   *int64

	mode          Mode
	fingerprint   bool
	train         bool
	updateCookies bool

	mu            sync.Mutex
	id            *uint64
	headersString string
	effectiveBody *string
	callbacks     []Callback

	// completion serializes callback runs.
	completion sync.Mutex
}

func NewRequest(opts RequestOptions) (*Request, error) {
	r := &Request{
		method:      MethodGet,
		parameters:  form.NewParams(),
		headers:     make(map[string]string),
		cookies:     make(map[string]string),
		mode:        ModeSync,
		fingerprint: opts.Fingerprint == nil || *opts.Fingerprint,
	}

	if err := r.SetURL(opts.URL); err != nil {
		return nil, err
	}
	if opts.Method != "" {
		if err := r.SetMethod(opts.Method); err != nil {
			return nil, err
		}
	}
	if err := r.SetParameters(opts.Parameters); err != nil {
		return nil, err
	}
	if err := r.SetBody(opts.Body); err != nil {
		return nil, err
	}
	if opts.Mode != "" {
		if err := r.SetMode(opts.Mode); err != nil {
			return nil, err
		}
	}

	r.SetHeaders(opts.Headers)
	r.SetCookies(opts.Cookies)
	r.SetTimeout(opts.Timeout)
	r.SetUsername(opts.Username)
	r.SetPassword(opts.Password)
	r.SetProxy(opts.Proxy)
	r.SetProxyUserPassword(opts.ProxyUserPassword)
	r.SetProxyType(opts.ProxyType)
	r.SetResponseMaxSize(opts.ResponseMaxSize)
	r.SetHeadersString(opts.HeadersString)
	r.SetEffectiveBody(opts.EffectiveBody)

	return r, nil
}

// ID is assigned when the request is dispatched.
func (r *Request) ID() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.id == nil {
		return 0, false
	}
	return *r.id, true
}

func (r *Request) SetID(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.id = &id
}

func (r *Request) URL() string { return r.url }

// SetURL requires an absolute URL.
func (r *Request) SetURL(raw string) error {
	if raw == "" {
		return errors.Wrap(ErrInvalidArgument, "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(ErrInvalidArgument, "url %q: %s", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.Wrapf(ErrInvalidArgument, "url %q is not absolute", raw)
	}

	r.url = raw
	return nil
}

func (r *Request) ParsedURL() *url.URL {
	// Validated by SetURL.
	u, _ := url.Parse(r.url)
	return u
}

func (r *Request) Method() Method { return r.method }

func (r *Request) SetMethod(s string) error {
	m, err := ParseMethod(s)
	if err != nil {
		return err
	}
	r.method = m
	return nil
}

func (r *Request) Parameters() *form.Params { return r.parameters }

func (r *Request) SetParameters(v any) error {
	p, err := form.Coerce(v)
	if err != nil {
		return errors.Wrapf(ErrInvalidArgument, "parameters: %s", err)
	}
	r.parameters = p
	return nil
}

func (r *Request) Body() Body { return r.body }

func (r *Request) SetBody(v any) error {
	b, err := BodyOf(v)
	if err != nil {
		return err
	}
	r.body = b
	return nil
}

// Headers returns the request's own header map; names keep their case.
func (r *Request) Headers() map[string]string { return r.headers }

func (r *Request) SetHeaders(h map[string]string) {
	r.headers = maps.Clone(h)
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
}

// Header looks name up case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	if v, ok := r.headers[name]; ok {
		return v, true
	}
	for k, v := range r.headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func (r *Request) Cookies() map[string]string { return r.cookies }

func (r *Request) SetCookies(c map[string]string) {
	r.cookies = maps.Clone(c)
	if r.cookies == nil {
		r.cookies = make(map[string]string)
	}
}

func (r *Request) Timeout() *time.Duration        { return r.timeout }
func (r *Request) SetTimeout(d *time.Duration)    { r.timeout = pointer.Clone(d) }
func (r *Request) Username() *string              { return r.username }
func (r *Request) SetUsername(s *string)          { r.username = pointer.Clone(s) }
func (r *Request) Password() *string              { return r.password }
func (r *Request) SetPassword(s *string)          { r.password = pointer.Clone(s) }
func (r *Request) Proxy() *string                 { return r.proxy }
func (r *Request) SetProxy(s *string)             { r.proxy = pointer.Clone(s) }
func (r *Request) ProxyUserPassword() *string     { return r.proxyUserPassword }
func (r *Request) SetProxyUserPassword(s *string) { r.proxyUserPassword = pointer.Clone(s) }
func (r *Request) ProxyType() *string             { return r.proxyType }
func (r *Request) SetProxyType(s *string)         { r.proxyType = pointer.Clone(s) }
func (r *Request) ResponseMaxSize() *int64        { return r.responseMaxSize }
func (r *Request) SetResponseMaxSize(n *int64)    { r.responseMaxSize = pointer.Clone(n) }

func (r *Request) Mode() Mode { return r.mode }

// SetMode leaves the mode unchanged when s is not a mode.
func (r *Request) SetMode(s string) error {
	m, err := ParseMode(s)
	if err != nil {
		return err
	}
	r.mode = m
	return nil
}

func (r *Request) Asynchronous() bool { return r.mode == ModeAsync }
func (r *Request) Blocking() bool     { return r.mode == ModeSync }

func (r *Request) Fingerprint() bool { return r.fingerprint }

// Train marks the response as input for the site model.
func (r *Request) Train()         { r.train = true }
func (r *Request) Training() bool { return r.train }

func (r *Request) UpdateCookies()       { r.updateCookies = true }
func (r *Request) UpdatesCookies() bool { return r.updateCookies }

// HeadersString is the request line and header section as written on the
// wire. Empty until dispatched.
func (r *Request) HeadersString() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.headersString
}

func (r *Request) SetHeadersString(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.headersString = s
}

// EffectiveBody is the body as sent once dispatched, otherwise the encoded
// body.
func (r *Request) EffectiveBody() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.effectiveBody != nil {
		return *r.effectiveBody
	}
	return r.body.Encoded()
}

func (r *Request) SetEffectiveBody(s *string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.effectiveBody = pointer.Clone(s)
}

// EffectiveCookies merges the Cookie header with the explicit cookies,
// explicit ones winning.
func (r *Request) EffectiveCookies() map[string]string {
	header, _ := r.Header("Cookie")
	return cookie.Merge(header, r.cookies)
}

// BodyParameters returns the parameters a POST carries in its body.
func (r *Request) BodyParameters() *form.Params {
	if r.method != MethodPost {
		return form.NewParams()
	}
	if r.parameters.Len() > 0 {
		return r.parameters.Clone()
	}
	if p, ok := r.body.Params(); ok {
		return p.Clone()
	}

	raw, ok := r.body.Raw()
	if !ok {
		return form.ParseBody(nil)
	}

	ct, _ := r.Header("Content-Type")
	if mediaType, _, _ := strings.Cut(ct, ";"); strings.EqualFold(strings.TrimSpace(mediaType), form.ContentTypeMultipart) {
		boundary, ok := form.BoundaryOf(ct)
		if !ok {
			return form.NewParams()
		}
		return form.ParseMultipart(raw, boundary)
	}

	return form.Parse(raw)
}

// String returns the request as written on the wire.
func (r *Request) String() string { return r.HeadersString() + r.EffectiveBody() }

// ToMap summarizes the request with plain values.
func (r *Request) ToMap() map[string]any {
	return map[string]any{
		"url":            r.url,
		"method":         string(r.method),
		"parameters":     r.parameters.Map(),
		"body":           r.body.Value(),
		"headers_string": r.HeadersString(),
		"effective_body": r.EffectiveBody(),
		"headers":        maps.Clone(r.headers),
	}
}

// Equal compares the attributes that identify a request across process
// boundaries. Callbacks, dispatch state and process-local flags are not
// compared.
func (r *Request) Equal(o *Request) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.url == o.url &&
		r.method == o.method &&
		r.parameters.Equal(o.parameters) &&
		r.body.Equal(o.body) &&
		r.HeadersString() == o.HeadersString() &&
		r.EffectiveBody() == o.EffectiveBody() &&
		pointer.Equal(r.timeout, o.timeout) &&
		maps.Equal(r.headers, o.headers) &&
		maps.Equal(r.cookies, o.cookies) &&
		pointer.Equal(r.username, o.username) &&
		pointer.Equal(r.password, o.password)
}
