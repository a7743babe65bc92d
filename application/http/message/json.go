package message

import (
	"encoding/json"
	"time"

	"scan-http/application/http/form"

	"github.com/pkg/errors"
)

type requestJSON struct {
	ID         *uint64           `json:"id,omitempty"`
	URL        string            `json:"url"`
	Method     Method            `json:"method"`
	Parameters *form.Params      `json:"parameters"`
	Body       Body              `json:"body"`
	Headers    map[string]string `json:"headers"`
	Cookies    map[string]string `json:"cookies"`

	Timeout           *time.Duration `json:"timeout"`
	Username          *string        `json:"username"`
	Password          *string        `json:"password"`
	Proxy             *string        `json:"proxy"`
	ProxyUserPassword *string        `json:"proxy_user_password"`
	ProxyType         *string        `json:"proxy_type"`
	ResponseMaxSize   *int64         `json:"response_max_size"`

	Mode          string `json:"mode"`
	Fingerprint   *bool  `json:"fingerprint"`
	Train         bool   `json:"train"`
	UpdateCookies bool   `json:"update_cookies"`

	HeadersString string  `json:"headers_string"`
	EffectiveBody *string `json:"effective_body"`
}

// MarshalJSON encodes everything but the callbacks.
func (r *Request) MarshalJSON() ([]byte, error) {
	r.mu.Lock()
	v := requestJSON{
		ID:            r.id,
		HeadersString: r.headersString,
		EffectiveBody: r.effectiveBody,
	}
	r.mu.Unlock()

	v.URL = r.url
	v.Method = r.method
	v.Parameters = r.parameters
	v.Body = r.body
	v.Headers = r.headers
	v.Cookies = r.cookies
	v.Timeout = r.timeout
	v.Username = r.username
	v.Password = r.password
	v.Proxy = r.proxy
	v.ProxyUserPassword = r.proxyUserPassword
	v.ProxyType = r.proxyType
	v.ResponseMaxSize = r.responseMaxSize
	v.Mode = r.mode.String()
	v.Fingerprint = &r.fingerprint
	v.Train = r.train
	v.UpdateCookies = r.updateCookies

	return json.Marshal(v)
}

// UnmarshalJSON restores a request encoded with MarshalJSON. Callbacks
// already registered are kept.
func (r *Request) UnmarshalJSON(data []byte) error {
	var v requestJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "decoding request")
	}

	restored, err := NewRequest(RequestOptions{
		URL:               v.URL,
		Method:            string(v.Method),
		Parameters:        v.Parameters,
		Body:              v.Body,
		Headers:           v.Headers,
		Cookies:           v.Cookies,
		Timeout:           v.Timeout,
		Username:          v.Username,
		Password:          v.Password,
		Proxy:             v.Proxy,
		ProxyUserPassword: v.ProxyUserPassword,
		ProxyType:         v.ProxyType,
		ResponseMaxSize:   v.ResponseMaxSize,
		Mode:              v.Mode,
		Fingerprint:       v.Fingerprint,
		HeadersString:     v.HeadersString,
		EffectiveBody:     v.EffectiveBody,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.url = restored.url
	r.method = restored.method
	r.parameters = restored.parameters
	r.body = restored.body
	r.headers = restored.headers
	r.cookies = restored.cookies
	r.timeout = restored.timeout
	r.username = restored.username
	r.password = restored.password
	r.proxy = restored.proxy
	r.proxyUserPassword = restored.proxyUserPassword
	r.proxyType = restored.proxyType
	r.responseMaxSize = restored.responseMaxSize
	r.mode = restored.mode
	r.fingerprint = restored.fingerprint
	r.train = v.Train
	r.updateCookies = v.UpdateCookies
	r.id = v.ID
	r.headersString = restored.headersString
	r.effectiveBody = restored.effectiveBody

	return nil
}
