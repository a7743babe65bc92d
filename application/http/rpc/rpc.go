// Package rpc maps requests to and from the flat attribute set that
// crosses process boundaries.
package rpc

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"time"

	"scan-http/application/http/form"
	"scan-http/application/http/message"

	"github.com/pkg/errors"
)

const (
	KeyURL           = "url"
	KeyMethod        = "method"
	KeyParameters    = "parameters"
	KeyBody          = "body"
	KeyHeadersString = "headers_string"
	KeyEffectiveBody = "effective_body"
	KeyTimeout       = "timeout"
	KeyHeaders       = "headers"
	KeyCookies       = "cookies"
	KeyUsername      = "username"
	KeyPassword      = "password"
)

// Keys are the only attributes a request carries across processes.
// Process-local state such as the audit scope is never among them.
var Keys = []string{
	KeyURL, KeyMethod, KeyParameters, KeyBody, KeyHeadersString, KeyEffectiveBody,
	KeyTimeout, KeyHeaders, KeyCookies, KeyUsername, KeyPassword,
}

// Data is the attribute mapping of a request.
//
// Values are typed as produced by ToRPCData: parameters and a mapping body
// are *form.Params, timeout is in milliseconds, unset optional values are
// nil. FromRPCData also accepts the generic forms encoding/json decodes to.
type Data map[string]any

func ToRPCData(req *message.Request) Data {
	var body any
	if p, ok := req.Body().Params(); ok {
		body = p.Clone()
	} else if raw, ok := req.Body().Raw(); ok {
		body = raw
	}

	return Data{
		KeyURL:           req.URL(),
		KeyMethod:        string(req.Method()),
		KeyParameters:    req.Parameters().Clone(),
		KeyBody:          body,
		KeyHeadersString: req.HeadersString(),
		KeyEffectiveBody: req.EffectiveBody(),
		KeyTimeout:       millis(req.Timeout()),
		KeyHeaders:       maps.Clone(req.Headers()),
		KeyCookies:       maps.Clone(req.Cookies()),
		KeyUsername:      optional(req.Username()),
		KeyPassword:      optional(req.Password()),
	}
}

func FromRPCData(data Data) (*message.Request, error) {
	opts := message.RequestOptions{
		Parameters: data[KeyParameters],
		Body:       data[KeyBody],
	}

	var err error
	if opts.URL, err = requiredString(data, KeyURL); err != nil {
		return nil, err
	}
	if opts.Method, _, err = optionalString(data, KeyMethod); err != nil {
		return nil, err
	}
	if opts.HeadersString, _, err = optionalString(data, KeyHeadersString); err != nil {
		return nil, err
	}
	if effective, ok, err := optionalString(data, KeyEffectiveBody); err != nil {
		return nil, err
	} else if ok {
		opts.EffectiveBody = &effective
	}
	if opts.Timeout, err = duration(data[KeyTimeout]); err != nil {
		return nil, err
	}
	if opts.Headers, err = stringMap(data[KeyHeaders]); err != nil {
		return nil, errors.Wrap(err, KeyHeaders)
	}
	if opts.Cookies, err = stringMap(data[KeyCookies]); err != nil {
		return nil, errors.Wrap(err, KeyCookies)
	}
	if v, ok, err := optionalString(data, KeyUsername); err != nil {
		return nil, err
	} else if ok {
		opts.Username = &v
	}
	if v, ok, err := optionalString(data, KeyPassword); err != nil {
		return nil, err
	} else if ok {
		opts.Password = &v
	}

	req, err := message.NewRequest(opts)
	if err != nil {
		return nil, errors.Wrap(err, "restoring request")
	}
	return req, nil
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// millis renders d in milliseconds, as an integer when it is whole.
func millis(d *time.Duration) any {
	if d == nil {
		return nil
	}
	if *d%time.Millisecond == 0 {
		return d.Milliseconds()
	}
	return float64(*d) / float64(time.Millisecond)
}

func duration(v any) (*time.Duration, error) {
	var ms float64
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Duration:
		return &t, nil
	case *time.Duration:
		return t, nil
	case int:
		ms = float64(t)
	case int64:
		ms = float64(t)
	case uint64:
		ms = float64(t)
	case float64:
		ms = t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, errors.Wrapf(message.ErrInvalidArgument, "timeout %q", t)
		}
		ms = f
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, errors.Wrapf(message.ErrInvalidArgument, "timeout %q", t)
		}
		ms = f
	default:
		return nil, errors.Wrapf(message.ErrInvalidArgument, "timeout of type %T", v)
	}

	d := time.Duration(math.Round(ms * float64(time.Millisecond)))
	return &d, nil
}

func requiredString(data Data, key string) (string, error) {
	s, ok, err := optionalString(data, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.Wrapf(message.ErrInvalidArgument, "%s is required", key)
	}
	return s, nil
}

func optionalString(data Data, key string) (string, bool, error) {
	switch t := data[key].(type) {
	case nil:
		return "", false, nil
	case string:
		return t, true, nil
	case *string:
		if t == nil {
			return "", false, nil
		}
		return *t, true, nil
	case fmt.Stringer:
		return t.String(), true, nil
	}
	return "", false, errors.Wrapf(message.ErrInvalidArgument, "%s must be a string, got %T", key, data[key])
}

func stringMap(v any) (map[string]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return maps.Clone(t), nil
	}

	p, err := form.Coerce(v)
	if err != nil {
		return nil, errors.Wrapf(message.ErrInvalidArgument, "%s", err)
	}

	m := make(map[string]string, p.Len())
	for _, pair := range p.Flatten() {
		m[pair[0]] = pair[1]
	}
	return m, nil
}
