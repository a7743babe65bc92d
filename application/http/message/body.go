package message

import (
	"encoding/json"

	"scan-http/application/http/form"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Body is either a raw string or a parameter mapping. The zero value is an
// absent body.
type Body struct {
	raw    *string
	params *form.Params
}

func RawBody(s string) Body { return Body{raw: &s} }

func ParamsBody(p *form.Params) Body {
	if p == nil {
		p = form.NewParams()
	}
	return Body{params: p}
}

// BodyOf converts a string, byte slice, [Body] or any mapping [form.Coerce]
// accepts.
func BodyOf(v any) (Body, error) {
	switch t := v.(type) {
	case nil:
		return Body{}, nil
	case Body:
		return t.Clone(), nil
	case string:
		return RawBody(t), nil
	case *string:
		if t == nil {
			return Body{}, nil
		}
		return RawBody(*t), nil
	case []byte:
		return RawBody(string(t)), nil
	}

	p, err := form.Coerce(v)
	if err != nil {
		return Body{}, errors.Wrapf(ErrInvalidArgument, "body: %s", err)
	}
	return ParamsBody(p), nil
}

func (b Body) IsZero() bool { return b.raw == nil && b.params == nil }

func (b Body) Raw() (string, bool) {
	if b.raw == nil {
		return "", false
	}
	return *b.raw, true
}

func (b Body) Params() (*form.Params, bool) { return b.params, b.params != nil }

// Encoded returns the body as sent: the url-encoded mapping or the raw string.
func (b Body) Encoded() string {
	if b.params != nil {
		return form.Encode(b.params)
	}
	if b.raw != nil {
		return *b.raw
	}
	return ""
}

func (b Body) Clone() Body {
	switch {
	case b.params != nil:
		return Body{params: b.params.Clone()}
	case b.raw != nil:
		return RawBody(*b.raw)
	}
	return Body{}
}

func (b Body) Equal(o Body) bool {
	switch {
	case b.params != nil || o.params != nil:
		return b.params != nil && o.params != nil && b.params.Equal(o.params)
	case b.raw != nil || o.raw != nil:
		return b.raw != nil && o.raw != nil && *b.raw == *o.raw
	}
	return true
}

// Value returns the body as a plain Go value: nil, string or
// map[string]any.
func (b Body) Value() any {
	switch {
	case b.params != nil:
		return b.params.Map()
	case b.raw != nil:
		return *b.raw
	}
	return nil
}

func (b Body) MarshalJSON() ([]byte, error) {
	switch {
	case b.params != nil:
		return b.params.MarshalJSON()
	case b.raw != nil:
		return json.Marshal(*b.raw)
	}
	return []byte("null"), nil
}

func (b *Body) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid json")
	}

	parsed, err := BodyFromJSON(gjson.ParseBytes(data))
	if err != nil {
		return err
	}

	*b = parsed
	return nil
}

// BodyFromJSON reads a string, an object or null.
func BodyFromJSON(res gjson.Result) (Body, error) {
	switch {
	case !res.Exists() || res.Type == gjson.Null:
		return Body{}, nil
	case res.Type == gjson.String:
		return RawBody(res.Str), nil
	case res.IsObject():
		p, err := form.FromJSON(res)
		if err != nil {
			return Body{}, err
		}
		return ParamsBody(p), nil
	}
	return Body{}, errors.Wrapf(ErrInvalidArgument, "body must be a string or an object, got %s", res.Type)
}
