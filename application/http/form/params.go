// Package form encodes and decodes request parameters: url-encoded and
// multipart bodies, and the insertion-ordered [Params] mapping they decode to.
package form

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Value is either a plain string or a nested parameter mapping.
type Value struct {
	String string
	Nested *Params
}

func (v Value) IsNested() bool { return v.Nested != nil }

func (v Value) Equal(o Value) bool {
	if v.IsNested() != o.IsNested() {
		return false
	}
	if v.IsNested() {
		return v.Nested.Equal(o.Nested)
	}
	return v.String == o.String
}

// Params is an insertion-ordered string keyed mapping.
// The zero value is empty and ready to use; a nil *Params reads as empty.
type Params struct {
	keys   []string
	values map[string]Value
}

func NewParams() *Params { return &Params{} }

// FromPairs builds params from alternating key, value strings.
// A trailing key without value maps to "".
func FromPairs(kv ...string) *Params {
	p := NewParams()
	for idx := 0; idx < len(kv); idx += 2 {
		v := ""
		if idx+1 < len(kv) {
			v = kv[idx+1]
		}
		p.Set(kv[idx], v)
	}
	return p
}

func (p *Params) set(k string, v Value) {
	if p.values == nil {
		p.values = make(map[string]Value)
	}
	if _, ok := p.values[k]; !ok {
		p.keys = append(p.keys, k)
	}
	p.values[k] = v
}

// Set stores v under k. An existing key keeps its position.
func (p *Params) Set(k, v string) { p.set(k, Value{String: v}) }

// SetNested stores a nested mapping under k.
func (p *Params) SetNested(k string, nested *Params) {
	if nested == nil {
		nested = NewParams()
	}
	p.set(k, Value{Nested: nested})
}

func (p *Params) Get(k string) (Value, bool) {
	if p == nil {
		return Value{}, false
	}
	v, ok := p.values[k]
	return v, ok
}

// Lookup returns the string stored under k.
// Nested values are reported as missing.
func (p *Params) Lookup(k string) (string, bool) {
	v, ok := p.Get(k)
	if !ok || v.IsNested() {
		return "", false
	}
	return v.String, true
}

func (p *Params) Delete(k string) {
	if p == nil {
		return
	}
	if _, ok := p.values[k]; !ok {
		return
	}
	delete(p.values, k)
	for idx, key := range p.keys {
		if key == k {
			p.keys = append(p.keys[:idx:idx], p.keys[idx+1:]...)
			break
		}
	}
}

func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Each calls fn for every entry in insertion order.
func (p *Params) Each(fn func(k string, v Value)) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		fn(k, p.values[k])
	}
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	c := NewParams()
	p.Each(func(k string, v Value) {
		if v.IsNested() {
			c.SetNested(k, v.Nested.Clone())
			return
		}
		c.Set(k, v.String)
	})
	return c
}

// Equal compares contents; insertion order is not significant.
func (p *Params) Equal(o *Params) bool {
	if p.Len() != o.Len() {
		return false
	}
	equal := true
	p.Each(func(k string, v Value) {
		ov, ok := o.Get(k)
		if !ok || !v.Equal(ov) {
			equal = false
		}
	})
	return equal
}

// Flatten returns the entries as key/value pairs, nested keys rendered
// as outer[inner].
func (p *Params) Flatten() [][2]string {
	var pairs [][2]string
	p.flatten("", &pairs)
	return pairs
}

func (p *Params) flatten(prefix string, pairs *[][2]string) {
	p.Each(func(k string, v Value) {
		name := k
		if prefix != "" {
			name = prefix + "[" + k + "]"
		}
		if v.IsNested() {
			v.Nested.flatten(name, pairs)
			return
		}
		*pairs = append(*pairs, [2]string{name, v.String})
	})
}

// Map converts to plain Go values: string or map[string]any.
func (p *Params) Map() map[string]any {
	m := make(map[string]any, p.Len())
	p.Each(func(k string, v Value) {
		if v.IsNested() {
			m[k] = v.Nested.Map()
			return
		}
		m[k] = v.String
	})
	return m
}

// MarshalJSON writes an object with keys in insertion order.
func (p *Params) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte('{')

	var err error
	first := true
	p.Each(func(k string, v Value) {
		if err != nil {
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		var kb, vb []byte
		if kb, err = json.Marshal(k); err != nil {
			return
		}
		if v.IsNested() {
			vb, err = v.Nested.MarshalJSON()
		} else {
			vb, err = json.Marshal(v.String)
		}
		if err != nil {
			return
		}

		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshalling params")
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var ErrNotObject = errors.New("params must be a JSON object")

// UnmarshalJSON reads an object keeping document order. Scalars other than
// strings are stored in their JSON text form; null becomes "".
func (p *Params) UnmarshalJSON(b []byte) error {
	if !gjson.ValidBytes(b) {
		return errors.New("invalid json")
	}

	res := gjson.ParseBytes(b)
	if res.Type == gjson.Null {
		*p = Params{}
		return nil
	}

	parsed, err := FromJSON(res)
	if err != nil {
		return err
	}

	*p = *parsed
	return nil
}

// FromJSON converts a parsed JSON object into params.
func FromJSON(res gjson.Result) (*Params, error) {
	if !res.IsObject() {
		return nil, ErrNotObject
	}

	p := NewParams()

	var err error
	res.ForEach(func(key, value gjson.Result) bool {
		switch {
		case value.IsObject():
			var nested *Params
			if nested, err = FromJSON(value); err != nil {
				return false
			}
			p.SetNested(key.String(), nested)
		case value.Type == gjson.String:
			p.Set(key.String(), value.Str)
		case value.Type == gjson.Null:
			p.Set(key.String(), "")
		default:
			p.Set(key.String(), value.Raw)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "decoding nested params")
	}

	return p, nil
}
