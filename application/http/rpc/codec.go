package rpc

import (
	"encoding/json"
	"maps"
	"slices"

	"scan-http/application/http/form"
	"scan-http/application/http/message"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Marshal encodes data as a JSON object with the keys in [Keys] order.
// Keys outside [Keys] are not written.
func Marshal(data Data) ([]byte, error) {
	out := []byte("{}")

	for _, key := range Keys {
		var err error
		switch v := data[key].(type) {
		case *form.Params:
			var raw []byte
			if raw, err = v.MarshalJSON(); err == nil {
				out, err = sjson.SetRawBytes(out, key, raw)
			}
		case map[string]string:
			out, err = setStringMap(out, key, v)
		default:
			out, err = sjson.SetBytes(out, key, v)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "encoding %s", key)
		}
	}

	return out, nil
}

func setStringMap(out []byte, key string, m map[string]string) ([]byte, error) {
	p := form.NewParams()
	for _, k := range slices.Sorted(maps.Keys(m)) {
		p.Set(k, m[k])
	}
	raw, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(out, key, raw)
}

// Unmarshal decodes what [Marshal] wrote. Parameter order is kept.
func Unmarshal(b []byte) (Data, error) {
	if !gjson.ValidBytes(b) {
		return nil, errors.Wrap(message.ErrInvalidArgument, "invalid json")
	}

	doc := gjson.ParseBytes(b)
	if !doc.IsObject() {
		return nil, errors.Wrap(message.ErrInvalidArgument, "rpc data must be a JSON object")
	}

	data := make(Data, len(Keys))
	for _, key := range Keys {
		res := doc.Get(key)

		v, err := value(key, res)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %s", key)
		}
		data[key] = v
	}

	return data, nil
}

func value(key string, res gjson.Result) (any, error) {
	if !res.Exists() || res.Type == gjson.Null {
		return nil, nil
	}

	switch {
	case res.IsObject():
		return form.FromJSON(res)
	case key == KeyTimeout && res.Type == gjson.Number:
		if f := res.Float(); f == float64(int64(f)) {
			return int64(f), nil
		}
		return res.Float(), nil
	case res.Type == gjson.String:
		return res.Str, nil
	}

	var v any
	if err := json.Unmarshal([]byte(res.Raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Encode is Marshal of ToRPCData.
func Encode(req *message.Request) ([]byte, error) { return Marshal(ToRPCData(req)) }

// Decode is FromRPCData of Unmarshal.
func Decode(b []byte) (*message.Request, error) {
	data, err := Unmarshal(b)
	if err != nil {
		return nil, err
	}
	return FromRPCData(data)
}
