package form

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/pkg/errors"
)

var ErrNotMapping = errors.New("value is not a mapping")

// Coerce deep-converts v into params. Keys and scalar values are turned
// into strings; nested mappings stay nested. Ordered inputs keep their
// order, Go maps are walked in sorted key order.
func Coerce(v any) (*Params, error) {
	switch t := v.(type) {
	case nil:
		return NewParams(), nil
	case *Params:
		return t.Clone(), nil
	case Params:
		return t.Clone(), nil
	case map[string]string:
		p := NewParams()
		for _, k := range sortedKeys(t) {
			p.Set(k, t[k])
		}
		return p, nil
	case map[string]any:
		p := NewParams()
		for _, k := range sortedKeys(t) {
			if err := setCoerced(p, k, t[k]); err != nil {
				return nil, err
			}
		}
		return p, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map {
		return nil, errors.Wrapf(ErrNotMapping, "coercing %T", v)
	}

	keys := make(map[string]reflect.Value, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keys[scalar(iter.Key().Interface())] = iter.Value()
	}

	p := NewParams()
	for _, k := range sortedKeys(keys) {
		if err := setCoerced(p, k, keys[k].Interface()); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func setCoerced(p *Params, k string, v any) error {
	if isMapping(v) {
		nested, err := Coerce(v)
		if err != nil {
			return errors.Wrapf(err, "coercing %q", k)
		}
		p.SetNested(k, nested)
		return nil
	}
	p.Set(k, scalar(v))
	return nil
}

func isMapping(v any) bool {
	switch v.(type) {
	case nil:
		return false
	case *Params, Params:
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Map
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
