// Package cookie computes the cookies a request carries and renders them
// as a Cookie header value.
package cookie

import (
	"maps"
	"slices"
	"strings"

	"scan-http/application/http/form"
)

// Parse reads name=value pairs separated by ';'. Surrounding spaces are
// trimmed and both sides are form-unescaped. Pairs without a name are
// skipped.
func Parse(header string) map[string]string {
	cookies := make(map[string]string)
	for _, pair := range strings.Split(header, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, value, _ := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		cookies[form.QueryUnescape(name)] = form.QueryUnescape(strings.TrimSpace(value))
	}
	return cookies
}

// Merge overlays explicit onto the cookies found in header. Explicit
// entries add new names and replace colliding ones; nothing is removed.
func Merge(header string, explicit map[string]string) map[string]string {
	cookies := Parse(header)
	maps.Copy(cookies, explicit)
	return cookies
}

// Encode renders cookies as a Cookie header value: names sorted,
// name and value form-escaped, pairs joined by ';'.
func Encode(cookies map[string]string) string {
	b := new(strings.Builder)
	for idx, name := range slices.Sorted(maps.Keys(cookies)) {
		if idx > 0 {
			b.WriteByte(';')
		}
		b.WriteString(form.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(form.QueryEscape(cookies[name]))
	}
	return b.String()
}
