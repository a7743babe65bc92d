package form

import "strings"

const ContentTypeURLEncoded = "application/x-www-form-urlencoded"

// ParseBody parses an url-encoded body. A nil body yields empty params.
func ParseBody(raw *string) *Params {
	if raw == nil {
		return NewParams()
	}
	return Parse(*raw)
}

// Parse splits s on '&' and each pair on its first '='. Both sides are
// form-unescaped. A key without '=' maps to "" and the last duplicate wins.
func Parse(s string) *Params {
	p := NewParams()
	if s == "" {
		return p
	}

	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		p.Set(QueryUnescape(k), QueryUnescape(v))
	}

	return p
}

// Encode serializes p as k=v pairs joined by '&', in insertion order.
// Keys and values are escaped with [Escape].
func Encode(p *Params) string {
	b := new(strings.Builder)
	for idx, pair := range p.Flatten() {
		if idx > 0 {
			b.WriteByte('&')
		}
		b.WriteString(Escape(pair[0]))
		b.WriteByte('=')
		b.WriteString(Escape(pair[1]))
	}
	return b.String()
}
