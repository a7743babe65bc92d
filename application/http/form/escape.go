package form

import "strings"

func hex(c byte) (h [2]byte) {
	const hexSet = "0123456789ABCDEF"
	h[0] = hexSet[c>>4]
	h[1] = hexSet[c&0xF]
	return
}

func unhex(h [2]byte) (c byte) {
	return (hexToNum(h[0]) << 4) | hexToNum(h[1])
}

func hexToNum(h byte) byte {
	switch {
	case '0' <= h && h <= '9':
		return h - '0'
	case 'a' <= h && h <= 'f':
		return h - 'a' + 10
	case 'A' <= h && h <= 'F':
		return h - 'A' + 10
	}
	return 0
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-2.3
func isUnreserved(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func escape(s string, spaceAsPlus bool) string {
	b := new(strings.Builder)
	b.Grow(len(s))

	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		switch {
		case isUnreserved(c):
			b.WriteByte(c)
		case c == ' ' && spaceAsPlus:
			b.WriteByte('+')
		default:
			hex := hex(c)
			b.Write([]byte{'%', hex[0], hex[1]})
		}
	}

	return b.String()
}

// unescape decodes percent escapes. Malformed escapes are kept as they are.
func unescape(s string, plusAsSpace bool) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}

	b := new(strings.Builder)
	b.Grow(len(s))

	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		switch {
		case c == '%' && idx+2 < len(s) && isHex(s[idx+1]) && isHex(s[idx+2]):
			b.WriteByte(unhex([2]byte{s[idx+1], s[idx+2]}))
			idx += 2
		case c == '+' && plusAsSpace:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// Escape percent-encodes everything but RFC 3986 unreserved characters.
// Space becomes %20.
func Escape(s string) string { return escape(s, false) }

// QueryEscape is [Escape] with space encoded as '+'.
func QueryEscape(s string) string { return escape(s, true) }

// Unescape decodes percent escapes, leaving '+' untouched.
func Unescape(s string) string { return unescape(s, false) }

// QueryUnescape decodes percent escapes and '+' as space.
func QueryUnescape(s string) string { return unescape(s, true) }
