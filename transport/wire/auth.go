package wire

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"scan-http/application/util/rule"
	"scan-http/transport"

	"github.com/google/uuid"
)

type challenge struct {
	scheme string
	params map[string]string
}

// parseChallenges reads WWW-Authenticate values. Each value is expected to
// hold one challenge.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-11.6.1
func parseChallenges(values []string) []challenge {
	var challenges []challenge
	for _, v := range values {
		v = strings.TrimSpace(v)
		scheme, rest, _ := strings.Cut(v, " ")
		if !rule.IsValidToken(scheme) {
			continue
		}

		ch := challenge{scheme: strings.ToLower(scheme), params: make(map[string]string)}
		for _, param := range splitParams(rest) {
			k, pv, found := strings.Cut(param, "=")
			if !found {
				continue
			}
			k = strings.ToLower(strings.TrimSpace(k))
			ch.params[k] = string(rule.Unquote([]byte(strings.TrimSpace(pv))))
		}
		challenges = append(challenges, ch)
	}
	return challenges
}

// splitParams splits on commas outside quoted strings.
func splitParams(s string) []string {
	var (
		params  []string
		start   int
		quoted  bool
		escaped bool
	)
	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && quoted:
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			params = append(params, s[start:idx])
			start = idx + 1
		}
	}
	if start < len(s) {
		params = append(params, s[start:])
	}
	return params
}

func find(challenges []challenge, scheme string) (challenge, bool) {
	for _, ch := range challenges {
		if ch.scheme == scheme {
			return ch, true
		}
	}
	return challenge{}, false
}

// authorization answers one of challenges with userPassword, preferring
// Digest over Basic when auth allows both.
func authorization(challenges []challenge, auth transport.AuthType, userPassword, method, uri string) (string, bool) {
	if auth == transport.AuthAuto || auth == transport.AuthDigest {
		if ch, ok := find(challenges, "digest"); ok {
			if v, ok := digestAuthorization(ch, userPassword, method, uri, newCnonce()); ok {
				return v, true
			}
		}
	}

	if auth == transport.AuthAuto || auth == transport.AuthBasic {
		if _, ok := find(challenges, "basic"); ok {
			return basicCredentials(userPassword), true
		}
	}

	return "", false
}

func newCnonce() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// digestAuthorization supports MD5 with qop "auth" or no qop.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc7616#section-3.4
func digestAuthorization(ch challenge, userPassword, method, uri, cnonce string) (string, bool) {
	algorithm := ch.params["algorithm"]
	if algorithm != "" && !strings.EqualFold(algorithm, "MD5") {
		return "", false
	}

	nonce, ok := ch.params["nonce"]
	if !ok {
		return "", false
	}

	qop := ""
	if offered, ok := ch.params["qop"]; ok {
		for _, q := range strings.Split(offered, ",") {
			if strings.TrimSpace(q) == "auth" {
				qop = "auth"
			}
		}
		if qop == "" {
			return "", false
		}
	}

	user, password, _ := strings.Cut(userPassword, ":")
	realm := ch.params["realm"]

	ha1 := md5Hex(user + ":" + realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)

	const nc = "00000001"
	var response string
	if qop == "" {
		response = md5Hex(ha1 + ":" + nonce + ":" + ha2)
	} else {
		response = md5Hex(ha1 + ":" + nonce + ":" + nc + ":" + cnonce + ":" + qop + ":" + ha2)
	}

	b := new(strings.Builder)
	fmt.Fprintf(b, "Digest username=%s, realm=%s, nonce=%s, uri=%s, response=%s",
		rule.Quote(user), rule.Quote(realm), rule.Quote(nonce), rule.Quote(uri), rule.Quote(response))
	if algorithm != "" {
		fmt.Fprintf(b, ", algorithm=%s", algorithm)
	}
	if opaque, ok := ch.params["opaque"]; ok {
		fmt.Fprintf(b, ", opaque=%s", rule.Quote(opaque))
	}
	if qop != "" {
		fmt.Fprintf(b, ", qop=%s, nc=%s, cnonce=%s", qop, nc, rule.Quote(cnonce))
	}

	return b.String(), true
}
