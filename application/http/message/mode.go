package message

import (
	"strings"

	"scan-http/application/util/rule"

	"github.com/pkg/errors"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Method is a lower-case HTTP method token.
type Method string

const (
	MethodGet     Method = "get"
	MethodHead    Method = "head"
	MethodPost    Method = "post"
	MethodPut     Method = "put"
	MethodDelete  Method = "delete"
	MethodOptions Method = "options"
	MethodTrace   Method = "trace"
	MethodPatch   Method = "patch"
)

// ParseMethod accepts any case of a method token.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-9.1
func ParseMethod(s string) (Method, error) {
	if !rule.IsValidToken(s) {
		return "", errors.Wrapf(ErrInvalidArgument, "method %q is not a token", s)
	}
	return Method(strings.ToLower(s)), nil
}

// Wire returns the method as written in a request line.
func (m Method) Wire() string { return strings.ToUpper(string(m)) }

type Mode uint8

const (
	ModeSync Mode = iota
	ModeAsync
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "sync":
		return ModeSync, nil
	case "async":
		return ModeAsync, nil
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown mode %q", s)
}

func (m Mode) String() string {
	if m == ModeAsync {
		return "async"
	}
	return "sync"
}
