// Package transport defines the contract between the request dispatcher and
// whatever executes requests on the wire.
package transport

import (
	"context"
	"time"

	"scan-http/application/http"

	"github.com/pkg/errors"
)

var (
	ErrTimedOut         = errors.New("operation timed out")
	ErrCouldNotConnect  = errors.New("could not connect")
	ErrFileSizeExceeded = errors.New("maximum file size exceeded")
)

type Transport interface {
	// Perform executes one request. A reply is returned for every response
	// received, whatever its status code.
	Perform(ctx context.Context, opts *Options) (*Reply, error)
}

type ProxyType string

const (
	ProxyHTTP    ProxyType = "http"
	ProxyHTTPS   ProxyType = "https"
	ProxySOCKS5  ProxyType = "socks5"
	ProxySOCKS5H ProxyType = "socks5h"
)

type AuthType uint8

const (
	AuthNone AuthType = iota
	// AuthAuto picks a scheme from the server's challenge.
	AuthAuto
	AuthBasic
	AuthDigest
)

func (a AuthType) String() string {
	switch a {
	case AuthAuto:
		return "auto"
	case AuthBasic:
		return "basic"
	case AuthDigest:
		return "digest"
	}
	return "none"
}

// HostCheck is the level of certificate host name verification.
type HostCheck uint8

const (
	HostCheckNone   HostCheck = 0
	HostCheckStrict HostCheck = 2
)

type TLSOptions struct {
	VerifyPeer bool
	VerifyHost HostCheck

	CertFile    string
	CertType    string // PEM or DER
	KeyFile     string
	KeyType     string // PEM or DER
	KeyPassword string
	CAFile      string
	CAPath      string
	// Version is the minimum protocol version, e.g. "TLSv1_2".
	Version string
}

// Options is the fully resolved set a request is performed with.
type Options struct {
	Method  string
	URL     string
	Headers http.Headers
	Body    string

	// Timeout of zero means no timeout.
	Timeout time.Duration

	// Proxy is host:port, empty for a direct connection.
	Proxy             string
	ProxyUserPassword string
	ProxyType         ProxyType

	UserPassword string
	HTTPAuth     AuthType

	// MaxFileSize caps the response body. nil means no cap.
	MaxFileSize *int64

	TLS TLSOptions

	// ForbidReuse makes the request use a fresh connection that is closed
	// once the response is read.
	ForbidReuse bool
}

type Reply struct {
	Version      http.Version
	StatusCode   uint
	ReasonPhrase string
	Headers      http.Headers
	// HeadersText is the raw status line and header section.
	HeadersText string
	Body        []byte

	// RequestHeaders is the request line and header section as written.
	RequestHeaders string
	RequestBody    string

	// URL is the URL the reply belongs to, after any redirect the
	// transport followed.
	URL string
}
