package wire

import (
	"time"

	"scan-http/application/http"
)

type Options struct {
	Send    SendOptions
	Receive ReceiveOptions
	Conn    ConnOptions
	Timeout TimeoutOptions
}

type SendOptions struct {
	Encode http.EncodeOptions
}

type ReceiveOptions struct {
	Decode http.DecodeOptions
}

type ConnOptions struct {
	// MaxIdleConnsPerHost bounds the idle connections kept per pool key.
	// Zero disables pooling.
	MaxIdleConnsPerHost uint
	DialTimeout         time.Duration
}

type TimeoutOptions struct {
	// IdleTimeout is how long a pooled connection may stay unused.
	IdleTimeout time.Duration
}

var DefaultOptions = Options{
	Send: SendOptions{
		Encode: http.DefaultEncodeOptions,
	},
	Receive: ReceiveOptions{
		Decode: http.DecodeOptions{
			// Scan targets are not always well behaved.
			AllowSoleLF:         true,
			LenientWhitespace:   false,
			MaxFieldLineLength:  64 << 10,
			MaxStatusLineLength: 8 << 10,
		},
	},
	Conn: ConnOptions{
		MaxIdleConnsPerHost: 8,
		DialTimeout:         30 * time.Second,
	},
	Timeout: TimeoutOptions{
		IdleTimeout: 90 * time.Second,
	},
}
