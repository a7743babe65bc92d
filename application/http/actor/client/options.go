package client

import (
	"scan-http/config"
)

const DefaultConcurrency = 20

type Options struct {
	// HTTP holds the defaults every request is resolved against.
	HTTP config.HTTP

	// Concurrency bounds the async requests performed at once. Zero falls
	// back to HTTP.RequestConcurrency, then to DefaultConcurrency.
	Concurrency int
	// RequestsPerSecond limits the request rate. Zero falls back to
	// HTTP.RequestsPerSecond; zero there means unlimited.
	RequestsPerSecond float64
}

func (o Options) concurrency() int64 {
	switch {
	case o.Concurrency > 0:
		return int64(o.Concurrency)
	case o.HTTP.RequestConcurrency > 0:
		return int64(o.HTTP.RequestConcurrency)
	}
	return DefaultConcurrency
}

func (o Options) requestsPerSecond() float64 {
	if o.RequestsPerSecond > 0 {
		return o.RequestsPerSecond
	}
	return o.HTTP.RequestsPerSecond
}
