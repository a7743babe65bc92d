package main

import (
	"strings"
	"time"

	"scan-http/application/http/message"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// requestFlags are shared by the commands that build a request.
type requestFlags struct {
	method  string
	headers []string
	data    string
	cookies []string
	mode    string
	timeout time.Duration
	proxy   string
	user    string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.method, "request", "X", "get", "Request method")
	fl.StringArrayVarP(&f.headers, "header", "H", nil, "Request header 'Name: value', repeatable")
	fl.StringVarP(&f.data, "data", "d", "", "Request body; switches the method to post unless -X is given")
	fl.StringArrayVar(&f.cookies, "cookie", nil, "Cookie 'name=value', repeatable")
	fl.StringVar(&f.mode, "mode", "sync", "Dispatch mode: sync or async")
	fl.DurationVar(&f.timeout, "timeout", 0, "Request timeout, 0 uses the configured one")
	fl.StringVar(&f.proxy, "proxy", "", "Proxy 'host:port'")
	fl.StringVar(&f.user, "user", "", "Credentials 'user:password'")
}

func (f *requestFlags) build(cmd *cobra.Command, url string) (*message.Request, error) {
	opts := message.RequestOptions{
		URL:    url,
		Method: f.method,
		Mode:   f.mode,
	}

	if cmd.Flags().Changed("data") {
		opts.Body = f.data
		if !cmd.Flags().Changed("request") {
			opts.Method = string(message.MethodPost)
		}
	}

	if len(f.headers) > 0 {
		opts.Headers = make(map[string]string, len(f.headers))
		for _, h := range f.headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, errors.Errorf("malformed header %q", h)
			}
			opts.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}

	if len(f.cookies) > 0 {
		opts.Cookies = make(map[string]string, len(f.cookies))
		for _, c := range f.cookies {
			name, value, ok := strings.Cut(c, "=")
			if !ok || name == "" {
				return nil, errors.Errorf("malformed cookie %q", c)
			}
			opts.Cookies[name] = value
		}
	}

	if f.timeout > 0 {
		opts.Timeout = &f.timeout
	}
	if f.proxy != "" {
		opts.Proxy = &f.proxy
	}
	if f.user != "" {
		user, password, _ := strings.Cut(f.user, ":")
		opts.Username, opts.Password = &user, &password
	}

	return message.NewRequest(opts)
}
