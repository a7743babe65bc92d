// Package config holds the process-wide defaults every request is resolved
// against, loaded from YAML.
package config

import (
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"scan-http/lib/types/pointer"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultUserAgent = "scan-http/0.1"
	DefaultAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

type Config struct {
	HTTP  HTTP  `yaml:"http"`
	Queue Queue `yaml:"queue"`
	Log   Log   `yaml:"log"`
}

// HTTP carries the defaults a request falls back to when it does not set
// its own value.
type HTTP struct {
	UserAgent string        `yaml:"user_agent"`
	Accept    string        `yaml:"accept"`
	Timeout   time.Duration `yaml:"timeout"`
	// ResponseMaxSize caps response bodies in bytes. nil or negative means no cap.
	ResponseMaxSize *int64 `yaml:"response_max_size"`

	ProxyHost     string `yaml:"proxy_host"`
	ProxyPort     int    `yaml:"proxy_port"`
	ProxyUsername string `yaml:"proxy_username"`
	ProxyPassword string `yaml:"proxy_password"`
	ProxyType     string `yaml:"proxy_type"`

	AuthenticationUsername string `yaml:"authentication_username"`
	AuthenticationPassword string `yaml:"authentication_password"`

	SSLVerifyPeer          bool   `yaml:"ssl_verify_peer"`
	SSLVerifyHost          bool   `yaml:"ssl_verify_host"`
	SSLCertificateFilepath string `yaml:"ssl_certificate_filepath"`
	SSLCertificateType     string `yaml:"ssl_certificate_type"`
	SSLKeyFilepath         string `yaml:"ssl_key_filepath"`
	SSLKeyType             string `yaml:"ssl_key_type"`
	SSLKeyPassword         string `yaml:"ssl_key_password"`
	SSLCAFilepath          string `yaml:"ssl_ca_filepath"`
	SSLCADirectory         string `yaml:"ssl_ca_directory"`
	SSLVersion             string `yaml:"ssl_version"`

	RequestConcurrency int     `yaml:"request_concurrency"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"`
}

type Queue struct {
	// Backend is "memory" or "redis".
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	Key       string `yaml:"key"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			UserAgent:          DefaultUserAgent,
			Accept:             DefaultAccept,
			Timeout:            10 * time.Second,
			ResponseMaxSize:    pointer.To[int64](500_000),
			RequestConcurrency: 20,
		},
		Queue: Queue{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			Key:       "scan-http:replay",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over [Default].
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config file %q", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config file %q", path)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var ErrInvalidConfig = errors.New("invalid config")

var (
	proxyTypes  = []string{"", "http", "https", "socks5", "socks5h"}
	certTypes   = []string{"", "PEM", "DER"}
	sslVersions = []string{"", "TLSv1", "TLSv1_0", "TLSv1_1", "TLSv1_2", "TLSv1_3"}
	queueKinds  = []string{"memory", "redis"}
	logFormats  = []string{"text", "json"}
)

func invalid(field string, format string, args ...any) error {
	return errors.Wrapf(ErrInvalidConfig, "%s: "+format, append([]any{field}, args...)...)
}

func (c Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}

	if !slices.Contains(queueKinds, c.Queue.Backend) {
		return invalid("queue.backend", "unknown backend %q", c.Queue.Backend)
	}
	if c.Queue.Backend == "redis" && c.Queue.RedisAddr == "" {
		return invalid("queue.redis_addr", "required for redis backend")
	}
	if c.Queue.Key == "" {
		return invalid("queue.key", "must not be empty")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return invalid("log.level", "%s", err)
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return invalid("log.format", "unknown format %q", c.Log.Format)
	}

	return nil
}

func (h HTTP) Validate() error {
	switch {
	case h.Timeout < 0:
		return invalid("http.timeout", "must not be negative")
	case h.ProxyPort < 0 || h.ProxyPort > 65535:
		return invalid("http.proxy_port", "out of range: %d", h.ProxyPort)
	case h.ProxyHost != "" && h.ProxyPort == 0:
		return invalid("http.proxy_port", "required with proxy_host")
	case !slices.Contains(proxyTypes, strings.ToLower(h.ProxyType)):
		return invalid("http.proxy_type", "unknown type %q", h.ProxyType)
	case !slices.Contains(certTypes, strings.ToUpper(h.SSLCertificateType)):
		return invalid("http.ssl_certificate_type", "unknown type %q", h.SSLCertificateType)
	case !slices.Contains(certTypes, strings.ToUpper(h.SSLKeyType)):
		return invalid("http.ssl_key_type", "unknown type %q", h.SSLKeyType)
	case !slices.Contains(sslVersions, h.SSLVersion):
		return invalid("http.ssl_version", "unknown version %q", h.SSLVersion)
	case h.RequestConcurrency <= 0:
		return invalid("http.request_concurrency", "must be positive")
	case h.RequestsPerSecond < 0:
		return invalid("http.requests_per_second", "must not be negative")
	}
	return nil
}

func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.Wrap(err, "parsing log level")
	}
	return level, nil
}

// NewLogger builds a logger writing to w in the configured format.
func (l Log) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
