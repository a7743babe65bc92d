package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"scan-http/application/http/actor/client"
	"scan-http/application/http/message"
	"scan-http/application/http/replay"
	"scan-http/config"
	"scan-http/transport"
	"scan-http/transport/wire"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
)

type app struct {
	configFile string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger

	// newTransport and openQueue are replaced in tests.
	newTransport func(logger *slog.Logger) transport.Transport
	openQueue    func(ctx context.Context, cfg config.Queue) (replay.Queue, error)
}

func newApp() *app {
	return &app{
		newTransport: func(logger *slog.Logger) transport.Transport {
			return wire.New(logger, clock.New(), wire.DefaultOptions)
		},
		openQueue: replay.New,
	}
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:   "probe",
		Short: "Send HTTP probes the way the scanner does",
		Long: `probe sends requests through the scanner's HTTP client and prints the
request written on the wire next to the response.

Examples:
  probe send http://localhost:8080/ -H 'X-Test: 1' --cookie session=abc
  probe enqueue http://localhost:8080/login -d 'user=a&pass=b'
  probe replay --limit 100`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(a.sendCommand())
	root.AddCommand(a.enqueueCommand())
	root.AddCommand(a.replayCommand())

	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if a.configFile != "" {
		var err error
		if cfg, err = config.Load(a.configFile); err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg, a.logger = cfg, logger
	return nil
}

func (a *app) client(t transport.Transport) *client.Client {
	return client.New(t, a.logger, clock.New(), client.Options{
		HTTP:              a.cfg.HTTP,
		Concurrency:       a.cfg.HTTP.RequestConcurrency,
		RequestsPerSecond: a.cfg.HTTP.RequestsPerSecond,
	})
}

func (a *app) transport() (transport.Transport, func()) {
	t := a.newTransport(a.logger)
	if w, ok := t.(*wire.Transport); ok {
		return t, w.CloseIdle
	}
	return t, func() {}
}

func (a *app) queue(ctx context.Context) (replay.Queue, func(), error) {
	q, err := a.openQueue(ctx, a.cfg.Queue)
	if err != nil {
		return nil, nil, err
	}
	if c, ok := q.(io.Closer); ok {
		return q, func() { c.Close() }, nil
	}
	return q, func() {}, nil
}

// printer writes each completed exchange to w in a single Write.
func printer(w io.Writer) message.Callback {
	return func(resp *message.Response) {
		req := resp.Request()
		id, _ := req.ID()

		var b strings.Builder
		fmt.Fprintf(&b, "* #%d %s %s\n", id, req.Method().Wire(), req.URL())
		b.WriteString(req.String())
		if req.EffectiveBody() != "" {
			b.WriteString("\n")
		}

		if resp.OK() {
			b.WriteString(resp.HeadersString())
			b.WriteString(resp.Body())
			fmt.Fprintf(&b, "\n* %d in %s\n", resp.Code(), resp.Time())
		} else {
			fmt.Fprintf(&b, "! %s: %s\n", resp.ReturnCode(), resp.ReturnMessage())
		}

		io.WriteString(w, b.String())
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.w.Write(p)
}
