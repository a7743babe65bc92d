// Package client dispatches requests through a transport and completes
// them with their responses.
package client

import (
	"context"
	"log/slog"
	"sync"

	"scan-http/application/http/adapter"
	"scan-http/application/http/message"
	"scan-http/transport"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type Client struct {
	transport transport.Transport

	opts Options

	logger *slog.Logger
	clock  clock.Clock

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu      sync.Mutex
	nextID  uint64
	session *session
}

// session groups the async requests dispatched between two resets.
// pending is guarded by the client's mu, which idle is bound to.
type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	pending int
	idle    *sync.Cond
}

func newSession(mu *sync.Mutex) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{id: uuid.NewString(), ctx: ctx, cancel: cancel, idle: sync.NewCond(mu)}
}

func New(t transport.Transport, logger *slog.Logger, clock clock.Clock, opts Options) *Client {
	c := &Client{
		transport: t,
		opts:      opts,
		logger:    logger,
		clock:     clock,
		sem:       semaphore.NewWeighted(opts.concurrency()),
	}
	c.session = newSession(&c.mu)

	if rps := opts.requestsPerSecond(); rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}

	return c
}

// Session returns the id of the current session.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session.id
}

// Dispatch assigns req the next id and performs it.
//
// A sync request blocks until it completes; its response is returned after
// the callbacks ran. An async request returns nil at once and completes on
// another goroutine.
func (c *Client) Dispatch(ctx context.Context, req *message.Request) (*message.Response, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	sess := c.session
	if req.Asynchronous() {
		sess.pending++
	}
	c.mu.Unlock()

	req.SetID(id)
	opts := adapter.Resolve(req, c.opts.HTTP)

	logger := c.logger.With(
		slog.Uint64("id", id),
		slog.String("session", sess.id),
		slog.String("method", opts.Method),
		slog.String("url", opts.URL),
		slog.String("mode", req.Mode().String()),
	)
	logger.Debug("dispatching request")

	if req.Blocking() {
		resp, err := c.perform(ctx, logger, req, &opts)
		if err != nil {
			return nil, err
		}
		if err := c.complete(logger, req, resp); err != nil {
			return resp, err
		}
		return resp, nil
	}

	go func() {
		defer c.done(sess)

		if err := c.sem.Acquire(sess.ctx, 1); err != nil {
			logger.Debug("request dropped by reset")
			return
		}
		defer c.sem.Release(1)

		resp, err := c.perform(sess.ctx, logger, req, &opts)
		if err != nil {
			logger.Warn("request not completed", slog.Any("error", err))
			return
		}
		if sess.ctx.Err() != nil {
			logger.Debug("request dropped by reset")
			return
		}

		_ = c.complete(logger, req, resp)
	}()

	return nil, nil
}

func (c *Client) perform(ctx context.Context, logger *slog.Logger, req *message.Request, opts *transport.Options) (*message.Response, error) {
	start := c.clock.Now()

	var (
		reply *transport.Reply
		err   error
	)
	if c.limiter != nil {
		err = errors.Wrap(c.limiter.Wait(ctx), "waiting for rate limit")
	}
	if err == nil {
		reply, err = c.transport.Perform(ctx, opts)
	}
	elapsed := c.clock.Since(start)

	if err != nil {
		logger.Warn("transport failed", slog.Any("error", err))
		return message.ResponseFromError(req, err, elapsed)
	}

	req.SetHeadersString(reply.RequestHeaders)
	req.SetEffectiveBody(&reply.RequestBody)

	return message.ResponseFromReply(req, reply, elapsed)
}

func (c *Client) complete(logger *slog.Logger, req *message.Request, resp *message.Response) error {
	logger.Debug("request completed",
		slog.Uint64("code", uint64(resp.Code())),
		slog.String("return_code", string(resp.ReturnCode())),
		slog.Duration("time", resp.Time()),
	)

	err := req.HandleResponse(resp)
	if err != nil {
		logger.Error("callback failed", slog.Any("error", err))
	}
	return err
}

// Get builds a GET request for url from opts and dispatches it.
func (c *Client) Get(ctx context.Context, url string, opts message.RequestOptions, cbs ...message.Callback) (*message.Request, error) {
	opts.URL, opts.Method = url, string(message.MethodGet)
	return c.request(ctx, opts, cbs)
}

// Post builds a POST request for url from opts and dispatches it.
func (c *Client) Post(ctx context.Context, url string, opts message.RequestOptions, cbs ...message.Callback) (*message.Request, error) {
	opts.URL, opts.Method = url, string(message.MethodPost)
	return c.request(ctx, opts, cbs)
}

func (c *Client) request(ctx context.Context, opts message.RequestOptions, cbs []message.Callback) (*message.Request, error) {
	req, err := message.NewRequest(opts)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.OnComplete(cbs...)

	if _, err := c.Dispatch(ctx, req); err != nil {
		return req, err
	}
	return req, nil
}

func (c *Client) done(sess *session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess.pending--
	if sess.pending == 0 {
		sess.idle.Broadcast()
	}
}

// Wait blocks until every async request of the current session completed.
// Requests dispatched while it waits are waited for too.
func (c *Client) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session
	for sess.pending > 0 {
		sess.idle.Wait()
	}
}

// Reset restarts ids at 0 and starts a new session. Async requests of the
// previous session are dropped without running their callbacks.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.cancel()
	c.session = newSession(&c.mu)
	c.nextID = 0

	c.logger.Debug("client reset", slog.String("session", c.session.id))
}
