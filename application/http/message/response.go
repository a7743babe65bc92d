package message

import (
	"time"

	"scan-http/application/http"
	"scan-http/transport"

	"github.com/pkg/errors"
)

// ReturnCode tells how the transport finished a request.
type ReturnCode string

const (
	ReturnOK               ReturnCode = "ok"
	ReturnTimedOut         ReturnCode = "operation_timedout"
	ReturnFileSizeExceeded ReturnCode = "filesize_exceeded"
	ReturnCouldNotConnect  ReturnCode = "couldnt_connect"
	ReturnError            ReturnCode = "error"
)

// ReturnCodeOf classifies a transport error. nil is [ReturnOK].
func ReturnCodeOf(err error) ReturnCode {
	switch {
	case err == nil:
		return ReturnOK
	case errors.Is(err, transport.ErrTimedOut):
		return ReturnTimedOut
	case errors.Is(err, transport.ErrFileSizeExceeded):
		return ReturnFileSizeExceeded
	case errors.Is(err, transport.ErrCouldNotConnect):
		return ReturnCouldNotConnect
	}
	return ReturnError
}

type ResponseOptions struct {
	// URL defaults to the request's.
	URL           string
	Code          uint
	Message       string
	Version       http.Version
	Headers       http.Headers
	HeadersString string
	Body          []byte
	Time          time.Duration

	// ReturnCode defaults to [ReturnOK].
	ReturnCode    ReturnCode
	ReturnMessage string
}

// Response is the outcome of a request. It cannot be changed once built.
type Response struct {
	req  *Request
	opts ResponseOptions
}

func NewResponse(req *Request, opts ResponseOptions) (*Response, error) {
	if req == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "response needs a request")
	}

	if opts.URL == "" {
		opts.URL = req.URL()
	}
	if opts.ReturnCode == "" {
		opts.ReturnCode = ReturnOK
	}
	opts.Headers = append(http.Headers(nil), opts.Headers...)
	opts.Body = append([]byte(nil), opts.Body...)

	return &Response{req: req, opts: opts}, nil
}

// ResponseFromReply builds the response of req out of what the transport
// returned.
func ResponseFromReply(req *Request, reply *transport.Reply, elapsed time.Duration) (*Response, error) {
	return NewResponse(req, ResponseOptions{
		URL:           reply.URL,
		Code:          reply.StatusCode,
		Message:       reply.ReasonPhrase,
		Version:       reply.Version,
		Headers:       reply.Headers,
		HeadersString: reply.HeadersText,
		Body:          reply.Body,
		Time:          elapsed,
	})
}

// ResponseFromError builds the code 0 response of a request the transport
// failed to complete.
func ResponseFromError(req *Request, err error, elapsed time.Duration) (*Response, error) {
	return NewResponse(req, ResponseOptions{
		ReturnCode:    ReturnCodeOf(err),
		ReturnMessage: err.Error(),
		Time:          elapsed,
	})
}

func (r *Response) Request() *Request { return r.req }
func (r *Response) URL() string       { return r.opts.URL }
func (r *Response) Code() uint        { return r.opts.Code }

// Message is the reason phrase.
func (r *Response) Message() string       { return r.opts.Message }
func (r *Response) Version() http.Version { return r.opts.Version }

// Headers returns a copy of the response fields.
func (r *Response) Headers() http.Headers {
	return append(http.Headers(nil), r.opts.Headers...)
}

// Header looks name up case-insensitively.
func (r *Response) Header(name string) (string, bool) { return r.opts.Headers.Get(name) }

func (r *Response) HeadersString() string { return r.opts.HeadersString }
func (r *Response) Body() string          { return string(r.opts.Body) }

// Time is how long the request took.
func (r *Response) Time() time.Duration { return r.opts.Time }

func (r *Response) ReturnCode() ReturnCode { return r.opts.ReturnCode }
func (r *Response) ReturnMessage() string  { return r.opts.ReturnMessage }

// OK reports whether a response was received.
func (r *Response) OK() bool { return r.opts.ReturnCode == ReturnOK && r.opts.Code != 0 }
