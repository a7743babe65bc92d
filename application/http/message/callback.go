package message

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

var ErrForeignResponse = errors.New("response belongs to another request")

type Callback func(*Response)

// OnComplete appends callbacks run by [Request.HandleResponse].
func (r *Request) OnComplete(cbs ...Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbacks = append(r.callbacks, cbs...)
}

func (r *Request) ClearCallbacks() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbacks = nil
}

// CallbackPanic is a panic recovered from the callback at Index.
type CallbackPanic struct {
	Index int
	Value any
}

type CallbackError struct {
	Panics []CallbackPanic
}

func (e *CallbackError) Error() string {
	msgs := make([]string, 0, len(e.Panics))
	for _, p := range e.Panics {
		msgs = append(msgs, fmt.Sprintf("callback %d panicked: %v", p.Index, p.Value))
	}
	return strings.Join(msgs, "; ")
}

// HandleResponse runs every callback with resp, in registration order.
// Runs for the same request never overlap. A panicking callback does not
// stop the ones after it; the panics are returned as a [*CallbackError].
func (r *Request) HandleResponse(resp *Response) error {
	if resp == nil || resp.Request() != r {
		return ErrForeignResponse
	}

	r.completion.Lock()
	defer r.completion.Unlock()

	r.mu.Lock()
	cbs := slices.Clone(r.callbacks)
	r.mu.Unlock()

	var panics []CallbackPanic
	for idx, cb := range cbs {
		if v, panicked := call(cb, resp); panicked {
			panics = append(panics, CallbackPanic{Index: idx, Value: v})
		}
	}

	if len(panics) > 0 {
		return &CallbackError{Panics: panics}
	}
	return nil
}

func call(cb Callback, resp *Response) (v any, panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			v, panicked = rec, true
		}
	}()

	cb(resp)
	return nil, false
}
