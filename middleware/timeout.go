package middleware

import (
	"time"

	"github.com/euclio/msgpackrpc/dispatch"
	"github.com/euclio/msgpackrpc/rpcerr"
	"github.com/euclio/msgpackrpc/value"
)

type timeoutDispatcher struct {
	dispatch.Dispatcher
	timeout time.Duration
}

// Timeout bounds how long a Dispatch call is allowed to take. The
// underlying handler goroutine is not cancelled if it overruns — Go
// handler code isn't preemptible from the outside, so this only controls
// how long the caller waits, matching the teacher's TimeOutMiddleware.
func Timeout(timeout time.Duration) Middleware {
	return func(next dispatch.Dispatcher) dispatch.Dispatcher {
		return &timeoutDispatcher{Dispatcher: next, timeout: timeout}
	}
}

func (d *timeoutDispatcher) Dispatch(method string, params []value.Value) (value.Value, error) {
	type outcome struct {
		result value.Value
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := d.Dispatcher.Dispatch(method, params)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-time.After(d.timeout):
		return value.Nil(), rpcerr.NewHandlerError(value.String("request timed out"))
	}
}

func (d *timeoutDispatcher) Clone() dispatch.Dispatcher {
	return &timeoutDispatcher{Dispatcher: d.Dispatcher.Clone(), timeout: d.timeout}
}
