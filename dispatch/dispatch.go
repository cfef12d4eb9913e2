// Package dispatch defines the polymorphic contract between the endpoint
// engine and user handler code (spec §4.5, §6, §9).
//
// A Dispatcher must tolerate concurrent invocation: the engine spawns one
// independent task per inbound Request/Notification, so a slow Dispatch
// call must not block decoding of subsequent frames. Clone gives each
// endpoint (each accepted connection, in the server case) its own
// dispatcher value cheaply, following the teacher's "clone into each
// connection" pattern (spec §4.7, §5 "shared via cloning").
package dispatch

import (
	"fmt"

	"github.com/euclio/msgpackrpc/rpcerr"
	"github.com/euclio/msgpackrpc/value"
)

// Dispatcher handles inbound Requests and Notifications for one endpoint.
type Dispatcher interface {
	// Dispatch answers an inbound Request. A non-nil error should normally
	// be a *rpcerr.HandlerError carrying the Value to report back to the
	// caller; any other error is treated the same way after wrapping.
	Dispatch(method string, params []value.Value) (value.Value, error)

	// Notify handles an inbound Notification. There is no response to
	// produce; the default in NopDispatcher is a no-op.
	Notify(method string, params []value.Value)

	// Clone returns an independent dispatcher value suitable for handing
	// to a newly accepted connection or a newly spawned dispatch task.
	Clone() Dispatcher
}

// Func adapts a plain function to the Dispatcher interface for the common
// case where Notify is unneeded and no per-connection state is required.
type Func func(method string, params []value.Value) (value.Value, error)

// Dispatch implements Dispatcher.
func (f Func) Dispatch(method string, params []value.Value) (value.Value, error) {
	return f(method, params)
}

// Notify implements Dispatcher with a no-op.
func (f Func) Notify(string, []value.Value) {}

// Clone implements Dispatcher. Func values are stateless, so cloning is a
// no-op copy.
func (f Func) Clone() Dispatcher { return f }

// NopDispatcher answers every inbound Request with a HandlerError and
// ignores every Notification. It's the default for a connection that only
// ever originates calls (spec §9's open question on the default client
// dispatcher: answered here as "reject politely", not "abort the
// connection" — a protocol-level error is recoverable, closing the
// transport out from under the caller isn't).
type NopDispatcher struct{}

// Dispatch implements Dispatcher.
func (NopDispatcher) Dispatch(method string, _ []value.Value) (value.Value, error) {
	msg := fmt.Sprintf("no handler registered for method %q", method)
	return value.Nil(), rpcerr.NewHandlerError(value.String(msg))
}

// Notify implements Dispatcher with a no-op.
func (NopDispatcher) Notify(string, []value.Value) {}

// Clone implements Dispatcher.
func (NopDispatcher) Clone() Dispatcher { return NopDispatcher{} }

// withNotify overrides a Dispatcher's Notify behavior while delegating
// Dispatch to the wrapped value, for handlers that only care about one-way
// traffic (heartbeats, logging side channels).
type withNotify struct {
	Dispatcher
	fn func(method string, params []value.Value)
}

// WithNotify returns a Dispatcher identical to d except that inbound
// Notifications are routed to fn instead of d.Notify.
func WithNotify(d Dispatcher, fn func(method string, params []value.Value)) Dispatcher {
	return withNotify{Dispatcher: d, fn: fn}
}

func (w withNotify) Notify(method string, params []value.Value) { w.fn(method, params) }

func (w withNotify) Clone() Dispatcher {
	return withNotify{Dispatcher: w.Dispatcher.Clone(), fn: w.fn}
}
