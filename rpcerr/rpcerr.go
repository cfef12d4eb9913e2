// Package rpcerr gives the error taxonomy of the msgpack-RPC runtime
// concrete Go types and sentinels so callers can distinguish protocol
// failures from transport failures with errors.Is / errors.As.
package rpcerr

import (
	"errors"
	"fmt"

	"github.com/euclio/msgpackrpc/value"
)

// ErrTransportClosed is delivered into every outstanding completion slot
// when an endpoint tears down, and returned by any call submitted after
// teardown has begun.
var ErrTransportClosed = errors.New("msgpackrpc: transport closed")

// ErrUnknownResponseID marks a Response whose ID matched no outstanding
// Request on the receiving endpoint. It is non-fatal: the endpoint stays
// up, the message is simply dropped.
var ErrUnknownResponseID = errors.New("msgpackrpc: response id has no pending caller")

// MalformedMessageError reports a decode-side protocol violation: an
// invalid or ill-typed array where a Message was expected. It is always
// fatal to the endpoint that observed it, since the stream's framing is
// lost.
type MalformedMessageError struct {
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("msgpackrpc: malformed message: %s", e.Reason)
}

// Malformed builds a MalformedMessageError with a formatted reason.
func Malformed(format string, args ...any) error {
	return &MalformedMessageError{Reason: fmt.Sprintf(format, args...)}
}

// HandlerError carries a user-supplied error Value back through the core
// transparently. It is not a runtime error of the engine — dispatch
// returned it on purpose via its Result's error side.
type HandlerError struct {
	Value value.Value
}

func (e *HandlerError) Error() string {
	if s, ok := e.Value.Str(); ok {
		return s
	}
	return fmt.Sprintf("msgpackrpc: handler error: %s", e.Value.Kind())
}

// NewHandlerError wraps a Value returned by a Dispatcher as an error.
func NewHandlerError(v value.Value) error {
	return &HandlerError{Value: v}
}

// AsHandlerError reports whether err carries a handler-supplied error
// Value, returning it if so.
func AsHandlerError(err error) (value.Value, bool) {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Value, true
	}
	return value.Nil(), false
}
