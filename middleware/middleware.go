// Package middleware implements the onion-model decorator chain over a
// Dispatcher (spec §4.5, §6): logging, timeout, rate limiting, and retry
// behavior layered around a user's handler without modifying it.
//
// Onion model execution order:
//
//	Chain(A, B, C)(d)  →  A(B(C(d)))
//
//	Dispatch:  A.before → B.before → C.before → d.Dispatch
//	Response:  d.Dispatch → C.after → B.after → A.after
package middleware

import "github.com/euclio/msgpackrpc/dispatch"

// Middleware wraps a Dispatcher with additional behavior, the decorator
// pattern: each layer can do pre-processing, call through to next, do
// post-processing, or short-circuit by never calling next (e.g. rate
// limiting).
type Middleware func(next dispatch.Dispatcher) dispatch.Dispatcher

// Chain composes multiple middlewares into one, building from right to
// left so the first middleware listed is the outermost layer — executed
// first on the way in, last on the way out.
//
//	chain := Chain(Logging(logger), RateLimit(10, 20))
//	d := chain(reflectDispatcher)
//	// Dispatch order: Logging → RateLimit → reflectDispatcher
func Chain(middlewares ...Middleware) Middleware {
	return func(next dispatch.Dispatcher) dispatch.Dispatcher {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
