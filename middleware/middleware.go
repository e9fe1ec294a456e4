// Package middleware implements the onion model middleware chain around
// a server-side procedure handler (message.Handler): cross-cutting
// concerns like logging and per-call timeouts, applied without modifying
// the exported handler itself.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Call:   A.before → B.before → C.before → handler
//	Return: handler → C.after → B.after → A.after
package middleware

import "mini-ipc/message"

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next message.Handler) message.Handler

// Chain composes multiple middlewares into a single middleware, built
// from right to left so the first middleware in the list is the
// outermost layer.
func Chain(middlewares ...Middleware) Middleware {
	return func(next message.Handler) message.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
