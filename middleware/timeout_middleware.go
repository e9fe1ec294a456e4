package middleware

import (
	"time"

	"mini-ipc/errs"
	"mini-ipc/message"
)

// TimeoutMiddleware bounds how long a single handler invocation is
// allowed to run before it fails with an errs.TimedOut error (which the
// dispatcher, like any non-Remote handler error, reports to the caller
// as a remote EIO), guarding the single-threaded dispatch loop (§5) against one
// procedure implementation stalling every other client.
//
// The handler goroutine is not cancelled if it overruns — message.Handler
// carries no context, so there is nothing to cancel it with — it keeps
// running in the background and its eventual result is discarded. A
// handler that can block indefinitely must not be exported without its
// own internal bound.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next message.Handler) message.Handler {
		return func(args []uint32, ret []byte) error {
			done := make(chan error, 1)
			go func() { done <- next(args, ret) }()

			select {
			case err := <-done:
				return err
			case <-time.After(timeout):
				return errs.New(errs.TimedOut, "handler", "procedure exceeded its time budget")
			}
		}
	}
}
