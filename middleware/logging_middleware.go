package middleware

import (
	"time"

	"mini-ipc/diag"
	"mini-ipc/message"
)

// LoggingMiddleware records the duration and outcome of each procedure
// invocation through sink, the equivalent of the original library's
// per-call fprintf(link->logf, ...) tracing.
func LoggingMiddleware(name string, sink diag.Sink) Middleware {
	return func(next message.Handler) message.Handler {
		return func(args []uint32, ret []byte) error {
			start := time.Now()
			err := next(args, ret)
			sink.Printf("%s: duration %s", name, time.Since(start))
			if err != nil {
				sink.Printf("%s: error: %v", name, err)
			}
			return err
		}
	}
}
