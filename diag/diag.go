// Package diag implements the line-oriented diagnostic sink of spec §4.7.
// A channel optionally binds one; when set, the dispatcher and caller write
// human-readable records for export/unexport, accept results, unknown-name
// requests, short replies, type mismatches and remote errors. Diagnostics
// must never affect observable behavior; a channel with no sink set uses
// Noop, so call sites never special-case a missing sink.
package diag

import (
	"io"
	"log"
)

// Sink receives one formatted line per diagnostic event, the same shape
// the teacher's server and middleware packages log with the standard
// library's log.Printf, and the original C sources write via fprintf to a
// FILE *logf.
type Sink interface {
	Printf(format string, args ...any)
}

// logSink adapts a *log.Logger to Sink.
type logSink struct{ l *log.Logger }

// NewSink wraps w in a line-oriented Sink, one log.Logger per channel so
// records can carry a channel-specific prefix.
func NewSink(w io.Writer, prefix string) Sink {
	return &logSink{l: log.New(w, prefix, log.LstdFlags)}
}

func (s *logSink) Printf(format string, args ...any) { s.l.Printf(format, args...) }

// Noop discards every record; used where no sink was set.
var Noop Sink = noop{}

type noop struct{}

func (noop) Printf(string, ...any) {}
