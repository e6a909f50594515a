// Package obs wraps github.com/joeycumines/logiface with
// github.com/joeycumines/stumpy as the default structured (JSON) writer,
// per spec §6.1 "Logging." One Logger belongs to each Domain; contexts
// get a child logger via Clone(), never a bare package-level global.
package obs

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete structured logger type threaded through Domain
// and Context construction.
type Logger = logiface.Logger[*stumpy.Event]

// Level re-exports logiface's syslog-style level type so callers configuring
// a Domain never need to import logiface directly.
type Level = logiface.Level

const (
	LevelEmergency     = logiface.LevelEmergency
	LevelError         = logiface.LevelError
	LevelWarning       = logiface.LevelWarning
	LevelInformational = logiface.LevelInformational
	LevelDebug         = logiface.LevelDebug
)

// New constructs a logger writing newline-delimited JSON to w at the
// given level, grounded in the teacher's own
// stumpy.L.New(stumpy.L.WithStumpy(...), stumpy.L.WithLevel(...)) pattern.
func New(w io.Writer, level Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	)
}

// Default constructs a logger writing to os.Stderr at LevelInformational,
// the zero-configuration Domain default.
func Default() *Logger { return New(os.Stderr, LevelInformational) }

// Builder is the concrete field-builder type Abort's fields callback
// receives, re-exported so callers don't need to import logiface directly.
type Builder = logiface.Builder[*stumpy.Event]

// Abort logs msg at Emerg, optionally annotated by fields, then terminates
// the process, per spec §7 taxonomy 1 "Fatal invariant violation: abort
// the process; never attempt to continue in a state an invariant already
// proved cannot happen."
func Abort(logger *Logger, msg string, fields func(*Builder) *Builder) {
	b := logger.Emerg()
	if fields != nil {
		b = fields(b)
	}
	b.Log(msg)
	os.Exit(1)
}
