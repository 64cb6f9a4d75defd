// Package wdye is the public surface of the Expect engine: spawn a
// process under a pty, build patterns against it, and run expect calls
// against those patterns. It is a thin re-export of internal/process,
// internal/pattern and internal/expect — see those packages for the
// actual implementation and SPEC_FULL.md for the design rationale
// behind exposing a plain Go API instead of an embedded interpreter.
package wdye

import (
	"github.com/pjanx/wdye/internal/expect"
	"github.com/pjanx/wdye/internal/pattern"
	"github.com/pjanx/wdye/internal/process"
)

// Process owns one spawned child: its pty master, pid, output buffer,
// terminfo snapshot and optional session log.
type Process = process.Process

// Status is the result of a successful Process.Wait.
type Status = process.Status

// Config is a spawn{} call's arguments.
type Config = process.Config

// EnvOverride is one spawn environment override: Value sets the
// variable, Unset removes it.
type EnvOverride = process.EnvOverride

// Pattern is one arm of an expect() call.
type Pattern = pattern.Pattern

// Callback is a script-invocable pattern value; the expect loop
// replaces a matched Callback in the output sequence with its return
// values.
type Callback = pattern.Callback

// RegexOpts, ExactOpts, EOFOpts, DefaultOpts and TimeoutOpts configure
// the five pattern factories.
type (
	RegexOpts   = pattern.RegexOpts
	ExactOpts   = pattern.ExactOpts
	EOFOpts     = pattern.EOFOpts
	DefaultOpts = pattern.DefaultOpts
	TimeoutOpts = pattern.TimeoutOpts
)

// DefaultTimeout is used by Expect when the caller doesn't supply one.
const DefaultTimeout = expect.DefaultTimeout

// ErrContinue is the restart sentinel: a Callback returns it (via
// Continue()) to abort value realization and re-enter Expect with the
// same pattern list.
var ErrContinue = expect.ErrContinue

// Spawn starts a child process attached to a new pty.
func Spawn(cfg Config) (*Process, error) { return process.Spawn(cfg) }

// NewTimeout builds a free-standing timeout{} pattern: it has no
// Process and only participates in an Expect call's deadline
// arithmetic.
func NewTimeout(opts TimeoutOpts) *Pattern { return pattern.NewTimeout(opts) }

// Continue is the script-visible continue() primitive.
func Continue() error { return expect.Continue() }

// Expect runs one expect(patterns...) call, optionally overriding
// DefaultTimeout for patterns that don't specify their own.
func Expect(patterns []*Pattern, timeoutSeconds ...float64) ([]any, error) {
	dt := DefaultTimeout
	if len(timeoutSeconds) > 0 {
		dt = timeoutSeconds[0]
	}
	return expect.Run(patterns, dt)
}
