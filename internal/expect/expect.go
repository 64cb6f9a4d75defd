// Package expect implements the Expect wait loop of spec.md §4.6/§4.7:
// scheduling a pattern list against the process fds it references,
// polling with a single per-call deadline, feeding readable fds into
// their Process buffers, and selecting + realizing the first matching
// pattern — including the "restart" control-flow signal.
package expect

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pjanx/wdye/internal/logger"
	"github.com/pjanx/wdye/internal/pattern"
	"github.com/pjanx/wdye/internal/termio"
)

// DefaultTimeout is the engine default used whenever a pattern omits its
// own timeout (spec.md §4.6 step 1).
const DefaultTimeout = 10.0

// ErrContinue is the restart signal (spec.md §4.7, §7, §9): a
// distinguished sentinel a callback returns to abort the current value
// realization and re-enter the loop with the same pattern list. Any
// other error from a callback propagates to the caller unchanged.
var ErrContinue = errors.New("wdye: continue")

// Continue implements the script-visible continue() primitive — it
// never returns normally from the script's point of view, since the
// only legal use is `return expect.Continue()` from inside a Callback.
func Continue() error { return ErrContinue }

// ReadWriter is what the loop needs from a Process beyond
// pattern.ProcessHandle: fd access, EOF bookkeeping, and output feeding.
// package process.Process implements it.
type ReadWriter interface {
	pattern.ProcessHandle
	Fd() int
	IsEOF() bool
	MarkEOF()
	AppendOutput([]byte)
}

const readChunk = 4096

// Run executes one expect(pattern...) call (spec.md §6). It blocks until
// a pattern matches and its values (after callback realization) are
// produced, a Timeout/Default pattern fires, the implicit default
// deadline expires with nothing to match (returns nil, nil), or an error
// occurs.
func Run(patterns []*pattern.Pattern, defaultTimeout float64) ([]any, error) {
	for {
		values, restart, err := runOnce(patterns, defaultTimeout)
		if restart {
			continue
		}
		return values, err
	}
}

func runOnce(patterns []*pattern.Pattern, defaultTimeout float64) (values []any, restart bool, err error) {
	// Step 1: preparation.
	for _, p := range patterns {
		p.Input = nil
		p.Groups = nil
	}
	procs := distinctProcesses(patterns)
	propagateEOF(patterns)

	firstTimeout := minTimeout(patterns, defaultTimeout)

	// Step 2: initial scan, before blocking on anything.
	if sel := scan(patterns); sel != nil {
		return realize(sel, patterns, defaultTimeout)
	}

	deadline := time.Now().Add(time.Duration(firstTimeout * float64(time.Second)))

	for {
		if len(procs) == 0 {
			// No readable fds at all (e.g. only Timeout patterns):
			// there's nothing to poll, so just wait out the deadline.
			remaining := time.Until(deadline)
			if remaining > 0 {
				time.Sleep(remaining)
			}
			sel := selectTimeout(patterns, firstTimeout, defaultTimeout)
			if sel == nil {
				return nil, false, nil
			}
			return realize(sel, patterns, defaultTimeout)
		}

		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}

		pfds := make([]unix.PollFd, 0, len(procs))
		fds := make([]int, 0, len(procs))
		for fd := range procs {
			pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
			fds = append(fds, fd)
		}

		n, perr := pollRetry(pfds, int(remaining.Milliseconds()))
		if perr != nil {
			return nil, false, fmt.Errorf("expect: poll: %w", perr)
		}

		if n == 0 {
			// Step 5: the deadline fired.
			sel := selectTimeout(patterns, firstTimeout, defaultTimeout)
			if sel == nil {
				return nil, false, nil
			}
			return realize(sel, patterns, defaultTimeout)
		}

		// Step 4: feed every ready fd, then re-scan once.
		for i, pfd := range pfds {
			if pfd.Revents == 0 {
				continue
			}
			fd := fds[i]
			proc := procs[fd]
			if pfd.Revents&unix.POLLIN != 0 {
				buf := make([]byte, readChunk)
				rr, rerr := termio.ReadFd(fd, buf)
				if rerr != nil {
					return nil, false, fmt.Errorf("expect: read: %w", rerr)
				}
				if rr.EOF {
					proc.MarkEOF()
					delete(procs, fd)
				} else {
					proc.AppendOutput(rr.Data)
				}
				continue
			}
			if pfd.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
				proc.MarkEOF()
				delete(procs, fd)
			}
		}

		propagateEOF(patterns)
		if sel := scan(patterns); sel != nil {
			return realize(sel, patterns, defaultTimeout)
		}
		// No match yet: loop, polling again against the same deadline.
	}
}

// distinctProcesses collects the set of distinct fds referenced by
// non-Timeout patterns (spec.md §4.6 step 1).
func distinctProcesses(patterns []*pattern.Pattern) map[int]ReadWriter {
	procs := make(map[int]ReadWriter)
	for _, p := range patterns {
		if p.Kind == pattern.Timeout {
			continue
		}
		if rw, ok := p.Process.(ReadWriter); ok {
			procs[rw.Fd()] = rw
		}
	}
	return procs
}

func propagateEOF(patterns []*pattern.Pattern) {
	for _, p := range patterns {
		if p.Kind == pattern.Timeout {
			continue
		}
		if rw, ok := p.Process.(ReadWriter); ok {
			p.EOFSeen = rw.IsEOF()
		}
	}
}

// scan runs the data-match pass over all patterns in declaration order,
// returning the first one that matches (spec.md §4.6 "tie-breaks").
func scan(patterns []*pattern.Pattern) *pattern.Pattern {
	for _, p := range patterns {
		if p.Kind == pattern.Timeout {
			continue
		}
		if pattern.Try(p) {
			return p
		}
	}
	return nil
}

// minTimeout computes the effective deadline for the whole call: the
// minimum over all Timeout/Default patterns present, or the engine
// default if none are present (spec.md §4.6 step 1, "Implicit default").
func minTimeout(patterns []*pattern.Pattern, defaultTimeout float64) float64 {
	best := -1.0
	found := false
	for _, p := range patterns {
		if p.Kind != pattern.Timeout && p.Kind != pattern.Default {
			continue
		}
		t := p.EffectiveTimeout(defaultTimeout)
		if !found || t < best {
			best = t
			found = true
		}
	}
	if !found {
		return defaultTimeout
	}
	return best
}

// selectTimeout implements step 5: the first Timeout/Default pattern
// whose effective timeout equals the call's deadline. defaultTimeout
// must be the same engine default used to compute firstTimeout
// (minTimeout) — a pattern with no explicit timeout defaults to it
// too, and comparing against firstTimeout instead would wrongly select
// an implicitly-defaulted pattern whenever firstTimeout happens to come
// from a different, explicitly-timed pattern. If the pattern list had
// no Timeout/Default at all (the "implicit default" case), no pattern
// can be selected and the call returns zero values.
func selectTimeout(patterns []*pattern.Pattern, firstTimeout, defaultTimeout float64) *pattern.Pattern {
	for _, p := range patterns {
		if p.Kind != pattern.Timeout && p.Kind != pattern.Default {
			continue
		}
		if p.EffectiveTimeout(defaultTimeout) == firstTimeout {
			return p
		}
	}
	return nil
}

// realize implements step 6: invoking each callback value in order,
// substituting its return values, and handling the restart signal.
func realize(selected *pattern.Pattern, patterns []*pattern.Pattern, defaultTimeout float64) ([]any, bool, error) {
	out := make([]any, 0, len(selected.Values))
	for _, v := range selected.Values {
		cb, ok := v.(pattern.Callback)
		if !ok {
			out = append(out, v)
			continue
		}
		results, err := cb(selected)
		if err != nil {
			if errors.Is(err, ErrContinue) {
				logger.Debug("expect: restart signal from callback")
				return nil, true, nil
			}
			return nil, false, err
		}
		out = append(out, results...)
	}
	return out, false, nil
}

// pollRetry wraps unix.Poll, retrying on EINTR (spec.md §5: "EINTR on
// any blocking syscall is retried").
func pollRetry(pfds []unix.PollFd, timeoutMs int) (int, error) {
	for {
		n, err := unix.Poll(pfds, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		return n, nil
	}
}
