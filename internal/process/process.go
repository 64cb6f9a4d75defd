// Package process implements the Process record of spec.md §3/§4.3: the
// owner of a spawned child's pty master, pid, output buffer, terminfo
// snapshot, and optional session log. It also implements
// pattern.ProcessHandle so the match kernel can read and consume its
// buffer.
package process

import (
	"fmt"
	"syscall"
	"time"

	"github.com/pjanx/wdye/internal/asciicast"
	"github.com/pjanx/wdye/internal/logger"
	"github.com/pjanx/wdye/internal/pattern"
	"github.com/pjanx/wdye/internal/terminfo"
	"github.com/pjanx/wdye/internal/termio"
)

// Status is the three-value result of a successful wait (spec.md §4.3):
// a shell-style combined status, plus the exit code and signal number
// separately when applicable.
type Status struct {
	Combined  int
	HasExit   bool
	ExitCode  int
	HasSignal bool
	Signal    int
}

// Process owns one spawned child. It is not safe for concurrent use
// except where noted — per spec.md §5 the engine is single-threaded and
// cooperative, so Buffer/Consume are only ever touched synchronously
// from within one expect call.
type Process struct {
	child    *termio.Child
	pid      int // immutable OS pid, even after reaping
	collected bool
	lastWait Status

	buf      []byte
	eof      bool
	terminfo terminfo.Snapshot
	term     string
	startTS  time.Time
	logSink  *asciicast.Writer
	closed   bool
}

// Buffer implements pattern.ProcessHandle: the accumulated, not-yet
// consumed output bytes (spec.md §3 "buffer").
func (p *Process) Buffer() []byte { return p.buf }

// Consume implements pattern.ProcessHandle: deletes the first n bytes of
// the buffer, as a successful non-notransfer match does (spec.md §3, §8).
func (p *Process) Consume(n int) {
	if n <= 0 {
		return
	}
	if n > len(p.buf) {
		n = len(p.buf)
	}
	p.buf = p.buf[n:]
}

// AppendOutput feeds newly read child output into the buffer (called by
// the expect loop's step 4 after a successful read), logging it to the
// asciicast sink if one is open.
func (p *Process) AppendOutput(data []byte) {
	p.buf = append(p.buf, data...)
	if p.logSink != nil {
		p.logSink.Append(asciicast.ChannelOutput, data)
	}
}

// MarkEOF records that the read channel is known closed (spec.md §4.6
// step 4).
func (p *Process) MarkEOF() { p.eof = true }

// IsEOF reports whether MarkEOF has been called.
func (p *Process) IsEOF() bool { return p.eof }

// Fd returns the raw master descriptor, for the expect loop's poll set.
func (p *Process) Fd() int { return p.child.Fd() }

// Pid implements Process.pid (spec.md §6): positive while the child is
// running, a negative sentinel once it has been reaped.
func (p *Process) Pid() int {
	if p.collected {
		return -p.pid
	}
	return p.pid
}

// Term implements Process.term (spec.md §6): the immutable terminfo
// snapshot captured at spawn time.
func (p *Process) Term() terminfo.Snapshot { return p.terminfo }

// StartedAt exposes the spawn timestamp (spec.md §3 "start_ts_ms").
func (p *Process) StartedAt() time.Time { return p.startTS }

// Send implements Process:send (spec.md §4.3, §6): writes each argument
// with a single blocking write, logging it if a sink is open, and
// returns the Process itself so callers can chain.
func (p *Process) Send(args ...string) (*Process, error) {
	for _, a := range args {
		data := []byte(a)
		if err := termio.Write(p.child, data); err != nil {
			return nil, fmt.Errorf("send: %w", err)
		}
		if p.logSink != nil {
			p.logSink.Append(asciicast.ChannelInput, data)
		}
	}
	return p, nil
}

// Regex, Exact, Eof and Default are the pattern factories Process
// exposes per spec.md §4.3/§4.4, weakly referencing this Process.
func (p *Process) Regex(opts pattern.RegexOpts) (*pattern.Pattern, error) {
	return pattern.NewRegex(p, opts)
}

func (p *Process) Exact(opts pattern.ExactOpts) *pattern.Pattern {
	return pattern.NewExact(p, opts)
}

func (p *Process) Eof(opts pattern.EOFOpts) *pattern.Pattern {
	return pattern.NewEOF(p, opts)
}

func (p *Process) Default(opts pattern.DefaultOpts) *pattern.Pattern {
	return pattern.NewDefault(p, opts)
}

// Signal sends an arbitrary signal to the child process (not its
// process group) — the SPEC_FULL.md "Process:kill" supplement.
func (p *Process) Signal(sig syscall.Signal) error {
	return termio.Signal(p.pid, sig)
}

// SetWinsize applies a new terminal size to the running child — the
// SPEC_FULL.md scripted-resize supplement.
func (p *Process) SetWinsize(cols, rows uint16) error {
	return termio.Setsize(p.child, cols, rows)
}

// EnableLogging opens (or reopens) the asciicast sink at path — the
// SPEC_FULL.md "Process:log_file" supplement.
func (p *Process) EnableLogging(path string) error {
	cols, rows := terminfo.Winsize(p.terminfo)
	w, err := asciicast.Open(path, int(cols), int(rows), p.term, p.startTS)
	if err != nil {
		return err
	}
	if p.logSink != nil {
		p.logSink.Close()
	}
	p.logSink = w
	return nil
}

// DisableLogging closes the asciicast sink, if any.
func (p *Process) DisableLogging() {
	if p.logSink != nil {
		p.logSink.Close()
		p.logSink = nil
	}
}

// Close implements Process destruction (spec.md §5): best-effort
// SIGKILL to the child's process group unless it has already been
// reaped, then closes the master fd and the log sink. Errors from the
// kill and the log close are logged, not returned, matching "Log sink
// writes are best-effort" / "SIGKILL delivery failures are ignored".
func (p *Process) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if !p.collected {
		if err := termio.Killpg(p.pid); err != nil {
			logger.Warn("process: killpg failed", "pid", p.pid, "err", err)
		}
	}
	if p.logSink != nil {
		if err := p.logSink.Close(); err != nil {
			logger.Warn("process: log sink close failed", "err", err)
		}
	}
	return p.child.Master.Close()
}
