// Package termio implements the pseudoterminal primitive the engine
// spawns children under: open a master/slave pair, fork a child that
// becomes its own session leader with the slave as controlling tty, and
// exec.
package termio

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// DefaultWinsize is used when neither a caller nor terminfo supplies one.
var DefaultWinsize = pty.Winsize{Cols: 80, Rows: 24}

// Child describes a freshly forked, exec'd process attached to a pty.
type Child struct {
	Master *os.File
	Pid    int

	// fd is the raw, blocking descriptor behind Master, obtained via
	// Master.Fd(). Calling Fd() switches the os.File out of the Go
	// runtime's async netpoller integration, which is what we want: the
	// expect loop owns its own poll/read/write scheduling (§5 of the
	// spec — single-threaded, cooperative, no global reactor).
	fd int
}

// Fd returns the raw master descriptor for use with unix.Poll/Read/Write.
func (c *Child) Fd() int { return c.fd }

// Fork starts cmd attached to a new pty, with cmd becoming a session
// leader and the pty slave its controlling terminal on fds 0,1,2. The
// master is returned close-on-exec in the parent.
func Fork(cmd *exec.Cmd, ws *pty.Winsize) (*Child, error) {
	if ws == nil {
		ws = &DefaultWinsize
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = true

	master, err := pty.StartWithSize(cmd, ws)
	if err != nil {
		return nil, fmt.Errorf("pty fork: %w", err)
	}
	if err := unix.SetNonblock(int(master.Fd()), false); err != nil {
		master.Close()
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("pty fork: clear nonblock: %w", err)
	}
	fd := int(master.Fd())
	return &Child{Master: master, Pid: cmd.Process.Pid, fd: fd}, nil
}

// Setsize applies a new window size to an already-running child.
func Setsize(c *Child, cols, rows uint16) error {
	return pty.Setsize(c.Master, &pty.Winsize{Cols: cols, Rows: rows})
}

// Write performs one blocking write to the master, returning an error on
// short writes (the spec requires a single write per send argument with
// short writes surfaced as errors, not retried).
func Write(c *Child, p []byte) error {
	return WriteFd(c.fd, p)
}

// WriteFd is Write against a raw descriptor, for callers (the expect
// loop) that only hold an fd via an interface rather than a *Child.
func WriteFd(fd int, p []byte) error {
	n, err := unix.Write(fd, p)
	if err != nil {
		if err == unix.EINTR {
			return WriteFd(fd, p)
		}
		return fmt.Errorf("write: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("write: short write (%d of %d bytes)", n, len(p))
	}
	return nil
}

// ReadResult is the outcome of one Read call.
type ReadResult struct {
	Data []byte
	EOF  bool
}

// Read performs one blocking read of up to len(buf) bytes on the
// child's master fd.
func Read(c *Child, buf []byte) (ReadResult, error) {
	return ReadFd(c.fd, buf)
}

// ReadFd is Read against a raw descriptor (see WriteFd). It retries on
// EINTR. A zero-length read, or EIO on Linux (raised once the slave side
// has been fully closed), is reported as EOF rather than an error.
func ReadFd(fd int, buf []byte) (ReadResult, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EIO {
				return ReadResult{EOF: true}, nil
			}
			return ReadResult{}, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			return ReadResult{EOF: true}, nil
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		return ReadResult{Data: data}, nil
	}
}

// Killpg sends SIGKILL to the child's entire process group. Setsid makes
// the child's pgid equal to its pid, so -pid addresses the group. Errors
// are intentionally swallowed by callers per §5/§7 (best-effort).
func Killpg(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}

// Signal sends an arbitrary signal to the child process itself (not its
// group) — used by the Process.Signal supplement in SPEC_FULL.md.
func Signal(pid int, sig syscall.Signal) error {
	return unix.Kill(pid, sig)
}
