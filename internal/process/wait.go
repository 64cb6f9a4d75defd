package process

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Wait implements Process:wait (spec.md §4.3, §6). nowait selects
// WNOHANG; a still-running child under nowait returns ok=false with a
// zero Status (the script-visible "returns zero values" case). EINTR is
// retried transparently. Once a status has been collected it is cached
// and replayed verbatim on subsequent calls, matching "status is stable
// after being set" (spec.md §8).
func (p *Process) Wait(nowait bool) (Status, bool, error) {
	if p.collected {
		return p.lastWait, true, nil
	}

	options := 0
	if nowait {
		options = unix.WNOHANG
	}

	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(p.pid, &ws, options, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return Status{}, false, fmt.Errorf("wait: %w", err)
		}
		if wpid == 0 {
			// WNOHANG and the child is still running.
			return Status{}, false, nil
		}
		break
	}

	st := Status{}
	switch {
	case ws.Exited():
		st.HasExit = true
		st.ExitCode = ws.ExitStatus()
		st.Combined = st.ExitCode
	case ws.Signaled():
		st.HasSignal = true
		st.Signal = int(ws.Signal())
		st.Combined = 128 + st.Signal
	}
	p.collected = true
	p.lastWait = st
	return st, true, nil
}
