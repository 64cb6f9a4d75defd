package expect_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/pjanx/wdye/internal/expect"
	"github.com/pjanx/wdye/internal/pattern"
	"github.com/pjanx/wdye/internal/process"
)

// scenario 1: echo-match and capture.
func TestEchoMatchAndCapture(t *testing.T) {
	proc, err := process.Spawn(process.Config{
		Argv:    []string{"sh", "-c", "cat > /dev/null"},
		Environ: map[string]process.EnvOverride{"TERM": {Value: "xterm"}},
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer proc.Close()

	if _, err := proc.Send("Hello\r"); err != nil {
		t.Fatalf("send: %v", err)
	}

	p := proc.Exact(pattern.ExactOpts{
		Literal: "Hello\r",
		Values: []any{pattern.Callback(func(p *pattern.Pattern) ([]any, error) {
			return []any{string(p.At(0))}, nil
		})},
	})

	values, err := expect.Run([]*pattern.Pattern{p}, expect.DefaultTimeout)
	if err != nil {
		t.Fatalf("expect: %v", err)
	}
	if len(values) != 1 || values[0] != "Hello\r" {
		t.Fatalf("expected [%q], got %v", "Hello\r", values)
	}
}

// scenario 2: timeout fires.
func TestTimeoutFires(t *testing.T) {
	half := 0.3
	tp := pattern.NewTimeout(pattern.TimeoutOpts{Timeout: &half, Values: []any{42}})

	start := time.Now()
	values, err := expect.Run([]*pattern.Pattern{tp}, expect.DefaultTimeout)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("expect: %v", err)
	}
	if len(values) != 1 || values[0] != 42 {
		t.Fatalf("expected [42], got %v", values)
	}
	if elapsed < 250*time.Millisecond {
		t.Fatalf("timeout fired too early: %v", elapsed)
	}
}

// scenario 3: case-insensitive regex with groups.
func TestCaseInsensitiveRegexGroups(t *testing.T) {
	proc, err := process.Spawn(process.Config{Argv: []string{"sh", "-c", "cat > /dev/null"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer proc.Close()

	if _, err := proc.Send("abc123\r"); err != nil {
		t.Fatalf("send: %v", err)
	}

	p, err := proc.Regex(pattern.RegexOpts{
		Pattern: "A(.*)3",
		NoCase:  true,
		Values: []any{pattern.Callback(func(p *pattern.Pattern) ([]any, error) {
			if string(p.At(0)) != "abc123" {
				return nil, fmt.Errorf("At(0) = %q", p.At(0))
			}
			if string(p.At(1)) != "bc12" {
				return nil, fmt.Errorf("At(1) = %q", p.At(1))
			}
			return nil, nil
		})},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, err := expect.Run([]*pattern.Pattern{p}, expect.DefaultTimeout); err != nil {
		t.Fatalf("expect: %v", err)
	}
}

// scenario 4: EOF vs. default timeout.
func TestEOFBeatsDefaultTimeout(t *testing.T) {
	proc, err := process.Spawn(process.Config{Argv: []string{"sh", "-c", "cat > /dev/null"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer proc.Close()

	if _, err := proc.Send("Closing...\r"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := proc.Send("\x04"); err != nil {
		t.Fatalf("send eot: %v", err)
	}

	half := 0.5
	defaultCalled := false
	eofPat := proc.Eof(pattern.EOFOpts{Values: []any{true}})
	defPat := proc.Default(pattern.DefaultOpts{
		Timeout: &half,
		Values: []any{pattern.Callback(func(p *pattern.Pattern) ([]any, error) {
			defaultCalled = true
			return nil, fmt.Errorf("expected EOF, got a timeout")
		})},
	})

	values, err := expect.Run([]*pattern.Pattern{eofPat, defPat}, expect.DefaultTimeout)
	if err != nil {
		t.Fatalf("expect: %v", err)
	}
	if defaultCalled {
		t.Fatal("default branch's callback should not have been invoked")
	}
	if len(values) != 1 || values[0] != true {
		t.Fatalf("expected [true] from the eof branch, got %v", values)
	}
}

// scenario 5: nonblocking wait before exit, then blocking wait.
func TestNonblockingWaitThenExit(t *testing.T) {
	proc, err := process.Spawn(process.Config{Argv: []string{"sh", "-c", "sleep 0.2"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer proc.Close()

	if _, ok, err := proc.Wait(true); ok || err != nil {
		t.Fatalf("expected zero values immediately after spawn, got ok=%v err=%v", ok, err)
	}

	st, ok, err := proc.Wait(false)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !ok || !st.HasExit || st.ExitCode != 0 {
		t.Fatalf("expected clean exit, got %+v ok=%v", st, ok)
	}
	if proc.Pid() >= 0 {
		t.Fatalf("expected negative pid sentinel, got %d", proc.Pid())
	}

	st2, ok2, err := proc.Wait(true)
	if err != nil || !ok2 || st2 != st {
		t.Fatalf("expected replayed status, got %+v ok=%v err=%v", st2, ok2, err)
	}
}

// continue/restart: a callback that restarts should re-enter the loop
// with the same pattern list and match again against the same buffered
// data (notransfer leaves it in place across the restart).
func TestContinueRestartsLoop(t *testing.T) {
	proc, err := process.Spawn(process.Config{Argv: []string{"sh", "-c", "cat > /dev/null"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer proc.Close()

	if _, err := proc.Send("hello world\r"); err != nil {
		t.Fatalf("send: %v", err)
	}

	attempts := 0
	p := proc.Exact(pattern.ExactOpts{
		Literal:    "world",
		NoTransfer: true,
		Values: []any{pattern.Callback(func(p *pattern.Pattern) ([]any, error) {
			attempts++
			if attempts == 1 {
				return nil, expect.Continue()
			}
			return []any{"matched"}, nil
		})},
	})

	values, err := expect.Run([]*pattern.Pattern{p}, expect.DefaultTimeout)
	if err != nil {
		t.Fatalf("expect: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected the callback to run twice, ran %d times", attempts)
	}
	if len(values) != 1 || values[0] != "matched" {
		t.Fatalf("expected [matched], got %v", values)
	}
}
