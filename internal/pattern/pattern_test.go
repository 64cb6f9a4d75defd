package pattern

import (
	"bytes"
	"testing"
)

// fakeProcess is a minimal ProcessHandle for exercising the match kernel
// without a real pty.
type fakeProcess struct {
	buf []byte
}

func (f *fakeProcess) Buffer() []byte { return f.buf }
func (f *fakeProcess) Consume(n int)  { f.buf = f.buf[n:] }

func TestExactMatchConsumesPrefix(t *testing.T) {
	proc := &fakeProcess{buf: []byte("Hello\r\nrest")}
	p := NewExact(proc, ExactOpts{Literal: "Hello\r\n"})

	if !Try(p) {
		t.Fatal("expected exact match")
	}
	if string(p.At(0)) != "Hello\r\n" {
		t.Errorf("At(0) = %q, want %q", p.At(0), "Hello\r\n")
	}
	if string(proc.buf) != "rest" {
		t.Errorf("buffer after match = %q, want %q", proc.buf, "rest")
	}
}

func TestExactNoTransferLeavesBuffer(t *testing.T) {
	proc := &fakeProcess{buf: []byte("abc")}
	p := NewExact(proc, ExactOpts{Literal: "abc", NoTransfer: true})

	if !Try(p) {
		t.Fatal("expected match")
	}
	if string(proc.buf) != "abc" {
		t.Errorf("notransfer should leave buffer unchanged, got %q", proc.buf)
	}
}

func TestExactNoCase(t *testing.T) {
	proc := &fakeProcess{buf: []byte("ABC123")}
	p := NewExact(proc, ExactOpts{Literal: "abc", NoCase: true})
	if !Try(p) {
		t.Fatal("expected case-insensitive match")
	}
	if string(p.At(0)) != "ABC" {
		t.Errorf("At(0) = %q, want %q", p.At(0), "ABC")
	}
}

func TestRegexCaptureGroups(t *testing.T) {
	proc := &fakeProcess{buf: []byte("abc123\r")}
	p, err := NewRegex(proc, RegexOpts{Pattern: "A(.*)3", NoCase: true})
	if err != nil {
		t.Fatal(err)
	}
	if !Try(p) {
		t.Fatal("expected regex match")
	}
	if string(p.At(0)) != "abc123" {
		t.Errorf("At(0) = %q, want %q", p.At(0), "abc123")
	}
	if string(p.At(1)) != "bc12" {
		t.Errorf("At(1) = %q, want %q", p.At(1), "bc12")
	}
}

func TestRegexAllowsEmbeddedNUL(t *testing.T) {
	proc := &fakeProcess{buf: []byte("pre\x00post")}
	p, err := NewRegex(proc, RegexOpts{Pattern: "pre.post"})
	if err != nil {
		t.Fatal(err)
	}
	// POSIX ERE '.' doesn't match newline by default in RE2 POSIX mode
	// but does match NUL since Go regexp is byte-slice based, not
	// NUL-terminated — this is the Open Question resolution from
	// SPEC_FULL.md.
	if !Try(p) {
		t.Fatal("expected match across embedded NUL byte")
	}
}

func TestEOFMatchesOnlyAfterEOFSeen(t *testing.T) {
	proc := &fakeProcess{buf: []byte("leftover")}
	p := NewEOF(proc, EOFOpts{})
	if Try(p) {
		t.Fatal("eof pattern should not match before EOFSeen is set")
	}
	p.EOFSeen = true
	if !Try(p) {
		t.Fatal("eof pattern should match once EOFSeen is set")
	}
	if !bytes.Equal(p.At(0), []byte("leftover")) {
		t.Errorf("At(0) = %q, want %q", p.At(0), "leftover")
	}
	if len(proc.buf) != 0 {
		t.Errorf("eof match should drain buffer, got %q", proc.buf)
	}
}

func TestPatternAtOutOfRange(t *testing.T) {
	p := NewTimeout(TimeoutOpts{})
	if p.At(0) != nil {
		t.Error("unmatched pattern At(0) should be nil")
	}
	if p.At(5) != nil {
		t.Error("At(k) on a Timeout pattern should always be nil")
	}
}

func TestEffectiveTimeoutDefaulting(t *testing.T) {
	p := NewTimeout(TimeoutOpts{})
	if got := p.EffectiveTimeout(10); got != 10 {
		t.Errorf("expected engine default 10, got %v", got)
	}
	secs := 2.5
	p2 := NewTimeout(TimeoutOpts{Timeout: &secs})
	if got := p2.EffectiveTimeout(10); got != 2.5 {
		t.Errorf("expected explicit timeout 2.5, got %v", got)
	}
}
