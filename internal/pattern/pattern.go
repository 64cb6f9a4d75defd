// Package pattern implements the Pattern tagged-value type and its
// construction, described in spec.md §3 and §4.4. A Pattern is built
// once per expect call and consumed once by the match kernel (match.go)
// and the expect loop (package expect).
package pattern

import (
	"fmt"
	"regexp"
)

// Kind tags which of the five pattern variants a Pattern is. Fields that
// belong to other kinds are left at their zero value and must not be
// read — the match kernel switches exhaustively on Kind.
type Kind int

const (
	Regex Kind = iota
	Exact
	Timeout
	EOF
	Default
)

func (k Kind) String() string {
	switch k {
	case Regex:
		return "regex"
	case Exact:
		return "exact"
	case Timeout:
		return "timeout"
	case EOF:
		return "eof"
	case Default:
		return "default"
	default:
		return "unknown"
	}
}

// ProcessHandle is the weak reference a Pattern holds to the Process it
// reads from (spec.md §9 "Ownership"). It exposes exactly the surface
// the match kernel needs to mutate the Process's buffer; package process
// implements it. Held as a plain interface value — Go has no first-class
// weak pointers, so "weak" here means only "the pattern must never be
// the thing keeping a Process alive", which is a discipline enforced by
// callers (patterns are always scoped to one expect call) rather than
// the runtime. See DESIGN.md.
type ProcessHandle interface {
	Buffer() []byte
	Consume(n int)
}

// Callback is a script-invocable value attached to a pattern's Values
// list. The expect loop replaces a matched Callback in the output
// sequence with its own return values (spec.md §4.6 step 6).
type Callback func(*Pattern) ([]any, error)

// Pattern is the tagged value described in spec.md §3.
type Pattern struct {
	Kind    Kind
	Process ProcessHandle // nil for Timeout, non-nil for every other kind

	re     *regexp.Regexp // Regex only
	nocase bool           // Regex, Exact

	literal []byte // Exact only

	hasTimeout bool    // Timeout, Default
	timeout    float64 // seconds; meaningful only if hasTimeout

	NoTransfer bool // Regex, Exact, EOF, Default
	Values     []any

	// Match state, filled in by the match kernel / expect loop during a
	// single expect call. Input is group 0; Groups holds regex capture
	// values (Groups[0] == Input); EOFSeen is propagated from the
	// Process by the expect loop before each scan (spec.md §4.6 step 4).
	Input   []byte
	Groups  [][]byte
	EOFSeen bool
}

// At implements the script-visible Pattern[0|k] index (spec.md §6).
// Index 0 is always the matched bytes (nil if nothing matched yet).
// Index k>0 on a Regex pattern returns the k-th capture, or nil if the
// group didn't participate in the match. Any other combination returns
// nil.
func (p *Pattern) At(k int) []byte {
	if k < 0 {
		return nil
	}
	if k == 0 {
		return p.Input
	}
	if p.Kind != Regex {
		return nil
	}
	if k >= len(p.Groups) {
		return nil
	}
	return p.Groups[k]
}

// ProcessOf implements the script-visible Pattern.process accessor.
func (p *Pattern) ProcessOf() ProcessHandle { return p.Process }

// EffectiveTimeout resolves this pattern's timeout against the engine
// default (spec.md §4.6 step 1). Only meaningful for Timeout/Default
// kinds; other kinds return def unconditionally (harmless, they're never
// consulted for deadline arithmetic).
func (p *Pattern) EffectiveTimeout(def float64) float64 {
	if p.hasTimeout {
		return p.timeout
	}
	return def
}

// HasExplicitTimeout reports whether this pattern's timeout was supplied
// by the script rather than defaulted.
func (p *Pattern) HasExplicitTimeout() bool { return p.hasTimeout }

// RegexOpts configures a Regex pattern factory call (spec.md §4.4).
type RegexOpts struct {
	Pattern    string
	NoCase     bool
	NoTransfer bool
	Values     []any
}

// NewRegex compiles a POSIX extended regular expression pattern. POSIX
// ERE semantics (leftmost-longest) match the original's regcomp(3)
// REG_EXTENDED behaviour; Go's regexp operates on byte slices rather
// than NUL-terminated C strings, so — unlike the C original's conditional
// use of REG_STARTEND — matching against buffers containing embedded
// NULs works unconditionally here (see SPEC_FULL.md Open Questions).
//
// CompilePOSIX parses with syntax.POSIX, which doesn't accept the
// "(?i)" flag syntax used by regexp.Compile, so nocase can't just
// prepend it to a CompilePOSIX source. Instead the nocase path compiles
// with regexp.Compile (which does accept "(?i)") and then switches the
// resulting automaton into leftmost-longest matching via Longest(),
// recovering the same POSIX semantics as the non-nocase path.
func NewRegex(proc ProcessHandle, opts RegexOpts) (*Pattern, error) {
	if opts.Pattern == "" {
		return nil, fmt.Errorf("pattern: regex requires a non-empty pattern string")
	}
	var re *regexp.Regexp
	var err error
	if opts.NoCase {
		re, err = regexp.Compile("(?i)" + opts.Pattern)
		if err == nil {
			re.Longest()
		}
	} else {
		re, err = regexp.CompilePOSIX(opts.Pattern)
	}
	if err != nil {
		return nil, fmt.Errorf("pattern: compile regex %q: %w", opts.Pattern, err)
	}
	return &Pattern{
		Kind:       Regex,
		Process:    proc,
		re:         re,
		nocase:     opts.NoCase,
		NoTransfer: opts.NoTransfer,
		Values:     append([]any(nil), opts.Values...),
	}, nil
}

// ExactOpts configures an Exact pattern factory call.
type ExactOpts struct {
	Literal    string
	NoCase     bool
	NoTransfer bool
	Values     []any
}

// NewExact stores a literal byte string to search for verbatim,
// including embedded NULs (the literal is taken as a Go string, which is
// just a byte sequence).
func NewExact(proc ProcessHandle, opts ExactOpts) *Pattern {
	return &Pattern{
		Kind:       Exact,
		Process:    proc,
		literal:    []byte(opts.Literal),
		nocase:     opts.NoCase,
		NoTransfer: opts.NoTransfer,
		Values:     append([]any(nil), opts.Values...),
	}
}

// EOFOpts configures an EOF pattern factory call.
type EOFOpts struct {
	NoTransfer bool
	Values     []any
}

// NewEOF builds a pattern that matches once the process's read channel is
// known closed.
func NewEOF(proc ProcessHandle, opts EOFOpts) *Pattern {
	return &Pattern{
		Kind:       EOF,
		Process:    proc,
		NoTransfer: opts.NoTransfer,
		Values:     append([]any(nil), opts.Values...),
	}
}

// DefaultOpts configures a Default pattern factory call.
type DefaultOpts struct {
	Timeout    *float64 // nil means "use engine default"
	NoTransfer bool
	Values     []any
}

// NewDefault builds a pattern that matches on either timeout expiry or
// EOF, whichever the expect loop observes first (spec.md §4.4, §4.6).
func NewDefault(proc ProcessHandle, opts DefaultOpts) *Pattern {
	p := &Pattern{
		Kind:       Default,
		Process:    proc,
		NoTransfer: opts.NoTransfer,
		Values:     append([]any(nil), opts.Values...),
	}
	if opts.Timeout != nil {
		p.hasTimeout = true
		p.timeout = *opts.Timeout
	}
	return p
}

// TimeoutOpts configures the free-standing timeout{} pattern factory.
type TimeoutOpts struct {
	Timeout *float64
	Values  []any
}

// NewTimeout builds a Timeout pattern. Unlike every other kind it has no
// Process: it never reads data, it only participates in deadline
// arithmetic (spec.md §3 invariants).
func NewTimeout(opts TimeoutOpts) *Pattern {
	p := &Pattern{
		Kind:   Timeout,
		Values: append([]any(nil), opts.Values...),
	}
	if opts.Timeout != nil {
		p.hasTimeout = true
		p.timeout = *opts.Timeout
	}
	return p
}
