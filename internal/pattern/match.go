// match.go implements the match kernel of spec.md §4.5: applying a
// single pattern against its Process's buffer (or its EOF state),
// producing match state without side effects beyond those the spec
// allows (buffer consumption on a non-notransfer match).
package pattern

import "bytes"

// Try attempts a single data match for one pattern and returns whether
// it matched. Timeout patterns never match here — they're only selected
// through the expect loop's deadline handling (spec.md §4.6 step 5).
// Try has no side effects on failure; on success it fills Input/Groups
// and, unless NoTransfer is set, consumes the matched prefix of the
// Process's buffer.
func Try(p *Pattern) bool {
	switch p.Kind {
	case Regex:
		return tryRegex(p)
	case Exact:
		return tryExact(p)
	case EOF, Default:
		return tryEOF(p)
	case Timeout:
		return false
	default:
		return false
	}
}

func tryRegex(p *Pattern) bool {
	buf := p.Process.Buffer()
	loc := p.re.FindSubmatchIndex(buf)
	if loc == nil {
		return false
	}
	// Invariant (spec.md §3): 0 <= rm_so <= rm_eo <= len(buffer).
	input := cloneRange(buf, loc[0], loc[1])
	groups := make([][]byte, len(loc)/2)
	for i := range groups {
		so, eo := loc[2*i], loc[2*i+1]
		if so < 0 {
			continue
		}
		groups[i] = cloneRange(buf, so, eo)
	}
	p.Input = input
	p.Groups = groups
	if !p.NoTransfer {
		p.Process.Consume(loc[1])
	}
	return true
}

func tryExact(p *Pattern) bool {
	buf := p.Process.Buffer()
	off := -1
	if p.nocase {
		off = indexFold(buf, p.literal)
	} else {
		off = bytes.Index(buf, p.literal)
	}
	if off < 0 {
		return false
	}
	end := off + len(p.literal)
	input := cloneRange(buf, off, end)
	p.Input = input
	p.Groups = [][]byte{input}
	if !p.NoTransfer {
		p.Process.Consume(end)
	}
	return true
}

func tryEOF(p *Pattern) bool {
	if !p.EOFSeen {
		return false
	}
	buf := p.Process.Buffer()
	input := cloneRange(buf, 0, len(buf))
	p.Input = input
	p.Groups = [][]byte{input}
	if !p.NoTransfer {
		p.Process.Consume(len(buf))
	}
	return true
}

func cloneRange(buf []byte, lo, hi int) []byte {
	out := make([]byte, hi-lo)
	copy(out, buf[lo:hi])
	return out
}

// indexFold finds lit in buf using byte-wise ASCII case folding, matching
// the original's strncasecmp-based comparison (spec.md §4.5: "compare
// case-insensitively under byte semantics"). It intentionally does not
// do Unicode case folding.
func indexFold(buf, lit []byte) int {
	if len(lit) == 0 {
		return 0
	}
	if len(lit) > len(buf) {
		return -1
	}
	for i := 0; i+len(lit) <= len(buf); i++ {
		if equalFold(buf[i:i+len(lit)], lit) {
			return i
		}
	}
	return -1
}

func equalFold(a, b []byte) bool {
	for i := range a {
		if asciiLower(a[i]) != asciiLower(b[i]) {
			return false
		}
	}
	return true
}

func asciiLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
