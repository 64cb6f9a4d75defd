// Package terminfo loads a terminal capability snapshot for a given TERM
// value, exposed to the script as an immutable key -> bool|int|string
// mapping (spec.md §3, §4.2, §9 "Terminfo snapshot").
package terminfo

import (
	"fmt"

	xoterm "github.com/xo/terminfo"
)

// Snapshot is the immutable capability mapping captured at spawn time.
// Values are bool, int, or string. A missing key means the capability is
// absent from the loaded terminfo entry.
type Snapshot map[string]any

// curated is the set of capabilities we surface by name. xo/terminfo
// exposes the full terminfo database through numeric cap constants and
// Bools/Nums/Strings maps keyed by them; rather than depend on the exact
// shape of its generated name tables (which differ across releases), we
// look up a fixed, well-known set of capabilities that scripts actually
// care about (size, color support, basic cursor/clear sequences).
var curated = []struct {
	name string
	kind byte // 'b', 'n', 's'
	idx  int
}{
	{"auto_left_margin", 'b', xoterm.AutoLeftMargin},
	{"auto_right_margin", 'b', xoterm.AutoRightMargin},
	{"lines", 'n', xoterm.Lines},
	{"columns", 'n', xoterm.Columns},
	{"max_colors", 'n', xoterm.MaxColors},
	{"clear_screen", 's', xoterm.ClearScreen},
	{"cursor_home", 's', xoterm.CursorHome},
	{"enter_ca_mode", 's', xoterm.EnterCaMode},
	{"exit_ca_mode", 's', xoterm.ExitCaMode},
	{"carriage_return", 's', xoterm.CarriageReturn},
}

// Load captures a capability snapshot for termType. If the terminfo
// backend cannot resolve the entry (unknown terminal, database missing,
// or any lower-level failure including an unexpected library panic), it
// returns an empty Snapshot and the spawn facade proceeds with no
// terminfo data rather than failing — per spec.md §4.2/§9, an absent
// terminfo backend degrades to an empty mapping, not an error.
func Load(termType string) (snap Snapshot) {
	snap = Snapshot{}
	defer func() {
		if r := recover(); r != nil {
			snap = Snapshot{}
		}
	}()

	ti, err := xoterm.Load(termType)
	if err != nil || ti == nil {
		return Snapshot{}
	}
	// Bools/Nums/Strings are maps keyed by cap constant, holding only the
	// capabilities the terminfo entry actually defines — not parallel
	// arrays indexed densely from 0, so presence is a map lookup, not a
	// length bound (a bound against len() would drop e.g. max_colors,
	// whose index exceeds the number of numeric caps on many terminals).
	for _, c := range curated {
		switch c.kind {
		case 'b':
			if v, ok := ti.Bools[c.idx]; ok && v {
				snap[c.name] = true
			}
		case 'n':
			if v, ok := ti.Nums[c.idx]; ok && v >= 0 {
				snap[c.name] = v
			}
		case 's':
			if v, ok := ti.Strings[c.idx]; ok && len(v) > 0 {
				snap[c.name] = string(v)
			}
		}
	}
	return snap
}

// Winsize derives an initial terminal size from the snapshot, falling
// back to 24x80 when lines/columns aren't present (spec.md §4.2).
func Winsize(snap Snapshot) (cols, rows uint16) {
	cols, rows = 80, 24
	if v, ok := snap["columns"].(int); ok && v > 0 {
		cols = uint16(v)
	}
	if v, ok := snap["lines"].(int); ok && v > 0 {
		rows = uint16(v)
	}
	return cols, rows
}

// String renders a capability snapshot for diagnostics/logging.
func (s Snapshot) String() string {
	return fmt.Sprintf("terminfo(%d caps)", len(s))
}
