package gitx

import (
	"fmt"
	"unicode/utf8"
)

// Character budgets per field class. Higher-volume fields get smaller
// budgets so the assembled prompt stays bounded regardless of file size.
const (
	DiffBudget    = 8000
	ExcerptBudget = 6000
	StageBudget   = 4000
	HistoryBudget = 2000
)

// Truncate caps s at max bytes. When s exceeds the cap, the tail is replaced
// with a marker naming exactly how many characters were dropped and the
// second return is true. The dropped count includes the characters the
// marker itself displaced, so it is computed to a fixed point: the count
// determines the marker's width, which determines the count. The result
// never exceeds max; the cut backs off to a rune boundary.
func Truncate(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	dropped := len(s) - max
	for {
		marker := fmt.Sprintf("\n[... truncated %d chars]", dropped)
		keep := max - len(marker)
		if keep <= 0 {
			// Budget too small to carry both content and marker. Hard cut.
			keep = max
			for keep > 0 && !utf8.RuneStart(s[keep]) {
				keep--
			}
			return s[:keep], true
		}
		for keep > 0 && !utf8.RuneStart(s[keep]) {
			keep--
		}
		// The dropped count only ever grows here, so this terminates.
		if actual := len(s) - keep; actual != dropped {
			dropped = actual
			continue
		}
		return s[:keep] + marker, true
	}
}
