package vcs

import (
	"bytes"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// hunk replaces base lines [start, end) with lines. An insertion has
// start == end.
type hunk struct {
	start, end int
	lines      []string
}

func (h hunk) insertion() bool { return h.start == h.end }

// precedes reports whether h can be applied entirely before o. Edits that
// touch adjacent base lines do not overlap; two insertions at the same
// point do.
func (h hunk) precedes(o hunk) bool {
	if h.end > o.start {
		return false
	}
	return !(h.insertion() && o.insertion() && h.start == o.start)
}

func (h hunk) equal(o hunk) bool {
	if h.start != o.start || h.end != o.end || len(h.lines) != len(o.lines) {
		return false
	}
	for i := range h.lines {
		if h.lines[i] != o.lines[i] {
			return false
		}
	}
	return true
}

// splitLines splits s after every newline. A final line without a newline is
// kept as is.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func hunks(base, side []string) []hunk {
	m := difflib.NewMatcherWithJunk(base, side, false, nil)
	var out []hunk
	for _, op := range m.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		out = append(out, hunk{start: op.I1, end: op.I2, lines: side[op.J1:op.J2]})
	}
	return out
}

// MergeText merges the line edits current and other made to base. Edits to
// disjoint base ranges are combined even when the ranges are adjacent; edits
// whose ranges intersect conflict unless both sides made the same edit.
// Binary content (any NUL byte) never merges. ok is false on conflict.
func MergeText(base, current, other []byte) (merged []byte, ok bool) {
	if bytes.IndexByte(base, 0) >= 0 || bytes.IndexByte(current, 0) >= 0 || bytes.IndexByte(other, 0) >= 0 {
		return nil, false
	}

	baseLines := splitLines(string(base))
	ours := hunks(baseLines, splitLines(string(current)))
	theirs := hunks(baseLines, splitLines(string(other)))

	var applied []hunk
	i, j := 0, 0
	for i < len(ours) || j < len(theirs) {
		switch {
		case j == len(theirs) || (i < len(ours) && ours[i].precedes(theirs[j])):
			applied = append(applied, ours[i])
			i++
		case i == len(ours) || theirs[j].precedes(ours[i]):
			applied = append(applied, theirs[j])
			j++
		case ours[i].equal(theirs[j]):
			applied = append(applied, ours[i])
			i++
			j++
		default:
			return nil, false
		}
	}

	var b strings.Builder
	pos := 0
	for _, h := range applied {
		for _, line := range baseLines[pos:h.start] {
			b.WriteString(line)
		}
		for _, line := range h.lines {
			b.WriteString(line)
		}
		pos = h.end
	}
	for _, line := range baseLines[pos:] {
		b.WriteString(line)
	}
	return []byte(b.String()), true
}
