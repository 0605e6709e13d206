// Package diff creates and applies unified diffs over file contents.
// It is the single diff authority for the agent: proposed edits are
// rendered with Create, stored on the session, and replayed with Apply
// once the user approves.
package diff

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const contextLines = 3

const noNewlineMarker = `\ No newline at end of file`

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Create builds a unified diff that transforms before into after.
// The path is used for the ---/+++ headers only. Returns "" when the
// contents are identical.
func Create(path, before, after string) string {
	if before == after {
		return ""
	}
	a := splitLines(before)
	b := splitLines(after)
	hunks := buildHunks(diffOps(a, b))
	if len(hunks) == 0 {
		return ""
	}

	rel := filepath.ToSlash(path)
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n", rel)
	fmt.Fprintf(&sb, "+++ b/%s\n", rel)
	for _, h := range hunks {
		writeHunk(&sb, h)
	}
	return sb.String()
}

// Apply replays a unified diff onto original and returns the patched
// content. The original is never modified; any context or count mismatch
// returns an error and the caller must not write anything.
func Apply(original, diffText string) (string, error) {
	hunks, err := parseHunks(diffText)
	if err != nil {
		return "", err
	}
	if len(hunks) == 0 {
		return "", fmt.Errorf("diff contains no hunks")
	}

	lines := splitLines(original)
	var out strings.Builder
	pos := 0 // next unconsumed original line, 0-based

	for i, h := range hunks {
		start := h.oldStart - 1
		if h.oldLines == 0 {
			// Pure insertion: oldStart names the line after which to insert.
			start = h.oldStart
		}
		if start < pos || start > len(lines) {
			return "", fmt.Errorf("hunk %d starts at line %d, out of range", i+1, h.oldStart)
		}
		for ; pos < start; pos++ {
			out.WriteString(lines[pos])
		}
		for _, bl := range h.body {
			switch bl.kind {
			case ' ':
				if pos >= len(lines) || trimNL(lines[pos]) != bl.text {
					return "", contextError(i+1, pos+1, bl.text, lines, pos)
				}
				out.WriteString(lines[pos])
				pos++
			case '-':
				if pos >= len(lines) || trimNL(lines[pos]) != bl.text {
					return "", fmt.Errorf("hunk %d: delete mismatch at line %d: expected %q", i+1, pos+1, bl.text)
				}
				pos++
			case '+':
				out.WriteString(bl.text)
				if !bl.noNL {
					out.WriteByte('\n')
				}
			}
		}
	}
	for ; pos < len(lines); pos++ {
		out.WriteString(lines[pos])
	}
	return out.String(), nil
}

// ExtractPath returns the target path recorded in the diff headers
// (the +++ side, with any b/ prefix stripped), or "".
func ExtractPath(diffText string) string {
	for _, line := range strings.Split(diffText, "\n") {
		if strings.HasPrefix(line, "+++ ") {
			p := strings.TrimSpace(strings.TrimPrefix(line, "+++ "))
			p = strings.TrimPrefix(p, "b/")
			if p == "/dev/null" {
				return ""
			}
			return p
		}
	}
	return ""
}

func contextError(hunkNo, lineNo int, want string, lines []string, pos int) error {
	got := "<eof>"
	if pos < len(lines) {
		got = trimNL(lines[pos])
	}
	return fmt.Errorf("hunk %d: context mismatch at line %d: expected %q, found %q", hunkNo, lineNo, want, got)
}

// splitLines splits content into lines, each keeping its trailing
// newline. A final line without one is kept as-is, so the newline state
// of the file tail survives the round trip.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func trimNL(s string) string {
	return strings.TrimSuffix(s, "\n")
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type op struct {
	kind opKind
	line string
}

// diffOps produces the line-level edit script from a to b. Common prefix
// and suffix are trimmed first so the LCS table only covers the changed
// region.
func diffOps(a, b []string) []op {
	p := 0
	for p < len(a) && p < len(b) && a[p] == b[p] {
		p++
	}
	s := 0
	for s < len(a)-p && s < len(b)-p && a[len(a)-1-s] == b[len(b)-1-s] {
		s++
	}

	mid := lcsOps(a[p:len(a)-s], b[p:len(b)-s])
	ops := make([]op, 0, p+len(mid)+s)
	for _, l := range a[:p] {
		ops = append(ops, op{opEqual, l})
	}
	ops = append(ops, mid...)
	for _, l := range a[len(a)-s:] {
		ops = append(ops, op{opEqual, l})
	}
	return ops
}

func lcsOps(a, b []string) []op {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	rev := make([]op, 0, n+m)
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			rev = append(rev, op{opEqual, a[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || dp[i][j-1] >= dp[i-1][j]):
			rev = append(rev, op{opInsert, b[j-1]})
			j--
		default:
			rev = append(rev, op{opDelete, a[i-1]})
			i--
		}
	}
	for l, r := 0, len(rev)-1; l < r; l, r = l+1, r-1 {
		rev[l], rev[r] = rev[r], rev[l]
	}
	return rev
}

type bodyLine struct {
	kind byte // ' ', '-', '+'
	text string
	noNL bool
}

type hunk struct {
	oldStart, oldLines int
	newStart, newLines int
	body               []bodyLine
}

// buildHunks groups the edit script into hunks with surrounding context,
// merging groups whose context regions touch.
func buildHunks(ops []op) []hunk {
	type group struct{ lo, hi int } // op index range [lo, hi)
	var groups []group
	for i := 0; i < len(ops); {
		if ops[i].kind == opEqual {
			i++
			continue
		}
		j := i
		for j < len(ops) && ops[j].kind != opEqual {
			j++
		}
		groups = append(groups, group{i, j})
		i = j
	}
	if len(groups) == 0 {
		return nil
	}

	// Extend each group by the context window, then merge overlaps.
	var merged []group
	for _, g := range groups {
		lo := g.lo - contextLines
		if lo < 0 {
			lo = 0
		}
		hi := g.hi + contextLines
		if hi > len(ops) {
			hi = len(ops)
		}
		if len(merged) > 0 && lo <= merged[len(merged)-1].hi {
			merged[len(merged)-1].hi = hi
		} else {
			merged = append(merged, group{lo, hi})
		}
	}

	// Old/new line numbers (1-based) at each op index.
	oldAt := make([]int, len(ops)+1)
	newAt := make([]int, len(ops)+1)
	o, n := 1, 1
	for i, p := range ops {
		oldAt[i], newAt[i] = o, n
		if p.kind != opInsert {
			o++
		}
		if p.kind != opDelete {
			n++
		}
	}
	oldAt[len(ops)], newAt[len(ops)] = o, n

	hunks := make([]hunk, 0, len(merged))
	for _, g := range merged {
		h := hunk{oldStart: oldAt[g.lo], newStart: newAt[g.lo]}
		for _, p := range ops[g.lo:g.hi] {
			bl := bodyLine{text: trimNL(p.line), noNL: !strings.HasSuffix(p.line, "\n")}
			switch p.kind {
			case opEqual:
				bl.kind = ' '
				h.oldLines++
				h.newLines++
			case opDelete:
				bl.kind = '-'
				h.oldLines++
			case opInsert:
				bl.kind = '+'
				h.newLines++
			}
			h.body = append(h.body, bl)
		}
		if h.oldLines == 0 {
			// git convention: an insertion hunk anchors on the preceding line.
			h.oldStart--
		}
		if h.newLines == 0 {
			h.newStart--
		}
		hunks = append(hunks, h)
	}
	return hunks
}

func writeHunk(sb *strings.Builder, h hunk) {
	sb.WriteString("@@ -")
	writeRange(sb, h.oldStart, h.oldLines)
	sb.WriteString(" +")
	writeRange(sb, h.newStart, h.newLines)
	sb.WriteString(" @@\n")
	for _, bl := range h.body {
		sb.WriteByte(bl.kind)
		sb.WriteString(bl.text)
		sb.WriteByte('\n')
		if bl.noNL {
			sb.WriteString(noNewlineMarker)
			sb.WriteByte('\n')
		}
	}
}

func writeRange(sb *strings.Builder, start, count int) {
	if count == 1 {
		fmt.Fprintf(sb, "%d", start)
		return
	}
	fmt.Fprintf(sb, "%d,%d", start, count)
}

// parseHunks reads the hunks out of a unified diff, tolerating the
// usual header noise (diff --git, index, ---/+++ lines).
func parseHunks(diffText string) ([]hunk, error) {
	var hunks []hunk
	var cur *hunk

	flush := func() error {
		if cur == nil {
			return nil
		}
		oldCount, newCount := 0, 0
		for _, bl := range cur.body {
			switch bl.kind {
			case ' ':
				oldCount++
				newCount++
			case '-':
				oldCount++
			case '+':
				newCount++
			}
		}
		if oldCount != cur.oldLines || newCount != cur.newLines {
			return fmt.Errorf("hunk header counts (-%d +%d) do not match body (-%d +%d)",
				cur.oldLines, cur.newLines, oldCount, newCount)
		}
		hunks = append(hunks, *cur)
		cur = nil
		return nil
	}

	for _, raw := range strings.Split(diffText, "\n") {
		if m := hunkHeader.FindStringSubmatch(raw); m != nil {
			if err := flush(); err != nil {
				return nil, err
			}
			h := hunk{
				oldStart: atoiDefault(m[1], 0),
				oldLines: atoiDefault(m[2], 1),
				newStart: atoiDefault(m[3], 0),
				newLines: atoiDefault(m[4], 1),
			}
			cur = &h
			continue
		}
		if cur == nil {
			// Header region: ---/+++, diff --git, index lines.
			continue
		}
		switch {
		case strings.HasPrefix(raw, noNewlineMarker) || strings.HasPrefix(raw, `\ No newline`):
			if len(cur.body) > 0 {
				cur.body[len(cur.body)-1].noNL = true
			}
		case strings.HasPrefix(raw, "---") || strings.HasPrefix(raw, "+++"):
			// Next file section begins; close the current hunk.
			if err := flush(); err != nil {
				return nil, err
			}
		case len(raw) > 0 && (raw[0] == ' ' || raw[0] == '-' || raw[0] == '+'):
			cur.body = append(cur.body, bodyLine{kind: raw[0], text: raw[1:]})
		case raw == "":
			// Some producers strip the leading space from blank context lines.
			if remaining(cur) > 0 {
				cur.body = append(cur.body, bodyLine{kind: ' ', text: ""})
			}
		default:
			return nil, fmt.Errorf("unrecognised diff line: %q", raw)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return hunks, nil
}

// remaining reports how many body lines the hunk header still expects.
func remaining(h *hunk) int {
	oldCount, newCount := 0, 0
	for _, bl := range h.body {
		switch bl.kind {
		case ' ':
			oldCount++
			newCount++
		case '-':
			oldCount++
		case '+':
			newCount++
		}
	}
	return (h.oldLines - oldCount) + (h.newLines - newCount)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
