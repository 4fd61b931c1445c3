package redline

import "sort"

// Summary counts redlines per severity.
type Summary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// Summarize tallies redlines. Every severity is present in BySeverity, zero
// when nothing matched at that level.
func Summarize(redlines []Redline) Summary {
	s := Summary{
		Total:      len(redlines),
		BySeverity: make(map[Severity]int, len(Severities)),
	}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
	}
	for _, r := range redlines {
		s.BySeverity[r.Severity]++
	}
	return s
}

// Apply rewrites text with each redline's suggestion. Redlines are taken in
// position order; any that overlap an already applied span, fall outside the
// text, or no longer match the text at their offsets are skipped. The applied
// redlines come back in position order with offsets into the original text.
func Apply(text string, redlines []Redline) (string, []Redline) {
	if len(redlines) == 0 {
		return text, []Redline{}
	}
	ordered := make([]Redline, len(redlines))
	copy(ordered, redlines)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	src := []rune(text)
	out := make([]rune, 0, len(src))
	applied := make([]Redline, 0, len(ordered))
	cursor := 0
	for _, r := range ordered {
		if r.Start < cursor || r.Start < 0 || r.End > len(src) || r.Start >= r.End {
			continue
		}
		if string(src[r.Start:r.End]) != r.Original {
			continue
		}
		out = append(out, src[cursor:r.Start]...)
		out = append(out, []rune(r.Suggestion)...)
		cursor = r.End
		applied = append(applied, r)
	}
	out = append(out, src[cursor:]...)
	return string(out), applied
}
