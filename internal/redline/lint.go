// Package redline flags legally risky phrases in communication drafts and
// proposes safer wording anchored to character offsets.
package redline

import (
	"fmt"
	"sort"
	"strings"
)

// Redline is one flagged span. Start and End are character (code point)
// offsets into the scanned text, End exclusive.
type Redline struct {
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Original   string   `json:"original"`
	Suggestion string   `json:"suggestion"`
	Reason     string   `json:"reason"`
	Severity   Severity `json:"severity"`
}

// Order selects how matches are arranged in scan output.
type Order int

const (
	// OrderByTerm groups matches by table order, ascending position within a term.
	OrderByTerm Order = iota
	// OrderByPosition sorts all matches by start offset; ties keep table order.
	OrderByPosition
)

func (o Order) String() string {
	if o == OrderByPosition {
		return "position"
	}
	return "term"
}

// ParseOrder maps "term" (or empty) and "position" to an Order.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "term":
		return OrderByTerm, nil
	case "position":
		return OrderByPosition, nil
	}
	return OrderByTerm, fmt.Errorf("redline: unknown order %q", s)
}

// Linter scans text against a Table. A Linter holds no mutable state and is
// safe for concurrent use.
type Linter struct {
	table *Table
	order Order
}

// Option configures a Linter.
type Option func(*Linter)

// WithTable replaces the default risk table.
func WithTable(t *Table) Option {
	return func(l *Linter) {
		if t != nil {
			l.table = t
		}
	}
}

// WithOrder sets the output order.
func WithOrder(o Order) Option {
	return func(l *Linter) { l.order = o }
}

// New builds a Linter over the default table unless overridden.
func New(opts ...Option) *Linter {
	l := &Linter{table: DefaultTable(), order: OrderByTerm}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Table returns the table the linter scans with.
func (l *Linter) Table() *Table { return l.table }

// Order returns the configured output order.
func (l *Linter) Order() Order { return l.order }

// WithOrder returns a copy of l using order o.
func (l *Linter) WithOrder(o Order) *Linter {
	cp := *l
	cp.order = o
	return &cp
}

var defaultLinter = New()

// Lint scans text with the default table in term order.
func Lint(text string) []Redline {
	return defaultLinter.Lint(text)
}

// Lint returns every non-overlapping occurrence of each table term in text.
// Matching is case-insensitive; Original keeps the source casing.
func (l *Linter) Lint(text string) []Redline {
	out := make([]Redline, 0)
	if text == "" {
		return out
	}
	src := []rune(text)
	lowered := lowerRunes(text)

	for _, ct := range l.table.terms {
		from := 0
		for {
			idx := indexRunes(lowered, ct.needle, from)
			if idx < 0 {
				break
			}
			end := idx + len(ct.needle)
			out = append(out, Redline{
				Start:      idx,
				End:        end,
				Original:   string(src[idx:end]),
				Suggestion: ct.Replacement,
				Reason:     ct.reason,
				Severity:   ct.Severity,
			})
			from = end
		}
	}

	if l.order == OrderByPosition {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	}
	return out
}

// indexRunes finds needle in haystack starting at from, or -1.
func indexRunes(haystack, needle []rune, from int) int {
	n := len(needle)
	for i := from; i+n <= len(haystack); i++ {
		if haystack[i] != needle[0] {
			continue
		}
		match := true
		for j := 1; j < n; j++ {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
