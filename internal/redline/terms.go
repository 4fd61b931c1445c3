package redline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Severity grades how much exposure a flagged phrase carries.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

var (
	ErrInvalidSeverity = errors.New("redline: invalid severity")
	ErrInvalidTerm     = errors.New("redline: invalid term")
	ErrDuplicateTerm   = errors.New("redline: duplicate term")
)

// ParseSeverity accepts a severity name in any casing.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

// RiskTerm maps a trigger phrase to its safer replacement.
type RiskTerm struct {
	Term        string   `json:"term" yaml:"term"`
	Replacement string   `json:"replacement" yaml:"replacement"`
	Severity    Severity `json:"severity" yaml:"severity"`
}

func (rt RiskTerm) reasonText() string {
	return fmt.Sprintf("Replace '%s' with '%s' to reduce liability/exposure.", rt.Term, rt.Replacement)
}

type compiledTerm struct {
	RiskTerm
	needle []rune
	reason string
}

// Table is an ordered, immutable set of risk terms. Scan output follows the
// table order, so the order is part of the contract.
type Table struct {
	terms []compiledTerm
}

var defaultTerms = []RiskTerm{
	{Term: "breach", Replacement: "security incident", Severity: SeverityHigh},
	{Term: "hack", Replacement: "unauthorized access", Severity: SeverityHigh},
	{Term: "stolen", Replacement: "accessed", Severity: SeverityHigh},
	{Term: "guarantee", Replacement: "aim to", Severity: SeverityMedium},
	{Term: "promise", Replacement: "intend to", Severity: SeverityMedium},
	{Term: "never", Replacement: "do not typically", Severity: SeverityLow},
}

var defaultTable = mustTable(defaultTerms)

// DefaultTable returns the built-in legal risk table.
func DefaultTable() *Table { return defaultTable }

func mustTable(terms []RiskTerm) *Table {
	t, err := NewTable(terms)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable validates terms and freezes them in the given order. Terms are
// lowercased; empty terms, unknown severities and duplicates are rejected.
func NewTable(terms []RiskTerm) (*Table, error) {
	seen := make(map[string]struct{}, len(terms))
	compiled := make([]compiledTerm, 0, len(terms))
	for i, rt := range terms {
		term := lowerRunes(strings.TrimSpace(rt.Term))
		if len(term) == 0 {
			return nil, fmt.Errorf("%w: entry %d is empty", ErrInvalidTerm, i)
		}
		sev, err := ParseSeverity(string(rt.Severity))
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", rt.Term, err)
		}
		key := string(term)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTerm, key)
		}
		seen[key] = struct{}{}

		normalized := RiskTerm{Term: key, Replacement: rt.Replacement, Severity: sev}
		compiled = append(compiled, compiledTerm{
			RiskTerm: normalized,
			needle:   term,
			reason:   normalized.reasonText(),
		})
	}
	return &Table{terms: compiled}, nil
}

// Terms returns a copy of the table entries in scan order.
func (t *Table) Terms() []RiskTerm {
	out := make([]RiskTerm, len(t.terms))
	for i, ct := range t.terms {
		out[i] = ct.RiskTerm
	}
	return out
}

// Len reports the number of terms.
func (t *Table) Len() int { return len(t.terms) }

type tableFile struct {
	Terms []RiskTerm `yaml:"terms"`
}

// LoadTable reads a YAML document of the form
//
//	terms:
//	  - term: breach
//	    replacement: security incident
//	    severity: high
func LoadTable(r io.Reader) (*Table, error) {
	var doc tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: document is empty", ErrInvalidTerm)
		}
		return nil, fmt.Errorf("decode risk table: %w", err)
	}
	if len(doc.Terms) == 0 {
		return nil, fmt.Errorf("%w: no terms defined", ErrInvalidTerm)
	}
	return NewTable(doc.Terms)
}

// LoadTableFile is LoadTable over a file on disk.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadTable(f)
}

func lowerRunes(s string) []rune {
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
	return rs
}
