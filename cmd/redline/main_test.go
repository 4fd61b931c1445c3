package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"crisiscrew.org/internal/redline"
)

func TestRunExitCodes(t *testing.T) {
	cases := []struct {
		name  string
		args  []string
		input string
		want  int
	}{
		{"clean", nil, "All systems nominal.", exitClean},
		{"redlines", nil, "We had a breach", exitRedlines},
		{"summary with redlines", []string{"-summary"}, "We had a breach", exitRedlines},
		{"apply", []string{"-apply"}, "We had a breach", exitClean},
		{"bad order", []string{"-order", "alpha"}, "x", exitError},
		{"unknown flag", []string{"-verbose"}, "x", exitError},
		{"missing file", []string{"/nonexistent/draft.txt"}, "", exitError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(tc.args, strings.NewReader(tc.input), &stdout, &stderr); got != tc.want {
				t.Fatalf("run(%v) = %d, want %d (stderr: %s)", tc.args, got, tc.want, stderr.String())
			}
		})
	}
}

func TestRunOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-order", "position"}, strings.NewReader("We never had a breach"), &stdout, &stderr); code != exitRedlines {
		t.Fatalf("unexpected exit %d: %s", code, stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %q", stdout.String())
	}
	var first redline.Redline
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Original != "never" || first.Start != 3 {
		t.Fatalf("unexpected first redline: %+v", first)
	}

	stdout.Reset()
	run([]string{"-apply"}, strings.NewReader("We had a breach"), &stdout, &stderr)
	if stdout.String() != "We had a security incident" {
		t.Fatalf("unexpected revised text %q", stdout.String())
	}
}

func TestUsageDocumentsExitStatus(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-h"}, strings.NewReader(""), &stdout, &stderr); code != exitClean {
		t.Fatalf("-h exit = %d", code)
	}
	if !strings.Contains(stderr.String(), "Exit status: 0 when no redlines are found, 1 when") {
		t.Fatalf("usage does not document exit status:\n%s", stderr.String())
	}
}
