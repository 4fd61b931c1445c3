package obs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                     "/",
		"/metrics":                             "/metrics",
		"/v1/artifacts":                        "/v1/artifacts",
		"/v1/artifacts/abc":                    "/v1/artifacts/:id",
		"/v1/artifacts/abc/legal/lint":         "/v1/artifacts/:id/legal/lint",
		"/v1/artifacts/abc/extra":              "/v1/artifacts/abc/extra",
		"/v1/legal/lint?order=position":        "/v1/legal/lint",
		"/v1/approvals/artifact/abc":           "/v1/approvals/artifact/:id",
		"/v1/approvals/artifact/abc/request":   "/v1/approvals/artifact/:id/request",
		"/v1/approvals/01HZX/act":              "/v1/approvals/:id/act",
		"/v1/approvals/01HZX/act?dry_run=true": "/v1/approvals/:id/act",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestRedlineScanCountsSeverities(t *testing.T) {
	before := testutil.ToFloat64(redlineMatches.WithLabelValues("high"))
	RedlineScan(map[string]int{"high": 2, "low": 0})
	if got := testutil.ToFloat64(redlineMatches.WithLabelValues("high")) - before; got != 2 {
		t.Fatalf("expected 2 high matches recorded, got %v", got)
	}
}

func TestLeveledLogging(t *testing.T) {
	logger := Logger()
	orig := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(orig)
	defer SetLevel("info")

	Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level: %s", buf.String())
	}

	if !SetLevel("DEBUG") {
		t.Fatal("SetLevel rejected debug")
	}
	if SetLevel("verbose") {
		t.Fatal("SetLevel accepted unknown level")
	}
	Warn("approval conflict", map[string]any{"approval_id": "a1"})

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "approval conflict" || entry["approval_id"] != "a1" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
