package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"crisiscrew.org/internal/approval"
	"crisiscrew.org/internal/artifact"
	"crisiscrew.org/internal/client"
	"crisiscrew.org/internal/redline"
)

// smoke runs the approval happy path against a live gateway started with
// auth.issue_tokens enabled.
func main() {
	log.SetFlags(0)
	base := flag.String("addr", envOr("CRISISCREW_GATEWAY_URL", "http://localhost:8080"), "Gateway base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	author, err := client.New(*base)
	if err != nil {
		log.Fatalf("client: %v", err)
	}
	reviewer, _ := client.New(*base)

	if _, err := author.IssueToken(ctx, "smoke-comms", "comms"); err != nil {
		log.Fatalf("issue comms token: %v", err)
	}
	if _, err := reviewer.IssueToken(ctx, "smoke-legal", "legal"); err != nil {
		log.Fatalf("issue legal token: %v", err)
	}

	draft := artifact.Draft{
		IncidentID: fmt.Sprintf("smoke-%d", time.Now().UnixNano()),
		Kind:       string(artifact.KindHolding),
		Text:       "We are investigating a breach and never store card data.",
	}
	art, err := author.CreateArtifact(ctx, draft)
	if err != nil {
		log.Fatalf("create artifact: %v", err)
	}

	redlines, err := reviewer.LintArtifact(ctx, art.ID, redline.OrderByPosition)
	if err != nil {
		log.Fatalf("lint: %v", err)
	}
	if len(redlines) != 2 {
		log.Fatalf("expected 2 redlines, got %d", len(redlines))
	}

	pending, err := author.RequestApproval(ctx, art.ID, "smoke run", fmt.Sprintf("smoke-%s", art.ID))
	if err != nil {
		log.Fatalf("request approval: %v", err)
	}
	decided, err := reviewer.Act(ctx, pending.ID, approval.ActionApprove, "")
	if err != nil {
		log.Fatalf("approve: %v", err)
	}
	if decided.Status != approval.StatusApproved {
		log.Fatalf("unexpected status %s", decided.Status)
	}
	if _, err := reviewer.Act(ctx, pending.ID, approval.ActionReject, ""); !errors.Is(err, approval.ErrInvalidState) {
		log.Fatalf("terminal approval was changed: %v", err)
	}

	list, err := author.ListApprovals(ctx, art.ID)
	if err != nil {
		log.Fatalf("list approvals: %v", err)
	}
	if len(list) != 1 || list[0].Status != approval.StatusApproved {
		log.Fatalf("unexpected approvals: %+v", list)
	}

	fmt.Printf("✅ gateway smoke test passed: artifact=%s approval=%s\n", art.ID, pending.ID)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
