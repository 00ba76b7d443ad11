package verifyreport

import (
	"strings"
	"testing"

	"github.com/provara-protocol/provara/internal/vault"
)

func TestRun_MissingVaultPathFails(t *testing.T) {
	r := Run("/nonexistent/path/does-not-exist", vault.VerifyOptions{})
	if r.Status != "FAIL" {
		t.Errorf("expected FAIL for missing vault path, got %s", r.Status)
	}
	if len(r.Errors) == 0 {
		t.Error("expected an error message for missing vault path")
	}
}

func TestRun_ValidVaultPasses(t *testing.T) {
	dir := t.TempDir() + "/vault"
	if _, err := vault.Bootstrap(dir, vault.BootstrapOptions{UID: "u1", Actor: "root"}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	r := Run(dir, vault.VerifyOptions{})
	if r.Status != "PASS" {
		t.Fatalf("expected PASS, got %s with errors %v", r.Status, r.Errors)
	}
	if r.EventCount != 2 {
		t.Errorf("expected 2 events (GENESIS + seed), got %d", r.EventCount)
	}
	if !r.ChainIntegrity || !r.SignatureIntegrity {
		t.Error("expected chain and signature integrity true for a fresh vault")
	}
}

func TestWriteKeyValue_EmitsExpectedKeys(t *testing.T) {
	r := &Result{Status: "PASS", EventCount: 5, ActorCount: 2, ChainIntegrity: true, SignatureIntegrity: true}
	var sb strings.Builder
	WriteKeyValue(&sb, r)
	out := sb.String()
	for _, want := range []string{"status=PASS", "event-count=5", "actor-count=2", "chain-integrity=true", "signature-integrity=true"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWriteSummaryMarkdown_IncludesErrorsWhenPresent(t *testing.T) {
	r := &Result{Status: "FAIL", Errors: []string{"evt_1: signature invalid"}}
	var sb strings.Builder
	WriteSummaryMarkdown(&sb, r)
	out := sb.String()
	if !strings.Contains(out, "❌") {
		t.Error("expected fail icon in summary")
	}
	if !strings.Contains(out, "evt_1: signature invalid") {
		t.Error("expected error line in summary")
	}
}
