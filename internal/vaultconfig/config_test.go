package vaultconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VaultPath != Defaults().VaultPath {
		t.Errorf("expected default vault_path, got %q", cfg.VaultPath)
	}
	if !cfg.Keyring.Strict {
		t.Error("expected strict key resolution to default true")
	}
}

func TestLoad_SubstitutesEnvVars(t *testing.T) {
	t.Setenv("PROVARA_TEST_VAULT_DIR", "/srv/provara-vault")
	content := `
vault_path: ${PROVARA_TEST_VAULT_DIR}
actor_id: ${PROVARA_TEST_ACTOR:-anonymous}
checkpoint:
  interval: 500
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VaultPath != "/srv/provara-vault" {
		t.Errorf("expected substituted vault_path, got %q", cfg.VaultPath)
	}
	if cfg.ActorID != "anonymous" {
		t.Errorf("expected default fallback for unset actor_id, got %q", cfg.ActorID)
	}
	if cfg.Checkpoint.Interval != 500 {
		t.Errorf("expected checkpoint.interval 500, got %d", cfg.Checkpoint.Interval)
	}
}

func TestLoad_AppliesDefaultsToPartialFile(t *testing.T) {
	content := "vault_path: /tmp/only-this\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VaultPath != "/tmp/only-this" {
		t.Errorf("expected explicit vault_path preserved, got %q", cfg.VaultPath)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("expected logging defaults applied, got %+v", cfg.Logging)
	}
	if cfg.Reducer.AttestationThreshold != 1 {
		t.Errorf("expected default attestation threshold, got %d", cfg.Reducer.AttestationThreshold)
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid logging.level to fail validation")
	}
}

func TestValidate_RejectsNonPositiveCheckpointInterval(t *testing.T) {
	cfg := Defaults()
	cfg.Checkpoint.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected zero checkpoint interval to fail validation")
	}
}

func TestValidate_RejectsPeerMissingEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Peers = []PeerConfig{{Name: "alice"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected peer without endpoint to fail validation")
	}
}

func TestDuration_RoundTripsThroughYAML(t *testing.T) {
	content := "sync_timeout: 45s\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncTimeout.String() != "45s" {
		t.Errorf("expected sync_timeout 45s, got %s", cfg.SyncTimeout.String())
	}
}
