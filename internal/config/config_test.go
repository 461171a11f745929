package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "redress" {
		t.Errorf("expected Name=redress, got %s", cfg.Name)
	}
	if cfg.Synthesis.MaxCandidates != 1000 {
		t.Errorf("expected MaxCandidates=1000, got %d", cfg.Synthesis.MaxCandidates)
	}
	if !cfg.Bank.Enabled || cfg.Bank.Path == "" {
		t.Errorf("bank defaults = %+v", cfg.Bank)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REDRESS_BANK_PATH", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Synthesis.Timeout != "60s" {
		t.Errorf("timeout = %s, want 60s", cfg.Synthesis.Timeout)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REDRESS_BANK_PATH", "")
	path := filepath.Join(t.TempDir(), "redress.yaml")
	content := "synthesis:\n  max_candidates: 50\n  timeout: 5s\nbank:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Synthesis.MaxCandidates != 50 {
		t.Errorf("max_candidates = %d, want 50", cfg.Synthesis.MaxCandidates)
	}
	if cfg.Bank.Enabled {
		t.Errorf("bank should be disabled")
	}
	// Untouched sections keep their defaults.
	if cfg.Synthesis.MaxIters != 10 {
		t.Errorf("max_iters = %d, want default 10", cfg.Synthesis.MaxIters)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("REDRESS_BANK_PATH", "/tmp/custom-bank.json")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Errorf("api key = %q, want env value", cfg.LLM.APIKey)
	}
	if cfg.Bank.Path != "/tmp/custom-bank.json" {
		t.Errorf("bank path = %q, want env value", cfg.Bank.Path)
	}
}

func TestBudget(t *testing.T) {
	cfg := DefaultConfig()
	budget, err := cfg.Budget()
	if err != nil {
		t.Fatalf("Budget failed: %v", err)
	}
	if budget.Timeout != 60*time.Second || budget.MaxCandidates != 1000 || budget.MaxIters != 10 {
		t.Errorf("budget = %+v", budget)
	}

	cfg.Synthesis.Timeout = "bogus"
	if _, err := cfg.Budget(); err == nil {
		t.Errorf("bogus timeout accepted")
	}
}
