package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_DefaultsAndAllowlist(t *testing.T) {
	cfg := New("/tmp/toolsched")
	if cfg.ApprovalMode() != ApprovalDefault {
		t.Fatalf("expected default approval mode, got %s", cfg.ApprovalMode())
	}
	if len(cfg.AllowedTools()) != 0 {
		t.Fatalf("expected empty allowlist")
	}

	cfg.AddAllowedTool("bash(echo foo)")
	cfg.AddAllowedTool("bash(echo foo)")
	if got := cfg.AllowedTools(); len(got) != 1 {
		t.Fatalf("expected dedup on AddAllowedTool, got %v", got)
	}
}

func TestLoadFile_EnvSubstitutionAndOverrides(t *testing.T) {
	t.Setenv("TOOLSCHED_TEMP", "/var/tmp/custom")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "approval_mode: yolo\ntemp_dir: ${env://TOOLSCHED_TEMP}\nallowed_tools:\n  - bash(echo hi)\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.ApprovalMode() != ApprovalYolo {
		t.Fatalf("expected yolo mode, got %s", cfg.ApprovalMode())
	}
	if cfg.TempDir() != "/var/tmp/custom" {
		t.Fatalf("expected substituted temp dir, got %s", cfg.TempDir())
	}
	if got := cfg.AllowedTools(); len(got) != 1 || got[0] != "bash(echo hi)" {
		t.Fatalf("unexpected allowlist: %v", got)
	}
}
