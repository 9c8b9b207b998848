package config_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/euforicio/markpad/internal/config"
)

func TestFinalizeResolvesStateDir(t *testing.T) {
	cfg := config.Default()
	if err := config.Finalize(&cfg); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if cfg.StateDir == "" || !filepath.IsAbs(cfg.StateDir) {
		t.Fatalf("state dir should resolve to an absolute path, got %q", cfg.StateDir)
	}
}

func TestFinalizeRejectsBadPort(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 70000
	if err := config.Finalize(&cfg); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARKPAD_PORT", "8123")
	t.Setenv("MARKPAD_DARK", "true")
	t.Setenv("MARKPAD_AUTO_OPEN", "false")
	t.Setenv("MARKPAD_STATE_DIR", "  ") // blank values are ignored

	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	if cfg.Port != 8123 {
		t.Fatalf("port override not applied: %d", cfg.Port)
	}
	if !cfg.DarkModeFirst {
		t.Fatalf("dark override not applied")
	}
	if cfg.AutoOpen {
		t.Fatalf("auto-open override not applied")
	}
	if cfg.StateDir != "" {
		t.Fatalf("blank env value must be ignored, got %q", cfg.StateDir)
	}
}

func TestRegisterFlags(t *testing.T) {
	cfg := config.Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs, &cfg)

	if err := fs.Parse([]string{"--port", "9000", "--dark", "--state-dir", "/tmp/pad"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.Port != 9000 || !cfg.DarkModeFirst || cfg.StateDir != "/tmp/pad" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
}
