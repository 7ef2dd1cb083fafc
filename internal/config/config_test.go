package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"pybridge/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\n")
	cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Interpreter.Command != "python3" {
		t.Fatalf("interpreter.command default = %q, want python3", cfg.Interpreter.Command)
	}
	if cfg.Session.Mode != "local" {
		t.Fatalf("session.mode default = %q, want local", cfg.Session.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
version: "1"
interpreter:
  command: /opt/venv/bin/python
  args: ["-u"]
  env:
    PYTHONUNBUFFERED: "1"
session:
  mode: cluster
  conf:
    bridge.python.exec: /opt/venv/bin/python
log:
  level: debug
  format: json
`)
	cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Interpreter.Command != "/opt/venv/bin/python" {
		t.Fatalf("interpreter.command = %q", cfg.Interpreter.Command)
	}
	if cfg.Session.Mode != "cluster" {
		t.Fatalf("session.mode = %q", cfg.Session.Mode)
	}
	if cfg.Session.Conf["bridge.python.exec"] != "/opt/venv/bin/python" {
		t.Fatalf("session.conf missing override: %v", cfg.Session.Conf)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log config = %+v", cfg.Log)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	path := writeConfig(t, "session:\n  mode: sideways\n")
	cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for session.mode")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(config.LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestApplyFile(t *testing.T) {
	src := writeConfig(t, "version: \"1\"\n")
	dst := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := config.ApplyFile(src, dst); err != nil {
		t.Fatalf("ApplyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read applied config: %v", err)
	}
	if string(data) != "version: \"1\"\n" {
		t.Fatalf("applied config content = %q", string(data))
	}
}
