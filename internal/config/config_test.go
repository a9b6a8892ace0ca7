package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	confDir := filepath.Join(dir, Dir)
	if err := os.MkdirAll(confDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Default()
	if *cfg != want {
		t.Errorf("Load() = %+v, want defaults %+v", *cfg, want)
	}
}

func TestLoad_PartialConfigMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "integrationBranch: develop\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IntegrationBranch != "develop" {
		t.Errorf("IntegrationBranch = %q, want develop", cfg.IntegrationBranch)
	}
	if cfg.Engine != "claude" {
		t.Errorf("Engine = %q, want default claude", cfg.Engine)
	}
	if cfg.SelfPath != "tools/prdpilot" {
		t.Errorf("SelfPath = %q, want default", cfg.SelfPath)
	}
}

func TestLoad_ExplicitEmptySelfPathDisablesExclusion(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `selfPath: ""`+"\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SelfPath != "" {
		t.Errorf("SelfPath = %q, want empty (explicitly cleared)", cfg.SelfPath)
	}
}

func TestLoad_ExplicitEmptyEngineRejected(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `engine: ""`+"\n")

	if _, err := Load(dir); err == nil {
		t.Fatal("Load() expected validation error for empty engine")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "engine: [unclosed\n")

	if _, err := Load(dir); err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}
