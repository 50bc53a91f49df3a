package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOGTRACKER_DATA_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "nope.json"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBase != "/api" {
		t.Errorf("APIBase = %q, want /api", cfg.APIBase)
	}
	if cfg.Probe.IntervalSeconds != 10 || cfg.Probe.TimeoutSeconds != 5 {
		t.Errorf("probe defaults = %+v", cfg.Probe)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOGTRACKER_DATA_DIR", "")
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.APIBase = "http://localhost:8080/api"
	cfg.DataDir = dir
	cfg.Probe.IntervalSeconds = 30
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.APIBase != cfg.APIBase {
		t.Errorf("APIBase = %q, want %q", loaded.APIBase, cfg.APIBase)
	}
	if loaded.Probe.IntervalSeconds != 30 {
		t.Errorf("IntervalSeconds = %d, want 30", loaded.Probe.IntervalSeconds)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"apiBase":"/api","dataDir":"`+dir+`"}`), 0640); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DOGTRACKER_API_BASE", "https://kennel.example/api")
	t.Setenv("DOGTRACKER_PROBE_INTERVAL", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBase != "https://kennel.example/api" {
		t.Errorf("APIBase = %q, want env override", cfg.APIBase)
	}
	if cfg.Probe.IntervalSeconds != 3 {
		t.Errorf("IntervalSeconds = %d, want 3", cfg.Probe.IntervalSeconds)
	}
}

func TestLoadClampsBadProbeValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{"dataDir":"` + dir + `","probe":{"intervalSeconds":0,"timeoutSeconds":-1,"replayTimeoutSeconds":0}}`
	if err := os.WriteFile(path, []byte(raw), 0640); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Probe.IntervalSeconds != 10 || cfg.Probe.TimeoutSeconds != 5 || cfg.Probe.ReplayTimeoutSeconds != 10 {
		t.Errorf("probe = %+v, want clamped defaults", cfg.Probe)
	}
}

func TestDBPath(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/dogtracker"}
	if got := cfg.DBPath(); got != filepath.Join("/var/lib/dogtracker", "dogtracker.db") {
		t.Errorf("DBPath() = %q", got)
	}
}
