package store

import (
	"path/filepath"
	"testing"
)

func TestOpenAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer st.Close()

	// All namespaced tables must exist
	for _, table := range []string{"settings", "cache", "outbox", "plans", "templates"} {
		var name string
		err := st.DB().QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing: %v", table, err)
		}
	}
}

func TestSettingsRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer st.Close()

	if _, ok, err := st.GetSetting("api_base"); err != nil || ok {
		t.Fatalf("expected absent setting, got ok=%v err=%v", ok, err)
	}

	if err := st.PutSetting("api_base", "/api"); err != nil {
		t.Fatalf("PutSetting() error: %v", err)
	}
	v, ok, err := st.GetSetting("api_base")
	if err != nil || !ok || v != "/api" {
		t.Fatalf("GetSetting() = %q, %v, %v", v, ok, err)
	}

	// Overwrite
	if err := st.PutSetting("api_base", "http://localhost:8080/api"); err != nil {
		t.Fatalf("PutSetting() error: %v", err)
	}
	v, _, _ = st.GetSetting("api_base")
	if v != "http://localhost:8080/api" {
		t.Errorf("expected overwritten value, got %q", v)
	}
}

func TestSettingsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := st.PutSetting("k", "v"); err != nil {
		t.Fatalf("PutSetting() error: %v", err)
	}
	st.Close()

	st2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer st2.Close()
	v, ok, err := st2.GetSetting("k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("after reopen GetSetting() = %q, %v, %v", v, ok, err)
	}
}
