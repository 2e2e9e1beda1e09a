package kvstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetGetSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "store.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if v, _ := store.Get("missing"); v != "" {
		t.Fatalf("Get(missing) = %q; want empty", v)
	}
	if err := store.Set("li_job_payload_tab_a", "payload"); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	if err := store.Set("li_job_payload_ts_tab_a", "1740819600000"); err != nil {
		t.Fatalf("Set() = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() after write = %v", err)
	}
	if v, _ := reopened.Get("li_job_payload_tab_a"); v != "payload" {
		t.Fatalf("Get() after reopen = %q; want %q", v, "payload")
	}
	if v, _ := reopened.Get("li_job_payload_ts_tab_a"); v != "1740819600000" {
		t.Fatalf("Get() timestamp after reopen = %q", v)
	}
}

func TestKeysAndDelete(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	for _, k := range []string{"in_job_payload_tab_b", "in_job_payload_tab_a", "cfg_project_url_v1"} {
		if err := store.Set(k, "v"); err != nil {
			t.Fatalf("Set(%q) = %v", k, err)
		}
	}

	keys := store.Keys("in_job_payload_tab_")
	if len(keys) != 2 || keys[0] != "in_job_payload_tab_a" || keys[1] != "in_job_payload_tab_b" {
		t.Fatalf("Keys() = %v", keys)
	}

	if err := store.Delete("in_job_payload_tab_a", "nope"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if keys := store.Keys("in_job_payload_tab_a"); len(keys) != 0 {
		t.Fatalf("deleted key still listed: %v", keys)
	}
	if got := len(store.Keys("")); got != 2 {
		t.Fatalf("Keys(\"\") len = %d; want 2", got)
	}
}

func TestOpenRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	if _, err := Open(path); err == nil || !strings.Contains(err.Error(), "kvstore: unmarshal") {
		t.Fatalf("Open() = %v; want unmarshal error", err)
	}
}

func TestSetLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := store.Set("k", strings.Repeat("x", i)); err != nil {
			t.Fatalf("Set() = %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("os.ReadDir() failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "store.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("dir entries = %v; want only store.json", names)
	}
}

func TestSetRollsBackWhenPersistFails(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := store.Set("k", "old"); err != nil {
		t.Fatalf("Set() = %v", err)
	}

	// Point the store at a directory that no longer exists.
	store.path = filepath.Join(dir, "gone", "store.json")

	if err := store.Set("k", "new"); err == nil {
		t.Fatal("Set() = nil; want persist error")
	}
	if v, _ := store.Get("k"); v != "old" {
		t.Fatalf("Get() after failed Set = %q; want %q", v, "old")
	}
}
