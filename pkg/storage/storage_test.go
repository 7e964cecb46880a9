package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "client-state-test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := s.Set(KeyWelcomeSeen, "true"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(KeyWelcomeSeen, "false"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	v, ok, err := s.Get(KeyWelcomeSeen)
	if err != nil || !ok || v != "false" {
		t.Fatalf("Get after overwrite: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := s.Remove(KeyWelcomeSeen); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := s.Get(KeyWelcomeSeen); ok {
		t.Fatal("key should be gone after Remove")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, newTestDB(t).Namespace("session-a"))
}

func TestSQLiteNamespacesAreIsolated(t *testing.T) {
	db := newTestDB(t)
	a := db.Namespace("a")
	b := db.Namespace("b")

	if err := a.Set(KeySettings, `{"numberOfSplits":4}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok, _ := b.Get(KeySettings); ok {
		t.Error("session b should not see session a's settings")
	}

	if err := b.Remove(KeySettings); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := a.Get(KeySettings); !ok {
		t.Error("removing from session b should not touch session a")
	}
}

func TestSQLitePurgeOlderThan(t *testing.T) {
	db := newTestDB(t)
	ns := db.Namespace("old")
	if err := ns.Set(KeyAppState, "{}"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	removed, err := db.PurgeOlderThan(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("want 1 removed row, got %d", removed)
	}
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemory()
	type blob struct {
		A int    `json:"a"`
		B string `json:"b"`
	}

	if err := SetJSON(s, KeyAppState, blob{A: 1, B: "x"}); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	var out blob
	ok, err := GetJSON(s, KeyAppState, &out)
	if err != nil || !ok {
		t.Fatalf("GetJSON: ok=%v err=%v", ok, err)
	}
	if out.A != 1 || out.B != "x" {
		t.Errorf("unexpected decoded value %+v", out)
	}

	_ = s.Set(KeySettings, "{not json")
	if ok, err := GetJSON(s, KeySettings, &out); ok || err == nil {
		t.Errorf("corrupt blob should fail: ok=%v err=%v", ok, err)
	}

	if ok, err := GetJSON(s, "absent", &out); ok || err != nil {
		t.Errorf("absent key: ok=%v err=%v", ok, err)
	}
}
