package cache

import (
	"path/filepath"
	"testing"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_PutAndGet(t *testing.T) {
	c := openTestCache(t)

	rec := Record{
		SessionID:    "sess-1",
		ProjectID:    "proj-1",
		FilePath:     "/home/user/.claude/projects/proj-1/sess-1.jsonl",
		FileSize:     1024,
		Mtime:        1700000000.5,
		FirstMessage: "hello",
		MessageCount: 3,
		IsOngoing:    true,
		GitBranch:    "main",
		CreatedAt:    1700000000,
		ModifiedAt:   1700000001,
	}
	if err := c.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := c.Get("sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get: expected row to exist")
	}
	if got != rec {
		t.Fatalf("Get returned %+v, want %+v", got, rec)
	}
}

func TestCache_GetMissing(t *testing.T) {
	c := openTestCache(t)
	_, ok, err := c.Get("does-not-exist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("Get: expected no row")
	}
}

func TestCache_IsStale(t *testing.T) {
	c := openTestCache(t)

	stale, err := c.IsStale("sess-1", 100, 1700000000)
	if err != nil {
		t.Fatalf("IsStale: %v", err)
	}
	if !stale {
		t.Fatal("IsStale: expected stale for missing row")
	}

	rec := Record{SessionID: "sess-1", ProjectID: "proj-1", FilePath: "x", FileSize: 100, Mtime: 1700000000}
	if err := c.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	stale, err = c.IsStale("sess-1", 100, 1700000000)
	if err != nil {
		t.Fatalf("IsStale: %v", err)
	}
	if stale {
		t.Fatal("IsStale: expected fresh for matching size/mtime")
	}

	stale, err = c.IsStale("sess-1", 200, 1700000000)
	if err != nil {
		t.Fatalf("IsStale: %v", err)
	}
	if !stale {
		t.Fatal("IsStale: expected stale for changed size")
	}

	stale, err = c.IsStale("sess-1", 100, 1700000050)
	if err != nil {
		t.Fatalf("IsStale: %v", err)
	}
	if !stale {
		t.Fatal("IsStale: expected stale for changed mtime")
	}
}

func TestCache_GetForProject(t *testing.T) {
	c := openTestCache(t)

	if err := c.Put(Record{SessionID: "a", ProjectID: "proj-1", FilePath: "a", ModifiedAt: 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(Record{SessionID: "b", ProjectID: "proj-1", FilePath: "b", ModifiedAt: 2}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(Record{SessionID: "c", ProjectID: "proj-2", FilePath: "c", ModifiedAt: 3}); err != nil {
		t.Fatal(err)
	}

	got, err := c.GetForProject("proj-1")
	if err != nil {
		t.Fatalf("GetForProject: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetForProject returned %d rows, want 2", len(got))
	}
	if got[0].SessionID != "b" || got[1].SessionID != "a" {
		t.Fatalf("GetForProject order = %v, want [b a] (most recently modified first)", got)
	}
}

func TestCache_RemoveAndClear(t *testing.T) {
	c := openTestCache(t)

	if err := c.Put(Record{SessionID: "a", ProjectID: "p", FilePath: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := c.Get("a"); ok {
		t.Fatal("expected row removed")
	}

	if err := c.Put(Record{SessionID: "b", ProjectID: "p", FilePath: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := c.Get("b"); ok {
		t.Fatal("expected row cleared")
	}
}
