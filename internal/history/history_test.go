package history

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()

	h, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestNew(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpHome, ".config"))

	h, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer h.Close()

	entries, err := h.Recent(10)
	if err != nil {
		t.Fatalf("Recent() on new DB error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Recent() on new DB = %d entries, want 0", len(entries))
	}
}

func TestAddAndRecent(t *testing.T) {
	h := newTestHistory(t)

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{
			Statement:  "SELECT * FROM support_tickets",
			Rewritten:  "SELECT * FROM support_tickets WHERE tenant_id = 7",
			Principal:  "u17",
			Status:     "ALLOWED",
			Backend:    "postgres",
			DecidedAt:  base,
			DurationMS: 12,
			RowCount:   40,
		},
		{
			Statement:  "DROP TABLE support_tickets",
			Principal:  "u17",
			Status:     "REJECTED",
			ReasonCode: "FORBIDDEN_LEADING_KEYWORD",
			DecidedAt:  base.Add(time.Minute),
			DurationMS: 0,
			RowCount:   -1,
		},
	}
	for _, e := range entries {
		if err := h.Add(e); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	got, err := h.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() = %d entries, want 2", len(got))
	}

	// Most recent first.
	if got[0].Status != "REJECTED" {
		t.Errorf("Recent()[0].Status = %q, want REJECTED", got[0].Status)
	}
	if got[0].ReasonCode != "FORBIDDEN_LEADING_KEYWORD" {
		t.Errorf("Recent()[0].ReasonCode = %q", got[0].ReasonCode)
	}
	if got[1].Rewritten != "SELECT * FROM support_tickets WHERE tenant_id = 7" {
		t.Errorf("Recent()[1].Rewritten = %q", got[1].Rewritten)
	}
	if got[1].RowCount != 40 {
		t.Errorf("Recent()[1].RowCount = %d, want 40", got[1].RowCount)
	}
}

func TestSearch(t *testing.T) {
	h := newTestHistory(t)

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	statements := []string{
		"SELECT * FROM customers",
		"SELECT count(*) FROM support_tickets",
		"SELECT * FROM orders",
	}
	for i, s := range statements {
		if err := h.Add(Entry{
			Statement: s,
			Status:    "ALLOWED",
			DecidedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	got, err := h.Search("%support_tickets%", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Search() = %d entries, want 1", len(got))
	}
	if got[0].Statement != "SELECT count(*) FROM support_tickets" {
		t.Errorf("Search()[0].Statement = %q", got[0].Statement)
	}

	none, err := h.Search("%delete%", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Search(no match) = %d entries, want 0", len(none))
	}
}

func TestByStatus(t *testing.T) {
	h := newTestHistory(t)

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, status := range []string{"ALLOWED", "REJECTED", "ALLOWED", "FAILED"} {
		if err := h.Add(Entry{
			Statement: "SELECT 1",
			Status:    status,
			DecidedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	allowed, err := h.ByStatus("ALLOWED", 10)
	if err != nil {
		t.Fatalf("ByStatus() error = %v", err)
	}
	if len(allowed) != 2 {
		t.Errorf("ByStatus(ALLOWED) = %d entries, want 2", len(allowed))
	}

	failed, err := h.ByStatus("FAILED", 10)
	if err != nil {
		t.Fatalf("ByStatus() error = %v", err)
	}
	if len(failed) != 1 {
		t.Errorf("ByStatus(FAILED) = %d entries, want 1", len(failed))
	}
}

func TestRecentWithLimit(t *testing.T) {
	h := newTestHistory(t)

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := h.Add(Entry{
			Statement: "SELECT 1",
			Status:    "ALLOWED",
			DecidedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	got, err := h.Recent(3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Recent(3) = %d entries, want 3", len(got))
	}
}

func TestClear(t *testing.T) {
	h := newTestHistory(t)

	if err := h.Add(Entry{Statement: "SELECT 1", Status: "ALLOWED", DecidedAt: time.Now()}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := h.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	got, err := h.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recent() after Clear = %d entries, want 0", len(got))
	}
}

func TestCloseAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	h, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := h.Add(Entry{Statement: "SELECT 1", Status: "ALLOWED", DecidedAt: time.Now()}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	h2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer h2.Close()

	got, err := h2.Recent(10)
	if err != nil {
		t.Fatalf("Recent() after reopen error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Recent() after reopen = %d entries, want 1", len(got))
	}
}
