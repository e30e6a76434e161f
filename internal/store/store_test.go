package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/progress"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_Units(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUnit(ctx, "/src/a.c")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := UnitRecord{ID: "/src/a.c", Path: "a.c", SourceLang: "c", TargetLang: "rust", Status: "failed", Attempts: 3, LastDiagnostic: "error[E0308]"}
	if err := s.SaveUnit(ctx, rec); err != nil {
		t.Fatalf("SaveUnit failed: %v", err)
	}

	rec.Status = "succeeded"
	rec.Mode = "chunked"
	rec.LastDiagnostic = ""
	rec.ArtifactPath = "/out/a/src/lib.rs"
	if err := s.SaveUnit(ctx, rec); err != nil {
		t.Fatalf("SaveUnit (update) failed: %v", err)
	}

	got, err := s.GetUnit(ctx, "/src/a.c")
	if err != nil {
		t.Fatalf("GetUnit failed: %v", err)
	}
	if got.Status != "succeeded" || got.Mode != "chunked" || got.Attempts != 3 {
		t.Errorf("unexpected unit record: %+v", got)
	}
	if got.ArtifactPath != "/out/a/src/lib.rs" {
		t.Errorf("expected artifact path, got %q", got.ArtifactPath)
	}

	units, err := s.ListUnits(ctx)
	if err != nil {
		t.Fatalf("ListUnits failed: %v", err)
	}
	if len(units) != 1 {
		t.Errorf("expected 1 unit, got %d", len(units))
	}
}

func TestStore_Attempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := internal.Failure(1, "timeout", true)
	first.Number = 1
	second := internal.Success(1, "fn f() {}", 0.75, []string{"raw"}, []string{"add"})
	second.Number = 2
	second.Latency = 1500 * time.Millisecond

	for _, a := range []internal.Attempt{first, second} {
		if _, err := s.SaveAttempt(ctx, "/src/a.c", a); err != nil {
			t.Fatalf("SaveAttempt failed: %v", err)
		}
	}
	if _, err := s.SaveAttempt(ctx, "/src/other.c", first); err != nil {
		t.Fatalf("SaveAttempt failed: %v", err)
	}

	got, err := s.ListAttempts(ctx, "/src/a.c")
	if err != nil {
		t.Fatalf("ListAttempts failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
	if got[0].Succeeded() || !got[0].Transient || got[0].Reason != "timeout" {
		t.Errorf("unexpected first attempt: %+v", got[0])
	}
	if !got[1].Succeeded() || got[1].Code != "fn f() {}" || got[1].Number != 2 {
		t.Errorf("unexpected second attempt: %+v", got[1])
	}
	if len(got[1].Dependencies) != 1 || got[1].Dependencies[0] != "add" {
		t.Errorf("expected dependencies [add], got %v", got[1].Dependencies)
	}
	if got[1].Latency != 1500*time.Millisecond {
		t.Errorf("expected 1.5s latency, got %v", got[1].Latency)
	}
}

func TestStore_Progress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.LoadProgress(ctx, "/src/a.c")
	if err != nil || found {
		t.Fatalf("expected no progress, got found=%v err=%v", found, err)
	}

	rec := progress.Record{UnitID: "/src/a.c", TotalChunks: 3, CompletedChunks: 1, FailedChunkIDs: []int{2}}
	if err := s.SaveProgress(ctx, rec); err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}
	rec.CompletedChunks = 2
	if err := s.SaveProgress(ctx, rec); err != nil {
		t.Fatalf("SaveProgress (update) failed: %v", err)
	}
	if err := s.SaveProgress(ctx, progress.Record{UnitID: "/src/b.c", TotalChunks: 1}); err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}

	got, found, err := s.LoadProgress(ctx, "/src/a.c")
	if err != nil || !found {
		t.Fatalf("LoadProgress failed: found=%v err=%v", found, err)
	}
	if got.CompletedChunks != 2 || len(got.FailedChunkIDs) != 1 || got.FailedChunkIDs[0] != 2 {
		t.Errorf("unexpected record: %+v", got)
	}

	all, err := s.ListProgress(ctx)
	if err != nil {
		t.Fatalf("ListProgress failed: %v", err)
	}
	if len(all) != 2 || all[0].UnitID != "/src/a.c" {
		t.Errorf("unexpected list: %+v", all)
	}

	n, err := s.DeleteProgress(ctx, "/src/a.c")
	if err != nil || n != 1 {
		t.Fatalf("DeleteProgress: n=%d err=%v", n, err)
	}
	n, err = s.DeleteProgress(ctx, "")
	if err != nil || n != 1 {
		t.Fatalf("DeleteProgress all: n=%d err=%v", n, err)
	}
}

func TestStore_ConcurrentProgress(t *testing.T) {
	s := newTestStore(t)
	tracker := progress.New(s, nil)
	ctx := context.Background()
	tracker.Register(ctx, "/src/a.c", 20)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			tracker.RecordResult(ctx, "/src/a.c", id, progress.Succeeded)
		}(i)
	}
	wg.Wait()

	rec, found, err := s.LoadProgress(ctx, "/src/a.c")
	if err != nil || !found {
		t.Fatalf("LoadProgress failed: found=%v err=%v", found, err)
	}
	if rec.CompletedChunks != 20 {
		t.Errorf("expected 20 completed chunks, got %d", rec.CompletedChunks)
	}
}

func TestStore_GetCachedTranslation_Miss(t *testing.T) {
	s := newTestStore(t)

	text, found, err := s.GetCachedTranslation(context.Background(), "int x;", "c", "rust")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if found {
		t.Error("expected not found for uncached translation")
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestStore_GetCachedTranslation_Hit(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveToMemory(context.Background(), "int x;\n", "c", "rust", "static X: i32 = 0;", "ollama")
	if err != nil {
		t.Fatalf("SaveToMemory failed: %v", err)
	}

	text, found, err := s.GetCachedTranslation(context.Background(), "  int x;", "c", "rust")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if !found {
		t.Error("expected to find cached translation")
	}
	if text != "static X: i32 = 0;" {
		t.Errorf("expected cached code, got %q", text)
	}
}

func TestStore_GetCachedTranslation_Invalidated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveToMemory(ctx, "int x;", "c", "rust", "let x = 0;", "ollama"); err != nil {
		t.Fatalf("SaveToMemory failed: %v", err)
	}

	entries, err := s.ListMemory(ctx)
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one entry")
	}

	if err := s.InvalidateMemory(ctx, entries[0].ID); err != nil {
		t.Fatalf("InvalidateMemory failed: %v", err)
	}

	_, found, err := s.GetCachedTranslation(ctx, "int x;", "c", "rust")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if found {
		t.Error("expected not found for invalidated translation")
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 1 || stats.InvalidEntries != 1 || stats.ActiveEntries != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStore_DeleteAndClearMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToMemory(ctx, "int x;", "c", "rust", "let x = 0;", "ollama")
	s.SaveToMemory(ctx, "int y;", "c", "rust", "let y = 0;", "ollama")
	s.SaveToMemory(ctx, "int z;", "c", "rust", "let z = 0;", "ollama")

	entries, err := s.ListMemory(ctx)
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	if err := s.DeleteMemory(ctx, entries[0].ID); err != nil {
		t.Errorf("DeleteMemory failed: %v", err)
	}

	count, err := s.ClearMemory(ctx)
	if err != nil {
		t.Errorf("ClearMemory failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 cleared, got %d", count)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  int x;  ", "int x;"},
		{"cafe\u0301", "caf\u00e9"}, // NFC normalization
		{"\t\nint x;\t\n", "int x;"},
		{"", ""},
	}

	for _, tt := range tests {
		result := normalizeText(tt.input)
		if result != tt.expected {
			t.Errorf("normalizeText(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestStore_MultipleTargets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToMemory(ctx, "int x;", "c", "rust", "let x = 0;", "ollama")
	s.SaveToMemory(ctx, "int x;", "c", "go", "var x int", "ollama")

	text, found, _ := s.GetCachedTranslation(ctx, "int x;", "c", "rust")
	if !found || text != "let x = 0;" {
		t.Errorf("c->rust: expected found=true and 'let x = 0;', got found=%v and %q", found, text)
	}

	text, found, _ = s.GetCachedTranslation(ctx, "int x;", "c", "go")
	if !found || text != "var x int" {
		t.Errorf("c->go: expected found=true and 'var x int', got found=%v and %q", found, text)
	}

	if _, found, _ = s.GetCachedTranslation(ctx, "int x;", "c", "zig"); found {
		t.Error("c->zig: expected not found")
	}
}
