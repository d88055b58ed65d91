package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

const (
	sessionA core.SessionID = "sess_20250101T000000.000000000_aaaaaaaaaaaa"
	sessionB core.SessionID = "sess_20250102T000000.000000000_bbbbbbbbbbbb"
)

func newTestStore(t *testing.T) (*snapshot.Store, []string) {
	t.Helper()

	roots := []string{t.TempDir(), t.TempDir()}
	store, err := snapshot.NewStore(
		snapshot.Location{Name: "primary", Root: roots[0]},
		snapshot.Location{Name: "fallback", Root: roots[1]},
	)
	if err != nil {
		t.Fatal(err)
	}
	return store, roots
}

func writeSnapshot(t *testing.T, store *snapshot.Store, location int, id core.SessionID, step int64) snapshot.Handle {
	t.Helper()

	handle, err := store.WriteAt(context.Background(), location, snapshot.Snapshot{
		SessionID: id,
		Step:      step,
		Level:     core.LevelYellow,
		Context:   "context",
		Progress:  "progress",
		Decisions: "decisions",
		Next:      "next",
	})
	if err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	return handle
}

func TestList_Empty(t *testing.T) {
	catalog := &Catalog{Roots: []string{t.TempDir(), filepath.Join(t.TempDir(), "missing")}}

	list, err := catalog.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list != nil {
		t.Fatalf("expected nil, got %v", list)
	}
}

func TestList_MergesLocations(t *testing.T) {
	store, roots := newTestStore(t)

	writeSnapshot(t, store, 0, sessionA, 1)
	latest := writeSnapshot(t, store, 1, sessionA, 2)
	writeSnapshot(t, store, 0, sessionB, 1)

	catalog := &Catalog{Roots: roots}
	list, err := catalog.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}

	info, err := catalog.Get(sessionA)
	if err != nil {
		t.Fatal(err)
	}
	if info.Snapshots != 2 || len(info.Locations) != 2 {
		t.Errorf("unexpected info %+v", info)
	}
	if info.Latest != latest.ID {
		t.Errorf("latest = %s, want %s", info.Latest, latest.ID)
	}
	if !info.CreatedAt.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected created time %s", info.CreatedAt)
	}
}

func TestList_SortedByModified(t *testing.T) {
	store, roots := newTestStore(t)

	writeSnapshot(t, store, 0, sessionA, 1)
	writeSnapshot(t, store, 0, sessionB, 1)

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(roots[0], "sessions", string(sessionA), "LATEST"), old, old); err != nil {
		t.Fatal(err)
	}

	list, err := (&Catalog{Roots: roots}).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != sessionB {
		t.Fatalf("expected newest first, got %+v", list)
	}
}

func TestGet_CountsArchived(t *testing.T) {
	store, roots := newTestStore(t)

	writeSnapshot(t, store, 0, sessionA, 1)
	writeSnapshot(t, store, 0, sessionA, 2)
	if _, err := store.Archive(sessionA); err != nil {
		t.Fatal(err)
	}

	info, err := (&Catalog{Roots: roots}).Get(sessionA)
	if err != nil {
		t.Fatal(err)
	}
	if info.Snapshots != 0 || info.Archived != 2 || info.Latest != "" {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestGet_NotFound(t *testing.T) {
	catalog := &Catalog{Roots: []string{t.TempDir()}}

	if _, err := catalog.Get(sessionA); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := catalog.Get("../escape"); err == nil {
		t.Fatal("expected error for invalid id")
	}
}

func TestDelete(t *testing.T) {
	store, roots := newTestStore(t)

	writeSnapshot(t, store, 0, sessionA, 1)
	writeSnapshot(t, store, 1, sessionA, 2)

	catalog := &Catalog{Roots: roots}
	if err := catalog.Delete(sessionA); err != nil {
		t.Fatal(err)
	}

	if _, err := catalog.Get(sessionA); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected session to be gone, got %v", err)
	}
	if _, err := store.ReadLatest(sessionA); !errors.Is(err, snapshot.ErrNotFound) {
		t.Errorf("expected no snapshot after delete, got %v", err)
	}
	if err := catalog.Delete(sessionA); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
