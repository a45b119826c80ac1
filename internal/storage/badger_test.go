package storage

import (
	"context"
	"testing"
)

func TestBadgerStoreInMemory(t *testing.T) {
	store := NewBadgerStore(BadgerConfig{InMemory: true})
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := NewBadgerStore(BadgerConfig{Path: dir})
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.WriteScore(ctx, "seen", 0.5); err != nil {
		t.Fatalf("write score: %v", err)
	}
	if err := store.SaveGenerationDiagnostics(ctx, "run", diagnostics(1, 0.5)); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := NewBadgerStore(BadgerConfig{Path: dir})
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if ok, err := reopened.Exists(ctx, "seen"); err != nil || !ok {
		t.Fatalf("exists=%v err=%v", ok, err)
	}
	if runs, err := reopened.ListRuns(ctx); err != nil || len(runs) != 1 {
		t.Fatalf("runs=%v err=%v", runs, err)
	}
}

func TestBadgerStoreRequiresInitAndPath(t *testing.T) {
	ctx := context.Background()
	if _, err := NewBadgerStore(BadgerConfig{InMemory: true}).Exists(ctx, "x"); err == nil {
		t.Fatal("expected error before init")
	}
	if err := NewBadgerStore(BadgerConfig{}).Init(ctx); err == nil {
		t.Fatal("expected missing path error")
	}
}
