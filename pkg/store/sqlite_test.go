package store

import (
	"context"
	"path/filepath"
	"testing"

	"cicerone/pkg/db"
)

func TestSQLiteStore(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	defer d.Close()

	store := NewSQLiteStore(d)
	ctx := context.Background()

	testState(t, ctx, store)
	testCache(t, ctx, store)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	testState(t, ctx, store)
	testCache(t, ctx, store)
}

func testState(t *testing.T, ctx context.Context, store Store) {
	t.Run("State", func(t *testing.T) {
		if _, ok := store.GetState(ctx, "missing"); ok {
			t.Error("GetState found a key that was never set")
		}

		if err := store.SetState(ctx, "tour-state-abc", `{"state":"RECORD_ACTIVE"}`); err != nil {
			t.Errorf("SetState failed: %v", err)
		}
		val, ok := store.GetState(ctx, "tour-state-abc")
		if !ok {
			t.Fatal("GetState did not find the key")
		}
		if val != `{"state":"RECORD_ACTIVE"}` {
			t.Errorf("Value mismatch: %s", val)
		}

		// Overwrite
		if err := store.SetState(ctx, "tour-state-abc", `{"state":"RECORD_PAUSED"}`); err != nil {
			t.Errorf("SetState overwrite failed: %v", err)
		}
		val, _ = store.GetState(ctx, "tour-state-abc")
		if val != `{"state":"RECORD_PAUSED"}` {
			t.Errorf("Overwrite mismatch: %s", val)
		}

		if err := store.DeleteState(ctx, "tour-state-abc"); err != nil {
			t.Errorf("DeleteState failed: %v", err)
		}
		if _, ok := store.GetState(ctx, "tour-state-abc"); ok {
			t.Error("GetState found a deleted key")
		}

		// Deleting a missing key is not an error
		if err := store.DeleteState(ctx, "never-existed"); err != nil {
			t.Errorf("DeleteState on missing key failed: %v", err)
		}
	})
}

func testCache(t *testing.T, ctx context.Context, store Store) {
	t.Run("Cache", func(t *testing.T) {
		if _, ok := store.GetCache(ctx, "missing"); ok {
			t.Error("GetCache found a key that was never set")
		}

		if err := store.SetCache(ctx, "audio-xyz", []byte("RIFF")); err != nil {
			t.Errorf("SetCache failed: %v", err)
		}
		val, ok := store.GetCache(ctx, "audio-xyz")
		if !ok {
			t.Fatal("GetCache did not find the key")
		}
		if string(val) != "RIFF" {
			t.Errorf("Value mismatch: %s", val)
		}

		has, err := store.HasCache(ctx, "audio-xyz")
		if err != nil {
			t.Errorf("HasCache failed: %v", err)
		}
		if !has {
			t.Error("HasCache returned false for existing key")
		}
		has, err = store.HasCache(ctx, "missing")
		if err != nil {
			t.Errorf("HasCache failed: %v", err)
		}
		if has {
			t.Error("HasCache returned true for missing key")
		}
	})
}
