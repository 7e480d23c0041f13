package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestGetSetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if value, err := store.Get(ctx, KeyDisplayName); err != nil || value != "" {
		t.Fatalf("Get absent = %q, %v", value, err)
	}
	if err := store.Set(ctx, KeyDisplayName, "alice"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if value, _ := store.Get(ctx, KeyDisplayName); value != "alice" {
		t.Fatalf("Get = %q", value)
	}
	if err := store.Set(ctx, KeyDisplayName, "bob"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if value, _ := store.Get(ctx, KeyDisplayName); value != "bob" {
		t.Fatalf("Get after overwrite = %q", value)
	}
	if err := store.Delete(ctx, KeyDisplayName); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if value, _ := store.Get(ctx, KeyDisplayName); value != "" {
		t.Fatalf("Get after delete = %q", value)
	}
	if err := store.Delete(ctx, KeyDisplayName); err != nil {
		t.Fatalf("Delete absent key: %v", err)
	}
}

func TestSetIfAbsentWriteOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inserted, err := store.SetIfAbsent(ctx, KeyIdentityToken, "token-1")
	if err != nil {
		t.Fatalf("SetIfAbsent: %v", err)
	}
	if !inserted {
		t.Fatalf("first write should insert")
	}
	inserted, err = store.SetIfAbsent(ctx, KeyIdentityToken, "token-2")
	if err != nil {
		t.Fatalf("SetIfAbsent second: %v", err)
	}
	if inserted {
		t.Fatalf("second write must not replace the token")
	}
	if value, _ := store.Get(ctx, KeyIdentityToken); value != "token-1" {
		t.Fatalf("token = %q, want the first write to win", value)
	}
}

func TestVolumeDefaultsAndClamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if vol, err := store.Volume(ctx); err != nil || vol != 0.5 {
		t.Fatalf("default volume = %v, %v", vol, err)
	}
	if err := store.SetVolume(ctx, 1.7); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if vol, _ := store.Volume(ctx); vol != 1 {
		t.Fatalf("clamped volume = %v, want 1", vol)
	}
	if err := store.SetVolume(ctx, 0.25); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if vol, _ := store.Volume(ctx); vol != 0.25 {
		t.Fatalf("volume = %v", vol)
	}

	// Garbage in the row falls back to the default rather than erroring.
	if err := store.Set(ctx, KeyVolume, "loud"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if vol, err := store.Volume(ctx); err != nil || vol != 0.5 {
		t.Fatalf("volume with garbage row = %v, %v", vol, err)
	}
}

func TestBindings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bindings, err := store.Bindings(ctx)
	if err != nil {
		t.Fatalf("Bindings: %v", err)
	}
	if len(bindings) != 0 {
		t.Fatalf("expected no bindings, got %v", bindings)
	}

	if err := store.SetBinding(ctx, "qq", "12345"); err != nil {
		t.Fatalf("SetBinding: %v", err)
	}
	if err := store.SetBinding(ctx, "netease", "67890"); err != nil {
		t.Fatalf("SetBinding: %v", err)
	}
	// Unrelated keys must not leak into the binding set.
	if err := store.Set(ctx, KeyDisplayName, "alice"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	bindings, err = store.Bindings(ctx)
	if err != nil {
		t.Fatalf("Bindings: %v", err)
	}
	if len(bindings) != 2 || bindings["qq"] != "12345" || bindings["netease"] != "67890" {
		t.Fatalf("bindings = %v", bindings)
	}
}
