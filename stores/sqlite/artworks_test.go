package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"pixelart-server/core"
)

func setupTestDB(t *testing.T, namespace string) *artworkStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewArtworkStore(dbPath, namespace)
	if err != nil {
		t.Fatalf("NewArtworkStore() failed: %v", err)
	}
	s := store.(*artworkStore)
	t.Cleanup(func() { s.db.Close() })
	return s
}

func TestNewArtworkStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewArtworkStore(dbPath, core.DefaultNamespace)
	if err != nil {
		t.Fatalf("NewArtworkStore() failed: %v", err)
	}
	defer store.(*artworkStore).db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("NewArtworkStore() did not create database file")
	}
}

func TestNewArtworkStore_TableCreated(t *testing.T) {
	store := setupTestDB(t, core.DefaultNamespace)

	var tableName string
	err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='artworks'").Scan(&tableName)
	if err != nil {
		t.Fatalf("artworks table not created: %v", err)
	}
}

func TestSaveAndGet(t *testing.T) {
	store := setupTestDB(t, core.DefaultNamespace)
	ctx := context.Background()

	saved, err := store.Save(ctx, []byte("png bytes"), "image/png")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := store.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got.Image) != "png bytes" || got.ContentType != "image/png" {
		t.Errorf("Get() = %+v", got)
	}
	if !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, saved.CreatedAt)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := setupTestDB(t, core.DefaultNamespace)
	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, core.ErrArtworkNotFound) {
		t.Errorf("Get() error = %v, want ErrArtworkNotFound", err)
	}
}

func TestList_NewestFirst(t *testing.T) {
	store := setupTestDB(t, core.DefaultNamespace)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		a, err := store.Save(ctx, []byte{byte(i)}, "image/png")
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		ids = append(ids, a.ID)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("List() returned %d artworks, want 4", len(list))
	}
	for i, a := range list {
		if want := ids[len(ids)-1-i]; a.ID != want {
			t.Errorf("List()[%d] = %s, want %s", i, a.ID, want)
		}
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	a, err := NewArtworkStore(dbPath, "one")
	if err != nil {
		t.Fatalf("NewArtworkStore() failed: %v", err)
	}
	b, err := NewArtworkStore(dbPath, "two")
	if err != nil {
		t.Fatalf("NewArtworkStore() failed: %v", err)
	}

	saved, _ := a.Save(ctx, []byte("x"), "image/png")

	if list, _ := b.List(ctx); len(list) != 0 {
		t.Errorf("namespace two sees %d artworks", len(list))
	}
	if _, err := b.Get(ctx, saved.ID); !errors.Is(err, core.ErrArtworkNotFound) {
		t.Errorf("Get() across namespaces error = %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := setupTestDB(t, core.DefaultNamespace)
	ctx := context.Background()
	saved, _ := store.Save(ctx, []byte("x"), "image/png")

	if err := store.Delete(ctx, saved.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete(ctx, saved.ID); !errors.Is(err, core.ErrArtworkNotFound) {
		t.Errorf("second Delete() error = %v, want ErrArtworkNotFound", err)
	}
}

func TestConcurrentSaves(t *testing.T) {
	store := setupTestDB(t, core.DefaultNamespace)
	ctx := context.Background()

	if n := store.db.Stats().MaxOpenConnections; n != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", n)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Save(ctx, []byte("x"), "image/png"); err != nil {
				t.Errorf("Save() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	list, _ := store.List(ctx)
	if len(list) != 50 {
		t.Errorf("List() returned %d artworks, want 50", len(list))
	}
}
