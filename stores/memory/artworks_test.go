package memory

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"pixelart-server/core"
)

func TestNewArtworkStore(t *testing.T) {
	if NewArtworkStore() == nil {
		t.Fatal("NewArtworkStore() returned nil")
	}
}

func TestSave_Success(t *testing.T) {
	store := NewArtworkStore()
	ctx := context.Background()

	artwork, err := store.Save(ctx, []byte("png bytes"), "image/png")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// ULIDs are 26 characters long.
	if len(artwork.ID) != 26 {
		t.Errorf("Save() returned invalid ID length: got %d, want 26", len(artwork.ID))
	}
	if artwork.CreatedAt.IsZero() {
		t.Error("Save() did not set CreatedAt")
	}
	if artwork.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", artwork.ContentType)
	}
}

func TestGet_RoundTrip(t *testing.T) {
	store := NewArtworkStore()
	ctx := context.Background()
	saved, _ := store.Save(ctx, []byte("pixels"), "image/png")

	got, err := store.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !bytes.Equal(got.Image, []byte("pixels")) {
		t.Errorf("Get() image = %q, want %q", got.Image, "pixels")
	}
}

func TestGet_NotFound(t *testing.T) {
	_, err := NewArtworkStore().Get(context.Background(), "missing")
	if !errors.Is(err, core.ErrArtworkNotFound) {
		t.Errorf("Get() error = %v, want ErrArtworkNotFound", err)
	}
}

func TestSave_CopiesImage(t *testing.T) {
	store := NewArtworkStore()
	ctx := context.Background()
	image := []byte("abc")
	saved, _ := store.Save(ctx, image, "image/png")
	image[0] = 'x'

	got, _ := store.Get(ctx, saved.ID)
	if string(got.Image) != "abc" {
		t.Errorf("stored image changed with caller buffer: %q", got.Image)
	}
}

func TestList_NewestFirst(t *testing.T) {
	store := NewArtworkStore()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
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
	if len(list) != 5 {
		t.Fatalf("List() returned %d artworks, want 5", len(list))
	}
	for i, a := range list {
		if want := ids[len(ids)-1-i]; a.ID != want {
			t.Errorf("List()[%d] = %s, want %s", i, a.ID, want)
		}
	}
}

func TestList_Empty(t *testing.T) {
	list, err := NewArtworkStore().List(context.Background())
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", list)
	}
}

func TestDelete(t *testing.T) {
	store := NewArtworkStore()
	ctx := context.Background()
	keep, _ := store.Save(ctx, []byte("keep"), "image/png")
	drop, _ := store.Save(ctx, []byte("drop"), "image/png")

	if err := store.Delete(ctx, drop.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete(ctx, drop.ID); !errors.Is(err, core.ErrArtworkNotFound) {
		t.Errorf("second Delete() error = %v, want ErrArtworkNotFound", err)
	}

	list, _ := store.List(ctx)
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Errorf("List() after Delete() = %v", list)
	}
}

func TestConcurrentSaves(t *testing.T) {
	store := NewArtworkStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
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
	if len(list) != 20 {
		t.Errorf("List() returned %d artworks, want 20", len(list))
	}
}
