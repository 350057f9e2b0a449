package core

import (
	"context"
	"errors"
	"sort"
	"time"
)

// DefaultNamespace is the key every artwork record is stored under.
const DefaultNamespace = "pixelArtworks"

var ErrArtworkNotFound = errors.New("artwork not found")

type (
	// Artwork is a finished image saved from an editing session.
	Artwork struct {
		ID          string    `json:"id"`
		Image       []byte    `json:"image,omitempty"`
		ContentType string    `json:"contentType"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	// ArtworkStore keeps saved artworks, newest first.
	ArtworkStore interface {
		// Save stores image as a new artwork and returns it with its ID and
		// creation time filled in.
		Save(ctx context.Context, image []byte, contentType string) (*Artwork, error)

		// List returns all artworks, newest first.
		List(ctx context.Context) ([]*Artwork, error)

		// Get returns a single artwork or ErrArtworkNotFound.
		Get(ctx context.Context, id string) (*Artwork, error)

		// Delete removes an artwork or returns ErrArtworkNotFound.
		Delete(ctx context.Context, id string) error
	}
)

// SortNewestFirst orders artworks by creation time, newest first, falling
// back to descending ID (ULIDs sort by time) for equal timestamps.
func SortNewestFirst(artworks []*Artwork) {
	sort.SliceStable(artworks, func(i, j int) bool {
		a, b := artworks[i], artworks[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
