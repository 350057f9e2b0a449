package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"pixelart-server/core"
)

type artworkStore struct {
	mu       sync.RWMutex
	artworks map[string]*core.Artwork
}

func NewArtworkStore() core.ArtworkStore {
	return &artworkStore{
		artworks: make(map[string]*core.Artwork),
	}
}

func (s *artworkStore) Save(ctx context.Context, image []byte, contentType string) (*core.Artwork, error) {
	artwork := &core.Artwork{
		ID:          ulid.Make().String(),
		Image:       append([]byte(nil), image...),
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.artworks[artwork.ID] = artwork
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"artwork_id":  artwork.ID,
		"data_length": len(image),
	}).Info("Artwork saved successfully")

	return copyArtwork(artwork), nil
}

func (s *artworkStore) List(ctx context.Context) ([]*core.Artwork, error) {
	s.mu.RLock()
	artworks := make([]*core.Artwork, 0, len(s.artworks))
	for _, a := range s.artworks {
		artworks = append(artworks, copyArtwork(a))
	}
	s.mu.RUnlock()

	core.SortNewestFirst(artworks)
	return artworks, nil
}

func (s *artworkStore) Get(ctx context.Context, id string) (*core.Artwork, error) {
	log := logrus.WithField("artwork_id", id)

	s.mu.RLock()
	a, ok := s.artworks[id]
	s.mu.RUnlock()

	if !ok {
		log.Warn("Artwork with specified ID not found")
		return nil, fmt.Errorf("%w: %s", core.ErrArtworkNotFound, id)
	}
	return copyArtwork(a), nil
}

func (s *artworkStore) Delete(ctx context.Context, id string) error {
	log := logrus.WithField("artwork_id", id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artworks[id]; !ok {
		log.Warn("Artwork not found for deletion")
		return fmt.Errorf("%w: %s", core.ErrArtworkNotFound, id)
	}
	delete(s.artworks, id)
	log.Info("Artwork deleted successfully")
	return nil
}

func copyArtwork(a *core.Artwork) *core.Artwork {
	c := *a
	c.Image = append([]byte(nil), a.Image...)
	return &c
}
