package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"pixelart-server/core"
)

const fileExt = ".json"

type fsStore struct {
	dir string
}

// NewArtworkStore keeps one JSON file per artwork under
// basePath/namespace.
func NewArtworkStore(basePath, namespace string) (core.ArtworkStore, error) {
	dir := filepath.Join(basePath, namespace)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artwork directory: %w", err)
	}
	return &fsStore{dir: dir}, nil
}

func (s *fsStore) pathFor(id string) (string, error) {
	// Only ULIDs are accepted, which also rules out path traversal.
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", fmt.Errorf("%w: %s", core.ErrArtworkNotFound, id)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

func (s *fsStore) Save(ctx context.Context, image []byte, contentType string) (*core.Artwork, error) {
	artwork := &core.Artwork{
		ID:          ulid.Make().String(),
		Image:       image,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	filePath := filepath.Join(s.dir, artwork.ID+fileExt)
	log := logrus.WithFields(logrus.Fields{
		"artwork_id": artwork.ID,
		"file_path":  filePath,
	})

	data, err := json.Marshal(artwork)
	if err != nil {
		log.WithError(err).Error("Failed to marshal artwork")
		return nil, err
	}

	// Write to a temp file first so a failed write never leaves a
	// truncated artwork behind.
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.WithError(err).Error("Failed to write artwork")
		return nil, err
	}
	if err := os.Rename(tmp, filePath); err != nil {
		_ = os.Remove(tmp)
		log.WithError(err).Error("Failed to commit artwork")
		return nil, err
	}

	log.Info("Artwork saved successfully")
	return artwork, nil
}

func (s *fsStore) List(ctx context.Context) ([]*core.Artwork, error) {
	log := logrus.WithField("path", s.dir)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*core.Artwork{}, nil
		}
		log.WithError(err).Error("Failed to read artwork directory")
		return nil, err
	}

	artworks := make([]*core.Artwork, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		artwork, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read artwork file %s, skipping", entry.Name())
			continue
		}
		artworks = append(artworks, artwork)
	}

	core.SortNewestFirst(artworks)
	log.Debugf("Listed %d artworks", len(artworks))
	return artworks, nil
}

func (s *fsStore) Get(ctx context.Context, id string) (*core.Artwork, error) {
	filePath, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}

	artwork, err := s.read(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.WithField("artwork_id", id).Warn("Artwork file not found")
			return nil, fmt.Errorf("%w: %s", core.ErrArtworkNotFound, id)
		}
		return nil, err
	}
	return artwork, nil
}

func (s *fsStore) Delete(ctx context.Context, id string) error {
	filePath, err := s.pathFor(id)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"artwork_id": id, "path": filePath})

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			log.Warn("Artwork file not found for deletion")
			return fmt.Errorf("%w: %s", core.ErrArtworkNotFound, id)
		}
		log.WithError(err).Error("Failed to delete artwork file")
		return err
	}

	log.Info("Artwork deleted successfully")
	return nil
}

func (s *fsStore) read(filePath string) (*core.Artwork, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var artwork core.Artwork
	if err := json.Unmarshal(data, &artwork); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(filePath), err)
	}
	return &artwork, nil
}
