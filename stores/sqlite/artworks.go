package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"pixelart-server/core"
)

type artworkStore struct {
	db        *sql.DB
	namespace string
}

// NewArtworkStore opens the database and creates the artworks table.
func NewArtworkStore(dataSourceName, namespace string) (core.ArtworkStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection queues writers in the
	// pool instead of failing them with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	stmt := `CREATE TABLE IF NOT EXISTS artworks (
		id TEXT PRIMARY KEY,
		namespace TEXT NOT NULL,
		content_type TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		image BLOB NOT NULL
	);`
	if _, err = db.Exec(stmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("create artworks table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS artworks_namespace_created ON artworks (namespace, created_at DESC);`
	if _, err = db.Exec(index); err != nil {
		db.Close()
		return nil, fmt.Errorf("create artworks index: %w", err)
	}

	logrus.WithField("driver", driverName).Debug("SQLite artwork store ready")
	return &artworkStore{db: db, namespace: namespace}, nil
}

func (s *artworkStore) Save(ctx context.Context, image []byte, contentType string) (*core.Artwork, error) {
	artwork := &core.Artwork{
		ID:          ulid.Make().String(),
		Image:       image,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	log := logrus.WithFields(logrus.Fields{
		"artwork_id":  artwork.ID,
		"data_length": len(image),
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO artworks (id, namespace, content_type, created_at, image) VALUES (?, ?, ?, ?, ?)",
		artwork.ID, s.namespace, contentType, artwork.CreatedAt.UnixNano(), image)
	if err != nil {
		log.WithError(err).Error("Failed to save artwork")
		return nil, err
	}

	log.Info("Artwork saved successfully")
	return artwork, nil
}

func (s *artworkStore) List(ctx context.Context) ([]*core.Artwork, error) {
	log := logrus.WithField("namespace", s.namespace)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content_type, created_at, image FROM artworks WHERE namespace = ? ORDER BY created_at DESC, id DESC",
		s.namespace)
	if err != nil {
		log.WithError(err).Error("Failed to list artworks")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close artwork rows")
		}
	}()

	artworks := []*core.Artwork{}
	for rows.Next() {
		artwork, err := scanArtwork(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan artwork")
			continue
		}
		artworks = append(artworks, artwork)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return artworks, nil
}

func (s *artworkStore) Get(ctx context.Context, id string) (*core.Artwork, error) {
	log := logrus.WithField("artwork_id", id)

	row := s.db.QueryRowContext(ctx,
		"SELECT id, content_type, created_at, image FROM artworks WHERE namespace = ? AND id = ?",
		s.namespace, id)
	artwork, err := scanArtwork(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Artwork with specified ID not found")
			return nil, fmt.Errorf("%w: %s", core.ErrArtworkNotFound, id)
		}
		log.WithError(err).Error("Failed to retrieve artwork")
		return nil, err
	}
	return artwork, nil
}

func (s *artworkStore) Delete(ctx context.Context, id string) error {
	log := logrus.WithField("artwork_id", id)

	result, err := s.db.ExecContext(ctx, "DELETE FROM artworks WHERE namespace = ? AND id = ?", s.namespace, id)
	if err != nil {
		log.WithError(err).Error("Failed to delete artwork")
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrArtworkNotFound, id)
	}

	log.Info("Artwork deleted successfully")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtwork(row scanner) (*core.Artwork, error) {
	var (
		artwork   core.Artwork
		createdAt int64
	)
	if err := row.Scan(&artwork.ID, &artwork.ContentType, &createdAt, &artwork.Image); err != nil {
		return nil, err
	}
	artwork.CreatedAt = time.Unix(0, createdAt).UTC()
	return &artwork, nil
}
