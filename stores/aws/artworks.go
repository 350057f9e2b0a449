package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"pixelart-server/core"
)

const objectExt = ".json"

// s3API is the subset of the S3 client the store uses.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Store struct {
	client    s3API
	bucket    string
	namespace string
}

// NewArtworkStore creates an S3-backed store using the default AWS
// credential chain.
func NewArtworkStore(ctx context.Context, bucket, namespace string) (core.ArtworkStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newStore(s3.NewFromConfig(cfg), bucket, namespace), nil
}

func newStore(client s3API, bucket, namespace string) *s3Store {
	return &s3Store{client: client, bucket: bucket, namespace: namespace}
}

func (s *s3Store) key(id string) (string, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", fmt.Errorf("%w: %s", core.ErrArtworkNotFound, id)
	}
	return path.Join(s.namespace, id+objectExt), nil
}

func (s *s3Store) Save(ctx context.Context, image []byte, contentType string) (*core.Artwork, error) {
	artwork := &core.Artwork{
		ID:          ulid.Make().String(),
		Image:       image,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	key := path.Join(s.namespace, artwork.ID+objectExt)

	data, err := json.Marshal(artwork)
	if err != nil {
		return nil, fmt.Errorf("marshal artwork: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload artwork %s: %w", artwork.ID, err)
	}

	logrus.WithFields(logrus.Fields{
		"artwork_id": artwork.ID,
		"bucket":     s.bucket,
		"key":        key,
	}).Info("Artwork saved successfully")
	return artwork, nil
}

func (s *s3Store) List(ctx context.Context) ([]*core.Artwork, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.namespace + "/"),
	})

	artworks := []*core.Artwork{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list artworks: %w", err)
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			if !strings.HasSuffix(key, objectExt) {
				continue
			}
			artwork, err := s.fetch(ctx, key)
			if err != nil {
				logrus.WithError(err).WithField("key", key).Warn("Failed to read artwork, skipping")
				continue
			}
			artworks = append(artworks, artwork)
		}
	}

	core.SortNewestFirst(artworks)
	return artworks, nil
}

func (s *s3Store) Get(ctx context.Context, id string) (*core.Artwork, error) {
	key, err := s.key(id)
	if err != nil {
		return nil, err
	}
	artwork, err := s.fetch(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrArtworkNotFound, id)
		}
		return nil, err
	}
	return artwork, nil
}

func (s *s3Store) Delete(ctx context.Context, id string) error {
	key, err := s.key(id)
	if err != nil {
		return err
	}

	// DeleteObject succeeds for missing keys, so check existence first.
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", core.ErrArtworkNotFound, id)
		}
		return fmt.Errorf("failed to stat artwork %s: %w", id, err)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete artwork %s: %w", id, err)
	}

	logrus.WithField("artwork_id", id).Info("Artwork deleted successfully")
	return nil
}

func (s *s3Store) fetch(ctx context.Context, key string) (*core.Artwork, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artwork data: %w", err)
	}

	var artwork core.Artwork
	if err := json.Unmarshal(data, &artwork); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artwork: %w", err)
	}
	return &artwork, nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
