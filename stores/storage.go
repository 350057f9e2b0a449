package stores

import (
	"context"
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"pixelart-server/core"
	"pixelart-server/stores/aws"
	"pixelart-server/stores/filesystem"
	"pixelart-server/stores/memory"
	"pixelart-server/stores/sqlite"
)

var errMissingBucket = errors.New("S3_BUCKET_NAME environment variable must be set for s3 storage type")

// GetStore picks the artwork backend from STORAGE_TYPE. Unknown or empty
// values fall back to the in-memory store.
func GetStore(ctx context.Context) (core.ArtworkStore, error) {
	storageType := os.Getenv("STORAGE_TYPE")
	namespace := os.Getenv("ARTWORK_NAMESPACE")
	if namespace == "" {
		namespace = core.DefaultNamespace
	}

	storageField := logrus.Fields{
		"storageType": storageType,
		"namespace":   namespace,
	}

	var (
		store core.ArtworkStore
		err   error
	)
	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		storageField["basePath"] = basePath
		store, err = filesystem.NewArtworkStore(basePath, namespace)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "pixelart.db"
		}
		storageField["dataSourceName"] = dataSourceName
		storageField["cgo"] = sqlite.CGOEnabled
		store, err = sqlite.NewArtworkStore(dataSourceName, namespace)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			return nil, errMissingBucket
		}
		storageField["bucketName"] = bucketName
		store, err = aws.NewArtworkStore(ctx, bucketName, namespace)
	default:
		store = memory.NewArtworkStore()
		storageField["storageType"] = "in-memory"
	}
	if err != nil {
		logrus.WithFields(storageField).WithError(err).Error("Failed to open storage")
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
