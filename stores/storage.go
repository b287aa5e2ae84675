package stores

import (
	"context"
	"fmt"
	"os"

	"collabcanvas/core"
	"collabcanvas/stores/aws"
	"collabcanvas/stores/filesystem"
	"collabcanvas/stores/memory"
	"collabcanvas/stores/postgres"
	"collabcanvas/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore picks the object store backend from STORAGE_TYPE.
func GetStore(ctx context.Context) (core.ObjectStore, error) {
	storageType := os.Getenv("STORAGE_TYPE")
	var (
		store core.ObjectStore
		err   error
	)

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		storageField["basePath"] = basePath
		store, err = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "canvas.db"
		}
		storageField["dataSourceName"] = dataSourceName
		store, err = sqlite.NewStore(dataSourceName)
	case "postgres":
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL must be set for postgres storage")
		}
		store, err = postgres.NewStore(ctx, databaseURL)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME must be set for s3 storage")
		}
		storageField["bucketName"] = bucketName
		store, err = aws.NewStore(ctx, bucketName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
