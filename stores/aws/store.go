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
	"sync"

	"collabcanvas/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

const prefix = core.ObjectsTable + "/"

// API is the subset of *s3.Client the store calls.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	s3.ListObjectsV2APIClient
}

// Store keeps one JSON object per canvas object under
// <bucket>/canvas_objects/. Writes are serialized within the process; S3
// itself offers no cross-instance transactions.
type Store struct {
	client API
	bucket string
	mu     sync.Mutex
}

// NewStore loads the default AWS config (env, shared files, instance role).
func NewStore(ctx context.Context, bucketName string) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewStoreWithClient(s3.NewFromConfig(cfg), bucketName), nil
}

func NewStoreWithClient(client API, bucketName string) *Store {
	return &Store{client: client, bucket: bucketName}
}

func objectKey(id string) (string, error) {
	if id == "" || id == "." || id == ".." || path.Base(id) != id || strings.Contains(id, "/") {
		return "", &core.ValidationError{Field: "id", Reason: "must be a plain name"}
	}
	return prefix + id + ".json", nil
}

func (s *Store) fetch(ctx context.Context, key string) (*core.CanvasObject, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	var o core.CanvasObject
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return &o, nil
}

func (s *Store) put(ctx context.Context, key string, o *core.CanvasObject) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal object: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]*core.CanvasObject, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []*core.CanvasObject
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, item := range page.Contents {
			key := aws.ToString(item.Key)
			o, err := s.fetch(ctx, key)
			if err != nil {
				logrus.WithError(err).WithField("key", key).Warn("Failed to load object, skipping")
				continue
			}
			objects = append(objects, o)
		}
	}
	core.SortObjects(objects)
	return objects, nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.CanvasObject, error) {
	key, err := objectKey(id)
	if err != nil {
		return nil, err
	}
	o, err := s.fetch(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("object %s: %w", id, core.ErrNotFound)
	}
	return o, err
}

func (s *Store) Insert(ctx context.Context, object *core.CanvasObject) error {
	key, err := objectKey(object.ID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"object_id": object.ID, "key": key})

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		log.Warn("Object already exists")
		return fmt.Errorf("object %s: %w", object.ID, core.ErrConflict)
	}
	var nf *s3types.NotFound
	if !errors.As(err, &nf) {
		return fmt.Errorf("failed to check %s: %w", key, err)
	}

	if err := s.put(ctx, key, object); err != nil {
		log.WithError(err).Error("Failed to create object")
		return err
	}
	log.Info("Object created successfully")
	return nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch *core.ObjectPatch) (*core.CanvasObject, error) {
	key, err := objectKey(id)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"object_id": id, "key": key})

	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.fetch(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		log.Warn("Object not found for update")
		return nil, fmt.Errorf("object %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(o)
	if err := s.put(ctx, key, o); err != nil {
		log.WithError(err).Error("Failed to update object")
		return nil, err
	}
	log.WithField("fields", patch.Fields()).Info("Object updated successfully")
	return o, nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) ([]*core.CanvasObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		removed []*core.CanvasObject
		targets []s3types.ObjectIdentifier
	)
	for _, id := range ids {
		key, err := objectKey(id)
		if err != nil {
			continue
		}
		o, err := s.fetch(ctx, key)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		removed = append(removed, o)
		targets = append(targets, s3types.ObjectIdentifier{Key: aws.String(key)})
	}
	if len(targets) == 0 {
		return nil, nil
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3types.Delete{Objects: targets},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return nil, fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
	}

	logrus.WithField("requested", len(ids)).Infof("Deleted %d objects", len(removed))
	return removed, nil
}
