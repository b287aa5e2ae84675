package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"collabcanvas/core"

	"github.com/sirupsen/logrus"
)

const ext = ".json"

// Store writes one JSON file per object under basePath.
type Store struct {
	basePath string
	mu       sync.RWMutex
}

func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		basePath = "./data"
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// objectPath rejects ids that would escape basePath.
func (s *Store) objectPath(id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return "", &core.ValidationError{Field: "id", Reason: "must be a plain name"}
	}
	return filepath.Join(s.basePath, id+ext), nil
}

func (s *Store) read(path string) (*core.CanvasObject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o core.CanvasObject
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return &o, nil
}

// write replaces path atomically via a temp file and rename.
func (s *Store) write(path string, o *core.CanvasObject) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) ListAll(ctx context.Context) ([]*core.CanvasObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithField("path", s.basePath)
	files, err := os.ReadDir(s.basePath)
	if err != nil {
		log.WithError(err).Error("Failed to read storage directory")
		return nil, err
	}

	objects := make([]*core.CanvasObject, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ext) {
			continue
		}
		o, err := s.read(filepath.Join(s.basePath, file.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read object file %s, skipping", file.Name())
			continue
		}
		objects = append(objects, o)
	}
	core.SortObjects(objects)

	log.Debugf("Listed %d objects", len(objects))
	return objects, nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.CanvasObject, error) {
	path, err := s.objectPath(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, err := s.read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", id, core.ErrNotFound)
	}
	return o, err
}

func (s *Store) Insert(ctx context.Context, object *core.CanvasObject) error {
	path, err := s.objectPath(object.ID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"object_id": object.ID, "path": path})

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		log.Warn("Object already exists")
		return fmt.Errorf("object %s: %w", object.ID, core.ErrConflict)
	}
	if err := s.write(path, object); err != nil {
		log.WithError(err).Error("Failed to write object file")
		return err
	}
	log.Info("Object created successfully")
	return nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch *core.ObjectPatch) (*core.CanvasObject, error) {
	path, err := s.objectPath(id)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"object_id": id, "path": path})

	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.read(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("Object file not found for update")
		return nil, fmt.Errorf("object %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(o)
	if err := s.write(path, o); err != nil {
		log.WithError(err).Error("Failed to write object file")
		return nil, err
	}
	log.WithField("fields", patch.Fields()).Info("Object updated successfully")
	return o, nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) ([]*core.CanvasObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*core.CanvasObject
	for _, id := range ids {
		path, err := s.objectPath(id)
		if err != nil {
			continue
		}
		o, err := s.read(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, err
		}
		if err := os.Remove(path); err != nil {
			logrus.WithError(err).WithField("object_id", id).Error("Failed to delete object file")
			return removed, err
		}
		removed = append(removed, o)
	}
	logrus.WithField("requested", len(ids)).Infof("Deleted %d objects", len(removed))
	return removed, nil
}
