package memory

import (
	"context"
	"fmt"
	"sync"

	"collabcanvas/core"

	"github.com/sirupsen/logrus"
)

// Store keeps canvas objects in a map. Each Store is independent.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*core.CanvasObject
}

func NewStore() *Store {
	return &Store{objects: make(map[string]*core.CanvasObject)}
}

func (s *Store) ListAll(ctx context.Context) ([]*core.CanvasObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects := make([]*core.CanvasObject, 0, len(s.objects))
	for _, o := range s.objects {
		objects = append(objects, o.Clone())
	}
	core.SortObjects(objects)

	logrus.Debugf("Listed %d objects", len(objects))
	return objects, nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.CanvasObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.objects[id]
	if !ok {
		logrus.WithField("object_id", id).Debug("Object not found")
		return nil, fmt.Errorf("object %s: %w", id, core.ErrNotFound)
	}
	return o.Clone(), nil
}

func (s *Store) Insert(ctx context.Context, object *core.CanvasObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithField("object_id", object.ID)
	if _, exists := s.objects[object.ID]; exists {
		log.Warn("Object already exists")
		return fmt.Errorf("object %s: %w", object.ID, core.ErrConflict)
	}
	s.objects[object.ID] = object.Clone()
	log.Info("Object created successfully")
	return nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch *core.ObjectPatch) (*core.CanvasObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithField("object_id", id)
	o, ok := s.objects[id]
	if !ok {
		log.Warn("Object not found for update")
		return nil, fmt.Errorf("object %s: %w", id, core.ErrNotFound)
	}

	next := o.Clone()
	patch.Apply(next)
	s.objects[id] = next
	log.WithField("fields", patch.Fields()).Info("Object updated successfully")
	return next.Clone(), nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) ([]*core.CanvasObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*core.CanvasObject
	for _, id := range ids {
		if o, ok := s.objects[id]; ok {
			removed = append(removed, o)
			delete(s.objects, id)
		}
	}
	logrus.WithField("requested", len(ids)).Infof("Deleted %d objects", len(removed))
	return removed, nil
}
