package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"collabcanvas/core"
	"collabcanvas/stores/storetest"
)

func TestStore(t *testing.T) {
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	defer s.Close()

	storetest.Run(t, s)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "canvas.db")
	ctx := context.Background()

	s, err := NewStore(dsn)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	if err := s.Insert(ctx, core.Materialize(core.ObjectPatch{}, "kept", time.Now())); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	s.Close()

	s, err = NewStore(dsn)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx, "kept"); err != nil {
		t.Errorf("Get() after reopen failed: %v", err)
	}
}
