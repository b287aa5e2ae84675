package postgres

import (
	"context"
	"errors"
	"fmt"

	"collabcanvas/core"
	"collabcanvas/stores/sqlrow"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS canvas_objects (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	x DOUBLE PRECISION NOT NULL,
	y DOUBLE PRECISION NOT NULL,
	width DOUBLE PRECISION NOT NULL,
	height DOUBLE PRECISION NOT NULL,
	rotation DOUBLE PRECISION NOT NULL DEFAULT 0,
	group_id TEXT,
	z_index INTEGER NOT NULL DEFAULT 0,
	fill TEXT NOT NULL,
	stroke TEXT,
	stroke_width DOUBLE PRECISION,
	opacity DOUBLE PRECISION NOT NULL DEFAULT 1,
	type_properties TEXT NOT NULL DEFAULT '{}',
	style_properties TEXT NOT NULL DEFAULT '{}',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_by TEXT,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	locked_by TEXT,
	lock_acquired_at BIGINT
);`

type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to databaseURL and creates the table if needed.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create canvas_objects table: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]*core.CanvasObject, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+sqlrow.Columns+" FROM canvas_objects ORDER BY z_index, created_at, id")
	if err != nil {
		logrus.WithError(err).Error("Failed to list objects")
		return nil, err
	}
	return collect(rows)
}

func (s *Store) Get(ctx context.Context, id string) (*core.CanvasObject, error) {
	o, err := sqlrow.Scan(s.pool.QueryRow(ctx,
		"SELECT "+sqlrow.Columns+" FROM canvas_objects WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("object %s: %w", id, core.ErrNotFound)
	}
	return o, err
}

func (s *Store) Insert(ctx context.Context, object *core.CanvasObject) error {
	log := logrus.WithField("object_id", object.ID)
	values, err := sqlrow.Values(object)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, sqlrow.InsertSQL(core.ObjectsTable, sqlrow.Dollar), values...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		log.Warn("Object already exists")
		return fmt.Errorf("object %s: %w", object.ID, core.ErrConflict)
	}
	if err != nil {
		log.WithError(err).Error("Failed to insert object")
		return err
	}
	log.Info("Object created successfully")
	return nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch *core.ObjectPatch) (*core.CanvasObject, error) {
	log := logrus.WithField("object_id", id)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	o, err := sqlrow.Scan(tx.QueryRow(ctx,
		"SELECT "+sqlrow.Columns+" FROM canvas_objects WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		log.Warn("Object not found for update")
		return nil, fmt.Errorf("object %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(o)
	values, err := sqlrow.Values(o)
	if err != nil {
		return nil, err
	}
	args := append(values[1:], id)
	if _, err := tx.Exec(ctx, sqlrow.UpdateSQL(core.ObjectsTable, sqlrow.Dollar), args...); err != nil {
		log.WithError(err).Error("Failed to update object")
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.WithField("fields", patch.Fields()).Info("Object updated successfully")
	return o, nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) ([]*core.CanvasObject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		"DELETE FROM canvas_objects WHERE id = ANY($1) RETURNING "+sqlrow.Columns, ids)
	if err != nil {
		logrus.WithError(err).Error("Failed to delete objects")
		return nil, err
	}
	removed, err := collect(rows)
	if err != nil {
		return nil, err
	}

	logrus.WithField("requested", len(ids)).Infof("Deleted %d objects", len(removed))
	return removed, nil
}

func collect(rows pgx.Rows) ([]*core.CanvasObject, error) {
	defer rows.Close()

	var objects []*core.CanvasObject
	for rows.Next() {
		o, err := sqlrow.Scan(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}
