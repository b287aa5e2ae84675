package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"collabcanvas/core"
	"collabcanvas/stores/sqlrow"

	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS canvas_objects (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	width REAL NOT NULL,
	height REAL NOT NULL,
	rotation REAL NOT NULL DEFAULT 0,
	group_id TEXT,
	z_index INTEGER NOT NULL DEFAULT 0,
	fill TEXT NOT NULL,
	stroke TEXT,
	stroke_width REAL,
	opacity REAL NOT NULL DEFAULT 1,
	type_properties TEXT NOT NULL DEFAULT '{}',
	style_properties TEXT NOT NULL DEFAULT '{}',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_by TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	locked_by TEXT,
	lock_acquired_at INTEGER
);`

type Store struct {
	db *sql.DB
}

// NewStore opens dataSourceName with the pure-Go driver and creates the
// table if needed. ":memory:" works because the pool holds one connection.
func NewStore(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create canvas_objects table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListAll(ctx context.Context) ([]*core.CanvasObject, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqlrow.Columns+" FROM canvas_objects ORDER BY z_index, created_at, id")
	if err != nil {
		logrus.WithError(err).Error("Failed to list objects")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("Failed to close object rows")
		}
	}()

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

func (s *Store) Get(ctx context.Context, id string) (*core.CanvasObject, error) {
	o, err := sqlrow.Scan(s.db.QueryRowContext(ctx,
		"SELECT "+sqlrow.Columns+" FROM canvas_objects WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
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

	_, err = s.db.ExecContext(ctx, sqlrow.InsertSQL(core.ObjectsTable, sqlrow.Question), values...)
	if isConstraint(err) {
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	o, err := sqlrow.Scan(tx.QueryRowContext(ctx,
		"SELECT "+sqlrow.Columns+" FROM canvas_objects WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
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
	if _, err := tx.ExecContext(ctx, sqlrow.UpdateSQL(core.ObjectsTable, sqlrow.Question), args...); err != nil {
		log.WithError(err).Error("Failed to update object")
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.WithField("fields", patch.Fields()).Info("Object updated successfully")
	return o, nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) ([]*core.CanvasObject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"DELETE FROM canvas_objects WHERE id IN ("+marks+") RETURNING "+sqlrow.Columns, args...)
	if err != nil {
		logrus.WithError(err).Error("Failed to delete objects")
		return nil, err
	}
	defer rows.Close()

	var removed []*core.CanvasObject
	for rows.Next() {
		o, err := sqlrow.Scan(rows)
		if err != nil {
			return nil, err
		}
		removed = append(removed, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logrus.WithField("requested", len(ids)).Infof("Deleted %d objects", len(removed))
	return removed, nil
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
