package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	title       TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	document    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_workflow ON snapshots (workflow_id, created_at DESC);
`

// SQLiteStore keeps snapshots in a single SQLite database.
type SQLiteStore struct {
	conn *sql.DB
	Path string
}

// OpenSQLite opens (creating if needed) the database at path with WAL mode
// enabled. If path is empty, defaults to ~/.config/workgraph/snapshots.db
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		path = filepath.Join(home, ".config", "workgraph", "snapshots.db")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, wgerrors.Wrap(wgerrors.ErrCodeInvalidPath, err, "create database dir")
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, backendErr(err, "opening database")
	}
	// A single connection keeps ":memory:" databases shared across calls.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, backendErr(err, "setting WAL mode")
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, backendErr(err, "creating schema")
	}
	return &SQLiteStore{conn: conn, Path: path}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := checkSnapshot(snap); err != nil {
		return err
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (id, workflow_id, title, created_at, document) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.WorkflowID, snap.Title, snap.CreatedAt.UnixMilli(), []byte(snap.Document))
	if err != nil {
		return backendErr(err, "insert snapshot")
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var (
		snap    Snapshot
		created int64
		doc     []byte
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, workflow_id, title, created_at, document FROM snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.WorkflowID, &snap.Title, &created, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, backendErr(err, "query snapshot")
	}
	snap.CreatedAt = time.UnixMilli(created).UTC()
	snap.Document = doc
	return &snap, nil
}

func (s *SQLiteStore) List(ctx context.Context, workflowID string) ([]Info, error) {
	query := `SELECT id, workflow_id, title, created_at FROM snapshots`
	var args []any
	if workflowID != "" {
		query += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, backendErr(err, "list snapshots")
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var (
			info    Info
			created int64
		)
		if err := rows.Scan(&info.ID, &info.WorkflowID, &info.Title, &created); err != nil {
			return nil, backendErr(err, "scan snapshot")
		}
		info.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr(err, "list snapshots")
	}
	return out, nil
}

func (s *SQLiteStore) Rename(ctx context.Context, id, title string) error {
	if err := checkID(id); err != nil {
		return err
	}
	title, err := wgerrors.ValidateTitle(title)
	if err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx, `UPDATE snapshots SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return backendErr(err, "rename snapshot")
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return backendErr(err, "delete snapshot")
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return backendErr(err, "rows affected")
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

var _ Store = (*SQLiteStore)(nil)
