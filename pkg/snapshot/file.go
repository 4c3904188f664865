package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
)

// FileStore keeps one JSON file per snapshot, named after its id.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// fileRecord is the on-disk layout. The id is the file name.
type fileRecord struct {
	WorkflowID string          `json:"workflow_id"`
	Title      string          `json:"title"`
	CreatedAt  time.Time       `json:"createdAt"`
	Document   json.RawMessage `json:"workflow_snapshot"`
}

// NewFileStore creates a file store in baseDir.
// If baseDir is empty, defaults to ~/.config/workgraph/snapshots/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "workgraph", "snapshots")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, wgerrors.Wrap(wgerrors.ErrCodeInvalidPath, err, "create snapshot dir")
	}
	return &FileStore{baseDir: baseDir}, nil
}

// snapshotPath maps an id to its file. Ids that would not make a plain,
// visible file name in baseDir are rejected.
func (s *FileStore) snapshotPath(id string) (string, error) {
	name := id + ".json"
	if err := wgerrors.ValidateFilename(name); err != nil {
		return "", wgerrors.Wrap(wgerrors.ErrCodeInvalidInput, err, "invalid snapshot id %q", id)
	}
	return filepath.Join(s.baseDir, name), nil
}

func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := checkSnapshot(snap); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(snap.ID, fileRecord{
		WorkflowID: snap.WorkflowID,
		Title:      snap.Title,
		CreatedAt:  snap.CreatedAt,
		Document:   snap.Document,
	})
}

// write replaces the file atomically.
func (s *FileStore) write(id string, rec fileRecord) error {
	path, err := s.snapshotPath(id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(s.baseDir, ".snapshot-*")
	if err != nil {
		return backendErr(err, "create snapshot file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return backendErr(err, "write snapshot file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return backendErr(err, "write snapshot file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return backendErr(err, "write snapshot file")
	}
	return nil
}

func (s *FileStore) read(id string) (fileRecord, error) {
	var rec fileRecord
	path, err := s.snapshotPath(id)
	if err != nil {
		return rec, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rec, notFound(id)
		}
		return rec, backendErr(err, "read snapshot file")
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, wgerrors.Wrap(wgerrors.ErrCodeMalformedInput, err, "parse snapshot %q", id)
	}
	return rec, nil
}

func (s *FileStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Info:     Info{ID: id, WorkflowID: rec.WorkflowID, Title: rec.Title, CreatedAt: rec.CreatedAt},
		Document: rec.Document,
	}, nil
}

// List reads every snapshot file. Files that cannot be parsed are skipped.
func (s *FileStore) List(ctx context.Context, workflowID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, backendErr(err, "read snapshot dir")
	}

	var out []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if workflowID != "" && !strings.HasPrefix(id, workflowID+"_") {
			continue
		}
		rec, err := s.read(id)
		if err != nil {
			continue
		}
		if workflowID != "" && rec.WorkflowID != workflowID {
			continue
		}
		out = append(out, Info{ID: id, WorkflowID: rec.WorkflowID, Title: rec.Title, CreatedAt: rec.CreatedAt})
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *FileStore) Rename(ctx context.Context, id, title string) error {
	if err := checkID(id); err != nil {
		return err
	}
	title, err := wgerrors.ValidateTitle(title)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(id)
	if err != nil {
		return err
	}
	rec.Title = title
	return s.write(id, rec)
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.snapshotPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFound(id)
		}
		return backendErr(err, "remove snapshot file")
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Path returns the directory holding the snapshot files.
func (s *FileStore) Path() string {
	return s.baseDir
}

func sortNewestFirst(infos []Info) {
	slices.SortStableFunc(infos, func(a, b Info) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

var _ Store = (*FileStore)(nil)
