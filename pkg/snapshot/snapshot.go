// Package snapshot stores titled, timestamped copies of workflow documents.
//
// A snapshot is identified by "<workflowID>_<yyyyMMddHHmmss>". Saving a
// second snapshot of the same workflow within the same second replaces the
// first. Listing returns newest first.
//
// Backends:
//   - file: one JSON file per snapshot in a directory (default)
//   - sqlite: a single SQLite database file
//   - redis: JSON values plus sorted-set indexes
//   - mongo: one document per snapshot in a collection
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/workflow"
)

// ErrNotFound is wrapped by every error for a missing snapshot.
var ErrNotFound = errors.New("snapshot not found")

// idTimeLayout is the timestamp part of a snapshot id.
const idTimeLayout = "20060102150405"

// Info describes a snapshot without its document.
type Info struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Snapshot is a stored workflow document.
type Snapshot struct {
	Info
	Document json.RawMessage `json:"workflow_snapshot"`
}

// New builds a snapshot of doc. The title is trimmed and must not be empty.
// An empty workflowID is replaced by a random one.
func New(workflowID, title string, doc *workflow.Document) (*Snapshot, error) {
	if doc == nil {
		return nil, wgerrors.New(wgerrors.ErrCodeInvalidInput, "document is required")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, wgerrors.Wrap(wgerrors.ErrCodeInternal, err, "encode workflow")
	}
	return NewRaw(workflowID, title, data, time.Now())
}

// NewRaw builds a snapshot from an encoded document at the given time.
func NewRaw(workflowID, title string, doc json.RawMessage, at time.Time) (*Snapshot, error) {
	if workflowID == "" {
		workflowID = uuid.NewString()
	}
	if err := wgerrors.ValidateWorkflowID(workflowID); err != nil {
		return nil, err
	}
	title, err := wgerrors.ValidateTitle(title)
	if err != nil {
		return nil, err
	}
	if !json.Valid(doc) {
		return nil, wgerrors.New(wgerrors.ErrCodeMalformedInput, "workflow snapshot is not valid JSON")
	}
	at = at.UTC().Truncate(time.Millisecond)
	return &Snapshot{
		Info: Info{
			ID:         MakeID(workflowID, at),
			WorkflowID: workflowID,
			Title:      title,
			CreatedAt:  at,
		},
		Document: doc,
	}, nil
}

// MakeID returns the snapshot id for a workflow at a time.
func MakeID(workflowID string, at time.Time) string {
	return fmt.Sprintf("%s_%s", workflowID, at.UTC().Format(idTimeLayout))
}

// Workflow decodes the stored document.
func (s *Snapshot) Workflow() (*workflow.Document, error) {
	return workflow.ParseDocument(s.Document)
}

// Store persists snapshots.
type Store interface {
	// Save stores s, replacing any snapshot with the same id.
	Save(ctx context.Context, s *Snapshot) error

	// Load returns the snapshot with the given id.
	Load(ctx context.Context, id string) (*Snapshot, error)

	// List returns the snapshots of a workflow, newest first. An empty
	// workflowID lists every snapshot.
	List(ctx context.Context, workflowID string) ([]Info, error)

	// Rename changes a snapshot's title.
	Rename(ctx context.Context, id, title string) error

	// Delete removes a snapshot.
	Delete(ctx context.Context, id string) error

	Close() error
}

func notFound(id string) error {
	return wgerrors.Wrap(wgerrors.ErrCodeSnapshotNotFound, ErrNotFound, "snapshot %q", id)
}

func backendErr(err error, op string) error {
	return wgerrors.Wrap(wgerrors.ErrCodeCollaborator, err, "%s", op)
}

// checkID rejects ids that could escape a store's namespace.
func checkID(id string) error {
	if err := wgerrors.ValidateWorkflowID(id); err != nil {
		return wgerrors.New(wgerrors.ErrCodeInvalidInput, "invalid snapshot id %q", id)
	}
	return nil
}

func checkSnapshot(s *Snapshot) error {
	if s == nil {
		return wgerrors.New(wgerrors.ErrCodeInvalidInput, "snapshot is required")
	}
	if err := checkID(s.ID); err != nil {
		return err
	}
	if _, err := wgerrors.ValidateTitle(s.Title); err != nil {
		return err
	}
	if !json.Valid(s.Document) {
		return wgerrors.New(wgerrors.ErrCodeMalformedInput, "snapshot %q has no valid workflow", s.ID)
	}
	return nil
}

// =============================================================================
// Backend selection
// =============================================================================

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Dir           string // file
	DSN           string // sqlite
	RedisAddr     string // redis
	MongoURI      string // mongo
	MongoDatabase string // mongo
}

// Open creates the store named by cfg.Backend. An empty backend is "file".
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileStore(cfg.Dir)
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.DSN)
	case BackendRedis:
		return OpenRedis(ctx, cfg.RedisAddr)
	case BackendMongo:
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	}
	return nil, wgerrors.New(wgerrors.ErrCodeInvalidInput, "unknown snapshot backend %q", cfg.Backend)
}
