package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/workgraph/pkg/audit"
	"github.com/matzehuels/workgraph/pkg/connect"
	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/snapshot"
	"github.com/matzehuels/workgraph/pkg/workflow"
)

// auditSource tags audit events recorded by the API.
const auditSource = "api"

// =============================================================================
// Responses
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "code": code, "error": msg})
}

// statusFor maps an error code to an HTTP status.
func statusFor(code wgerrors.Code) int {
	switch code {
	case wgerrors.ErrCodeMalformedInput, wgerrors.ErrCodeInvalidInput, wgerrors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case wgerrors.ErrCodeNotFound, wgerrors.ErrCodeSnapshotNotFound:
		return http.StatusNotFound
	case wgerrors.ErrCodeStructural:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := wgerrors.GetCode(err)
	if code == "" {
		code = wgerrors.ErrCodeInternal
	}
	status := statusFor(code)
	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "code", code, "err", err)
	}
	writeFailure(w, status, string(code), wgerrors.UserMessage(err))
}

func missingField(name string) error {
	return wgerrors.New(wgerrors.ErrCodeInvalidInput, "missing required field: %s", name)
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return wgerrors.Wrap(wgerrors.ErrCodeInvalidInput, err, "read request body")
	}
	if len(body) > maxBodyBytes {
		return wgerrors.New(wgerrors.ErrCodeInvalidInput, "request body too large")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return wgerrors.Wrap(wgerrors.ErrCodeMalformedInput, err, "invalid JSON in request")
	}
	return nil
}

// =============================================================================
// Workflow routes
// =============================================================================

type normalizeResponse struct {
	Success  bool               `json:"success"`
	Workflow *workflow.Document `json:"workflow"`
	Nodes    int                `json:"nodes"`
	Links    int                `json:"links"`
	Groups   int                `json:"groups"`
	Skipped  []string           `json:"skipped"`
	Warning  string             `json:"warning,omitempty"`
}

func (s *Server) loadGraph(ctx context.Context, doc *workflow.Document) (*workflow.Graph, workflow.Report) {
	return workflow.Load(ctx, doc, workflow.ConfigureOptions{
		Schemas: s.schemas,
		Timeout: s.schemaTimeout,
		Logger:  s.logger,
	})
}

// normalize loads the posted workflow and returns its canonical form.
func (s *Server) normalize(w http.ResponseWriter, r *http.Request) {
	var doc workflow.Document
	if err := decode(r, &doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	g, rep := s.loadGraph(r.Context(), &doc)

	resp := normalizeResponse{
		Success:  true,
		Workflow: g.Serialize(),
		Nodes:    rep.Nodes,
		Links:    rep.Links,
		Groups:   rep.Groups,
		Skipped:  make([]string, 0, len(rep.Skipped)),
	}
	for _, is := range rep.Skipped {
		resp.Skipped = append(resp.Skipped, is.Error())
	}
	if rep.SchemaErr != nil {
		resp.Warning = wgerrors.UserMessage(rep.SchemaErr)
	}
	writeJSON(w, http.StatusOK, resp)
}

type connectRequest struct {
	Workflow   *workflow.Document `json:"workflow"`
	SourceID   int                `json:"source_id"`
	TargetID   int                `json:"target_id"`
	SourceSlot int                `json:"source_slot"`
	TargetSlot int                `json:"target_slot"`
}

type disconnectRequest struct {
	Workflow *workflow.Document `json:"workflow"`
	LinkID   int                `json:"link_id"`
}

type connectResponse struct {
	Success  bool               `json:"success"`
	Workflow *workflow.Document `json:"workflow"`
	LinkID   int                `json:"link_id"`
	Replaced []int              `json:"replaced,omitempty"`
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Workflow == nil {
		s.writeError(w, r, missingField("workflow"))
		return
	}
	g, rep := workflow.Load(r.Context(), req.Workflow, workflow.ConfigureOptions{Logger: s.logger})
	if rep.Repaired {
		req.Workflow = g.Serialize()
	}

	res, err := connect.CreateConnection(req.Workflow, g, req.SourceID, req.TargetID, req.SourceSlot, req.TargetSlot)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var old any
	if len(res.Replaced) > 0 {
		old = res.Replaced[0]
	}
	s.record(req.TargetID, g, audit.InputPath(req.TargetID, req.TargetSlot), old, res.LinkID)

	writeJSON(w, http.StatusOK, connectResponse{
		Success:  true,
		Workflow: res.Document,
		LinkID:   res.LinkID,
		Replaced: res.Replaced,
	})
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Workflow == nil {
		s.writeError(w, r, missingField("workflow"))
		return
	}
	g, rep := workflow.Load(r.Context(), req.Workflow, workflow.ConfigureOptions{Logger: s.logger})
	if rep.Repaired {
		req.Workflow = g.Serialize()
	}

	l, known := g.Link(req.LinkID)
	res, err := connect.RemoveConnection(req.Workflow, g, req.LinkID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if known {
		s.record(l.TargetID, g, audit.InputPath(l.TargetID, l.TargetSlot), req.LinkID, nil)
	}
	writeJSON(w, http.StatusOK, connectResponse{Success: true, Workflow: res.Document, LinkID: req.LinkID})
}

func (s *Server) record(nodeID int, g *workflow.Graph, path string, old, v any) {
	var nodeType string
	if n, ok := g.Node(nodeID); ok {
		nodeType = n.Type
	}
	e := audit.NewEvent(nodeID, nodeType, audit.ChangeLink, path, old, v, auditSource)
	if err := s.sink.Record(e); err != nil {
		s.logger.Warn("audit sink failed", "path", path, "err", err)
	}
}

// =============================================================================
// Snapshot routes
// =============================================================================

type saveRequest struct {
	WorkflowID string          `json:"workflow_id"`
	Title      *string         `json:"title"`
	Workflow   json.RawMessage `json:"workflow_snapshot"`
}

func (s *Server) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	switch {
	case req.WorkflowID == "":
		s.writeError(w, r, missingField("workflow_id"))
		return
	case req.Title == nil:
		s.writeError(w, r, missingField("title"))
		return
	case len(req.Workflow) == 0:
		s.writeError(w, r, missingField("workflow_snapshot"))
		return
	}
	// Reject documents the editor could never open.
	if _, err := workflow.ParseDocument(req.Workflow); err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, err := snapshot.NewRaw(req.WorkflowID, *req.Title, req.Workflow, time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.Save(r.Context(), snap); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"message":  fmt.Sprintf("workflow snapshot saved: %s", snap.Title),
		"snapshot": snap.Info,
	})
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List(r.Context(), r.URL.Query().Get("workflow_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if infos == nil {
		infos = []snapshot.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"snapshots":   infos,
		"total_count": len(infos),
	})
}

func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "snapshot": snap})
}

func (s *Server) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *Server) renameSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Title string `json:"title"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.Rename(r.Context(), id, req.Title); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.store.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "snapshot": snap.Info})
}
