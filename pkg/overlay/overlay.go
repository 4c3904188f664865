// Package overlay stages edits to widget values and node modes on top of a
// workflow without touching it.
//
// Every consumer asks the overlay for the current value of a parameter:
// [Overlay.GetValue] returns the staged value if there is one, else the
// attached [Processor]'s live value, else the caller's fallback, which is
// normally the value stored in the workflow. Writes go into the overlay,
// are forwarded to the processor when one is attached, and are reported to
// an audit sink.
//
// Single parameters can also be edited in two phases: [Overlay.StartEditing]
// holds a value aside, [Overlay.Save] stages it and [Overlay.Cancel] drops
// it. Staged values reach a graph only through [Overlay.Apply].
//
// An Overlay is owned by one editing session and is not safe for concurrent
// use.
package overlay

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/workgraph/pkg/audit"
	"github.com/matzehuels/workgraph/pkg/observability"
	"github.com/matzehuels/workgraph/pkg/workflow"
)

// DefaultSource tags audit events when Options.Source is empty.
const DefaultSource = "overlay"

// Options configures an Overlay.
type Options struct {
	// Processor is attached from the start. It can be changed later with
	// Attach and Detach.
	Processor Processor

	// Sink receives an event for every write. Nil discards events.
	Sink audit.Sink

	// Source tags audit events, e.g. "cli" or "api".
	Source string

	// NodeType names the type of a node for audit events.
	NodeType func(nodeID int) string

	Logger *log.Logger
}

// Editing is the in-progress two-phase edit.
type Editing struct {
	NodeID int
	Param  string
	Value  any
}

// Overlay is a session-scoped store of staged edits.
type Overlay struct {
	edits     Edits
	processor Processor
	sink      audit.Sink
	source    string
	nodeType  func(int) string
	logger    *log.Logger
	editing   *Editing
}

// New creates an empty overlay.
func New(opts Options) *Overlay {
	o := &Overlay{
		processor: opts.Processor,
		sink:      opts.Sink,
		source:    opts.Source,
		nodeType:  opts.NodeType,
		logger:    opts.Logger,
	}
	if o.sink == nil {
		o.sink = audit.Nop{}
	}
	if o.source == "" {
		o.source = DefaultSource
	}
	if o.nodeType == nil {
		o.nodeType = func(int) string { return "" }
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	return o
}

// Attach sets the live processor.
func (o *Overlay) Attach(p Processor) { o.processor = p }

// Detach removes the live processor.
func (o *Overlay) Detach() { o.processor = nil }

// Processor returns the attached processor, or nil.
func (o *Overlay) Processor() Processor { return o.processor }

// Edits returns the current staged values. The result is unaffected by
// later writes.
func (o *Overlay) Edits() Edits { return o.edits }

// Restore replaces the staged values with e, such as a checkpoint taken
// with Edits. Nothing is forwarded or audited.
func (o *Overlay) Restore(e Edits) { o.edits = e }

// =============================================================================
// Reads
// =============================================================================

// GetValue returns the current value of a parameter: the staged value, else
// the processor's live value, else fallback.
func (o *Overlay) GetValue(nodeID int, param string, fallback any) any {
	if v, ok := o.edits.Get(nodeID, param); ok {
		return v
	}
	if o.processor != nil {
		if v, ok := o.processor.Value(nodeID, param); ok {
			return v
		}
	}
	return fallback
}

// GetNodeMode returns the current mode of a node, with the same precedence
// as GetValue.
func (o *Overlay) GetNodeMode(nodeID int, fallback workflow.Mode) workflow.Mode {
	if v, ok := o.edits.Get(nodeID, ModeKey); ok {
		if m, ok := toMode(v); ok {
			return m
		}
	}
	if o.processor != nil {
		if m, ok := o.processor.Mode(nodeID); ok {
			return m
		}
	}
	return fallback
}

// IsStaged reports whether a parameter has a staged value.
func (o *Overlay) IsStaged(nodeID int, param string) bool {
	_, ok := o.edits.Get(nodeID, param)
	return ok
}

// =============================================================================
// Writes
// =============================================================================

// SetValue stages a widget value, forwards it to the processor and records
// an audit event. A ModeKey write is handled as SetNodeMode.
func (o *Overlay) SetValue(nodeID int, param string, v any) {
	if param == ModeKey {
		if m, ok := toMode(v); ok {
			o.SetNodeMode(nodeID, m)
			return
		}
		o.logger.Warn("ignoring invalid mode", "node", nodeID, "value", v)
		return
	}
	old := o.GetValue(nodeID, param, nil)
	o.edits = o.edits.With(nodeID, param, v)
	if o.processor != nil {
		o.processor.SetValue(nodeID, param, v)
	}
	o.record(nodeID, audit.ChangeWidgetValue, audit.WidgetPath(nodeID, param), old, v)
}

// SetNodeMode stages a node mode, forwards it to the processor and records
// an audit event.
func (o *Overlay) SetNodeMode(nodeID int, m workflow.Mode) {
	var old any
	if v, ok := o.edits.Get(nodeID, ModeKey); ok {
		old = v
	} else if o.processor != nil {
		if pm, ok := o.processor.Mode(nodeID); ok {
			old = pm
		}
	}
	o.edits = o.edits.With(nodeID, ModeKey, m)
	if o.processor != nil {
		o.processor.SetMode(nodeID, m)
	}
	o.record(nodeID, audit.ChangeNodeMode, audit.ModePath(nodeID), old, m)
}

func (o *Overlay) record(nodeID int, change, path string, old, v any) {
	e := audit.NewEvent(nodeID, o.nodeType(nodeID), change, path, old, v, o.source)
	if err := o.sink.Record(e); err != nil {
		o.logger.Warn("audit sink failed", "path", path, "err", err)
	}
	observability.Overlay().OnEdit(context.Background(), change)
}

// HasModifications reports whether anything is staged or the processor has
// unsaved changes.
func (o *Overlay) HasModifications() bool {
	if !o.edits.Empty() {
		return true
	}
	return o.processor != nil && o.processor.HasUnsavedChanges()
}

// ClearModifications drops every staged value and clears the processor's
// unsaved state. Call it once the values have been saved elsewhere. An
// in-progress two-phase edit is kept.
func (o *Overlay) ClearModifications() {
	o.edits = Edits{}
	if o.processor != nil {
		o.processor.ClearModifications()
	}
}

// =============================================================================
// Two-phase editing
// =============================================================================

// StartEditing begins editing a parameter with v as the held value. Calling
// it while already editing replaces the target and the held value.
func (o *Overlay) StartEditing(nodeID int, param string, v any) {
	o.editing = &Editing{NodeID: nodeID, Param: param, Value: v}
}

// UpdateStaged replaces the held value. It reports false when not editing.
func (o *Overlay) UpdateStaged(v any) bool {
	if o.editing == nil {
		return false
	}
	o.editing.Value = v
	return true
}

// Editing returns the in-progress edit.
func (o *Overlay) Editing() (Editing, bool) {
	if o.editing == nil {
		return Editing{}, false
	}
	return *o.editing, true
}

// Save stages the held value as SetValue would and ends editing. It reports
// false when not editing.
func (o *Overlay) Save() bool {
	if o.editing == nil {
		return false
	}
	e := *o.editing
	o.editing = nil
	o.SetValue(e.NodeID, e.Param, e.Value)
	return true
}

// Cancel drops the held value and ends editing. Staged values are untouched.
func (o *Overlay) Cancel() { o.editing = nil }

// =============================================================================
// Commit
// =============================================================================

// CommitResult reports what Apply wrote.
type CommitResult struct {
	Applied int
	// Unknown lists staged keys whose node or widget does not exist in the
	// graph. They were not written.
	Unknown []Key
}

// Apply writes the staged values into g's nodes: widget values by name and
// modes directly. Staged values stay in the overlay until
// ClearModifications.
func (o *Overlay) Apply(g *workflow.Graph) CommitResult {
	var r CommitResult
	for _, k := range o.edits.Keys() {
		v, _ := o.edits.Get(k.NodeID, k.Param)
		n, ok := g.Node(k.NodeID)
		if !ok {
			r.Unknown = append(r.Unknown, k)
			continue
		}
		if k.Param == ModeKey {
			if m, ok := toMode(v); ok {
				n.Mode = m
				r.Applied++
				continue
			}
			r.Unknown = append(r.Unknown, k)
			continue
		}
		if n.SetWidgetValue(k.Param, v) {
			r.Applied++
		} else {
			r.Unknown = append(r.Unknown, k)
		}
	}
	for _, k := range r.Unknown {
		o.logger.Warn("staged value has no target", "node", k.NodeID, "param", k.Param)
	}
	observability.Overlay().OnCommit(context.Background(), r.Applied)
	return r
}

// Commit returns a copy of g with the staged values applied. g is not
// modified.
func (o *Overlay) Commit(g *workflow.Graph) (*workflow.Graph, CommitResult) {
	c := g.Clone()
	r := o.Apply(c)
	return c, r
}
