package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/observability"
	"github.com/matzehuels/workgraph/pkg/schema"
)

// DefaultSchemaTimeout bounds the schema fetch made by Configure.
const DefaultSchemaTimeout = 10 * time.Second

// ConfigureOptions controls how a document is loaded into a graph.
type ConfigureOptions struct {
	// Schemas resolves node-type metadata used to name widgets and fill in
	// missing widget values. Nil skips resolution; nodes get generic widgets.
	Schemas schema.Provider

	// Timeout bounds the schema fetch. Zero uses DefaultSchemaTimeout.
	Timeout time.Duration

	// Logger receives warnings about skipped entries. Nil uses log.Default().
	Logger *log.Logger
}

// Report summarizes a Configure call.
type Report struct {
	Nodes   int
	Links   int
	Groups  int
	Skipped []Issue

	// Repaired is set when Configure itself dropped nodes or links, or
	// cleared slot references, so the graph no longer matches the document
	// it was loaded from. Serialize gives the consistent form.
	Repaired bool

	// SchemaErr is a METADATA_UNAVAILABLE error when node-type metadata
	// could not be fetched. Loading still succeeded.
	SchemaErr error
}

// Load creates a graph from doc. It is New followed by Configure.
func Load(ctx context.Context, doc *Document, opts ConfigureOptions) (*Graph, Report) {
	g := New()
	r := g.Configure(ctx, doc, opts)
	return g, r
}

// Configure replaces the graph's contents with doc.
//
// Structure is loaded first and never depends on node-type metadata: nodes,
// links and groups are indexed, entries that cannot be used are skipped and
// reported, slot references to links that were not loaded are cleared, and
// the id counters are raised to cover every id present. Then
// metadata is fetched to resolve widget names and pad short widget value
// lists with defaults. A failed fetch is logged and reported in
// Report.SchemaErr; nodes fall back to generic "widget_N" names.
//
// Configure never fails. doc is not modified.
func (g *Graph) Configure(ctx context.Context, doc *Document, opts ConfigureOptions) Report {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	start := time.Now()
	g.reset()

	var r Report
	if doc == nil {
		return r
	}
	r.Skipped = append(r.Skipped, doc.Issues...)
	decoded := len(r.Skipped)

	for i := range doc.Nodes {
		n := doc.Nodes[i].Clone()
		n.Widgets = nil
		if _, err := g.AddNode(*n); err != nil {
			r.Skipped = append(r.Skipped, Issue{Kind: "node", Index: strconv.Itoa(n.ID), Err: err})
		}
	}
	for _, l := range doc.Links {
		if err := g.checkEndpoints(l); err != nil {
			r.Skipped = append(r.Skipped, Issue{Kind: "link", Index: strconv.Itoa(l.ID), Err: err})
			continue
		}
		if err := g.AddLink(l); err != nil {
			r.Skipped = append(r.Skipped, Issue{Kind: "link", Index: strconv.Itoa(l.ID), Err: err})
		}
	}
	r.Skipped = append(r.Skipped, g.scrubSlots()...)
	r.Repaired = len(r.Skipped) > decoded
	for _, gr := range doc.Groups {
		g.groups = append(g.groups, gr.clone())
	}
	assignGroupIDs(g.groups)

	g.lastNodeID = max(g.lastNodeID, doc.LastNodeID)
	g.lastLinkID = max(g.lastLinkID, doc.LastLinkID)
	g.config = cloneMap(doc.Config)
	g.extra = cloneMap(doc.Extra)
	g.version = doc.Version
	if g.version == 0 {
		g.version = DefaultVersion
	}
	g.unknown = doc.Unknown.Clone()
	g.splitAppMeta()

	for _, issue := range r.Skipped {
		logger.Warn("skipping malformed entry", "kind", issue.Kind, "index", issue.Index, "err", issue.Err)
	}

	r.SchemaErr = g.resolveWidgets(ctx, opts, logger)

	r.Nodes, r.Links, r.Groups = len(g.nodes), len(g.links), len(g.groups)
	observability.Graph().OnConfigure(ctx, r.Nodes, r.Links, len(r.Skipped), time.Since(start))
	return r
}

func (g *Graph) checkEndpoints(l Link) error {
	if _, ok := g.nodes[l.OriginID]; !ok {
		return wgerrors.Wrap(wgerrors.ErrCodeMalformedInput, ErrNodeNotFound, "origin node %d", l.OriginID)
	}
	if _, ok := g.nodes[l.TargetID]; !ok {
		return wgerrors.Wrap(wgerrors.ErrCodeMalformedInput, ErrNodeNotFound, "target node %d", l.TargetID)
	}
	return nil
}

// scrubSlots reconciles node slots with the link table after loading.
//
// Slot references to links that have no row, or whose row is attached to a
// different slot, are cleared; skipped link entries leave such references
// behind. A row then becomes the link of its target input if that input is
// free, and is dropped if the input already holds another link. Rows missing
// from their origin output are registered on it. Every change is reported.
// Rows naming slots a node does not declare are left alone.
//
// The link counter is raised past every id a slot held so a cleared id is
// never handed out again.
func (g *Graph) scrubSlots() []Issue {
	var issues []Issue
	clearRef := func(nodeID int, where string, slot, linkID int) {
		g.lastLinkID = max(g.lastLinkID, linkID)
		issues = append(issues, Issue{
			Kind:  "slot",
			Index: fmt.Sprintf("%d.%s[%d]", nodeID, where, slot),
			Err:   fmt.Errorf("link %d: %w", linkID, ErrLinkNotFound),
		})
	}
	for _, n := range g.Nodes() {
		for slot := range n.Inputs {
			in := &n.Inputs[slot]
			if in.Link == nil {
				continue
			}
			id := *in.Link
			if l, ok := g.links[id]; ok && l.TargetID == n.ID && l.TargetSlot == slot {
				continue
			}
			in.Link = nil
			clearRef(n.ID, "inputs", slot, id)
		}
		for slot := range n.Outputs {
			out := &n.Outputs[slot]
			for _, id := range slices.Clone(out.Links) {
				if l, ok := g.links[id]; ok && l.OriginID == n.ID && l.OriginSlot == slot {
					continue
				}
				out.RemoveLink(id)
				clearRef(n.ID, "outputs", slot, id)
			}
		}
	}

	for _, id := range slices.Sorted(maps.Keys(g.links)) {
		l := g.links[id]
		in, ok := g.nodes[l.TargetID].Input(l.TargetSlot)
		if !ok {
			continue
		}
		out, ok := g.nodes[l.OriginID].Output(l.OriginSlot)
		if !ok {
			continue
		}
		switch {
		case in.Link == nil:
			linkID := id
			in.Link = &linkID
			issues = append(issues, Issue{
				Kind:  "slot",
				Index: fmt.Sprintf("%d.inputs[%d]", l.TargetID, l.TargetSlot),
				Err:   fmt.Errorf("attached link %d from the link table", id),
			})
		case *in.Link != id:
			delete(g.links, id)
			out.RemoveLink(id)
			issues = append(issues, Issue{
				Kind:  "link",
				Index: strconv.Itoa(id),
				Err:   fmt.Errorf("node %d input %d already holds link %d: %w", l.TargetID, l.TargetSlot, *in.Link, ErrDuplicateLinkID),
			})
			continue
		}
		if !out.HasLink(id) {
			out.AddLink(id)
			issues = append(issues, Issue{
				Kind:  "slot",
				Index: fmt.Sprintf("%d.outputs[%d]", l.OriginID, l.OriginSlot),
				Err:   fmt.Errorf("registered link %d from the link table", id),
			})
		}
	}
	return issues
}

// splitAppMeta moves app annotations out of extra and the unknown top-level
// members. A top-level value wins over one inside extra.
func (g *Graph) splitAppMeta() {
	if v, ok := g.extra[AppMetaKey].(map[string]any); ok {
		g.appMeta = v
	}
	delete(g.extra, AppMetaKey)
	if raw, ok := g.unknown[AppMetaKey]; ok {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err == nil && m != nil {
			g.appMeta = m
		}
		delete(g.unknown, AppMetaKey)
	}
}

func (g *Graph) resolveWidgets(ctx context.Context, opts ConfigureOptions, logger *log.Logger) error {
	var schemaErr error
	if opts.Schemas != nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultSchemaTimeout
		}
		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		catalog, err := opts.Schemas.FetchTypeSchema(fetchCtx)
		cancel()
		observability.Graph().OnSchemaFetch(ctx, len(catalog), time.Since(start), err)
		if err != nil {
			schemaErr = wgerrors.Wrap(wgerrors.ErrCodeMetadataUnavailable, err, "fetch node type schemas")
			logger.Warn("node type metadata unavailable, using generic widgets", "err", err)
		} else {
			g.catalog = catalog
		}
	}

	for _, n := range g.Nodes() {
		s, ok := g.catalog.Lookup(n.Type)
		if !ok {
			n.Widgets = schema.GenericWidgets(n.Values.Len())
			continue
		}
		n.Widgets = schema.WidgetsFor(s)
		if n.Values.Keyed() {
			continue
		}
		for i := n.Values.Len(); i < len(n.Widgets); i++ {
			n.Values.Values = append(n.Values.Values, cloneValue(n.Widgets[i].Default))
		}
	}
	return schemaErr
}

// Serialize projects the graph back into a document. Links are written as
// tuples in id order and app metadata is folded into extra.
func (g *Graph) Serialize() *Document {
	d := &Document{
		LastNodeID: g.lastNodeID,
		LastLinkID: g.lastLinkID,
		Nodes:      make([]Node, 0, len(g.order)),
		Links:      make(LinkList, 0, len(g.links)),
		Groups:     g.Groups(),
		Config:     cloneMap(g.config),
		Extra:      cloneMap(g.extra),
		Version:    g.version,
		Unknown:    g.unknown.Clone(),
	}
	for _, n := range g.Nodes() {
		c := n.Clone()
		c.Widgets = nil
		d.Nodes = append(d.Nodes, *c)
	}
	for _, l := range g.Links() {
		d.Links = append(d.Links, *l)
	}
	if g.appMeta != nil {
		if d.Extra == nil {
			d.Extra = map[string]any{}
		}
		d.Extra[AppMetaKey] = cloneMap(g.appMeta)
	}
	return d
}
