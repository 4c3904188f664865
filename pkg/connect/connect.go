// Package connect performs structural link edits on a workflow held in both
// of its forms, a [workflow.Document] and a [workflow.Graph].
//
// Every edit is pure: the inputs are cloned, the clones are edited in
// lockstep, and the new pair is returned. Callers swap in the returned pair
// as a unit, so no reader ever sees one form updated without the other.
//
// An edit fails only when it references a node or slot that does not exist.
// Such failures carry the STRUCTURAL error code and leave no partial state.
package connect

import (
	"context"
	"fmt"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/observability"
	"github.com/matzehuels/workgraph/pkg/workflow"
)

// Result is the outcome of a successful edit.
type Result struct {
	Document *workflow.Document
	Graph    *workflow.Graph

	// LinkID is the id of the created or removed link.
	LinkID int

	// Replaced lists links removed from the target slot to make room for
	// the new one, per form. The two ids differ only when the forms had
	// drifted apart.
	Replaced []int
}

// endpoints are the four node references of an edit.
type endpoints struct {
	docSource, docTarget     *workflow.Node
	graphSource, graphTarget *workflow.Node
}

// CreateConnection links output sourceSlot of sourceID to input targetSlot of
// targetID in both doc and g, returning new copies of both.
//
// The link type is taken from the source output. A link already attached to
// the target input is removed first, together with its id on the old origin's
// output, since an input holds at most one link. The new id is one past the
// larger of the two link counters, and the id is added to the source output
// only if not already present.
func CreateConnection(doc *workflow.Document, g *workflow.Graph, sourceID, targetID, sourceSlot, targetSlot int) (*Result, error) {
	res, err := createConnection(doc, g, sourceID, targetID, sourceSlot, targetSlot)
	linkID := 0
	if res != nil {
		linkID = res.LinkID
	}
	observability.Graph().OnConnection(context.Background(), linkID, res != nil && len(res.Replaced) > 0, err)
	return res, err
}

func createConnection(doc *workflow.Document, g *workflow.Graph, sourceID, targetID, sourceSlot, targetSlot int) (*Result, error) {
	if doc == nil || g == nil {
		return nil, wgerrors.New(wgerrors.ErrCodeInvalidInput, "document and graph are required")
	}
	d := doc.Clone()
	gc := g.Clone()

	ep, err := resolve(d, gc, sourceID, targetID)
	if err != nil {
		return nil, err
	}
	if err := checkSlots(ep, sourceID, targetID, sourceSlot, targetSlot); err != nil {
		return nil, err
	}

	linkType := ep.graphSource.Outputs[sourceSlot].Type
	if linkType == "" {
		linkType = ep.docSource.Outputs[sourceSlot].Type
	}

	res := &Result{}
	if old := ep.docTarget.Inputs[targetSlot].Link; old != nil {
		unlinkDocument(d, *old)
		res.Replaced = append(res.Replaced, *old)
	}
	if old := ep.graphTarget.Inputs[targetSlot].Link; old != nil {
		unlinkGraph(gc, *old)
		if len(res.Replaced) == 0 || res.Replaced[0] != *old {
			res.Replaced = append(res.Replaced, *old)
		}
	}

	id := max(d.LastLinkID, gc.LastLinkID()) + 1
	link := workflow.Link{
		ID:         id,
		OriginID:   sourceID,
		OriginSlot: sourceSlot,
		TargetID:   targetID,
		TargetSlot: targetSlot,
		Type:       linkType,
	}
	d.Links = append(d.Links, link)
	if err := gc.AddLink(link); err != nil {
		// The id is above both counters, so this only happens if the
		// graph's counter is below its own table.
		return nil, wgerrors.Wrap(wgerrors.ErrCodeInternal, err, "insert link %d", id)
	}

	for _, target := range []*workflow.Node{ep.docTarget, ep.graphTarget} {
		linkID := id
		target.Inputs[targetSlot].Link = &linkID
	}
	ep.docSource.Outputs[sourceSlot].AddLink(id)
	ep.graphSource.Outputs[sourceSlot].AddLink(id)
	d.LastLinkID = id

	res.Document, res.Graph, res.LinkID = d, gc, id
	return res, nil
}

// RemoveConnection removes a link from both forms, clearing the target input
// and the origin output that reference it. A link missing from both forms is
// a NOT_FOUND error.
func RemoveConnection(doc *workflow.Document, g *workflow.Graph, linkID int) (*Result, error) {
	if doc == nil || g == nil {
		return nil, wgerrors.New(wgerrors.ErrCodeInvalidInput, "document and graph are required")
	}
	if doc.Link(linkID) == nil {
		if _, ok := g.Link(linkID); !ok {
			return nil, wgerrors.New(wgerrors.ErrCodeNotFound, "link %d not found", linkID)
		}
	}
	d := doc.Clone()
	gc := g.Clone()
	unlinkDocument(d, linkID)
	unlinkGraph(gc, linkID)
	observability.Graph().OnConnection(context.Background(), linkID, false, nil)
	return &Result{Document: d, Graph: gc, LinkID: linkID}, nil
}

func resolve(d *workflow.Document, g *workflow.Graph, sourceID, targetID int) (endpoints, error) {
	var ep endpoints
	missing := func(role string, id int, form string) error {
		return wgerrors.Wrap(wgerrors.ErrCodeStructural, workflow.ErrNodeNotFound,
			"%s node %d not found in %s", role, id, form)
	}
	if ep.docSource = d.Node(sourceID); ep.docSource == nil {
		return ep, missing("source", sourceID, "document")
	}
	if ep.docTarget = d.Node(targetID); ep.docTarget == nil {
		return ep, missing("target", targetID, "document")
	}
	var ok bool
	if ep.graphSource, ok = g.Node(sourceID); !ok {
		return ep, missing("source", sourceID, "graph")
	}
	if ep.graphTarget, ok = g.Node(targetID); !ok {
		return ep, missing("target", targetID, "graph")
	}
	return ep, nil
}

func checkSlots(ep endpoints, sourceID, targetID, sourceSlot, targetSlot int) error {
	bad := func(kind string, id, slot int) error {
		return wgerrors.Wrap(wgerrors.ErrCodeStructural, workflow.ErrSlotNotFound,
			"node %d has no %s slot %d", id, kind, slot)
	}
	for _, n := range []*workflow.Node{ep.docSource, ep.graphSource} {
		if _, ok := n.Output(sourceSlot); !ok {
			return bad("output", sourceID, sourceSlot)
		}
	}
	for _, n := range []*workflow.Node{ep.docTarget, ep.graphTarget} {
		if _, ok := n.Input(targetSlot); !ok {
			return bad("input", targetID, targetSlot)
		}
	}
	return nil
}

// unlinkDocument removes link id from the document's link table, its origin
// output and its target input. When the row is missing every slot is
// scanned instead.
func unlinkDocument(d *workflow.Document, id int) {
	l, ok := d.RemoveLink(id)
	if ok {
		if n := d.Node(l.OriginID); n != nil {
			if out, ok := n.Output(l.OriginSlot); ok && out.RemoveLink(id) {
				if n := d.Node(l.TargetID); n != nil {
					clearInput(n, l.TargetSlot, id)
				}
				return
			}
		}
	}
	for i := range d.Nodes {
		scrub(&d.Nodes[i], id)
	}
}

func unlinkGraph(g *workflow.Graph, id int) {
	l, ok := g.Link(id)
	if ok {
		g.Disconnect(id)
		if n, found := g.Node(l.OriginID); found {
			if out, ok := n.Output(l.OriginSlot); ok && out.RemoveLink(id) {
				if n, found := g.Node(l.TargetID); found {
					clearInput(n, l.TargetSlot, id)
				}
				return
			}
		}
	}
	for _, n := range g.Nodes() {
		scrub(n, id)
	}
}

func clearInput(n *workflow.Node, slot, id int) {
	if in, ok := n.Input(slot); ok && in.Link != nil && *in.Link == id {
		in.Link = nil
	}
}

// scrub removes every reference to link id from a node's slots.
func scrub(n *workflow.Node, id int) {
	for i := range n.Outputs {
		n.Outputs[i].RemoveLink(id)
	}
	for i := range n.Inputs {
		clearInput(n, i, id)
	}
}

// Describe formats a link for messages.
func Describe(l workflow.Link) string {
	return fmt.Sprintf("#%d %d:%d -> %d:%d (%s)", l.ID, l.OriginID, l.OriginSlot, l.TargetID, l.TargetSlot, l.Type)
}
