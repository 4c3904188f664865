package workflow

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrInconsistent is wrapped by every violation reported by Validate.
var ErrInconsistent = errors.New("inconsistent graph")

// Validate checks that the link table and the node slots agree:
//
//  1. The link counter covers every link id.
//  2. Every link's endpoints exist, its target input points back at it and
//     its origin output lists it.
//  3. Every input link and every output link id names an existing link
//     attached to that slot.
//
// It returns nil for a consistent graph, or all violations joined with
// errors.Join, each wrapping ErrInconsistent.
func (g *Graph) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...)))
	}

	for _, id := range slices.Sorted(maps.Keys(g.links)) {
		l := g.links[id]
		if id > g.lastLinkID {
			fail("link %d exceeds last_link_id %d", id, g.lastLinkID)
		}
		origin, ok := g.nodes[l.OriginID]
		if !ok {
			fail("link %d: origin node %d missing", id, l.OriginID)
		} else if out, ok := origin.Output(l.OriginSlot); !ok {
			fail("link %d: origin node %d has no output %d", id, l.OriginID, l.OriginSlot)
		} else if !out.HasLink(id) {
			fail("link %d: origin node %d output %d does not list it", id, l.OriginID, l.OriginSlot)
		}
		target, ok := g.nodes[l.TargetID]
		if !ok {
			fail("link %d: target node %d missing", id, l.TargetID)
		} else if in, ok := target.Input(l.TargetSlot); !ok {
			fail("link %d: target node %d has no input %d", id, l.TargetID, l.TargetSlot)
		} else if in.Link == nil || *in.Link != id {
			fail("link %d: target node %d input %d does not point at it", id, l.TargetID, l.TargetSlot)
		}
	}

	for _, n := range g.Nodes() {
		for slot, in := range n.Inputs {
			if in.Link == nil {
				continue
			}
			l, ok := g.links[*in.Link]
			if !ok {
				fail("node %d input %d: dangling link %d", n.ID, slot, *in.Link)
			} else if l.TargetID != n.ID || l.TargetSlot != slot {
				fail("node %d input %d: link %d targets node %d slot %d", n.ID, slot, l.ID, l.TargetID, l.TargetSlot)
			}
		}
		for slot, out := range n.Outputs {
			for _, id := range out.Links {
				l, ok := g.links[id]
				if !ok {
					fail("node %d output %d: dangling link %d", n.ID, slot, id)
				} else if l.OriginID != n.ID || l.OriginSlot != slot {
					fail("node %d output %d: link %d starts at node %d slot %d", n.ID, slot, id, l.OriginID, l.OriginSlot)
				}
			}
		}
	}
	return errors.Join(errs...)
}
