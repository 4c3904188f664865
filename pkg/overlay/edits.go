package overlay

import (
	"maps"
	"slices"
)

// ModeKey is the reserved parameter name under which a node's staged mode
// is kept. Mode is a node property, not a widget, so it cannot collide with
// a widget name.
const ModeKey = "__mode__"

// Key identifies a staged parameter.
type Key struct {
	NodeID int
	Param  string
}

// Edits is an immutable set of staged values. Methods that change it return
// a new value and leave the receiver untouched, so an Edits can be kept as a
// checkpoint and restored later.
type Edits struct {
	nodes map[int]map[string]any
}

// Get returns the staged value of a parameter.
func (e Edits) Get(nodeID int, param string) (any, bool) {
	v, ok := e.nodes[nodeID][param]
	return v, ok
}

// Len returns the number of staged values.
func (e Edits) Len() int {
	n := 0
	for _, params := range e.nodes {
		n += len(params)
	}
	return n
}

// Empty reports whether nothing is staged.
func (e Edits) Empty() bool { return len(e.nodes) == 0 }

// Nodes returns the ids of nodes with staged values, ascending.
func (e Edits) Nodes() []int {
	return slices.Sorted(maps.Keys(e.nodes))
}

// Params returns a copy of the staged values of one node.
func (e Edits) Params(nodeID int) map[string]any {
	return maps.Clone(e.nodes[nodeID])
}

// Keys returns every staged key ordered by node id, then parameter name.
func (e Edits) Keys() []Key {
	var out []Key
	for _, id := range e.Nodes() {
		for _, p := range slices.Sorted(maps.Keys(e.nodes[id])) {
			out = append(out, Key{NodeID: id, Param: p})
		}
	}
	return out
}

// With returns a copy of e with the parameter set to v. Only the changed
// node's map is copied.
func (e Edits) With(nodeID int, param string, v any) Edits {
	nodes := maps.Clone(e.nodes)
	if nodes == nil {
		nodes = make(map[int]map[string]any)
	}
	params := maps.Clone(nodes[nodeID])
	if params == nil {
		params = make(map[string]any)
	}
	params[param] = v
	nodes[nodeID] = params
	return Edits{nodes: nodes}
}

// Without returns a copy of e with the parameter removed.
func (e Edits) Without(nodeID int, param string) Edits {
	if _, ok := e.nodes[nodeID][param]; !ok {
		return e
	}
	nodes := maps.Clone(e.nodes)
	params := maps.Clone(nodes[nodeID])
	delete(params, param)
	if len(params) == 0 {
		delete(nodes, nodeID)
	} else {
		nodes[nodeID] = params
	}
	return Edits{nodes: nodes}
}
