package workflow

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/workgraph/pkg/schema"
)

var (
	// ErrNodeNotFound is returned when an operation references a node id that
	// is not in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrSlotNotFound is returned when a slot index is out of range for a node.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrLinkNotFound is returned when a slot names a link that is not in the
	// link table, or that is attached to a different slot.
	ErrLinkNotFound = errors.New("link not found")

	// ErrDuplicateNodeID is returned by [Graph.AddNode] when the id is taken.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrDuplicateLinkID is returned by [Graph.AddLink] when the id is taken.
	ErrDuplicateLinkID = errors.New("duplicate link ID")

	// ErrInvalidLinkID is returned by [Graph.AddLink] for non-positive ids.
	ErrInvalidLinkID = errors.New("link ID must be positive")
)

// Graph is the indexed, in-memory form of a workflow. Nodes are indexed by
// id and links are kept as objects keyed by id.
//
// Graph is a plain node index plus link table: [Graph.Connect] and
// [Graph.Disconnect] touch only the link table and never the slots of the
// nodes involved. Keeping slots and links consistent is the job of the
// connect package.
//
// The zero value is not usable; use [New] or [Load]. A Graph is not safe
// for concurrent use.
type Graph struct {
	nodes      map[int]*Node
	order      []int
	links      map[int]*Link
	groups     []Group
	lastNodeID int
	lastLinkID int

	config  map[string]any
	extra   map[string]any
	appMeta map[string]any
	version float64
	unknown RawFields

	catalog schema.Catalog
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[int]*Node),
		links: make(map[int]*Link),
	}
}

func (g *Graph) reset() {
	*g = *New()
}

// LastNodeID returns the node id counter.
func (g *Graph) LastNodeID() int { return g.lastNodeID }

// LastLinkID returns the link id counter. It is never below the largest
// link id in the table.
func (g *Graph) LastLinkID() int { return g.lastLinkID }

// Config returns the document config map. Modifications affect the graph.
func (g *Graph) Config() map[string]any { return g.config }

// Extra returns the document extra map without app metadata.
func (g *Graph) Extra() map[string]any { return g.extra }

// AppMeta returns the app-specific annotations kept apart from Extra.
func (g *Graph) AppMeta() map[string]any { return g.appMeta }

// SetAppMeta replaces the app-specific annotations.
func (g *Graph) SetAppMeta(m map[string]any) { g.appMeta = m }

// Catalog returns the node-type schemas resolved by the last Configure, or
// nil when they were unavailable.
func (g *Graph) Catalog() schema.Catalog { return g.catalog }

// =============================================================================
// Nodes
// =============================================================================

// Node returns the node with the given id. The pointer refers to the node in
// the graph, so modifications affect the graph.
func (g *Graph) Node(id int) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// AddNode inserts a copy of n and returns the stored node. A zero id is
// replaced by the next free id. Returns ErrDuplicateNodeID if the id is
// taken.
func (g *Graph) AddNode(n Node) (*Node, error) {
	if n.ID <= 0 {
		n.ID = g.lastNodeID + 1
	}
	if _, exists := g.nodes[n.ID]; exists {
		return nil, ErrDuplicateNodeID
	}
	node := &n
	g.nodes[n.ID] = node
	g.order = append(g.order, n.ID)
	g.lastNodeID = max(g.lastNodeID, n.ID)
	return node, nil
}

// RemoveNode deletes the node from the node table and reports whether it
// existed. Links referencing the node are left in place.
func (g *Graph) RemoveNode(id int) bool {
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(x int) bool { return x == id })
	return true
}

// FindNodesByType returns the nodes whose type equals nodeType.
func (g *Graph) FindNodesByType(nodeType string) []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		if n.Type == nodeType {
			out = append(out, n)
		}
	}
	return out
}

// FindNodesByClass returns the nodes whose schema category is class or lies
// below it ("loaders" matches "loaders/video"). Nodes without a schema never
// match.
func (g *Graph) FindNodesByClass(class string) []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		s, ok := g.catalog.Lookup(n.Type)
		if !ok {
			continue
		}
		if s.Category == class || strings.HasPrefix(s.Category, class+"/") {
			out = append(out, n)
		}
	}
	return out
}

// =============================================================================
// Links
// =============================================================================

// Link returns the link with the given id.
func (g *Graph) Link(id int) (*Link, bool) {
	l, ok := g.links[id]
	return l, ok
}

// Links returns all links sorted by id.
func (g *Graph) Links() []*Link {
	out := make([]*Link, 0, len(g.links))
	for _, id := range slices.Sorted(maps.Keys(g.links)) {
		out = append(out, g.links[id])
	}
	return out
}

// LinkCount returns the number of links.
func (g *Graph) LinkCount() int { return len(g.links) }

// Connect allocates the next link id and inserts a link row. Node slots are
// not updated.
func (g *Graph) Connect(originID, originSlot, targetID, targetSlot int, typ SlotType) *Link {
	g.lastLinkID++
	l := &Link{
		ID:         g.lastLinkID,
		OriginID:   originID,
		OriginSlot: originSlot,
		TargetID:   targetID,
		TargetSlot: targetSlot,
		Type:       typ,
	}
	g.links[l.ID] = l
	return l
}

// AddLink inserts a link row with a caller-chosen id and raises the link
// counter to cover it.
func (g *Graph) AddLink(l Link) error {
	if l.ID <= 0 {
		return ErrInvalidLinkID
	}
	if _, exists := g.links[l.ID]; exists {
		return ErrDuplicateLinkID
	}
	g.links[l.ID] = &l
	g.lastLinkID = max(g.lastLinkID, l.ID)
	return nil
}

// Disconnect removes a link row and reports whether it existed. Node slots
// are not updated.
func (g *Graph) Disconnect(id int) bool {
	if _, ok := g.links[id]; !ok {
		return false
	}
	delete(g.links, id)
	return true
}

// Groups returns a copy of the group list.
func (g *Graph) Groups() []Group {
	out := make([]Group, len(g.groups))
	for i, gr := range g.groups {
		out[i] = gr.clone()
	}
	return out
}

// Clone returns a deep copy of the graph. The schema catalog is shared.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:      make(map[int]*Node, len(g.nodes)),
		order:      slices.Clone(g.order),
		links:      make(map[int]*Link, len(g.links)),
		groups:     g.Groups(),
		lastNodeID: g.lastNodeID,
		lastLinkID: g.lastLinkID,
		config:     cloneMap(g.config),
		extra:      cloneMap(g.extra),
		appMeta:    cloneMap(g.appMeta),
		version:    g.version,
		unknown:    g.unknown.Clone(),
		catalog:    g.catalog,
	}
	for id, n := range g.nodes {
		c.nodes[id] = n.Clone()
	}
	for id, l := range g.links {
		cp := *l
		c.links[id] = &cp
	}
	return c
}
