package workflow

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Bounding is a group's box as [x, y, width, height].
type Bounding [4]float64

// Contains reports whether p lies inside the box.
func (b Bounding) Contains(p Vec2) bool {
	return p[0] >= b[0] && p[0] <= b[0]+b[2] && p[1] >= b[1] && p[1] <= b[1]+b[3]
}

// UnmarshalJSON accepts a list of at least four numbers, an object keyed
// "0".."3", or an object with x, y, width and height.
func (b *Bounding) UnmarshalJSON(data []byte) error {
	var arr []any
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) < 4 {
			return fmt.Errorf("bounding has %d elements, want 4", len(arr))
		}
		return b.fill(arr[:4])
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("bounding must be a list or an object")
	}
	if _, ok := obj["0"]; ok {
		return b.fill([]any{obj["0"], obj["1"], obj["2"], obj["3"]})
	}
	return b.fill([]any{obj["x"], obj["y"], obj["width"], obj["height"]})
}

func (b *Bounding) fill(vals []any) error {
	for i, v := range vals {
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("bounding[%d] is not a number", i)
		}
		b[i] = f
	}
	return nil
}

// Group is a titled box on the canvas. Membership is derived from node
// positions and never stored.
type Group struct {
	ID       int
	Title    string
	Bounding Bounding
	Color    string
	FontSize float64
	Flags    map[string]any
	Extra    RawFields
}

func (g Group) clone() Group {
	g.Flags = cloneMap(g.Flags)
	g.Extra = g.Extra.Clone()
	return g
}

// parseGroup decodes one group entry. A missing id is returned as 0 and
// assigned later.
func parseGroup(raw json.RawMessage) (Group, error) {
	m, err := splitObject(raw)
	if err != nil {
		return Group{}, err
	}
	var g Group
	if g.ID, _, err = takeInt(m, "id"); err != nil {
		return Group{}, err
	}
	if _, ok := m["bounding"]; !ok {
		return Group{}, fmt.Errorf("group has no bounding")
	}
	if err := take(m, "bounding", &g.Bounding); err != nil {
		return Group{}, err
	}
	if err := take(m, "title", &g.Title); err != nil {
		return Group{}, err
	}
	if err := take(m, "color", &g.Color); err != nil {
		return Group{}, err
	}
	if err := take(m, "font_size", &g.FontSize); err != nil {
		return Group{}, err
	}
	if err := take(m, "flags", &g.Flags); err != nil {
		return Group{}, err
	}
	if len(m) > 0 {
		g.Extra = m
	}
	return g, nil
}

// MarshalJSON writes the group with a four-number bounding list.
func (g Group) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	w.field("id", g.ID)
	w.field("title", g.Title)
	w.field("bounding", g.Bounding[:])
	if g.Color != "" {
		w.field("color", g.Color)
	}
	if g.FontSize != 0 {
		w.field("font_size", g.FontSize)
	}
	if g.Flags != nil {
		w.field("flags", g.Flags)
	}
	w.rest(g.Extra)
	return w.bytes()
}

// assignGroupIDs gives groups without an id the next free one, in order.
func assignGroupIDs(groups []Group) {
	next := 0
	for _, g := range groups {
		next = max(next, g.ID)
	}
	seen := map[int]bool{}
	for i := range groups {
		if groups[i].ID <= 0 || seen[groups[i].ID] {
			next++
			groups[i].ID = next
		}
		seen[groups[i].ID] = true
	}
}

// GroupMembers returns the nodes whose position falls inside the group, in
// graph order. It returns nil when the group does not exist.
func (g *Graph) GroupMembers(groupID int) []*Node {
	i := slices.IndexFunc(g.groups, func(gr Group) bool { return gr.ID == groupID })
	if i < 0 {
		return nil
	}
	box := g.groups[i].Bounding
	var out []*Node
	for _, n := range g.Nodes() {
		if box.Contains(n.Pos) {
			out = append(out, n)
		}
	}
	return out
}

// GroupsOf returns the ids of the groups containing the node.
func (g *Graph) GroupsOf(nodeID int) []int {
	n, ok := g.nodes[nodeID]
	if !ok {
		return nil
	}
	var out []int
	for _, gr := range g.groups {
		if gr.Bounding.Contains(n.Pos) {
			out = append(out, gr.ID)
		}
	}
	return out
}
