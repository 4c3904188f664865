package workflow

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/matzehuels/workgraph/pkg/schema"
)

// Mode is a node's execution flag.
type Mode int

// Node modes as stored in the "mode" field.
const (
	ModeAlways    Mode = 0
	ModeOnEvent   Mode = 1
	ModeNever     Mode = 2 // muted
	ModeOnTrigger Mode = 3
	ModeBypass    Mode = 4
)

var modeNames = map[Mode]string{
	ModeAlways:    "always",
	ModeOnEvent:   "on_event",
	ModeNever:     "never",
	ModeOnTrigger: "on_trigger",
	ModeBypass:    "bypass",
}

// String returns the lowercase mode name.
func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// ParseMode accepts a mode name ("bypass", "never", "muted", ...) or number.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "muted" || s == "mute" {
		return ModeNever, nil
	}
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown mode %q", s)
	}
	return Mode(n), nil
}

// Vec2 is a position or size. Documents encode it as [x, y] or as the
// object {"0": x, "1": y} that typed arrays serialize to.
type Vec2 [2]float64

// UnmarshalJSON accepts both encodings.
func (v *Vec2) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		for i := 0; i < len(arr) && i < 2; i++ {
			v[i] = arr[i]
		}
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("expected [x, y] or {\"0\": x, \"1\": y}")
	}
	for i, key := range []string{"0", "1"} {
		if f, ok := toFloat(obj[key]); ok {
			v[i] = f
		}
	}
	return nil
}

// SlotType is the semantic type of a slot or link, such as "MODEL". Some
// producers write numbers or lists here; those are kept as their JSON text.
type SlotType string

// UnmarshalJSON accepts a string or any other JSON value.
func (t *SlotType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = SlotType(s)
		return nil
	}
	if isNull(data) {
		*t = ""
		return nil
	}
	*t = SlotType(strings.TrimSpace(string(data)))
	return nil
}

// WidgetRef marks an input that was converted from a widget.
type WidgetRef struct {
	Name string `json:"name"`
}

// Input is an input slot. It carries at most one incoming link.
type Input struct {
	Name   string
	Type   SlotType
	Link   *int
	Widget *WidgetRef
	Extra  RawFields
}

// Output is an output slot. It may feed any number of links.
type Output struct {
	Name      string
	Type      SlotType
	Links     []int
	SlotIndex *int
	Extra     RawFields

	listed bool // links was read as a list, so no links is written as []
}

// HasLink reports whether id is registered on the output.
func (o *Output) HasLink(id int) bool { return slices.Contains(o.Links, id) }

// AddLink registers id on the output. Adding an id twice has no effect.
func (o *Output) AddLink(id int) {
	if !o.HasLink(id) {
		o.Links = append(o.Links, id)
	}
}

// RemoveLink unregisters id and reports whether it was present.
func (o *Output) RemoveLink(id int) bool {
	n := len(o.Links)
	o.Links = slices.DeleteFunc(o.Links, func(l int) bool { return l == id })
	return len(o.Links) != n
}

// WidgetValues holds a node's widget values. Most documents store a list;
// some store an object keyed by widget name, in which case Names records the
// keys in order and the object form is written back.
type WidgetValues struct {
	Values []any
	Names  []string
}

// Len returns the number of values.
func (w WidgetValues) Len() int { return len(w.Values) }

// Keyed reports whether the values came from the object encoding.
func (w WidgetValues) Keyed() bool { return w.Names != nil }

// UnmarshalJSON accepts a list or an object.
func (w *WidgetValues) UnmarshalJSON(data []byte) error {
	switch firstByte(data) {
	case '[':
		w.Names = nil
		return json.Unmarshal(data, &w.Values)
	case '{':
		keys, vals, err := orderedMembers(data)
		if err != nil {
			return err
		}
		w.Names = make([]string, 0, len(keys))
		w.Values = make([]any, 0, len(keys))
		for i, k := range keys {
			var v any
			if err := json.Unmarshal(vals[i], &v); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			w.Names = append(w.Names, k)
			w.Values = append(w.Values, v)
		}
		return nil
	}
	if isNull(data) {
		*w = WidgetValues{}
		return nil
	}
	return fmt.Errorf("widgets_values: expected list or object")
}

// MarshalJSON writes the encoding the values were read in.
func (w WidgetValues) MarshalJSON() ([]byte, error) {
	if !w.Keyed() {
		if w.Values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(w.Values)
	}
	ow := newObjectWriter()
	for i, name := range w.Names {
		var v any
		if i < len(w.Values) {
			v = w.Values[i]
		}
		ow.field(name, v)
	}
	return ow.bytes()
}

func (w WidgetValues) clone() WidgetValues {
	out := WidgetValues{Names: slices.Clone(w.Names)}
	if w.Values != nil {
		out.Values = cloneValue(w.Values).([]any)
	}
	return out
}

// Node is a vertex of the workflow graph. The same struct is used by the
// interchange Document and by the indexed Graph.
type Node struct {
	ID         int
	Type       string
	Pos        Vec2
	Size       Vec2
	Flags      map[string]any
	Order      int
	Mode       Mode
	Inputs     []Input
	Outputs    []Output
	Properties map[string]any
	Values     WidgetValues
	Extra      RawFields // title, color, bgcolor and anything else

	// Widgets is the resolved widget list, filled by Graph.Configure. It is
	// a runtime cache and never serialized.
	Widgets []schema.Widget
}

// Input returns input slot i.
func (n *Node) Input(i int) (*Input, bool) {
	if i < 0 || i >= len(n.Inputs) {
		return nil, false
	}
	return &n.Inputs[i], true
}

// Output returns output slot i.
func (n *Node) Output(i int) (*Output, bool) {
	if i < 0 || i >= len(n.Outputs) {
		return nil, false
	}
	return &n.Outputs[i], true
}

// Title returns the node's display title, falling back to its type.
func (n *Node) Title() string {
	var title string
	if raw, ok := n.Extra["title"]; ok && json.Unmarshal(raw, &title) == nil && title != "" {
		return title
	}
	return n.Type
}

// WidgetIndex resolves a widget name to its position in Values, or -1.
// Keyed values are searched first, then the resolved widget list, then the
// generic "widget_N" names.
func (n *Node) WidgetIndex(name string) int {
	if n.Values.Keyed() {
		return slices.Index(n.Values.Names, name)
	}
	if i := schema.IndexOf(n.Widgets, name); i >= 0 {
		return i
	}
	if rest, ok := strings.CutPrefix(name, "widget_"); ok {
		if i, err := strconv.Atoi(rest); err == nil && i >= 0 && i < len(n.Values.Values) {
			return i
		}
	}
	return -1
}

// WidgetValue returns the current value of the named widget.
func (n *Node) WidgetValue(name string) (any, bool) {
	i := n.WidgetIndex(name)
	if i < 0 || i >= len(n.Values.Values) {
		return nil, false
	}
	return n.Values.Values[i], true
}

// SetWidgetValue replaces the value of the named widget. It reports false
// when the node has no such widget.
func (n *Node) SetWidgetValue(name string, v any) bool {
	i := n.WidgetIndex(name)
	if i < 0 {
		return false
	}
	for len(n.Values.Values) <= i {
		n.Values.Values = append(n.Values.Values, nil)
	}
	n.Values.Values[i] = v
	return true
}

// WidgetNames returns the names of the node's widgets in value order.
func (n *Node) WidgetNames() []string {
	if n.Values.Keyed() {
		return slices.Clone(n.Values.Names)
	}
	names := make([]string, 0, len(n.Widgets))
	for _, w := range n.Widgets {
		names = append(names, w.Name)
	}
	return names
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.Flags = cloneMap(n.Flags)
	c.Properties = cloneMap(n.Properties)
	c.Values = n.Values.clone()
	c.Extra = n.Extra.Clone()
	c.Widgets = slices.Clone(n.Widgets)
	if n.Inputs != nil {
		c.Inputs = make([]Input, len(n.Inputs))
		for i, in := range n.Inputs {
			in.Link = cloneIntPtr(in.Link)
			if in.Widget != nil {
				w := *in.Widget
				in.Widget = &w
			}
			in.Extra = in.Extra.Clone()
			c.Inputs[i] = in
		}
	}
	if n.Outputs != nil {
		c.Outputs = make([]Output, len(n.Outputs))
		for i, out := range n.Outputs {
			out.Links = slices.Clone(out.Links)
			out.SlotIndex = cloneIntPtr(out.SlotIndex)
			out.Extra = out.Extra.Clone()
			c.Outputs[i] = out
		}
	}
	return &c
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// =============================================================================
// JSON
// =============================================================================

// UnmarshalJSON decodes a node, keeping unknown members in Extra.
func (n *Node) UnmarshalJSON(data []byte) error {
	m, err := splitObject(data)
	if err != nil {
		return err
	}
	var out Node
	id, ok, err := takeInt(m, "id")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("node has no id")
	}
	out.ID = id
	if out.Order, _, err = takeInt(m, "order"); err != nil {
		return err
	}
	mode, _, err := takeInt(m, "mode")
	if err != nil {
		return err
	}
	out.Mode = Mode(mode)

	fields := []struct {
		key string
		dst any
	}{
		{"type", &out.Type},
		{"pos", &out.Pos},
		{"size", &out.Size},
		{"flags", &out.Flags},
		{"inputs", &out.Inputs},
		{"outputs", &out.Outputs},
		{"properties", &out.Properties},
		{"widgets_values", &out.Values},
	}
	for _, f := range fields {
		if err := take(m, f.key, f.dst); err != nil {
			return fmt.Errorf("node %d: %w", id, err)
		}
	}
	if len(m) > 0 {
		out.Extra = m
	}
	*n = out
	return nil
}

// MarshalJSON encodes the node in document member order.
func (n Node) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	w.field("id", n.ID)
	w.field("type", n.Type)
	w.field("pos", n.Pos)
	w.field("size", n.Size)
	flags := n.Flags
	if flags == nil {
		flags = map[string]any{}
	}
	w.field("flags", flags)
	w.field("order", n.Order)
	w.field("mode", int(n.Mode))
	if n.Inputs != nil {
		w.field("inputs", n.Inputs)
	}
	if n.Outputs != nil {
		w.field("outputs", n.Outputs)
	}
	props := n.Properties
	if props == nil {
		props = map[string]any{}
	}
	w.field("properties", props)
	if n.Values.Values != nil || n.Values.Keyed() {
		w.field("widgets_values", n.Values)
	}
	w.rest(n.Extra)
	return w.bytes()
}

// UnmarshalJSON decodes an input slot.
func (in *Input) UnmarshalJSON(data []byte) error {
	m, err := splitObject(data)
	if err != nil {
		return err
	}
	var out Input
	if err := take(m, "name", &out.Name); err != nil {
		return err
	}
	if err := take(m, "type", &out.Type); err != nil {
		return err
	}
	if id, ok, err := takeInt(m, "link"); err != nil {
		return err
	} else if ok {
		out.Link = &id
	}
	if err := take(m, "widget", &out.Widget); err != nil {
		return err
	}
	if len(m) > 0 {
		out.Extra = m
	}
	*in = out
	return nil
}

// MarshalJSON encodes an input slot; an unconnected slot has "link": null.
func (in Input) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	w.field("name", in.Name)
	w.field("type", in.Type)
	w.field("link", in.Link)
	if in.Widget != nil {
		w.field("widget", in.Widget)
	}
	w.rest(in.Extra)
	return w.bytes()
}

// UnmarshalJSON decodes an output slot.
func (o *Output) UnmarshalJSON(data []byte) error {
	m, err := splitObject(data)
	if err != nil {
		return err
	}
	var out Output
	if err := take(m, "name", &out.Name); err != nil {
		return err
	}
	if err := take(m, "type", &out.Type); err != nil {
		return err
	}
	if raw, ok := m["links"]; ok {
		delete(m, "links")
		if !isNull(raw) {
			var ids []any
			if err := json.Unmarshal(raw, &ids); err != nil {
				return fmt.Errorf("links: %w", err)
			}
			out.listed = true
			for _, v := range ids {
				id, err := toInt(v)
				if err != nil {
					return fmt.Errorf("links: %w", err)
				}
				out.AddLink(id)
			}
		}
	}
	if idx, ok, err := takeInt(m, "slot_index"); err != nil {
		return err
	} else if ok {
		out.SlotIndex = &idx
	}
	if len(m) > 0 {
		out.Extra = m
	}
	*o = out
	return nil
}

// MarshalJSON encodes an output slot. No links is written as null, or as []
// when the slot was decoded from an empty list.
func (o Output) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	w.field("name", o.Name)
	w.field("type", o.Type)
	switch {
	case len(o.Links) == 0 && o.listed:
		w.field("links", []int{})
	case len(o.Links) == 0:
		w.field("links", nil)
	default:
		w.field("links", o.Links)
	}
	if o.SlotIndex != nil {
		w.field("slot_index", *o.SlotIndex)
	}
	w.rest(o.Extra)
	return w.bytes()
}
