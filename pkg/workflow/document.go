package workflow

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
)

// AppMetaKey is the member under which app-specific annotations are stored,
// either at the top level or inside "extra".
const AppMetaKey = "mobile_ui_metadata"

// DefaultVersion is written when a document carries no version.
const DefaultVersion = 0.4

// Document is the interchange form of a workflow, as exchanged with the
// execution server.
//
// Decoding is lenient: nodes and links may be lists or id-keyed objects,
// links may be tuples or objects, and group boxes may use any of the common
// encodings. Entries that cannot be decoded are dropped and recorded in
// Issues rather than failing the whole document. Encoding always writes
// lists, link tuples and four-number boxes.
type Document struct {
	LastNodeID int
	LastLinkID int
	Nodes      []Node
	Links      LinkList
	Groups     []Group
	Config     map[string]any
	Extra      map[string]any
	Version    float64
	Unknown    RawFields // top-level members the model does not interpret

	// Issues lists entries skipped while decoding.
	Issues []Issue
}

// Issue describes a document entry that was skipped while decoding, or
// skipped or repaired while configuring.
type Issue struct {
	Kind  string // "node", "link", "group", "field" or "slot"
	Index string // list index or object key
	Err   error
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s %s: %v", i.Kind, i.Index, i.Err)
}

// Unwrap returns a MALFORMED_INPUT error wrapping the cause.
func (i Issue) Unwrap() error {
	return wgerrors.Wrap(wgerrors.ErrCodeMalformedInput, i.Err, "skipped %s %s", i.Kind, i.Index)
}

// UnmarshalJSON decodes a document. Only a non-object top level is an error;
// counters, config, extra and version that cannot be decoded are recorded in
// Issues and left at their zero value.
func (d *Document) UnmarshalJSON(data []byte) error {
	m, err := splitObject(data)
	if err != nil {
		return fmt.Errorf("decode workflow: %w", err)
	}
	var out Document
	if out.LastNodeID, _, err = takeInt(m, "last_node_id"); err != nil {
		out.skip("field", "last_node_id", err)
	}
	if out.LastLinkID, _, err = takeInt(m, "last_link_id"); err != nil {
		out.skip("field", "last_link_id", err)
	}
	if err := take(m, "config", &out.Config); err != nil {
		out.skip("field", "config", err)
		out.Config = nil
	}
	if err := take(m, "extra", &out.Extra); err != nil {
		out.skip("field", "extra", err)
		out.Extra = nil
	}
	if out.Version, err = takeFloat(m, "version"); err != nil {
		out.skip("field", "version", err)
	}

	if raw, ok := m["nodes"]; ok {
		delete(m, "nodes")
		out.decodeNodes(raw)
	}
	if raw, ok := m["links"]; ok {
		delete(m, "links")
		out.decodeLinks(raw)
	}
	if raw, ok := m["groups"]; ok {
		delete(m, "groups")
		out.decodeGroups(raw)
	}
	if len(m) > 0 {
		out.Unknown = m
	}
	*d = out
	return nil
}

func (d *Document) skip(kind, index string, err error) {
	d.Issues = append(d.Issues, Issue{Kind: kind, Index: index, Err: err})
}

// entries splits a list or an id-keyed object into indexed raw entries.
// Object keys are visited in numeric order.
func (d *Document) entries(kind string, raw json.RawMessage) (keys []string, vals []json.RawMessage) {
	switch firstByte(raw) {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			d.skip(kind, "*", err)
			return nil, nil
		}
		for i, v := range list {
			keys = append(keys, strconv.Itoa(i))
			vals = append(vals, v)
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			d.skip(kind, "*", err)
			return nil, nil
		}
		keys = make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, errA := strconv.Atoi(keys[i])
			b, errB := strconv.Atoi(keys[j])
			if errA == nil && errB == nil {
				return a < b
			}
			return keys[i] < keys[j]
		})
		for _, k := range keys {
			vals = append(vals, obj[k])
		}
	default:
		if !isNull(raw) {
			d.skip(kind, "*", fmt.Errorf("expected list or object"))
		}
	}
	return keys, vals
}

func (d *Document) decodeNodes(raw json.RawMessage) {
	keyed := firstByte(raw) == '{'
	keys, vals := d.entries("node", raw)
	for i, v := range vals {
		var n Node
		err := json.Unmarshal(v, &n)
		if err != nil && keyed {
			// Keyed entries may omit the id and rely on the key.
			if id, convErr := strconv.Atoi(keys[i]); convErr == nil {
				n, err = decodeNodeWithID(v, id)
			}
		}
		if err != nil {
			d.skip("node", keys[i], err)
			continue
		}
		d.Nodes = append(d.Nodes, n)
	}
}

func decodeNodeWithID(raw json.RawMessage, id int) (Node, error) {
	m, err := splitObject(raw)
	if err != nil {
		return Node{}, err
	}
	if _, ok := m["id"]; ok {
		return Node{}, fmt.Errorf("invalid node id")
	}
	m["id"] = json.RawMessage(strconv.Itoa(id))
	patched, err := json.Marshal(m)
	if err != nil {
		return Node{}, err
	}
	var n Node
	err = json.Unmarshal(patched, &n)
	return n, err
}

func (d *Document) decodeLinks(raw json.RawMessage) {
	keyed := firstByte(raw) == '{'
	keys, vals := d.entries("link", raw)
	for i, v := range vals {
		if isNull(v) {
			continue
		}
		keyID := 0
		if keyed {
			keyID, _ = strconv.Atoi(keys[i])
		}
		l, err := parseLink(v, keyID)
		if err != nil {
			d.skip("link", keys[i], err)
			continue
		}
		d.Links = append(d.Links, l)
	}
}

func (d *Document) decodeGroups(raw json.RawMessage) {
	keys, vals := d.entries("group", raw)
	for i, v := range vals {
		g, err := parseGroup(v)
		if err != nil {
			d.skip("group", keys[i], err)
			continue
		}
		d.Groups = append(d.Groups, g)
	}
	assignGroupIDs(d.Groups)
}

// MarshalJSON writes the canonical encoding.
func (d Document) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	w.field("last_node_id", d.LastNodeID)
	w.field("last_link_id", d.LastLinkID)
	nodes := d.Nodes
	if nodes == nil {
		nodes = []Node{}
	}
	w.field("nodes", nodes)
	links := d.Links
	if links == nil {
		links = LinkList{}
	}
	w.field("links", links)
	groups := d.Groups
	if groups == nil {
		groups = []Group{}
	}
	w.field("groups", groups)
	config := d.Config
	if config == nil {
		config = map[string]any{}
	}
	w.field("config", config)
	extra := d.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	w.field("extra", extra)
	version := d.Version
	if version == 0 {
		version = DefaultVersion
	}
	w.field("version", version)
	w.rest(d.Unknown)
	return w.bytes()
}

// Node returns the node with the given id, or nil.
func (d *Document) Node(id int) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Link returns the link with the given id, or nil.
func (d *Document) Link(id int) *Link {
	for i := range d.Links {
		if d.Links[i].ID == id {
			return &d.Links[i]
		}
	}
	return nil
}

// RemoveLink deletes the link row with the given id and returns it.
func (d *Document) RemoveLink(id int) (Link, bool) {
	i := slices.IndexFunc(d.Links, func(l Link) bool { return l.ID == id })
	if i < 0 {
		return Link{}, false
	}
	l := d.Links[i]
	d.Links = slices.Delete(d.Links, i, i+1)
	return l, true
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := &Document{
		LastNodeID: d.LastNodeID,
		LastLinkID: d.LastLinkID,
		Links:      slices.Clone(d.Links),
		Config:     cloneMap(d.Config),
		Extra:      cloneMap(d.Extra),
		Version:    d.Version,
		Unknown:    d.Unknown.Clone(),
		Issues:     slices.Clone(d.Issues),
	}
	if d.Nodes != nil {
		c.Nodes = make([]Node, len(d.Nodes))
		for i := range d.Nodes {
			c.Nodes[i] = *d.Nodes[i].Clone()
		}
	}
	if d.Groups != nil {
		c.Groups = make([]Group, len(d.Groups))
		for i, g := range d.Groups {
			c.Groups[i] = g.clone()
		}
	}
	return c
}

// =============================================================================
// Reading and writing
// =============================================================================

// ParseDocument decodes a workflow document from bytes.
func ParseDocument(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, wgerrors.Wrap(wgerrors.ErrCodeMalformedInput, err, "decode workflow")
	}
	return &d, nil
}

// ReadDocument decodes a workflow document from r. It does not close r.
func ReadDocument(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return ParseDocument(data)
}

// LoadDocument reads a workflow document from a file.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadDocument(f)
}

// WriteDocument encodes d as indented JSON to w.
func WriteDocument(w io.Writer, d *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// SaveDocument writes d to a file at path.
func SaveDocument(path string, d *Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteDocument(f, d); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
