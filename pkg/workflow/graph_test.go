package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/schema"
)

// documentCmp compares documents by meaning: raw members by decoded value,
// empty and nil collections alike.
var documentCmp = []cmp.Option{
	cmpopts.IgnoreFields(Document{}, "Issues"),
	cmpopts.IgnoreUnexported(Output{}),
	cmpopts.EquateEmpty(),
	cmp.Transformer("raw", func(r json.RawMessage) any {
		var v any
		_ = json.Unmarshal(r, &v)
		return v
	}),
}

func mustLoadGraph(t *testing.T, name string, opts ConfigureOptions) (*Graph, Report) {
	t.Helper()
	g, r := Load(context.Background(), mustLoadDocument(t, name), opts)
	return g, r
}

func catalogProvider(t *testing.T) schema.Provider {
	t.Helper()
	return schema.FileProvider{Path: "../schema/testdata/object_info.json"}
}

func nodeIDs(nodes []*Node) []int {
	ids := make([]int, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestConfigureRoundTrip(t *testing.T) {
	for _, name := range []string{"basic.json", "keyed.json"} {
		t.Run(name, func(t *testing.T) {
			g, _ := mustLoadGraph(t, name, ConfigureOptions{Schemas: catalogProvider(t)})

			data, err := json.Marshal(g.Serialize())
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			doc, err := ParseDocument(data)
			if err != nil {
				t.Fatalf("reparse: %v", err)
			}
			g2, r := Load(context.Background(), doc, ConfigureOptions{Schemas: catalogProvider(t)})
			if len(r.Skipped) != 0 {
				t.Errorf("reparse skipped entries: %v", r.Skipped)
			}

			if diff := cmp.Diff(g.Serialize(), g2.Serialize(), documentCmp...); diff != "" {
				t.Errorf("round trip mismatch (-first +second):\n%s", diff)
			}
			if !slices.Equal(nodeIDs(g.Nodes()), nodeIDs(g2.Nodes())) {
				t.Errorf("node order changed")
			}
		})
	}
}

func TestConfigureBasic(t *testing.T) {
	g, r := mustLoadGraph(t, "basic.json", ConfigureOptions{})

	if r.Nodes != 3 || r.Links != 2 || r.Groups != 2 || len(r.Skipped) != 0 {
		t.Errorf("report = %+v", r)
	}
	if r.SchemaErr != nil {
		t.Errorf("SchemaErr = %v with no provider", r.SchemaErr)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if g.LastNodeID() != 3 || g.LastLinkID() != 2 {
		t.Errorf("counters = %d/%d", g.LastNodeID(), g.LastLinkID())
	}
	if g.AppMeta()["favorite"] != true {
		t.Errorf("app meta = %v", g.AppMeta())
	}
	if _, ok := g.Extra()[AppMetaKey]; ok {
		t.Error("app meta left in extra")
	}
}

func TestConfigureFoldsAppMeta(t *testing.T) {
	g, _ := mustLoadGraph(t, "keyed.json", ConfigureOptions{})

	if g.AppMeta()["lastOpened"] != "2025-01-01" {
		t.Fatalf("top-level app meta not picked up: %v", g.AppMeta())
	}
	doc := g.Serialize()
	if _, ok := doc.Unknown[AppMetaKey]; ok {
		t.Error("app meta still at top level")
	}
	meta, ok := doc.Extra[AppMetaKey].(map[string]any)
	if !ok || meta["lastOpened"] != "2025-01-01" {
		t.Errorf("extra.%s = %v", AppMetaKey, doc.Extra[AppMetaKey])
	}
}

func TestConfigureRaisesCounters(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"last_node_id": 1, "last_link_id": 0,
		"nodes": [
			{"id": 1, "outputs": [{"name": "o", "type": "X", "links": [9]}]},
			{"id": 6, "inputs": [{"name": "i", "type": "X", "link": 9}]}
		],
		"links": [[9, 1, 0, 6, 0, "X"]]
	}`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	g, _ := Load(context.Background(), doc, ConfigureOptions{})
	if g.LastNodeID() != 6 {
		t.Errorf("LastNodeID = %d, want 6", g.LastNodeID())
	}
	if g.LastLinkID() != 9 {
		t.Errorf("LastLinkID = %d, want 9", g.LastLinkID())
	}
}

func TestConfigureSkipsUnusableEntries(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"nodes": [{"id": 1}, {"id": 1}, {"id": 2}],
		"links": [[1, 1, 0, 2, 0, "X"], [1, 1, 0, 2, 0, "X"], [2, 1, 0, 99, 0, "X"]]
	}`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	g, r := Load(context.Background(), doc, ConfigureOptions{})

	if g.NodeCount() != 2 || g.LinkCount() != 1 {
		t.Errorf("graph has %d nodes, %d links; want 2, 1", g.NodeCount(), g.LinkCount())
	}
	if len(r.Skipped) != 3 {
		t.Fatalf("skipped = %v, want 3 entries", r.Skipped)
	}
	if !errors.Is(r.Skipped[0].Err, ErrDuplicateNodeID) {
		t.Errorf("skipped[0] = %v, want duplicate node", r.Skipped[0])
	}
	if !errors.Is(r.Skipped[1].Err, ErrDuplicateLinkID) {
		t.Errorf("skipped[1] = %v, want duplicate link", r.Skipped[1])
	}
	if !errors.Is(r.Skipped[2].Err, ErrNodeNotFound) {
		t.Errorf("skipped[2] = %v, want missing endpoint", r.Skipped[2])
	}
}

// skippedLinkDoc references link 1 from both slots, but its tuple has a
// non-numeric origin slot and is dropped while decoding.
const skippedLinkDoc = `{
	"nodes": [
		{"id": 1, "type": "Loader", "outputs": [{"name": "MODEL", "type": "MODEL", "links": [1]}]},
		{"id": 2, "type": "Sampler", "inputs": [{"name": "model", "type": "MODEL", "link": 1}]},
		{"id": 3, "type": "Sampler", "inputs": [{"name": "model", "type": "MODEL", "link": null}]}
	],
	"links": [[1, 1, "x", 2, 0, "MODEL"]]
}`

func TestConfigureClearsSlotsOfSkippedLinks(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed tuple", skippedLinkDoc},
		{"missing endpoint", `{
			"nodes": [
				{"id": 1, "outputs": [{"name": "MODEL", "type": "MODEL", "links": [1, 2]}]},
				{"id": 2, "inputs": [{"name": "model", "type": "MODEL", "link": 1}]}
			],
			"links": [[1, 1, 0, 9, 0, "MODEL"], [2, 1, 0, 2, 0, "MODEL"]]
		}`},
		{"link attached elsewhere", `{
			"nodes": [
				{"id": 1, "outputs": [{"name": "MODEL", "type": "MODEL", "links": [1]}]},
				{"id": 2, "inputs": [{"name": "a", "type": "MODEL", "link": 1}, {"name": "b", "type": "MODEL", "link": 1}]}
			],
			"links": [[1, 1, 0, 2, 0, "MODEL"]]
		}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.doc))
			if err != nil {
				t.Fatalf("ParseDocument: %v", err)
			}
			g, r := Load(context.Background(), doc, ConfigureOptions{})
			if err := g.Validate(); err != nil {
				t.Fatalf("Validate after Configure: %v", err)
			}
			if !r.Repaired {
				t.Error("Repaired = false, want true")
			}
			var cleared int
			for _, issue := range r.Skipped {
				if issue.Kind == "slot" && errors.Is(issue.Err, ErrLinkNotFound) {
					cleared++
				}
			}
			if cleared == 0 {
				t.Errorf("skipped = %v, want cleared slot references", r.Skipped)
			}

			g2, r2 := Load(context.Background(), g.Serialize(), ConfigureOptions{})
			if r2.Repaired || len(r2.Skipped) != 0 {
				t.Errorf("serialized form needed repairs: %v", r2.Skipped)
			}
			if err := g2.Validate(); err != nil {
				t.Errorf("Validate after reload: %v", err)
			}
		})
	}
}

func TestConfigureNeverReusesSlotLinkIDs(t *testing.T) {
	doc, err := ParseDocument([]byte(skippedLinkDoc))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	g, _ := Load(context.Background(), doc, ConfigureOptions{})

	n2, _ := g.Node(2)
	if n2.Inputs[0].Link != nil {
		t.Errorf("node 2 input still points at link %d", *n2.Inputs[0].Link)
	}
	n1, _ := g.Node(1)
	if len(n1.Outputs[0].Links) != 0 {
		t.Errorf("node 1 output links = %v, want none", n1.Outputs[0].Links)
	}
	if l := g.Connect(1, 0, 3, 0, "MODEL"); l.ID != 2 {
		t.Errorf("next link id = %d, want 2", l.ID)
	}
}

func TestConfigureAttachesUnreferencedLinks(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"nodes": [
			{"id": 1, "outputs": [{"name": "MODEL", "type": "MODEL", "links": null}]},
			{"id": 2, "inputs": [{"name": "model", "type": "MODEL", "link": null}]},
			{"id": 3, "inputs": [{"name": "model", "type": "MODEL", "link": 4}]}
		],
		"links": [[3, 1, 0, 2, 0, "MODEL"], [4, 1, 0, 3, 0, "MODEL"], [5, 1, 0, 3, 0, "MODEL"]]
	}`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	g, r := Load(context.Background(), doc, ConfigureOptions{})
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !r.Repaired {
		t.Error("Repaired = false, want true")
	}

	n1, _ := g.Node(1)
	if diff := cmp.Diff([]int{3, 4}, n1.Outputs[0].Links); diff != "" {
		t.Errorf("node 1 output links (-want +got):\n%s", diff)
	}
	n2, _ := g.Node(2)
	if n2.Inputs[0].Link == nil || *n2.Inputs[0].Link != 3 {
		t.Errorf("node 2 input = %v, want link 3", n2.Inputs[0].Link)
	}
	if _, ok := g.Link(5); ok {
		t.Error("link 5 competes with link 4 for node 3 input 0 and should be dropped")
	}
	if g.LastLinkID() != 5 {
		t.Errorf("LastLinkID = %d, want 5", g.LastLinkID())
	}
}

func TestConfigureConsistentInputNotRepaired(t *testing.T) {
	g, r := mustLoadGraph(t, "basic.json", ConfigureOptions{})
	if r.Repaired {
		t.Errorf("Repaired = true for a consistent workflow: %v", r.Skipped)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigureWidgets(t *testing.T) {
	g, r := mustLoadGraph(t, "basic.json", ConfigureOptions{Schemas: catalogProvider(t)})
	if r.SchemaErr != nil {
		t.Fatalf("SchemaErr: %v", r.SchemaErr)
	}

	sampler, _ := g.Node(2)
	want := []string{"seed", schema.ControlWidget, "steps", "cfg", "sampler_name", "scheduler", "denoise"}
	if diff := cmp.Diff(want, sampler.WidgetNames()); diff != "" {
		t.Errorf("widget names (-want +got):\n%s", diff)
	}
	wantValues := []any{float64(42), "fixed", float64(20), 8.0, "euler", "normal", 1.0}
	if diff := cmp.Diff(wantValues, sampler.Values.Values); diff != "" {
		t.Errorf("padded values (-want +got):\n%s", diff)
	}
	if v, _ := sampler.WidgetValue("seed"); v != float64(42) {
		t.Errorf("seed = %v, want 42", v)
	}

	// EmptyLatentImage is not in the catalog.
	latent, _ := g.Node(3)
	if diff := cmp.Diff([]string{"widget_0", "widget_1", "widget_2"}, latent.WidgetNames()); diff != "" {
		t.Errorf("generic names (-want +got):\n%s", diff)
	}
	if !latent.SetWidgetValue("widget_1", float64(768)) {
		t.Error("SetWidgetValue(widget_1) failed")
	}
	if latent.Values.Values[1] != float64(768) {
		t.Errorf("values = %v", latent.Values.Values)
	}
	if latent.SetWidgetValue("width", 1) {
		t.Error("SetWidgetValue should reject unknown names")
	}
}

func TestConfigureSchemaUnavailable(t *testing.T) {
	failing := schema.ProviderFunc(func(context.Context) (schema.Catalog, error) {
		return nil, errors.New("connection refused")
	})
	g, r := mustLoadGraph(t, "basic.json", ConfigureOptions{Schemas: failing})

	if !wgerrors.Is(r.SchemaErr, wgerrors.ErrCodeMetadataUnavailable) {
		t.Fatalf("SchemaErr = %v, want METADATA_UNAVAILABLE", r.SchemaErr)
	}
	if g.NodeCount() != 3 || g.LinkCount() != 2 {
		t.Errorf("structure not loaded: %d nodes, %d links", g.NodeCount(), g.LinkCount())
	}
	sampler, _ := g.Node(2)
	if sampler.Values.Len() != 3 {
		t.Errorf("values padded without a schema: %v", sampler.Values.Values)
	}
	if v, ok := sampler.WidgetValue("widget_2"); !ok || v != float64(20) {
		t.Errorf("widget_2 = %v, %v", v, ok)
	}
}

func TestConfigureReplacesState(t *testing.T) {
	g, _ := mustLoadGraph(t, "basic.json", ConfigureOptions{})
	g.Configure(context.Background(), mustLoadDocument(t, "keyed.json"), ConfigureOptions{})

	if _, ok := g.Node(3); ok {
		t.Error("node from previous document survived Configure")
	}
	if g.NodeCount() != 2 || g.LinkCount() != 1 {
		t.Errorf("got %d nodes, %d links; want 2, 1", g.NodeCount(), g.LinkCount())
	}
}

func TestConnectDisconnect(t *testing.T) {
	g, _ := mustLoadGraph(t, "basic.json", ConfigureOptions{})

	l := g.Connect(1, 1, 2, 1, "CLIP")
	if l.ID != 3 || g.LastLinkID() != 3 {
		t.Errorf("Connect allocated %d (counter %d), want 3", l.ID, g.LastLinkID())
	}
	if got, ok := g.Link(3); !ok || got.OriginSlot != 1 {
		t.Errorf("link 3 = %+v, %v", got, ok)
	}
	// The link table is updated but slots are not.
	sampler, _ := g.Node(2)
	if sampler.Inputs[1].Link != nil {
		t.Error("Connect touched the target slot")
	}
	if err := g.Validate(); !errors.Is(err, ErrInconsistent) {
		t.Errorf("Validate after raw Connect = %v, want inconsistency", err)
	}

	if !g.Disconnect(3) {
		t.Error("Disconnect(3) = false")
	}
	if g.Disconnect(3) {
		t.Error("second Disconnect(3) = true")
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate after Disconnect: %v", err)
	}
	if g.LastLinkID() != 3 {
		t.Errorf("counter went back to %d", g.LastLinkID())
	}
}

func TestAddLink(t *testing.T) {
	g := New()
	if err := g.AddLink(Link{ID: 5}); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if g.LastLinkID() != 5 {
		t.Errorf("counter = %d, want 5", g.LastLinkID())
	}
	if err := g.AddLink(Link{ID: 5}); !errors.Is(err, ErrDuplicateLinkID) {
		t.Errorf("duplicate AddLink = %v", err)
	}
	if err := g.AddLink(Link{ID: 0}); !errors.Is(err, ErrInvalidLinkID) {
		t.Errorf("AddLink(0) = %v", err)
	}
}

func TestNodeTable(t *testing.T) {
	g := New()
	a, err := g.AddNode(Node{Type: "Loader"})
	if err != nil || a.ID != 1 {
		t.Fatalf("AddNode = %+v, %v", a, err)
	}
	if _, err := g.AddNode(Node{ID: 10, Type: "Sampler"}); err != nil {
		t.Fatalf("AddNode(10): %v", err)
	}
	if _, err := g.AddNode(Node{ID: 10}); !errors.Is(err, ErrDuplicateNodeID) {
		t.Errorf("duplicate AddNode = %v", err)
	}
	c, _ := g.AddNode(Node{Type: "Loader"})
	if c.ID != 11 {
		t.Errorf("next id = %d, want 11", c.ID)
	}

	if got := nodeIDs(g.FindNodesByType("Loader")); !slices.Equal(got, []int{1, 11}) {
		t.Errorf("FindNodesByType = %v", got)
	}
	if !g.RemoveNode(1) || g.RemoveNode(1) {
		t.Error("RemoveNode should succeed once")
	}
	if got := nodeIDs(g.Nodes()); !slices.Equal(got, []int{10, 11}) {
		t.Errorf("Nodes = %v", got)
	}
}

func TestFindNodesByClass(t *testing.T) {
	g, _ := mustLoadGraph(t, "basic.json", ConfigureOptions{Schemas: catalogProvider(t)})

	if got := nodeIDs(g.FindNodesByClass("loaders")); !slices.Equal(got, []int{1}) {
		t.Errorf("loaders = %v, want [1]", got)
	}
	if got := g.FindNodesByClass("load"); len(got) != 0 {
		t.Errorf("partial category matched: %v", nodeIDs(got))
	}

	plain, _ := mustLoadGraph(t, "basic.json", ConfigureOptions{})
	if got := plain.FindNodesByClass("loaders"); len(got) != 0 {
		t.Errorf("matched without a catalog: %v", nodeIDs(got))
	}
}

func TestGroupMembership(t *testing.T) {
	g, _ := mustLoadGraph(t, "basic.json", ConfigureOptions{})

	if got := nodeIDs(g.GroupMembers(8)); !slices.Equal(got, []int{1, 3}) {
		t.Errorf("GroupMembers(8) = %v, want [1 3]", got)
	}
	if got := g.GroupsOf(2); !slices.Equal(got, []int{7}) {
		t.Errorf("GroupsOf(2) = %v, want [7]", got)
	}
	if g.GroupMembers(42) != nil {
		t.Error("GroupMembers of a missing group should be nil")
	}
}

func TestValidateReportsDanglingSlots(t *testing.T) {
	g, _ := mustLoadGraph(t, "basic.json", ConfigureOptions{})
	loader, _ := g.Node(1)
	loader.Outputs[1].AddLink(77)
	sampler, _ := g.Node(2)
	sampler.Inputs[0].Link = nil

	err := g.Validate()
	if !errors.Is(err, ErrInconsistent) {
		t.Fatalf("Validate = %v, want ErrInconsistent", err)
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Errorf("want 2 violations, got: %v", err)
	}
}

func TestGraphClone(t *testing.T) {
	g, _ := mustLoadGraph(t, "basic.json", ConfigureOptions{})
	c := g.Clone()

	c.Connect(1, 0, 2, 1, "MODEL")
	n, _ := c.Node(1)
	n.Outputs[0].AddLink(3)
	c.AppMeta()["favorite"] = false

	if g.LinkCount() != 2 || g.LastLinkID() != 2 {
		t.Error("clone shares the link table")
	}
	orig, _ := g.Node(1)
	if orig.Outputs[0].HasLink(3) {
		t.Error("clone shares nodes")
	}
	if g.AppMeta()["favorite"] != true {
		t.Error("clone shares app meta")
	}
}
