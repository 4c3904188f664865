package connect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/observability"
	"github.com/matzehuels/workgraph/pkg/workflow"
)

const scenario = `{
	"last_node_id": 4,
	"last_link_id": 0,
	"nodes": [
		{"id": 1, "type": "Loader", "outputs": [{"name": "MODEL", "type": "MODEL", "links": null}]},
		{"id": 2, "type": "Sampler", "inputs": [
			{"name": "model", "type": "MODEL", "link": null},
			{"name": "latent", "type": "LATENT", "link": null}
		]},
		{"id": 3, "type": "Loader", "outputs": [{"name": "MODEL", "type": "MODEL", "links": null}]},
		{"id": 4, "type": "Sampler", "inputs": [{"name": "model", "type": "MODEL", "link": null}]}
	],
	"links": []
}`

func load(t *testing.T) (*workflow.Document, *workflow.Graph) {
	t.Helper()
	doc, err := workflow.ParseDocument([]byte(scenario))
	require.NoError(t, err)
	g, _ := workflow.Load(context.Background(), doc, workflow.ConfigureOptions{})
	return doc, g
}

func inputLink(t *testing.T, n *workflow.Node, slot int) int {
	t.Helper()
	in, ok := n.Input(slot)
	require.True(t, ok)
	if in.Link == nil {
		return 0
	}
	return *in.Link
}

func docNode(t *testing.T, d *workflow.Document, id int) *workflow.Node {
	t.Helper()
	n := d.Node(id)
	require.NotNil(t, n, "document node %d", id)
	return n
}

func graphNode(t *testing.T, g *workflow.Graph, id int) *workflow.Node {
	t.Helper()
	n, ok := g.Node(id)
	require.True(t, ok, "graph node %d", id)
	return n
}

func TestCreateConnection(t *testing.T) {
	doc, g := load(t)

	res, err := CreateConnection(doc, g, 1, 2, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, res.LinkID)
	assert.Empty(t, res.Replaced)
	assert.Equal(t, 1, res.Document.LastLinkID)
	assert.Equal(t, 1, res.Graph.LastLinkID())

	for name, n := range map[string]*workflow.Node{
		"document": docNode(t, res.Document, 2),
		"graph":    graphNode(t, res.Graph, 2),
	} {
		assert.Equal(t, 1, inputLink(t, n, 0), "%s target input", name)
	}
	assert.Equal(t, []int{1}, docNode(t, res.Document, 1).Outputs[0].Links)
	assert.Equal(t, []int{1}, graphNode(t, res.Graph, 1).Outputs[0].Links)

	require.Len(t, res.Document.Links, 1)
	want := workflow.Link{ID: 1, OriginID: 1, OriginSlot: 0, TargetID: 2, TargetSlot: 0, Type: "MODEL"}
	assert.Equal(t, want, res.Document.Links[0])
	l, ok := res.Graph.Link(1)
	require.True(t, ok)
	assert.Equal(t, want, *l)

	assert.NoError(t, res.Graph.Validate())
}

func TestCreateConnectionIsPure(t *testing.T) {
	doc, g := load(t)

	_, err := CreateConnection(doc, g, 1, 2, 0, 0)
	require.NoError(t, err)

	assert.Empty(t, doc.Links)
	assert.Zero(t, doc.LastLinkID)
	assert.Zero(t, inputLink(t, docNode(t, doc, 2), 0))
	assert.Zero(t, g.LinkCount())
	assert.Zero(t, g.LastLinkID())
	assert.Empty(t, graphNode(t, g, 1).Outputs[0].Links)
}

func TestCreateConnectionReplacesIncomingLink(t *testing.T) {
	doc, g := load(t)

	first, err := CreateConnection(doc, g, 1, 2, 0, 0)
	require.NoError(t, err)
	second, err := CreateConnection(first.Document, first.Graph, 3, 2, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, second.LinkID)
	assert.Equal(t, []int{1}, second.Replaced)

	d, gr := second.Document, second.Graph
	assert.Equal(t, 2, inputLink(t, docNode(t, d, 2), 0))
	assert.Equal(t, 2, inputLink(t, graphNode(t, gr, 2), 0))
	assert.NotContains(t, docNode(t, d, 1).Outputs[0].Links, 1)
	assert.NotContains(t, graphNode(t, gr, 1).Outputs[0].Links, 1)
	assert.Equal(t, []int{2}, graphNode(t, gr, 3).Outputs[0].Links)

	assert.Nil(t, d.Link(1))
	_, ok := gr.Link(1)
	assert.False(t, ok)
	assert.Len(t, d.Links, 1)
	assert.Equal(t, 1, gr.LinkCount())
	assert.NoError(t, gr.Validate())
}

func TestCreateConnectionFanOut(t *testing.T) {
	doc, g := load(t)

	a, err := CreateConnection(doc, g, 1, 2, 0, 0)
	require.NoError(t, err)
	b, err := CreateConnection(a.Document, a.Graph, 1, 4, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, docNode(t, b.Document, 1).Outputs[0].Links)
	assert.Equal(t, []int{1, 2}, graphNode(t, b.Graph, 1).Outputs[0].Links)
	assert.Len(t, b.Document.Links, 2)
	assert.Equal(t, 2, b.Graph.LinkCount())
	assert.NoError(t, b.Graph.Validate())
}

func TestCreateConnectionUniqueIDs(t *testing.T) {
	doc, g := load(t)

	targets := []struct{ node, slot int }{{2, 0}, {2, 1}, {4, 0}}
	seen := map[int]bool{}
	for _, tgt := range targets {
		res, err := CreateConnection(doc, g, 1, tgt.node, 0, tgt.slot)
		require.NoError(t, err)
		assert.False(t, seen[res.LinkID], "link id %d reused", res.LinkID)
		seen[res.LinkID] = true
		doc, g = res.Document, res.Graph
	}

	assert.Equal(t, len(targets), g.LinkCount())
	assert.Len(t, doc.Links, len(targets))
	assert.Equal(t, len(targets), g.LastLinkID())
	assert.Equal(t, len(targets), doc.LastLinkID)
}

func TestCreateConnectionDriftedCounters(t *testing.T) {
	doc, g := load(t)
	doc.LastLinkID = 10

	res, err := CreateConnection(doc, g, 1, 2, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 11, res.LinkID)
	assert.Equal(t, 11, res.Graph.LastLinkID())
	assert.Equal(t, 11, res.Document.LastLinkID)
}

func TestCreateConnectionStructuralErrors(t *testing.T) {
	tests := []struct {
		name                   string
		source, target         int
		sourceSlot, targetSlot int
		sentinel               error
	}{
		{"missing source", 9, 2, 0, 0, workflow.ErrNodeNotFound},
		{"missing target", 1, 9, 0, 0, workflow.ErrNodeNotFound},
		{"bad output slot", 1, 2, 3, 0, workflow.ErrSlotNotFound},
		{"bad input slot", 1, 2, 0, 5, workflow.ErrSlotNotFound},
		{"negative slot", 1, 2, -1, 0, workflow.ErrSlotNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, g := load(t)
			res, err := CreateConnection(doc, g, tt.source, tt.target, tt.sourceSlot, tt.targetSlot)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, wgerrors.IsStructural(err), "err = %v", err)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestCreateConnectionNodeMissingFromOneForm(t *testing.T) {
	doc, g := load(t)
	require.True(t, g.RemoveNode(4))

	_, err := CreateConnection(doc, g, 1, 4, 0, 0)
	require.Error(t, err)
	assert.True(t, wgerrors.IsStructural(err))
	assert.Contains(t, err.Error(), "graph")
}

func TestOutputRegistrationIsIdempotent(t *testing.T) {
	doc, g := load(t)
	// Pre-register the id the next connection will get, as a repeated
	// invocation would have done.
	doc.Node(1).Outputs[0].AddLink(1)
	n, _ := g.Node(1)
	n.Outputs[0].AddLink(1)
	n.Outputs[0].AddLink(1)

	res, err := CreateConnection(doc, g, 1, 2, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, docNode(t, res.Document, 1).Outputs[0].Links)
	assert.Equal(t, []int{1}, graphNode(t, res.Graph, 1).Outputs[0].Links)
}

func TestRemoveConnection(t *testing.T) {
	doc, g := load(t)
	res, err := CreateConnection(doc, g, 1, 2, 0, 0)
	require.NoError(t, err)

	removed, err := RemoveConnection(res.Document, res.Graph, res.LinkID)
	require.NoError(t, err)

	assert.Empty(t, removed.Document.Links)
	assert.Zero(t, removed.Graph.LinkCount())
	assert.Zero(t, inputLink(t, docNode(t, removed.Document, 2), 0))
	assert.Zero(t, inputLink(t, graphNode(t, removed.Graph, 2), 0))
	assert.Empty(t, graphNode(t, removed.Graph, 1).Outputs[0].Links)
	assert.Equal(t, 1, removed.Graph.LastLinkID(), "counters never go back")
	assert.NoError(t, removed.Graph.Validate())

	// The inputs are untouched.
	assert.Len(t, res.Document.Links, 1)

	_, err = RemoveConnection(removed.Document, removed.Graph, res.LinkID)
	assert.True(t, wgerrors.Is(err, wgerrors.ErrCodeNotFound), "err = %v", err)
}

func TestRemoveConnectionScrubsWithoutRow(t *testing.T) {
	doc, g := load(t)
	res, err := CreateConnection(doc, g, 1, 2, 0, 0)
	require.NoError(t, err)
	// Drop only the graph row; the slots still reference the link.
	res.Graph.Disconnect(res.LinkID)

	removed, err := RemoveConnection(res.Document, res.Graph, res.LinkID)
	require.NoError(t, err)
	assert.Zero(t, inputLink(t, graphNode(t, removed.Graph, 2), 0))
	assert.Empty(t, graphNode(t, removed.Graph, 1).Outputs[0].Links)
	assert.NoError(t, removed.Graph.Validate())
}

// danglingDoc has slots referencing link 1, whose tuple is unusable.
const danglingDoc = `{
	"nodes": [
		{"id": 1, "type": "Loader", "outputs": [{"name": "MODEL", "type": "MODEL", "links": [1]}]},
		{"id": 2, "type": "Sampler", "inputs": [{"name": "model", "type": "MODEL", "link": 1}]},
		{"id": 3, "type": "Sampler", "inputs": [{"name": "model", "type": "MODEL", "link": null}]}
	],
	"links": [[1, 1, "x", 2, 0, "MODEL"]]
}`

func TestCreateConnectionAfterSkippedLink(t *testing.T) {
	doc, err := workflow.ParseDocument([]byte(danglingDoc))
	require.NoError(t, err)
	g, rep := workflow.Load(context.Background(), doc, workflow.ConfigureOptions{})
	require.True(t, rep.Repaired)
	require.NoError(t, g.Validate())

	for name, d := range map[string]*workflow.Document{"raw": doc, "serialized": g.Serialize()} {
		t.Run(name, func(t *testing.T) {
			res, err := CreateConnection(d, g, 1, 3, 0, 0)
			require.NoError(t, err)

			assert.Equal(t, 2, res.LinkID, "the id held by the stale slots is not reused")
			assert.Empty(t, res.Replaced)
			assert.Zero(t, inputLink(t, graphNode(t, res.Graph, 2), 0))
			assert.Equal(t, 2, inputLink(t, graphNode(t, res.Graph, 3), 0))
			assert.Equal(t, []int{2}, graphNode(t, res.Graph, 1).Outputs[0].Links)
			assert.NoError(t, res.Graph.Validate())
		})
	}

	// The repaired document connects without carrying the stale reference.
	res, err := CreateConnection(g.Serialize(), g, 1, 2, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Replaced)
	assert.Equal(t, []int{2}, docNode(t, res.Document, 1).Outputs[0].Links)
	reloaded, rep := workflow.Load(context.Background(), res.Document, workflow.ConfigureOptions{})
	assert.False(t, rep.Repaired, "skipped: %v", rep.Skipped)
	assert.NoError(t, reloaded.Validate())
}

type recordingHooks struct {
	observability.NoopGraphHooks
	links    []int
	replaced []bool
	errs     []error
}

func (h *recordingHooks) OnConnection(_ context.Context, linkID int, replaced bool, err error) {
	h.links = append(h.links, linkID)
	h.replaced = append(h.replaced, replaced)
	h.errs = append(h.errs, err)
}

func TestCreateConnectionHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetGraphHooks(hooks)
	defer observability.Reset()

	doc, g := load(t)
	a, err := CreateConnection(doc, g, 1, 2, 0, 0)
	require.NoError(t, err)
	_, err = CreateConnection(a.Document, a.Graph, 3, 2, 0, 0)
	require.NoError(t, err)
	_, err = CreateConnection(doc, g, 7, 2, 0, 0)
	require.Error(t, err)

	assert.Equal(t, []int{1, 2, 0}, hooks.links)
	assert.Equal(t, []bool{false, true, false}, hooks.replaced)
	assert.True(t, errors.Is(hooks.errs[2], workflow.ErrNodeNotFound))
}
