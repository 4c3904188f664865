package render

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/workgraph/pkg/workflow"
)

func loadBasic(t *testing.T) *workflow.Graph {
	t.Helper()
	doc, err := workflow.LoadDocument("../workflow/testdata/basic.json")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	g, _ := workflow.Load(context.Background(), doc, workflow.ConfigureOptions{})
	return g
}

func TestToDOT(t *testing.T) {
	g := loadBasic(t)

	tests := []struct {
		name    string
		opts    Options
		want    []string
		notWant []string
	}{
		{
			name: "plain",
			want: []string{
				`"n1" [label="#1 CheckpointLoaderSimple"];`,
				`"n2" [label="#2 Main sampler (bypass)", fillcolor=plum`,
				`"n1" -> "n2" [label="MODEL", tooltip="link 1: slot 0 -> slot 0"];`,
				`"n3" -> "n2" [label="LATENT", tooltip="link 2: slot 0 -> slot 3"];`,
			},
			notWant: []string{"subgraph", "widget_0"},
		},
		{
			name: "detailed",
			opts: Options{Detailed: true},
			want: []string{`#2 Main sampler (bypass)\nwidget_0: 42\nwidget_1: fixed\nwidget_2: 20`},
		},
		{
			name: "groups",
			opts: Options{Groups: true},
			want: []string{
				"subgraph cluster_8 {",
				`label="Loaders";`,
				`color="#3f789e";`,
				"subgraph cluster_7 {",
				`    "n2" [label=`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dot := ToDOT(g, tt.opts)
			for _, w := range tt.want {
				if !strings.Contains(dot, w) {
					t.Errorf("missing %q in:\n%s", w, dot)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(dot, w) {
					t.Errorf("unexpected %q in:\n%s", w, dot)
				}
			}
		})
	}
}

func TestToDOTDeterministic(t *testing.T) {
	g := loadBasic(t)
	a := ToDOT(g, Options{Detailed: true, Groups: true})
	b := ToDOT(g.Clone(), Options{Detailed: true, Groups: true})
	if a != b {
		t.Errorf("output differs between identical graphs")
	}
}

func TestToDOTNodeInOneCluster(t *testing.T) {
	doc := &workflow.Document{
		Nodes: []workflow.Node{{ID: 1, Type: "A", Pos: workflow.Vec2{10, 10}}},
		Groups: []workflow.Group{
			{ID: 1, Title: "outer", Bounding: workflow.Bounding{0, 0, 100, 100}},
			{ID: 2, Title: "inner", Bounding: workflow.Bounding{5, 5, 20, 20}},
		},
	}
	g, _ := workflow.Load(context.Background(), doc, workflow.ConfigureOptions{})

	dot := ToDOT(g, Options{Groups: true})
	if n := strings.Count(dot, `"n1" [`); n != 1 {
		t.Errorf("node drawn %d times", n)
	}
	if strings.Contains(dot, "cluster_2") {
		t.Errorf("empty cluster drawn:\n%s", dot)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="100pt" height="50pt" viewBox="0.00 0.00 100.00 50.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	out := normalizeViewBox(in)
	want := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100.00 50.00" width="100" height="50"><g/></svg>`
	if string(out) != want {
		t.Errorf("got %s", out)
	}

	plain := []byte(`<svg><g/></svg>`)
	if !bytes.Equal(normalizeViewBox(plain), plain) {
		t.Errorf("svg without viewBox was changed")
	}
}

func TestRenderSVG(t *testing.T) {
	g := loadBasic(t)
	svg, err := RenderSVG(context.Background(), ToDOT(g, Options{}))
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	if !bytes.Contains(svg, []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox=`)) {
		t.Errorf("missing normalized svg tag")
	}
	if !bytes.Contains(svg, []byte("Main sampler")) {
		t.Errorf("missing node label")
	}
}
