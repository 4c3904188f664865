package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/workgraph/pkg/workflow"
)

// Options configures diagram generation.
type Options struct {
	// Detailed adds widget names and values to node labels.
	// When false, only the id and title are shown.
	Detailed bool

	// Groups draws each group as a cluster around the nodes it contains.
	// A node inside several groups is drawn in the first one.
	Groups bool
}

// Colors for nodes that are not in the always mode.
var modeFill = map[workflow.Mode]string{
	workflow.ModeNever:  "lightgrey",
	workflow.ModeBypass: "plum",
}

// ToDOT converts a workflow graph to Graphviz DOT format. Nodes are drawn in
// graph order and edges in link id order, so the output is deterministic.
// The result can be rendered with [RenderSVG].
func ToDOT(g *workflow.Graph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=10];\n")
	buf.WriteString("  ranksep=0.8;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	placed := make(map[int]bool)
	if opts.Groups {
		for _, gr := range g.Groups() {
			var members []*workflow.Node
			for _, n := range g.GroupMembers(gr.ID) {
				if !placed[n.ID] {
					members = append(members, n)
					placed[n.ID] = true
				}
			}
			if len(members) == 0 {
				continue
			}
			fmt.Fprintf(&buf, "  subgraph cluster_%d {\n", gr.ID)
			fmt.Fprintf(&buf, "    label=%q;\n", gr.Title)
			buf.WriteString("    style=\"rounded,dashed\";\n")
			if gr.Color != "" {
				fmt.Fprintf(&buf, "    color=%q;\n", gr.Color)
			}
			for _, n := range members {
				writeNode(&buf, "    ", n, opts.Detailed)
			}
			buf.WriteString("  }\n")
		}
	}
	for _, n := range g.Nodes() {
		if !placed[n.ID] {
			writeNode(&buf, "  ", n, opts.Detailed)
		}
	}

	buf.WriteString("\n")
	for _, l := range g.Links() {
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", nodeName(l.OriginID), nodeName(l.TargetID), strings.Join(edgeAttrs(l), ", "))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeName(id int) string { return "n" + strconv.Itoa(id) }

func writeNode(buf *bytes.Buffer, indent string, n *workflow.Node, detailed bool) {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(n, detailed))}
	if fill, ok := modeFill[n.Mode]; ok {
		attrs = append(attrs, fmt.Sprintf("fillcolor=%s", fill), "style=\"rounded,filled,dashed\"")
	}
	fmt.Fprintf(buf, "%s%q [%s];\n", indent, nodeName(n.ID), strings.Join(attrs, ", "))
}

func fmtLabel(n *workflow.Node, detailed bool) string {
	label := fmt.Sprintf("#%d %s", n.ID, n.Title())
	if n.Mode != workflow.ModeAlways {
		label += " (" + n.Mode.String() + ")"
	}
	if !detailed {
		return label
	}
	var parts []string
	for _, name := range n.WidgetNames() {
		v, _ := n.WidgetValue(name)
		parts = append(parts, fmt.Sprintf("%s: %v", name, v))
	}
	if len(parts) == 0 {
		return label
	}
	return label + "\n" + strings.Join(parts, "\n")
}

func edgeAttrs(l *workflow.Link) []string {
	attrs := []string{fmt.Sprintf("tooltip=%q", fmt.Sprintf("link %d: slot %d -> slot %d", l.ID, l.OriginSlot, l.TargetSlot))}
	if l.Type != "" && l.Type != "*" {
		attrs = append([]string{fmt.Sprintf("label=%q", string(l.Type))}, attrs...)
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the SVG scales with its
// container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAllLiteral(svg, []byte(newSvg))
}
