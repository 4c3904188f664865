// Package render draws workflow graphs as node-link diagrams.
//
// # Usage
//
// Convert a graph to DOT, then render it to SVG:
//
//	dot := render.ToDOT(g, render.Options{Groups: true})
//	svg, err := render.RenderSVG(ctx, dot)
//
// Nodes are boxes labelled "#id title", flowing left to right along their
// links. Muted nodes are grey and bypassed nodes purple, both with dashed
// outlines. Edges are labelled with the link type.
//
// # Options
//
//   - Detailed: node labels list every widget with its current value
//   - Groups: groups become Graphviz clusters around their member nodes
//
// The DOT text can also be saved and processed with external Graphviz tools.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering.
package render
