// Package pkg provides the libraries behind workgraph, an editor toolkit for
// node-graph workflow documents.
//
// # Overview
//
// A workflow is a JSON document of nodes (typed processing steps with
// widget values), links (output slot to input slot) and groups (titled
// canvas boxes). The pkg directory is organized around that document:
//
//  1. [workflow] - Document decoding, the indexed Graph, configure/serialize
//  2. [connect] - Creating and removing links on a document and its graph
//  3. [overlay] - Staged widget and mode edits with two-phase editing
//  4. [snapshot] - Titled workflow copies in file, SQLite, Redis or MongoDB
//  5. [api] - The JSON HTTP surface over the packages above
//
// # Architecture
//
// The typical data flow through workgraph:
//
//	workflow JSON
//	     ↓
//	[workflow] Load (structure first, then node-type metadata from [schema])
//	     ↓
//	[connect] / [overlay] (rewire links, stage edits, audit every change)
//	     ↓
//	[workflow] Serialize → JSON, [render] → DOT/SVG, [snapshot] Save
//
// # Quick Start
//
// Load a workflow, stage an edit and write the result:
//
//	doc, _ := workflow.LoadDocument("flow.json")
//	g, _ := workflow.Load(ctx, doc, workflow.ConfigureOptions{
//	    Schemas: schema.FileProvider{Path: "object_info.json"},
//	})
//
//	ov := overlay.New(overlay.Options{Sink: audit.NewLogSink(logger)})
//	ov.SetValue(3, "seed", 42)
//	ov.SetNodeMode(7, workflow.ModeBypass)
//
//	edited, _ := ov.Commit(g)
//	_ = workflow.SaveDocument("flow.json", edited.Serialize())
//
// # Main Packages
//
// Domain:
//   - [workflow]: Document, Graph, Node, Link, Group and Mode
//   - [connect]: CreateConnection and RemoveConnection
//   - [overlay]: Overlay, Edits, Processor and GraphProcessor
//   - [schema]: node-type catalogs from a server or a file, widget naming
//
// Infrastructure:
//   - [cache]: byte cache with file and null backends, retry helpers
//   - [snapshot]: Store interface and its four backends
//   - [audit]: change events and their sinks
//   - [observability]: hooks for graph and overlay events
//   - [config]: TOML settings
//   - [errors]: coded errors and input validation
//
// Output:
//   - [render]: Graphviz DOT and SVG diagrams
//   - [api]: chi router serving workflow and snapshot routes
//
// [workflow]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/workflow
// [connect]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/connect
// [overlay]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/overlay
// [snapshot]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/snapshot
// [api]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/api
// [schema]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/schema
// [render]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/render
// [cache]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/cache
// [audit]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/audit
// [observability]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/observability
// [config]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/config
// [errors]: https://pkg.go.dev/github.com/matzehuels/workgraph/pkg/errors
package pkg
