// Package workflow models a node-graph workflow in its two forms: the
// interchange [Document] exchanged with an execution server, and the
// id-indexed [Graph] used while editing.
//
// # Overview
//
// A workflow is a set of nodes with typed input and output slots, links
// joining an output slot to an input slot, and titled groups. An input slot
// holds at most one link; an output slot may feed many. Nodes also carry
// widget values (the editable parameters of the node) and a [Mode] that
// mutes or bypasses them.
//
// # Loading and saving
//
// [ParseDocument] decodes the interchange JSON. Decoding tolerates the
// encodings produced by different editors: node and link lists or id-keyed
// objects, link tuples or link objects, and several group box shapes.
// Entries that cannot be decoded are skipped and recorded in
// [Document.Issues]; a bad link never aborts a load.
//
// [Graph.Configure] indexes a document:
//
//	doc, err := workflow.LoadDocument("flow.json")
//	if err != nil {
//	    return err
//	}
//	g, report := workflow.Load(ctx, doc, workflow.ConfigureOptions{
//	    Schemas: schema.NewHTTPProvider("http://127.0.0.1:8188", 0, logger),
//	})
//
// Node-type metadata, when available, names each widget and fills in
// missing widget values. It is fetched after the structure is loaded and
// its failure is reported in [Report.SchemaErr] without affecting the graph.
//
// [Graph.Serialize] is the inverse: it always writes node lists, link tuples
// and four-number group boxes, and folds app metadata back into "extra".
// Configure(Serialize(g)) yields the same nodes, links and groups as g.
//
// # Links
//
// [Graph.Connect] and [Graph.Disconnect] edit only the link table. Slot
// bookkeeping on both endpoints is done by the connect package, which keeps
// a document and a graph consistent together. [Graph.Validate] reports any
// disagreement between the link table and node slots.
package workflow
