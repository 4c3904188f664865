// Package schema models node-type metadata and the providers that fetch it.
//
// An execution server describes every node type it can run in an
// object_info catalog: declared inputs (sockets and widgets, in order), outputs
// and a category. The graph model uses the catalog for one thing only: naming
// and defaulting a node's widget values when a document is configured. A
// missing or unreachable catalog never prevents a document from loading.
//
// # Providers
//
//   - [StaticProvider]: a fixed in-memory catalog
//   - [FileProvider]: a saved object_info response
//   - [HTTPProvider]: GET {server}/object_info with retry on transient failures
//   - [CachedProvider]: wraps an HTTPProvider with a [cache.Cache]
//
// # Widgets
//
// [WidgetsFor] turns a schema into the ordered widget list that lines up with
// a node's widgets_values array:
//
//	widgets := schema.WidgetsFor(catalog["KSampler"])
//	// seed, control_after_generate, steps, cfg, sampler_name, scheduler, denoise
package schema
