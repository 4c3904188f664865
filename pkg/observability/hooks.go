// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup to
// receive events about document loading, schema fetches, connection edits and
// overlay edits.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetGraphHooks(&myGraphHooks{})
//	    observability.SetOverlayHooks(&myOverlayHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Graph().OnConfigure(ctx, nodes, links, skipped, time.Since(start))
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Graph Hooks
// =============================================================================

// GraphHooks receives events from the graph model and the connection mutator.
type GraphHooks interface {
	// OnConfigure records a completed document load. skipped counts the
	// malformed entries dropped during the load.
	OnConfigure(ctx context.Context, nodes, links, skipped int, duration time.Duration)

	// OnSchemaFetch records a node-type metadata fetch; err is non-nil when
	// the load degraded to generic widgets.
	OnSchemaFetch(ctx context.Context, types int, duration time.Duration, err error)

	// OnConnection records a connection edit. replaced reports whether an
	// existing incoming link was superseded.
	OnConnection(ctx context.Context, linkID int, replaced bool, err error)
}

// =============================================================================
// Overlay Hooks
// =============================================================================

// OverlayHooks receives events from the edit overlay.
type OverlayHooks interface {
	// OnEdit records a staged edit of the given change type.
	OnEdit(ctx context.Context, changeType string)

	// OnCommit records how many staged values were applied to a graph.
	OnCommit(ctx context.Context, applied int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopGraphHooks is a no-op implementation of GraphHooks.
type NoopGraphHooks struct{}

func (NoopGraphHooks) OnConfigure(context.Context, int, int, int, time.Duration) {}
func (NoopGraphHooks) OnSchemaFetch(context.Context, int, time.Duration, error)  {}
func (NoopGraphHooks) OnConnection(context.Context, int, bool, error)            {}

// NoopOverlayHooks is a no-op implementation of OverlayHooks.
type NoopOverlayHooks struct{}

func (NoopOverlayHooks) OnEdit(context.Context, string) {}
func (NoopOverlayHooks) OnCommit(context.Context, int)  {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	graphHooks   GraphHooks   = NoopGraphHooks{}
	overlayHooks OverlayHooks = NoopOverlayHooks{}
	hooksMu      sync.RWMutex
)

// SetGraphHooks registers custom graph hooks.
// This should be called once at application startup before any documents are loaded.
func SetGraphHooks(h GraphHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		graphHooks = h
	}
}

// SetOverlayHooks registers custom overlay hooks.
func SetOverlayHooks(h OverlayHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		overlayHooks = h
	}
}

// Graph returns the registered graph hooks.
func Graph() GraphHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return graphHooks
}

// Overlay returns the registered overlay hooks.
func Overlay() OverlayHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return overlayHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	graphHooks = NoopGraphHooks{}
	overlayHooks = NoopOverlayHooks{}
}
