package overlay

import (
	"github.com/matzehuels/workgraph/pkg/workflow"
)

// Processor is the live state an overlay sits in front of, typically the
// node instances of an open editor. Writes made through the overlay are
// forwarded to it so both stay in step.
type Processor interface {
	Value(nodeID int, param string) (any, bool)
	SetValue(nodeID int, param string, v any)
	Mode(nodeID int) (workflow.Mode, bool)
	SetMode(nodeID int, m workflow.Mode)
	HasUnsavedChanges() bool
	ClearModifications()
}

// GraphProcessor is a Processor backed by the nodes of a workflow.Graph.
// Writes go straight into the graph's widget values and modes.
type GraphProcessor struct {
	g     *workflow.Graph
	dirty bool
}

// NewGraphProcessor wraps g.
func NewGraphProcessor(g *workflow.Graph) *GraphProcessor {
	return &GraphProcessor{g: g}
}

// Graph returns the wrapped graph.
func (p *GraphProcessor) Graph() *workflow.Graph { return p.g }

// Value returns a node's widget value by name.
func (p *GraphProcessor) Value(nodeID int, param string) (any, bool) {
	n, ok := p.g.Node(nodeID)
	if !ok {
		return nil, false
	}
	if param == ModeKey {
		return n.Mode, true
	}
	return n.WidgetValue(param)
}

// SetValue writes a widget value. Unknown nodes and widgets are ignored.
func (p *GraphProcessor) SetValue(nodeID int, param string, v any) {
	n, ok := p.g.Node(nodeID)
	if !ok {
		return
	}
	if param == ModeKey {
		if m, ok := toMode(v); ok {
			n.Mode = m
			p.dirty = true
		}
		return
	}
	if n.SetWidgetValue(param, v) {
		p.dirty = true
	}
}

// Mode returns a node's mode.
func (p *GraphProcessor) Mode(nodeID int) (workflow.Mode, bool) {
	n, ok := p.g.Node(nodeID)
	if !ok {
		return 0, false
	}
	return n.Mode, true
}

// SetMode writes a node's mode.
func (p *GraphProcessor) SetMode(nodeID int, m workflow.Mode) {
	if n, ok := p.g.Node(nodeID); ok {
		n.Mode = m
		p.dirty = true
	}
}

// HasUnsavedChanges reports whether anything was written since the last
// ClearModifications.
func (p *GraphProcessor) HasUnsavedChanges() bool { return p.dirty }

// ClearModifications resets the unsaved flag. Written values stay.
func (p *GraphProcessor) ClearModifications() { p.dirty = false }

// NodeType returns the type of a node, or "".
func (p *GraphProcessor) NodeType(nodeID int) string {
	if n, ok := p.g.Node(nodeID); ok {
		return n.Type
	}
	return ""
}

// GraphNodeTypes resolves node types from g, for Options.NodeType.
func GraphNodeTypes(g *workflow.Graph) func(int) string {
	return func(id int) string {
		if n, ok := g.Node(id); ok {
			return n.Type
		}
		return ""
	}
}

// toMode converts a staged mode value. Fractional numbers are not modes.
func toMode(v any) (workflow.Mode, bool) {
	switch x := v.(type) {
	case workflow.Mode:
		return x, true
	case int:
		return workflow.Mode(x), true
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return workflow.Mode(int(x)), true
	case string:
		m, err := workflow.ParseMode(x)
		return m, err == nil
	}
	return 0, false
}

var _ Processor = (*GraphProcessor)(nil)
