package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/workgraph/pkg/overlay"
	"github.com/matzehuels/workgraph/pkg/workflow"
)

// List styles
var (
	listDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	listErrorStyle = lipgloss.NewStyle().Foreground(colorRed)
)

// modeCycle is the order the mode key steps through.
var modeCycle = []workflow.Mode{workflow.ModeAlways, workflow.ModeNever, workflow.ModeBypass}

// =============================================================================
// EditorModel - Interactive widget and mode editing
// =============================================================================

// editRow is one editable line: a widget of a node, or the node's mode when
// param is overlay.ModeKey.
type editRow struct {
	nodeID int
	param  string
	title  string
}

// EditorModel is the bubbletea model for editing a workflow through an
// overlay. The graph is only read; every change is staged in the overlay.
type EditorModel struct {
	ov   *overlay.Overlay
	base *workflow.Graph
	rows []editRow

	Cursor int
	Offset int
	Height int

	input string // text of the value being edited
	err   string

	// Write is set when the user asked to save the staged changes.
	Write bool
}

// NewEditorModel lists the mode and widgets of every node in g.
func NewEditorModel(ov *overlay.Overlay, g *workflow.Graph) EditorModel {
	var rows []editRow
	for _, n := range g.Nodes() {
		title := fmt.Sprintf("#%d %s", n.ID, n.Title())
		rows = append(rows, editRow{nodeID: n.ID, param: overlay.ModeKey, title: title})
		for _, name := range n.WidgetNames() {
			rows = append(rows, editRow{nodeID: n.ID, param: name, title: title})
		}
	}
	return EditorModel{ov: ov, base: g, rows: rows, Height: 20}
}

func (m EditorModel) Init() tea.Cmd {
	return nil
}

func (m EditorModel) editing() bool {
	_, ok := m.ov.Editing()
	return ok
}

func (m EditorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing() {
			return m.updateEditing(msg)
		}
		m.err = ""
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "w", "ctrl+s":
			m.Write = true
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.rows)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter", "e":
			if len(m.rows) == 0 {
				return m, nil
			}
			r := m.rows[m.Cursor]
			if r.param == overlay.ModeKey {
				m.cycleMode(r.nodeID)
				return m, nil
			}
			v := m.current(r)
			m.ov.StartEditing(r.nodeID, r.param, v)
			m.input = formatValue(v)
		case "m":
			if len(m.rows) > 0 {
				m.cycleMode(m.rows[m.Cursor].nodeID)
			}
		case "u":
			if len(m.rows) > 0 {
				m.revert(m.rows[m.Cursor])
			}
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-8, 5)
	}
	return m, nil
}

func (m EditorModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e, _ := m.ov.Editing()
	switch msg.Type {
	case tea.KeyEnter:
		m.ov.UpdateStaged(parseValue(m.input, m.original(e.NodeID, e.Param)))
		m.ov.Save()
		m.input = ""
	case tea.KeyEsc, tea.KeyCtrlC:
		m.ov.Cancel()
		m.input = ""
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		m.ov.UpdateStaged(m.input)
	case tea.KeyRunes, tea.KeySpace:
		m.input += string(msg.Runes)
		m.ov.UpdateStaged(m.input)
	}
	return m, nil
}

// cycleMode steps a node to the next mode in modeCycle.
func (m *EditorModel) cycleMode(nodeID int) {
	n, ok := m.base.Node(nodeID)
	if !ok {
		return
	}
	cur := m.ov.GetNodeMode(nodeID, n.Mode)
	next := modeCycle[0]
	for i, mode := range modeCycle {
		if mode == cur {
			next = modeCycle[(i+1)%len(modeCycle)]
			break
		}
	}
	m.ov.SetNodeMode(nodeID, next)
}

// revert drops the staged value of a row and restores the live value.
func (m *EditorModel) revert(r editRow) {
	if !m.ov.IsStaged(r.nodeID, r.param) {
		m.err = "nothing staged here"
		return
	}
	m.ov.Restore(m.ov.Edits().Without(r.nodeID, r.param))
	if p := m.ov.Processor(); p != nil {
		p.SetValue(r.nodeID, r.param, m.original(r.nodeID, r.param))
	}
}

// original is the value stored in the workflow.
func (m EditorModel) original(nodeID int, param string) any {
	n, ok := m.base.Node(nodeID)
	if !ok {
		return nil
	}
	if param == overlay.ModeKey {
		return n.Mode
	}
	v, _ := n.WidgetValue(param)
	return v
}

func (m EditorModel) current(r editRow) any {
	if r.param == overlay.ModeKey {
		n, _ := m.base.Node(r.nodeID)
		var fallback workflow.Mode
		if n != nil {
			fallback = n.Mode
		}
		return m.ov.GetNodeMode(r.nodeID, fallback)
	}
	return m.ov.GetValue(r.nodeID, r.param, m.original(r.nodeID, r.param))
}

func (m EditorModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Edit Workflow"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ edit  m mode  u revert  w write  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.rows))
	edit, isEditing := m.ov.Editing()

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		r := m.rows[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		name := r.param
		if name == overlay.ModeKey {
			name = "mode"
		}
		value := formatValue(m.current(r))
		if isEditing && edit.NodeID == r.nodeID && edit.Param == r.param {
			value = m.input + "▌"
		}
		title := r.title
		if i > m.Offset && m.rows[i-1].nodeID == r.nodeID {
			title = ""
		}
		rows = append(rows, []string{cursor, title, name, value})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Node", "Widget", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			idx := m.Offset + row
			if idx >= len(m.rows) {
				return lipgloss.NewStyle()
			}
			r := m.rows[idx]
			base := lipgloss.NewStyle()
			if col == 3 && m.ov.IsStaged(r.nodeID, r.param) {
				base = StyleStaged
			}
			if idx == m.Cursor {
				return base.Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	status := fmt.Sprintf("  [%d/%d]  %d staged", m.Cursor+1, len(m.rows), m.ov.Edits().Len())
	b.WriteString(listDimStyle.Render(status))
	if m.err != "" {
		b.WriteString("  " + listErrorStyle.Render(m.err))
	}
	return b.String()
}
