package schema

import (
	"fmt"
	"strings"
)

// Widget is an editable parameter of a node, in widget-value order.
type Widget struct {
	Name    string
	Kind    string
	Default any
	Choices []any
}

// ControlWidget is the name of the synthetic widget that follows seed inputs.
const ControlWidget = "control_after_generate"

// DefaultControlMode is the initial value of a control widget.
const DefaultControlMode = "randomize"

// seedNames are INT inputs that get a control widget even when the server
// does not flag them.
var seedNames = map[string]bool{"seed": true, "noise_seed": true}

// WidgetsFor derives the ordered widget list of a node type: required then
// optional inputs whose type is a primitive or a combo, each followed by a
// control widget when it is a seed.
func WidgetsFor(s Schema) []Widget {
	var out []Widget
	for _, in := range s.Input.All() {
		if !IsWidgetInput(in) {
			continue
		}
		out = append(out, Widget{
			Name:    in.Name,
			Kind:    in.Type.Name,
			Default: defaultFor(in),
			Choices: in.Type.Choices,
		})
		if hasControl(in) {
			out = append(out, Widget{
				Name:    ControlWidget,
				Kind:    TypeCombo,
				Default: DefaultControlMode,
				Choices: []any{"fixed", "increment", "decrement", "randomize"},
			})
		}
	}
	return out
}

// IsWidgetInput reports whether an input is edited through a widget rather
// than connected through a socket.
func IsWidgetInput(in Input) bool {
	if force, _ := in.Options["forceInput"].(bool); force {
		return false
	}
	switch in.Type.Name {
	case TypeInt, TypeFloat, TypeString, TypeBoolean:
		return true
	case TypeCombo:
		return true
	}
	return false
}

// GenericWidgets names n widgets widget_0..widget_n-1. It is the fallback
// when a node's type has no schema, so values stay editable by position.
func GenericWidgets(n int) []Widget {
	out := make([]Widget, n)
	for i := range out {
		out[i] = Widget{Name: fmt.Sprintf("widget_%d", i)}
	}
	return out
}

// IndexOf returns the position of the named widget, or -1.
func IndexOf(widgets []Widget, name string) int {
	for i, w := range widgets {
		if w.Name == name {
			return i
		}
	}
	return -1
}

func hasControl(in Input) bool {
	if in.Type.Name != TypeInt {
		return false
	}
	if ctl, ok := in.Options[ControlWidget].(bool); ok {
		return ctl
	}
	return seedNames[strings.ToLower(in.Name)]
}

func defaultFor(in Input) any {
	if v, ok := in.Options["default"]; ok {
		return v
	}
	switch in.Type.Name {
	case TypeInt, TypeFloat:
		if v, ok := in.Options["min"].(float64); ok {
			return v
		}
		return float64(0)
	case TypeString:
		return ""
	case TypeBoolean:
		return false
	case TypeCombo:
		if len(in.Type.Choices) > 0 {
			return in.Type.Choices[0]
		}
	}
	return nil
}
