package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Catalog maps a node type (the "type" field of a workflow node) to its schema.
type Catalog map[string]Schema

// Schema describes one node type as reported by an execution server's
// object_info endpoint.
type Schema struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Input       Inputs   `json:"input"`
	Output      []Type   `json:"output,omitempty"`
	OutputName  []string `json:"output_name,omitempty"`
	OutputNode  bool     `json:"output_node,omitempty"`
}

// Inputs groups a node type's declared inputs. Declaration order is kept
// because it defines the order of a node's widget values.
type Inputs struct {
	Required InputList      `json:"required,omitempty"`
	Optional InputList      `json:"optional,omitempty"`
	Hidden   map[string]any `json:"hidden,omitempty"`
}

// Input is a single declared input.
type Input struct {
	Name    string
	Type    Type
	Options map[string]any
}

// InputList is an ordered list of inputs. On the wire it is a JSON object
// keyed by input name whose values are [type, options?] arrays.
type InputList []Input

// Type is a socket or widget type tag. Combo inputs, declared as a list of
// choices instead of a type name, carry Type "COMBO" and the choices in
// Choices.
type Type struct {
	Name    string
	Choices []any
}

// Primitive type names that are rendered as editable widgets.
const (
	TypeInt     = "INT"
	TypeFloat   = "FLOAT"
	TypeString  = "STRING"
	TypeBoolean = "BOOLEAN"
	TypeCombo   = "COMBO"
)

// Lookup returns the schema for nodeType.
func (c Catalog) Lookup(nodeType string) (Schema, bool) {
	s, ok := c[nodeType]
	return s, ok
}

// Types returns the number of node types in the catalog.
func (c Catalog) Types() int { return len(c) }

// Parse decodes an object_info response.
func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode object_info: %w", err)
	}
	for name, s := range c {
		if s.Name == "" {
			s.Name = name
			c[name] = s
		}
	}
	return c, nil
}

// All returns required inputs followed by optional inputs.
func (in Inputs) All() []Input {
	out := make([]Input, 0, len(in.Required)+len(in.Optional))
	out = append(out, in.Required...)
	return append(out, in.Optional...)
}

// UnmarshalJSON decodes the input object while keeping key order, which a
// plain map would lose.
func (l *InputList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*l = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("inputs: expected object, got %v", tok)
	}

	var out InputList
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("inputs: expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("input %s: %w", name, err)
		}
		in, err := parseInput(name, raw)
		if err != nil {
			return err
		}
		out = append(out, in)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}

// MarshalJSON encodes the list back into an ordered JSON object.
func (l InputList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, in := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(in.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		spec := []any{in.Type}
		if len(in.Options) > 0 {
			spec = append(spec, in.Options)
		}
		val, err := json.Marshal(spec)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func parseInput(name string, raw json.RawMessage) (Input, error) {
	var spec []json.RawMessage
	if err := json.Unmarshal(raw, &spec); err != nil || len(spec) == 0 {
		return Input{}, fmt.Errorf("input %s: expected [type, options] array", name)
	}

	in := Input{Name: name}
	if err := json.Unmarshal(spec[0], &in.Type); err != nil {
		return Input{}, fmt.Errorf("input %s: %w", name, err)
	}
	if len(spec) > 1 {
		// Some custom nodes put non-object values here; those carry no options.
		_ = json.Unmarshal(spec[1], &in.Options)
	}
	// Newer servers declare combos as ["COMBO", {"options": [...]}].
	if in.Type.Name == TypeCombo && len(in.Type.Choices) == 0 {
		if opts, ok := in.Options["options"].([]any); ok {
			in.Type.Choices = opts
		}
	}
	return in, nil
}

// UnmarshalJSON accepts a type name or a list of combo choices.
func (t *Type) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		t.Name = name
		return nil
	}
	var choices []any
	if err := json.Unmarshal(data, &choices); err != nil {
		return fmt.Errorf("type must be a string or a list of choices")
	}
	t.Name = TypeCombo
	t.Choices = choices
	return nil
}

// MarshalJSON writes combos back as their choice list.
func (t Type) MarshalJSON() ([]byte, error) {
	if t.Name == TypeCombo && t.Choices != nil {
		return json.Marshal(t.Choices)
	}
	return json.Marshal(t.Name)
}

// String returns the type name.
func (t Type) String() string { return t.Name }
