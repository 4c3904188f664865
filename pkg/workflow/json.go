package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// RawFields holds object keys the model does not interpret. They are written
// back unchanged so documents survive a load/save cycle.
type RawFields map[string]json.RawMessage

// Clone returns a copy of the fields.
func (r RawFields) Clone() RawFields {
	if r == nil {
		return nil
	}
	out := make(RawFields, len(r))
	for k, v := range r {
		out[k] = slices.Clone(v)
	}
	return out
}

// splitObject decodes a JSON object into its raw members.
func splitObject(data []byte) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("expected object, got null")
	}
	return m, nil
}

// take decodes m[key] into v and removes it from m. Missing and null members
// leave v untouched.
func take(m map[string]json.RawMessage, key string, v any) error {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	delete(m, key)
	if isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// takeInt is take for integers that some producers write as strings or floats.
func takeInt(m map[string]json.RawMessage, key string) (int, bool, error) {
	raw, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	delete(m, key)
	if isNull(raw) {
		return 0, false, nil
	}
	n, err := parseInt(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// takeFloat is take for numbers that some producers write as strings.
func takeFloat(m map[string]json.RawMessage, key string) (float64, error) {
	raw, ok := m[key]
	if !ok {
		return 0, nil
	}
	delete(m, key)
	if isNull(raw) {
		return 0, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s: expected number, got %T", key, v)
	}
	return f, nil
}

func parseInt(raw json.RawMessage) (int, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return toInt(v)
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", x)
		}
		return n, nil
	case json.Number:
		n, err := x.Int64()
		return int(n), err
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// firstByte returns the first non-space byte of raw.
func firstByte(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

// orderedMembers decodes a JSON object keeping member order.
func orderedMembers(data []byte) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object")
	}
	var keys []string
	var vals []json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		keys = append(keys, key)
		vals = append(vals, raw)
	}
	_, err = dec.Token()
	return keys, vals, err
}

// objectWriter builds a JSON object with a fixed member order followed by
// passthrough members in sorted order.
type objectWriter struct {
	buf  bytes.Buffer
	seen map[string]bool
	err  error
}

func newObjectWriter() *objectWriter {
	w := &objectWriter{seen: map[string]bool{}}
	w.buf.WriteByte('{')
	return w
}

func (w *objectWriter) field(key string, v any) {
	if w.err != nil {
		return
	}
	val, err := json.Marshal(v)
	if err != nil {
		w.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	w.raw(key, val)
}

func (w *objectWriter) raw(key string, val json.RawMessage) {
	if w.err != nil || w.seen[key] {
		return
	}
	if len(w.seen) > 0 {
		w.buf.WriteByte(',')
	}
	w.seen[key] = true
	k, _ := json.Marshal(key)
	w.buf.Write(k)
	w.buf.WriteByte(':')
	w.buf.Write(val)
}

// rest writes members of extra that were not already written.
func (w *objectWriter) rest(extra RawFields) {
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		w.raw(k, extra[k])
	}
}

func (w *objectWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}

// cloneValue deep-copies a decoded JSON value.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}
