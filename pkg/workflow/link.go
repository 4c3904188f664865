package workflow

import (
	"encoding/json"
	"fmt"
)

// Link is a directed edge from an output slot to an input slot.
type Link struct {
	ID         int      `json:"id"`
	OriginID   int      `json:"origin_id"`
	OriginSlot int      `json:"origin_slot"`
	TargetID   int      `json:"target_id"`
	TargetSlot int      `json:"target_slot"`
	Type       SlotType `json:"type"`
}

// Tuple returns the document encoding
// [id, origin_id, origin_slot, target_id, target_slot, type].
func (l Link) Tuple() []any {
	return []any{l.ID, l.OriginID, l.OriginSlot, l.TargetID, l.TargetSlot, string(l.Type)}
}

// LinkList is the link table of a document. It always encodes as a list of
// tuples and decodes from tuples, objects, or an object keyed by link id.
type LinkList []Link

// MarshalJSON writes the tuple encoding.
func (ll LinkList) MarshalJSON() ([]byte, error) {
	out := make([][]any, len(ll))
	for i, l := range ll {
		out[i] = l.Tuple()
	}
	return json.Marshal(out)
}

// parseLink decodes one link entry in either encoding. keyID is the id taken
// from an id-keyed container and is used when the entry has none.
func parseLink(raw json.RawMessage, keyID int) (Link, error) {
	switch firstByte(raw) {
	case '[':
		var tuple []any
		if err := json.Unmarshal(raw, &tuple); err != nil {
			return Link{}, err
		}
		if len(tuple) < 5 {
			return Link{}, fmt.Errorf("link tuple has %d elements, want 6", len(tuple))
		}
		var ints [5]int
		for i := range ints {
			n, err := toInt(tuple[i])
			if err != nil {
				return Link{}, fmt.Errorf("link tuple[%d]: %w", i, err)
			}
			ints[i] = n
		}
		l := Link{ID: ints[0], OriginID: ints[1], OriginSlot: ints[2], TargetID: ints[3], TargetSlot: ints[4]}
		if len(tuple) > 5 {
			l.Type = slotTypeOf(tuple[5])
		}
		return l, checkLink(l)
	case '{':
		m, err := splitObject(raw)
		if err != nil {
			return Link{}, err
		}
		var l Link
		id, ok, err := takeInt(m, "id")
		if err != nil {
			return Link{}, err
		}
		if !ok {
			id = keyID
		}
		l.ID = id
		for _, f := range []struct {
			key string
			dst *int
		}{
			{"origin_id", &l.OriginID},
			{"origin_slot", &l.OriginSlot},
			{"target_id", &l.TargetID},
			{"target_slot", &l.TargetSlot},
		} {
			n, ok, err := takeInt(m, f.key)
			if err != nil {
				return Link{}, err
			}
			if !ok {
				return Link{}, fmt.Errorf("link %d: missing %s", id, f.key)
			}
			*f.dst = n
		}
		if err := take(m, "type", &l.Type); err != nil {
			return Link{}, err
		}
		return l, checkLink(l)
	}
	return Link{}, fmt.Errorf("link must be a tuple or an object")
}

func checkLink(l Link) error {
	if l.ID <= 0 {
		return fmt.Errorf("link id %d is not positive", l.ID)
	}
	if l.OriginSlot < 0 || l.TargetSlot < 0 {
		return fmt.Errorf("link %d has a negative slot", l.ID)
	}
	return nil
}

func slotTypeOf(v any) SlotType {
	switch x := v.(type) {
	case string:
		return SlotType(x)
	case nil:
		return ""
	}
	b, _ := json.Marshal(v)
	return SlotType(b)
}
