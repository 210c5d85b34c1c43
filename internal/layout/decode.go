package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type rawBlock struct {
	Type  BlockType       `json:"type"`
	Props json.RawMessage `json:"props"`
}

// UnmarshalJSON decodes `{type, props}` into the typed variant for type and
// applies that variant's defaults.
func (b *Block) UnmarshalJSON(data []byte) error {
	var rb rawBlock
	if err := json.Unmarshal(data, &rb); err != nil {
		return fmt.Errorf("invalid block: %w", err)
	}
	if rb.Type == "" {
		return fmt.Errorf("block is missing its type")
	}

	props := rb.Props
	if len(bytes.TrimSpace(props)) == 0 || bytes.Equal(bytes.TrimSpace(props), []byte("null")) {
		props = []byte("{}")
	}

	var common Common
	if err := json.Unmarshal(props, &common); err != nil {
		return fmt.Errorf("invalid props for %s block: %w", rb.Type, err)
	}

	variant := newProps(rb.Type)
	if err := json.Unmarshal(props, variant); err != nil {
		return fmt.Errorf("invalid props for %s block: %w", rb.Type, err)
	}
	variant.applyDefaults(&common)

	b.Type = rb.Type
	b.Common = common
	b.Props = variant
	b.raw = append([]byte(nil), props...)
	return nil
}

// MarshalJSON writes the block back in its stored shape, preserving props
// this package does not model.
func (b Block) MarshalJSON() ([]byte, error) {
	props := json.RawMessage(b.raw)
	if len(props) == 0 {
		merged := map[string]any{}
		for _, part := range []any{b.Common, b.Props} {
			if part == nil {
				continue
			}
			data, err := json.Marshal(part)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(data, &merged); err != nil {
				return nil, err
			}
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, err
		}
		props = data
	}
	return json.Marshal(rawBlock{Type: b.Type, Props: props})
}

// Known reports whether the block type is one of the supported variants.
func (b *Block) Known() bool {
	_, unknown := b.Props.(*UnknownProps)
	return !unknown
}

// Key returns the stable identity of the block, or "" if it only has a
// positional one.
func (b *Block) Key() string {
	return b.Common.BlockID
}
