package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Metadata is an opaque byte payload attached to agents.
//
// Ledger producers usually store JSON documents here, so the JSON form of
// Metadata embeds the payload verbatim when it is valid JSON and falls back
// to a hex string otherwise. Empty metadata renders as an empty object.
type Metadata []byte

// MarshalJSON implements json.Marshaler.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	if json.Valid(m) {
		return append([]byte(nil), m...), nil
	}
	return json.Marshal(hex.EncodeToString(m))
}

// UnmarshalJSON implements json.Unmarshaler. A JSON string is taken as the
// literal payload; any other JSON value is stored as its raw encoding.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = Metadata(s)
		return nil
	}
	if string(data) == "null" {
		*m = nil
		return nil
	}
	*m = append(Metadata(nil), data...)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Scalars are taken literally;
// mappings and sequences are stored as their JSON encoding.
func (m *Metadata) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*m = Metadata(node.Value)
		return nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	*m = data
	return nil
}
