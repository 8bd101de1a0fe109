package types

import "encoding/json"

// Metadata is an opaque key/value payload attached to repositories,
// files, symbols, and relationships. It is serialized only at the
// storage edge; callers never depend on the wire format.
type Metadata map[string]any

// Encode serializes metadata for storage. Nil and empty maps encode
// as "{}" so column values stay comparable.
func (m Metadata) Encode() (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeMetadata deserializes a stored metadata column. Empty or NULL
// columns decode to an empty map, never an error.
func DecodeMetadata(s string) (Metadata, error) {
	if s == "" {
		return Metadata{}, nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = Metadata{}
	}
	return m, nil
}
