package cache

import "encoding/json"

// Codec converts values to and from the opaque payload strings the cache
// stores.
//
// Contract:
// - Round-trip: Decode(Encode(v), &out) must leave out semantically equal to v.
// - Concurrency: implementations must be safe for concurrent use.
// - Decode receives a non-nil pointer.
type Codec interface {
	Encode(v any) (string, error)
	Decode(payload string, out any) error
}

// JSONCodec encodes values as JSON text.
type JSONCodec struct{}

// Encode marshals v to JSON.
func (JSONCodec) Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode unmarshals a JSON payload into out.
func (JSONCodec) Decode(payload string, out any) error {
	return json.Unmarshal([]byte(payload), out)
}

var _ Codec = JSONCodec{}
