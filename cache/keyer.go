package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Keyer derives cache keys for memoized calls.
//
// Contract:
// - Determinism: equal inputs produce equal keys regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key derives a cache key from a namespace and call input.
	Key(namespace string, input any) (string, error)
}

// DefaultKeyer derives SHA-256 based keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key derives a deterministic key of the form memo:<namespace>:<hash>, where
// hash is the first 16 hex characters of SHA-256 over the canonical JSON of
// input.
func (k *DefaultKeyer) Key(namespace string, input any) (string, error) {
	if strings.TrimSpace(namespace) == "" {
		return "", ErrInvalidKey
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, input); err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize input: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	key := "memo:" + namespace + ":" + hex.EncodeToString(sum[:8])
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// writeCanonical writes v as JSON with object keys sorted at every level of
// map[string]any and []any nesting. Other values use encoding/json, which
// already sorts map keys.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(name)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	return nil
}

var _ Keyer = (*DefaultKeyer)(nil)
