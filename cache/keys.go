package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// KeyNamespace prefixes every derived key so this layer never collides with
// unrelated users of a shared store.
const KeyNamespace = "ql:query:"

// DeriveKey turns a query and its parameters into a stable cache key.
// Parameters are serialized in a canonical, order-independent form before
// hashing, so insertion order never affects the key. Pure function.
func DeriveKey(query string, params map[string]any) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write(canonicalize(params))
	return KeyNamespace + hex.EncodeToString(h.Sum(nil))
}

// canonicalize produces a deterministic textual form of v. Maps are rendered
// with sorted keys at every nesting level.
func canonicalize(v any) []byte {
	switch val := v.(type) {
	case nil:
		return []byte("null")
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			// non-serializable values still need a stable form
			return []byte(fmt.Sprintf("%#v", val))
		}
		return b
	}
}

func canonicalizeMap(m map[string]any) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		sb.Write(kb)
		sb.WriteByte(':')
		sb.Write(canonicalize(m[k]))
	}
	sb.WriteByte('}')
	return []byte(sb.String())
}

func canonicalizeSlice(s []any) []byte {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.Write(canonicalize(v))
	}
	sb.WriteByte(']')
	return []byte(sb.String())
}

// truncateKey shortens a key for log output. Full keys are opaque hashes;
// the prefix is enough to correlate log lines.
func truncateKey(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "..."
}
