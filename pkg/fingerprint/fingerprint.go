// Package fingerprint produces stable hashes for cache keys, idempotency keys
// and deterministic sampling.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate hashes the canonical JSON form of data: object keys sorted at
// every level, so equal content always yields the same fingerprint.
func Generate(data map[string]any) string {
	hash := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(hash[:])
}

// Strings hashes an ordered list of parts.
func Strings(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(hash[:])
}

// Bucket maps parts onto [0, 1) uniformly and deterministically.
func Bucket(parts ...string) float64 {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return float64(binary.BigEndian.Uint64(hash[:8])>>11) / float64(1<<53)
}

func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			key, _ := json.Marshal(k)
			b.Write(key)
			b.WriteString(":")
			b.WriteString(canonicalize(v[k]))
		}
		b.WriteString("}")
		return b.String()
	case []any:
		var b strings.Builder
		b.WriteString("[")
		for i, item := range v {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(canonicalize(item))
		}
		b.WriteString("]")
		return b.String()
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return canonicalize(items)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
