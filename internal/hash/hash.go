// Package hash computes the content-addressed payload hash used to dedupe
// report editions. This is intentionally plain stdlib: canonical JSON plus
// SHA-256 is a one-function concern with no third-party library in the
// corpus that does it better (see DESIGN.md).
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Payload computes the SHA-256 hex digest of payloads after normalizing to
// canonical form: object keys sorted, consistent with the original
// implementation's `json.dumps(payloads, sort_keys=True, default=str)`.
func Payload(payloads [][]map[string]any) string {
	canonical := canonicalize(payloads)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func canonicalize(payloads [][]map[string]any) []byte {
	out := make([]any, 0, len(payloads))
	for _, rows := range payloads {
		sortedRows := make([]any, 0, len(rows))
		for _, row := range rows {
			sortedRows = append(sortedRows, sortedMap(row))
		}
		out = append(out, sortedRows)
	}
	b, _ := json.Marshal(out)
	return b
}

// sortedMap returns an ordered representation of m whose keys are emitted
// in sorted order by json.Marshal, via an ordered slice of key/value pairs
// re-encoded through a map[string]any for compatibility with json.Marshal's
// own (already-sorted) map key ordering.
func sortedMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}
