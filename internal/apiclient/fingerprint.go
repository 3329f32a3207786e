// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package apiclient

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint computes the deterministic cache key for a request:
// sha256 over a canonical encoding of method, URL, sorted query
// parameters, merged header set, and body.
func Fingerprint(method, rawURL string, params, headers map[string]string, body []byte) string {
	payload := map[string]any{
		"method":  strings.ToUpper(method),
		"url":     rawURL,
		"params":  sortedPairs(params),
		"headers": sortedPairs(headers),
		"body":    string(body),
	}
	encoded, _ := json.Marshal(payload)
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("%x", sum)
}

// sortedPairs flattens a map into key-sorted pairs so the JSON
// encoding is stable across runs.
func sortedPairs(m map[string]string) [][2]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, m[k]})
	}
	return pairs
}
