// Package manifest renders the deterministic per-site Kubernetes YAML of
// §4.9: service accounts, roles, role bindings, router config maps,
// deployments, services, annotated secrets, link/access-point config
// maps, and the fixed-order bundle §6 describes for site downloads.
// Object marshaling uses typed k8s.io/api structs and sigs.k8s.io/yaml for
// the wire encoding rather than hand-built YAML strings.
package manifest

import (
	"crypto/sha1" //nolint:gosec // content-addressing only, not a security boundary
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash is the SHA-1 hex digest of data's entries concatenated as
// key1||value1||key2||value2||… with keys visited in ascending
// lexicographic order, per §4.9. Used to derive the state-hash annotation
// a site secret carries for each tracked state key.
func Hash(data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("||")
		sb.WriteString(formatHashValue(data[k]))
		sb.WriteString("||")
	}

	sum := sha1.Sum([]byte(sb.String())) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// HashOfObjectNoChildren hashes obj after dropping any entry whose value
// is itself a nested object, so a state object's scalar fields hash
// stably regardless of how its nested structures evolve.
func HashOfObjectNoChildren(obj map[string]interface{}) string {
	flat := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if _, isObject := v.(map[string]interface{}); isObject {
			continue
		}
		flat[k] = v
	}
	return Hash(flat)
}

func formatHashValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
