package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsOrderIndependent(t *testing.T) {
	a := Hash(map[string]interface{}{"b": "2", "a": "1"})
	b := Hash(map[string]interface{}{"a": "1", "b": "2"})
	require.Equal(t, a, b)
	require.Len(t, a, 40, "SHA-1 hex digest is 40 characters")
}

func TestHashChangesWithValue(t *testing.T) {
	a := Hash(map[string]interface{}{"a": "1"})
	b := Hash(map[string]interface{}{"a": "2"})
	require.NotEqual(t, a, b)
}

func TestHashOfObjectNoChildrenDropsNestedObjects(t *testing.T) {
	withChild := map[string]interface{}{
		"name":  "site-a",
		"child": map[string]interface{}{"ignored": true},
	}
	flat := map[string]interface{}{"name": "site-a"}
	require.Equal(t, Hash(flat), HashOfObjectNoChildren(withChild))
}
