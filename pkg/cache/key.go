package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies a cached value.
type Key struct {
	// Kind is the kind of value (e.g. "paper_metadata")
	Kind string

	// ID is the provider ID of the item (e.g. a Paper doc ID)
	ID string

	// Scope narrows the key, e.g. {"member": "dbmid:..."} for per-member data
	Scope map[string]string
}

// String generates a deterministic cache key string.
// Format: teamadmin:kind:scope1=val1:scope2=val2:id
//
// Example:
//
//	teamadmin:paper_metadata:member=dbmid:AAB:doc_id123
func (k Key) String() string {
	parts := []string{"teamadmin"}

	if kind := strings.Trim(k.Kind, ":"); kind != "" {
		parts = append(parts, kind)
	}

	if len(k.Scope) > 0 {
		scopeKeys := make([]string, 0, len(k.Scope))
		for key := range k.Scope {
			scopeKeys = append(scopeKeys, key)
		}
		sort.Strings(scopeKeys)

		for _, key := range scopeKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Scope[key]))
		}
	}

	if k.ID != "" {
		parts = append(parts, k.ID)
	}

	return strings.Join(parts, ":")
}
