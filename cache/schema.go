package cache

import (
	"encoding/json"
	"sort"
)

// Schema is the closed key space of the persistent tier, mapping every key
// to its default value. Values must be JSON encodable since the tier is
// stored as one JSON object.
type Schema map[string]any

// Keys returns the schema keys in sorted order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that every default can be encoded.
func (s Schema) Validate() error {
	for _, k := range s.Keys() {
		if err := encodable(s[k]); err != nil {
			return invalidSchema(k, err)
		}
	}
	return nil
}

// encodable reports whether value can go into the persisted blob.
func encodable(value any) error {
	_, err := json.Marshal(value)
	return err
}
