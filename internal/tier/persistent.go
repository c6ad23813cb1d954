package tier

import (
	"sort"

	"github.com/goliatone/go-tiered-cache/internal/equality"
)

// Persistent is the closed-key map behind the persistent tier. Only keys
// present in the schema are accepted.
type Persistent struct {
	defaults map[string]any
	values   map[string]any
}

// NewPersistent returns an empty map bound to defaults. The defaults map is
// copied.
func NewPersistent(defaults map[string]any) *Persistent {
	d := make(map[string]any, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &Persistent{defaults: d, values: make(map[string]any, len(d))}
}

// Known reports whether key belongs to the schema.
func (p *Persistent) Known(key string) bool {
	_, ok := p.defaults[key]
	return ok
}

// Default returns the schema default for key.
func (p *Persistent) Default(key string) (any, bool) {
	v, ok := p.defaults[key]
	return v, ok
}

// Keys returns the schema keys in sorted order.
func (p *Persistent) Keys() []string {
	keys := make([]string, 0, len(p.defaults))
	for k := range p.defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the stored value for key.
func (p *Persistent) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports membership.
func (p *Persistent) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Set stores value when it differs structurally from the current one and
// reports whether anything changed. Unknown keys are ignored and reported
// as unchanged; callers validate with Known first.
func (p *Persistent) Set(key string, value any) bool {
	if !p.Known(key) {
		return false
	}
	if current, ok := p.values[key]; ok && equality.Deep(current, value) {
		return false
	}
	p.values[key] = value
	return true
}

// Put stores value without comparison.
func (p *Persistent) Put(key string, value any) {
	p.values[key] = value
}

// Replace swaps the whole value set, dropping keys outside the schema.
func (p *Persistent) Replace(values map[string]any) {
	next := make(map[string]any, len(p.defaults))
	for k, v := range values {
		if p.Known(k) {
			next[k] = v
		}
	}
	p.values = next
}

// Snapshot returns a shallow copy of the stored values. The values
// themselves are shared with the map and are encoded later off the caller's
// goroutine, so they must not be mutated once stored.
func (p *Persistent) Snapshot() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Len returns the number of stored values.
func (p *Persistent) Len() int {
	return len(p.values)
}

// Clear drops every stored value. The schema is kept.
func (p *Persistent) Clear() {
	p.values = make(map[string]any, len(p.defaults))
}
