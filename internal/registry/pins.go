package registry

import "github.com/puzpuzpuz/xsync/v3"

// Pins counts how many live consumers hold each key. A key is pinned while
// its count is above zero.
type Pins struct {
	counts *xsync.MapOf[string, int]
}

// NewPins returns an empty tracker.
func NewPins() *Pins {
	return &Pins{counts: xsync.NewMapOf[string, int]()}
}

// Pin increments the count for key and returns the new count.
func (p *Pins) Pin(key string) int {
	n, _ := p.counts.Compute(key, func(old int, _ bool) (int, bool) {
		return old + 1, false
	})
	return n
}

// Unpin decrements the count for key and returns what is left. The entry is
// removed at zero. Unpinning a key that is not pinned returns zero and
// changes nothing.
func (p *Pins) Unpin(key string) int {
	n, ok := p.counts.Compute(key, func(old int, loaded bool) (int, bool) {
		if !loaded || old <= 1 {
			return 0, true
		}
		return old - 1, false
	})
	if !ok {
		return 0
	}
	return n
}

// Pinned reports whether at least one consumer holds key.
func (p *Pins) Pinned(key string) bool {
	n, ok := p.counts.Load(key)
	return ok && n > 0
}

// Count returns the number of holders of key.
func (p *Pins) Count(key string) int {
	n, _ := p.counts.Load(key)
	return n
}

// Clear releases every pin.
func (p *Pins) Clear() {
	p.counts.Clear()
}
