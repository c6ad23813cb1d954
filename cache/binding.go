package cache

import "sync"

// Tier selects one of the three cache tiers.
type Tier int

const (
	TierMemory Tier = iota
	TierShared
	TierPersist
)

func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierShared:
		return "shared"
	case TierPersist:
		return "persist"
	}
	return "unknown"
}

// Binding observes one key the way a UI component does: it pins the key for
// as long as it is open, re-reads a fresh snapshot on every change and
// writes through the tier's setter. Close releases the pin and the
// subscription.
type Binding struct {
	svc     *Service
	tier    Tier
	key     string
	initial any

	unsubscribe func()
	closeOnce   sync.Once
}

// Bind opens a Binding on key. For the memory and shared tiers initial is
// written when the key holds no value; it is ignored for the persist tier,
// whose defaults come from the schema. onChange may be nil.
func Bind(svc *Service, t Tier, key string, initial any, onChange func()) (*Binding, error) {
	switch t {
	case TierMemory, TierShared:
	case TierPersist:
		if !svc.persistKnown(key) {
			return nil, unknownPersistKey(key)
		}
	default:
		return nil, unknownTier(t)
	}

	if onChange == nil {
		onChange = func() {}
	}

	b := &Binding{svc: svc, tier: t, key: key, initial: initial}
	b.unsubscribe = svc.Subscribe(key, onChange)
	svc.Pin(key)

	switch t {
	case TierMemory:
		if !svc.Has(key) && initial != nil {
			svc.Set(key, initial)
		}
		if svc.HasTTL(key) {
			svc.logger.Warn("binding uses a key with TTL, the value can expire between reads", "tier", t.String(), "key", key)
		}
	case TierShared:
		if !svc.HasShared(key) && initial != nil {
			svc.SetShared(key, initial)
		}
		if svc.HasSharedTTL(key) {
			svc.logger.Warn("binding uses a key with TTL, the value can expire between reads", "tier", t.String(), "key", key)
		}
	}

	return b, nil
}

// Key returns the bound key.
func (b *Binding) Key() string {
	return b.key
}

// Value returns the current value, falling back to the initial value when
// the key is absent.
func (b *Binding) Value() any {
	var (
		value any
		ok    bool
	)
	switch b.tier {
	case TierMemory:
		value, ok = b.svc.Get(b.key)
	case TierShared:
		value, ok = b.svc.GetShared(b.key)
	case TierPersist:
		v, err := b.svc.GetPersist(b.key)
		value, ok = v, err == nil
	}
	if !ok || value == nil {
		return b.initial
	}
	return value
}

// Set writes value through the bound tier.
func (b *Binding) Set(value any) error {
	switch b.tier {
	case TierMemory:
		b.svc.Set(b.key, value)
	case TierShared:
		b.svc.SetShared(b.key, value)
	case TierPersist:
		return b.svc.SetPersist(b.key, value)
	}
	return nil
}

// Close unpins the key and stops change notifications. It is safe to call
// more than once.
func (b *Binding) Close() {
	b.closeOnce.Do(func() {
		b.unsubscribe()
		b.svc.Unpin(b.key)
	})
}

func (s *Service) persistKnown(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist.Known(key)
}
