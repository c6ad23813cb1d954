package cache_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-tiered-cache/cache"
)

func TestBind_MemorySeedsInitialValue(t *testing.T) {
	h := newHarness(t, testSchema(), nil)

	b, err := cache.Bind(h.svc, cache.TierMemory, "draft", "hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()

	if v, ok := h.svc.Get("draft"); !ok || v != "hello" {
		t.Errorf("expected initial value to be written, got %v %v", v, ok)
	}
	if b.Key() != "draft" || b.Value() != "hello" {
		t.Errorf("unexpected binding state %s=%v", b.Key(), b.Value())
	}
}

func TestBind_PinsUntilClosed(t *testing.T) {
	h := newHarness(t, testSchema(), nil)

	first, _ := cache.Bind(h.svc, cache.TierShared, "sel", "a", nil)
	second, _ := cache.Bind(h.svc, cache.TierShared, "sel", "b", nil)

	if h.svc.DeleteShared("sel") {
		t.Fatal("expected bound key to be protected")
	}

	first.Close()
	first.Close()
	if h.svc.DeleteShared("sel") {
		t.Fatal("second binding still holds the key")
	}

	second.Close()
	if !h.svc.DeleteShared("sel") {
		t.Fatal("expected delete to succeed after every binding closed")
	}
	if second.Value() != "b" {
		t.Errorf("expected fallback to the initial value, got %v", second.Value())
	}
}

func TestBind_OnChange(t *testing.T) {
	h := newHarness(t, testSchema(), nil)

	var calls atomic.Int32
	var seen atomic.Value
	var b *cache.Binding
	b, err := cache.Bind(h.svc, cache.TierPersist, "theme", nil, func() {
		calls.Add(1)
		seen.Store(b.Value())
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.Set("dark"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 || seen.Load() != "dark" {
		t.Errorf("expected one change with the fresh value, got %d %v", calls.Load(), seen.Load())
	}

	b.Close()
	if err := h.svc.SetPersist("theme", "light"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Error("closed binding must not be notified")
	}
}

func TestBind_Errors(t *testing.T) {
	h := newHarness(t, testSchema(), nil)

	if _, err := cache.Bind(h.svc, cache.TierPersist, "nope", nil, nil); !cache.IsUnknownPersistKey(err) {
		t.Errorf("expected unknown persist key error, got %v", err)
	}
	if _, err := cache.Bind(h.svc, cache.Tier(9), "k", nil, nil); err == nil {
		t.Error("expected unknown tier error")
	}
	if h.svc.Pinned("nope") || h.svc.Pinned("k") {
		t.Error("failed binds must not pin")
	}
}

func TestBind_WarnsOnTTLKey(t *testing.T) {
	h := newHarness(t, testSchema(), nil)
	h.svc.SetWithTTL("token", "abc", time.Minute)

	b, err := cache.Bind(h.svc, cache.TierMemory, "token", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if !containsLog(h, "binding uses a key with TTL") {
		t.Error("expected TTL warning")
	}
}

func TestTier_String(t *testing.T) {
	tests := map[cache.Tier]string{
		cache.TierMemory:  "memory",
		cache.TierShared:  "shared",
		cache.TierPersist: "persist",
		cache.Tier(42):    "unknown",
	}
	for tier, want := range tests {
		if got := tier.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
