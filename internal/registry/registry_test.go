package registry

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestSubscriptions_NotifyInOrder(t *testing.T) {
	r := NewSubscriptions(nil)

	var calls []string
	r.Subscribe("k", func() { calls = append(calls, "first") })
	r.Subscribe("k", func() { calls = append(calls, "second") })
	r.Subscribe("other", func() { calls = append(calls, "other") })

	r.Notify("k")

	if got := strings.Join(calls, ","); got != "first,second" {
		t.Errorf("expected first,second got %s", got)
	}
}

func TestSubscriptions_UnsubscribeIsIdempotent(t *testing.T) {
	r := NewSubscriptions(nil)

	count := 0
	unsubA := r.Subscribe("k", func() { count++ })
	unsubB := r.Subscribe("k", func() { count += 10 })

	unsubA()
	unsubA()

	if r.Count("k") != 1 {
		t.Fatalf("expected 1 subscriber, got %d", r.Count("k"))
	}

	r.Notify("k")
	if count != 10 {
		t.Errorf("expected only second callback to run, count=%d", count)
	}

	unsubB()
	if r.Keys() != 0 {
		t.Errorf("expected empty key set to be dropped, have %d keys", r.Keys())
	}
}

func TestSubscriptions_PanickingCallbackIsolated(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewSubscriptions(logger)

	ran := false
	r.Subscribe("k", func() { panic("boom") })
	r.Subscribe("k", func() { ran = true })

	r.Notify("k")

	if !ran {
		t.Error("expected second callback to run after first panicked")
	}
	if !strings.Contains(buf.String(), "subscriber callback failed") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
}

func TestSubscriptions_UnsubscribeDuringNotify(t *testing.T) {
	r := NewSubscriptions(nil)

	var unsub func()
	calls := 0
	unsub = r.Subscribe("k", func() {
		calls++
		unsub()
	})

	r.Notify("k")
	r.Notify("k")

	if calls != 1 {
		t.Errorf("expected one call, got %d", calls)
	}
}

func TestSubscriptions_Clear(t *testing.T) {
	r := NewSubscriptions(nil)
	unsub := r.Subscribe("a", func() {})
	r.Subscribe("b", func() {})

	r.Clear()
	unsub()

	if r.Keys() != 0 {
		t.Errorf("expected no keys after Clear, got %d", r.Keys())
	}
}

func TestPins_ReferenceCounted(t *testing.T) {
	p := NewPins()

	if p.Pinned("k") {
		t.Fatal("fresh key should not be pinned")
	}

	p.Pin("k")
	p.Pin("k")

	if got := p.Unpin("k"); got != 1 {
		t.Errorf("expected 1 holder left, got %d", got)
	}
	if !p.Pinned("k") {
		t.Error("key must stay pinned while a holder remains")
	}

	if got := p.Unpin("k"); got != 0 {
		t.Errorf("expected 0 holders, got %d", got)
	}
	if p.Pinned("k") {
		t.Error("key should be released at zero")
	}

	if got := p.Unpin("k"); got != 0 {
		t.Errorf("unpin below zero should stay at 0, got %d", got)
	}
	if p.Count("k") != 0 {
		t.Errorf("expected count 0, got %d", p.Count("k"))
	}
}

func TestPins_Concurrent(t *testing.T) {
	p := NewPins()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Pin("k")
		}()
	}
	wg.Wait()

	if p.Count("k") != 50 {
		t.Fatalf("expected 50 holders, got %d", p.Count("k"))
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Unpin("k")
		}()
	}
	wg.Wait()

	if p.Pinned("k") {
		t.Error("expected key released after all holders unpinned")
	}

	p.Pin("x")
	p.Clear()
	if p.Pinned("x") {
		t.Error("expected Clear to release pins")
	}
}
