package testsupport

import (
	"sync"

	"github.com/goliatone/go-tiered-cache/cache"
)

// RecordingRelay implements cache.Relay in memory. Sent messages are
// recorded and never looped back; Deliver plays the part of a peer.
type RecordingRelay struct {
	mu       sync.Mutex
	sent     []cache.Message
	handlers map[int]func(cache.Message)
	next     int

	// SendErr, when set, is returned by Send after recording the message.
	SendErr error
}

// NewRecordingRelay returns an empty relay.
func NewRecordingRelay() *RecordingRelay {
	return &RecordingRelay{handlers: make(map[int]func(cache.Message))}
}

// Send records msg.
func (r *RecordingRelay) Send(msg cache.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.SendErr
}

// Subscribe registers handler for delivered messages.
func (r *RecordingRelay) Subscribe(handler func(cache.Message)) func() {
	r.mu.Lock()
	id := r.next
	r.next++
	r.handlers[id] = handler
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.handlers, id)
		r.mu.Unlock()
	}
}

// Deliver hands msg to every subscribed handler, as if a peer sent it.
func (r *RecordingRelay) Deliver(msg cache.Message) {
	r.mu.Lock()
	handlers := make([]func(cache.Message), 0, len(r.handlers))
	for _, h := range r.handlers {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// Sent returns a copy of the recorded messages.
func (r *RecordingRelay) Sent() []cache.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cache.Message(nil), r.sent...)
}

// Subscribers returns the number of registered handlers.
func (r *RecordingRelay) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Reset forgets recorded messages.
func (r *RecordingRelay) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
