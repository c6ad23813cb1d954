package relay

import (
	"bytes"
	"log/slog"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-tiered-cache/cache"
)

// Endpoint is one peer's connection to the Hub. It implements cache.Relay.
type Endpoint struct {
	id     string
	hub    *Hub
	logger *slog.Logger
	queue  chan []byte

	mu       sync.RWMutex
	handlers map[uint64]func(cache.Message)
	next     uint64

	done      chan struct{}
	finished  chan struct{}
	closeOnce sync.Once
}

var _ cache.Relay = (*Endpoint)(nil)

func newEndpoint(id string, h *Hub) *Endpoint {
	e := &Endpoint{
		id:       id,
		hub:      h,
		logger:   h.logger.With("endpoint", id),
		queue:    make(chan []byte, h.cfg.QueueSize),
		handlers: make(map[uint64]func(cache.Message)),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go e.run()
	return e
}

// ID returns the endpoint id assigned by the hub.
func (e *Endpoint) ID() string {
	return e.id
}

// Send encodes msg and queues it for every other endpoint.
func (e *Endpoint) Send(msg cache.Message) error {
	select {
	case <-e.done:
		return relayClosed("send")
	default:
	}

	data, err := msgpack.Marshal(&msg)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode cache sync message").
			WithTextCode(CodeEncodeFailure).
			WithMetadata(map[string]any{"key": msg.Key})
	}

	e.hub.fanOut(e.id, data, string(msg.Type), msg.Key)
	return nil
}

// Subscribe registers handler for messages sent by other endpoints. Handlers
// run on the endpoint's delivery goroutine, one message at a time.
func (e *Endpoint) Subscribe(handler func(cache.Message)) func() {
	if handler == nil {
		e.logger.Warn("ignoring nil cache sync handler")
		return func() {}
	}

	e.mu.Lock()
	id := e.next
	e.next++
	e.handlers[id] = handler
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

// Close disconnects the endpoint and waits until queued messages have been
// delivered. It is safe to call more than once, but not from a handler.
func (e *Endpoint) Close() {
	e.hub.disconnect(e.id)
	e.stop()
}

func (e *Endpoint) stop() {
	e.closeOnce.Do(func() { close(e.done) })
	<-e.finished
}

func (e *Endpoint) run() {
	defer close(e.finished)

	for {
		select {
		case data := <-e.queue:
			e.deliver(data)
		case <-e.done:
			for {
				select {
				case data := <-e.queue:
					e.deliver(data)
				default:
					return
				}
			}
		}
	}
}

func (e *Endpoint) deliver(data []byte) {
	var msg cache.Message
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&msg); err != nil {
		e.logger.Warn("failed to decode cache sync message", "error", err)
		return
	}

	e.mu.RLock()
	handlers := make([]func(cache.Message), 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		e.call(h, msg)
	}
}

func (e *Endpoint) call(handler func(cache.Message), msg cache.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("cache sync handler panicked", "type", msg.Type, "key", msg.Key, "panic", rec)
		}
	}()
	handler(msg)
}
