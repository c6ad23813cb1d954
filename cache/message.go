package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MessageType names the tier a sync message targets.
type MessageType string

const (
	MessageShared  MessageType = "shared"
	MessagePersist MessageType = "persist"
)

// Message is exchanged between peers through the Relay.
//
// Deleted marks a shared-tier deletion; Value is ignored then. TTL is the
// relative lifetime in milliseconds, zero meaning no expiry; receivers
// compute the deadline against their own clock.
type Message struct {
	Type    MessageType `json:"type" msgpack:"type"`
	Key     string      `json:"key" msgpack:"key"`
	Value   any         `json:"value,omitempty" msgpack:"value"`
	TTL     int64       `json:"ttl,omitempty" msgpack:"ttl,omitempty"`
	Deleted bool        `json:"deleted,omitempty" msgpack:"deleted,omitempty"`
	Origin  string      `json:"origin,omitempty" msgpack:"origin,omitempty"`
}

// Validate checks that the message can be routed and applied.
func (m Message) Validate() error {
	err := validation.ValidateStruct(&m,
		validation.Field(&m.Type, validation.Required, validation.In(MessageShared, MessagePersist)),
		validation.Field(&m.Key, validation.Required),
		validation.Field(&m.TTL, validation.Min(int64(0))),
		validation.Field(&m.Deleted, validation.When(m.Type == MessagePersist, validation.In(false).Error("persist keys cannot be deleted"))),
	)
	if err != nil {
		return invalidMessage(err)
	}
	return nil
}

// TTLDuration returns TTL as a time.Duration.
func (m Message) TTLDuration() time.Duration {
	return time.Duration(m.TTL) * time.Millisecond
}

func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	// 0 means no expiry on the wire
	if ttl < time.Millisecond {
		return 1
	}
	return ttl.Milliseconds()
}
