package cache

// Relay connects this process to its peers. Send must not block the caller
// for long; delivery is best effort. Subscribe registers the handler for
// messages coming from peers and returns a function that removes it.
type Relay interface {
	Send(msg Message) error
	Subscribe(handler func(Message)) (unsubscribe func())
}

// Storage is a flat string-keyed durable store. The whole persistent tier is
// kept as one record. ReadBlob reports found=false for an absent key.
type Storage interface {
	ReadBlob(key string) (data []byte, found bool, err error)
	WriteBlob(key string, data []byte) error
	RemoveBlob(key string) error
}

// TeardownFunc registers hook to run when the hosting process or window is
// about to go away and returns a function that unregisters it.
type TeardownFunc func(hook func()) (unregister func())

// GetAs is a type-safe wrapper around Service.Get. ok is false when the key
// is absent, expired or holds a value of another type.
func GetAs[T any](s *Service, key string) (T, bool) {
	return as[T](s.Get(key))
}

// GetSharedAs is a type-safe wrapper around Service.GetShared.
func GetSharedAs[T any](s *Service, key string) (T, bool) {
	return as[T](s.GetShared(key))
}

// GetPersistAs is a type-safe wrapper around Service.GetPersist. A stored
// value of another type yields the zero value and no error.
func GetPersistAs[T any](s *Service, key string) (T, error) {
	value, err := s.GetPersist(key)
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := as[T](value, true)
	return typed, nil
}

func as[T any](value any, ok bool) (T, bool) {
	var zero T
	if !ok || value == nil {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
