// Package cache provides a three tier key/value cache kept in sync between
// peer processes.
//
// # Tiers
//
//   - memory: local to the process, optional TTL, never transmitted
//   - shared: every process holds a mirror, writes are broadcast to peers
//     through a Relay, optional TTL, last write wins
//   - persist: a closed set of keys declared by a Schema with defaults,
//     broadcast to peers and saved to a Storage after a debounce
//
// TTL expiry is lazy: an entry is checked when it is read and evicted then,
// and subscribers of the key are notified of the eviction.
//
// # Basic Usage
//
//	svc, err := cache.New(cache.Schema{"theme": "light"}, cache.DefaultConfig(),
//		cache.WithRelay(endpoint),
//		cache.WithStorage(store),
//	)
//	if err != nil {
//		return err
//	}
//	svc.Initialize()
//	defer svc.Cleanup()
//
//	svc.SetWithTTL("token", token, time.Minute)
//	svc.SetShared("selection", ids)
//	err = svc.SetPersist("theme", "dark")
//
// # Change Detection
//
// Memory and shared writes compare by identity: the same scalar or the same
// map, slice or pointer is a no-op. Persistent writes compare structurally.
// Only real changes notify subscribers, broadcast to peers or schedule a
// save. Moving only the TTL of an entry updates it silently, but shared
// tier peers still receive the new expiry.
//
// Stored values are kept by reference. Treat a map or slice as immutable
// once it has been set: build a new one for the next write. Persistent
// values are encoded on the save timer's goroutine, and an identity gate
// cannot see a mutation made in place.
//
// Persistent values must be JSON encodable. SetPersist rejects NaN,
// infinities, channels and funcs before anything changes.
//
// # Bindings
//
// Bind observes one key for the lifetime of a consumer. While a binding is
// open its key is pinned and Delete or DeleteShared refuse to remove it.
// Pins are reference counted, so two bindings on one key keep it pinned until
// both are closed.
//
// # Errors
//
// Errors carry a text code from github.com/goliatone/go-errors; use
// IsUnknownPersistKey, IsInvalidValue, IsInvalidConfig and IsInvalidMessage
// to inspect them.
package cache
