package di

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/goliatone/go-tiered-cache/cache"
)

// SignalTeardown returns a cache.TeardownFunc that runs the hook once when
// the process receives one of signals, SIGINT and SIGTERM by default. The
// hook runs in its own goroutine; the caller still decides when to exit.
func SignalTeardown(signals ...os.Signal) cache.TeardownFunc {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	return func(hook func()) func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, signals...)
		done := make(chan struct{})

		go func() {
			select {
			case <-ch:
				hook()
			case <-done:
			}
		}()

		var once sync.Once
		return func() {
			once.Do(func() {
				signal.Stop(ch)
				close(done)
			})
		}
	}
}
