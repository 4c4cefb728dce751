package ratelimit

import "sync"

var (
	defaultMu      sync.Mutex
	defaultLimiter *MemoryLimiter
)

// Default returns the process-wide limiter, constructing it with
// DefaultConfig on first use. Prefer New and explicit wiring; the singleton
// exists for callers without access to the composition root.
func Default() *MemoryLimiter {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLimiter == nil {
		defaultLimiter = New(DefaultConfig())
	}
	return defaultLimiter
}

// Destroy stops the default limiter's cleanup goroutine and discards its
// state. The next Default call constructs a fresh instance. Used for orderly
// shutdown and test isolation.
func Destroy() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLimiter != nil {
		defaultLimiter.Close()
		defaultLimiter = nil
	}
}
