// Package ratelimit provides sliding-window rate limiting for HTTP requests
// with burst detection and temporary blocking. Each caller identifier gets an
// independent request history; an optional endpoint name selects a per-route
// override limit and namespaces the history so one caller's quotas on
// different routes do not interact. It includes HTTP middleware that sets
// standard rate limit response headers.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Limiter defines the rate limiting contract. Implementations must be safe
// for concurrent use. A denial is a normal outcome, not an error; operations
// never fail on malformed input.
type Limiter interface {
	// Check decides whether a request from identifier may proceed right now
	// and records it when allowed. An empty endpoint applies the global
	// limits; a non-empty endpoint applies any configured override and
	// tracks the request under its own key.
	Check(ctx context.Context, identifier, endpoint string) Result

	// Consume is Check under a name for call sites performing the limited
	// action. Every Check already counts as consumption.
	Consume(ctx context.Context, identifier, endpoint string) Result

	// Reset removes all stored state for identifier, including its
	// per-endpoint histories.
	Reset(ctx context.Context, identifier string)

	// Block administratively blocks identifier for the given duration,
	// replacing any existing state under that key.
	Block(ctx context.Context, identifier string, duration time.Duration)

	// IsBlocked reports whether identifier is currently under an active
	// block. Expired blocks are cleared as a side effect of observation.
	IsBlocked(ctx context.Context, identifier string) bool

	// Status returns a read-only view of identifier's current state without
	// recording a request.
	Status(ctx context.Context, identifier, endpoint string) Status

	// Config returns a copy of the live configuration.
	Config() Config

	// SetConfig merges a partial configuration into the live one. The new
	// settings apply to all subsequent Check calls.
	SetConfig(patch ConfigPatch)

	// Close stops background goroutines and releases resources.
	Close()
}

// Result is the outcome of a Check call.
type Result struct {
	Allowed    bool          // Whether the request may proceed
	Limit      int           // Effective maximum requests per window
	Remaining  int           // Requests left in the current window
	ResetAt    time.Time     // When the window (or block) expires
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, the form
// used in Retry-After headers and JSON bodies.
func (r Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// Status is a diagnostic snapshot of one key's state.
type Status struct {
	RequestsInWindow int
	Limit            int
	Remaining        int
	Blocked          bool
	BlockedUntil     time.Time // zero unless Blocked
}

// EndpointLimit overrides the global MaxRequests/Window pair for one endpoint.
type EndpointLimit struct {
	MaxRequests int
	Window      time.Duration
}

// Config is the rate limiting policy. It is copied on read and replaced
// wholesale on write; callers never observe a partially updated policy.
type Config struct {
	// Enabled is the global kill switch. When false every Check is allowed.
	Enabled bool

	// MaxRequests is the default ceiling on requests per Window.
	MaxRequests int

	// Window is the default sliding-window duration.
	Window time.Duration

	// BurstLimit caps requests within any trailing one-second slice. A
	// caller that exceeds it is blocked for a fixed penalty even when under
	// its window quota.
	BurstLimit int

	// Whitelist lists identifiers exempt from all limiting. No state is
	// stored for them.
	Whitelist []string

	// EndpointLimits maps endpoint names to override limits. Endpoints not
	// present fall back to the defaults.
	EndpointLimits map[string]EndpointLimit

	// CleanupInterval is the period of the background sweep that evicts
	// idle and stale keys.
	CleanupInterval time.Duration
}

// ConfigPatch is a partial Config for SetConfig. Nil fields keep the current
// value; non-nil fields (and non-nil slices/maps) replace it.
type ConfigPatch struct {
	Enabled        *bool
	MaxRequests    *int
	Window         *time.Duration
	BurstLimit     *int
	Whitelist      []string
	EndpointLimits map[string]EndpointLimit
}

// DefaultConfig returns the stock policy: 100 requests per 60-second window,
// burst of 10 per second, loopback addresses whitelisted.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxRequests:     100,
		Window:          60 * time.Second,
		BurstLimit:      10,
		Whitelist:       []string{"127.0.0.1", "::1"},
		EndpointLimits:  map[string]EndpointLimit{},
		CleanupInterval: 60 * time.Second,
	}
}

// clone returns a deep copy so callers cannot mutate the live policy.
func (c Config) clone() Config {
	out := c
	out.Whitelist = append([]string(nil), c.Whitelist...)
	out.EndpointLimits = make(map[string]EndpointLimit, len(c.EndpointLimits))
	for k, v := range c.EndpointLimits {
		out.EndpointLimits[k] = v
	}
	return out
}

// limitsFor resolves the effective limits for an endpoint, falling back to
// the global defaults when no override exists.
func (c Config) limitsFor(endpoint string) (maxRequests int, window time.Duration) {
	if endpoint != "" {
		if override, ok := c.EndpointLimits[endpoint]; ok {
			return override.MaxRequests, override.Window
		}
	}
	return c.MaxRequests, c.Window
}

// maxWindow returns the largest window across the default and all overrides,
// used by the cleanup sweep's staleness bound.
func (c Config) maxWindow() time.Duration {
	max := c.Window
	for _, override := range c.EndpointLimits {
		if override.Window > max {
			max = override.Window
		}
	}
	return max
}
