package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// burstWindow is the trailing slice inspected by the burst check.
	burstWindow = time.Second

	// burstPenalty is the fixed block applied when the burst limit is hit.
	burstPenalty = 10 * time.Second
)

// record tracks one key's request history and block state. A record with
// blocked set always has a non-zero blockedUntil; clearing one clears both.
type record struct {
	timestamps   []time.Time
	blocked      bool
	blockedUntil time.Time
}

// MemoryLimiter is an in-memory sliding-window rate limiter. Request history
// lives in a per-key record table guarded by a single mutex; contention is
// low because every operation is a short, non-blocking computation. A
// background goroutine periodically evicts keys that stopped being queried,
// which is the only mechanism bounding memory for abandoned keys.
type MemoryLimiter struct {
	mu        sync.Mutex
	cfg       Config
	whitelist map[string]struct{}
	records   map[string]*record

	done   chan struct{}
	closed bool

	// now is swapped out by tests to drive block expiry deterministically.
	now func() time.Time
}

// New creates an in-memory limiter with the given policy and starts its
// cleanup goroutine. This is the primary construction path; the package
// singleton exists only as a process-wide convenience.
func New(cfg Config) *MemoryLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 60 * time.Second
	}
	m := &MemoryLimiter{
		cfg:       cfg.clone(),
		whitelist: whitelistSet(cfg.Whitelist),
		records:   make(map[string]*record),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	go m.cleanupLoop(cfg.CleanupInterval)
	return m
}

func whitelistSet(identifiers []string) map[string]struct{} {
	set := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		set[id] = struct{}{}
	}
	return set
}

// key namespaces a caller's history by endpoint so that limits on different
// routes are tracked independently.
func key(identifier, endpoint string) string {
	if endpoint == "" {
		return identifier
	}
	return identifier + ":" + endpoint
}

// Check decides whether a request may proceed and records it when allowed.
//
// Policy order: kill switch, whitelist, block state, burst check, window
// check. The burst check takes priority over the window check: a caller that
// bursts is blocked even if it would otherwise be under its window quota.
func (m *MemoryLimiter) Check(ctx context.Context, identifier, endpoint string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if !m.cfg.Enabled {
		return Result{
			Allowed:   true,
			Limit:     m.cfg.MaxRequests,
			Remaining: m.cfg.MaxRequests,
			ResetAt:   now.Add(m.cfg.Window),
		}
	}

	if _, ok := m.whitelist[identifier]; ok {
		// Whitelisted identifiers never acquire a record.
		return Result{
			Allowed:   true,
			Limit:     m.cfg.MaxRequests,
			Remaining: math.MaxInt,
			ResetAt:   now.Add(m.cfg.Window),
		}
	}

	maxRequests, window := m.cfg.limitsFor(endpoint)

	k := key(identifier, endpoint)
	rec, ok := m.records[k]
	if !ok {
		rec = &record{}
		m.records[k] = rec
	}

	if rec.blocked {
		if now.Before(rec.blockedUntil) {
			return Result{
				Allowed:    false,
				Limit:      maxRequests,
				Remaining:  0,
				ResetAt:    rec.blockedUntil,
				RetryAfter: rec.blockedUntil.Sub(now),
			}
		}
		// Block expired: full reset, past history does not carry over.
		rec.blocked = false
		rec.blockedUntil = time.Time{}
		rec.timestamps = nil
	}

	rec.timestamps = pruneBefore(rec.timestamps, now.Add(-window))

	if countSince(rec.timestamps, now.Add(-burstWindow)) >= m.cfg.BurstLimit {
		rec.blocked = true
		rec.blockedUntil = now.Add(burstPenalty)
		return Result{
			Allowed:    false,
			Limit:      maxRequests,
			Remaining:  0,
			ResetAt:    rec.blockedUntil,
			RetryAfter: burstPenalty,
		}
	}

	if len(rec.timestamps) >= maxRequests {
		// Window exhausted: deny without penalty. The quota frees up when
		// the oldest retained request ages out of the window.
		resetAt := rec.timestamps[0].Add(window)
		return Result{
			Allowed:    false,
			Limit:      maxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	rec.timestamps = append(rec.timestamps, now)
	return Result{
		Allowed:   true,
		Limit:     maxRequests,
		Remaining: maxRequests - len(rec.timestamps),
		ResetAt:   now.Add(window),
	}
}

// Consume is an alias for Check; the policy has no notion of provisional
// versus committed consumption.
func (m *MemoryLimiter) Consume(ctx context.Context, identifier, endpoint string) Result {
	return m.Check(ctx, identifier, endpoint)
}

// Reset removes the identifier's global record and all of its per-endpoint
// records. Resetting an unknown identifier is a no-op.
func (m *MemoryLimiter) Reset(ctx context.Context, identifier string) {
	prefix := identifier + ":"

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, identifier)
	for k := range m.records {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(m.records, k)
		}
	}
}

// Block installs a fresh blocked record for identifier, overwriting any prior
// state under that exact key. It is an administrative override and does not
// touch the identifier's endpoint-namespaced records.
func (m *MemoryLimiter) Block(ctx context.Context, identifier string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[identifier] = &record{
		blocked:      true,
		blockedUntil: m.now().Add(duration),
	}
}

// IsBlocked reports whether the bare identifier key is under an active block.
// An expired block observed here is cleared, matching Check's lazy expiry.
func (m *MemoryLimiter) IsBlocked(ctx context.Context, identifier string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[identifier]
	if !ok || !rec.blocked {
		return false
	}
	if m.now().Before(rec.blockedUntil) {
		return true
	}
	rec.blocked = false
	rec.blockedUntil = time.Time{}
	rec.timestamps = nil
	return false
}

// Status returns a read view of one key's state. Unlike Check it does not
// record a request, mutate stored timestamps, or clear expired blocks.
func (m *MemoryLimiter) Status(ctx context.Context, identifier, endpoint string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	maxRequests, window := m.cfg.limitsFor(endpoint)

	st := Status{Limit: maxRequests, Remaining: maxRequests}

	rec, ok := m.records[key(identifier, endpoint)]
	if !ok {
		return st
	}

	st.RequestsInWindow = countSince(rec.timestamps, now.Add(-window))
	st.Remaining = maxRequests - st.RequestsInWindow
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	if rec.blocked && now.Before(rec.blockedUntil) {
		st.Blocked = true
		st.BlockedUntil = rec.blockedUntil
		st.Remaining = 0
	}
	return st
}

// Config returns a copy of the live configuration.
func (m *MemoryLimiter) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.clone()
}

// SetConfig shallow-merges the patch into the live configuration. The merged
// policy applies to all subsequent Check calls; existing records are kept and
// re-evaluated under the new limits on their next use.
func (m *MemoryLimiter) SetConfig(patch ConfigPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if patch.Enabled != nil {
		m.cfg.Enabled = *patch.Enabled
	}
	if patch.MaxRequests != nil {
		m.cfg.MaxRequests = *patch.MaxRequests
	}
	if patch.Window != nil {
		m.cfg.Window = *patch.Window
	}
	if patch.BurstLimit != nil {
		m.cfg.BurstLimit = *patch.BurstLimit
	}
	if patch.Whitelist != nil {
		m.cfg.Whitelist = append([]string(nil), patch.Whitelist...)
		m.whitelist = whitelistSet(patch.Whitelist)
	}
	if patch.EndpointLimits != nil {
		limits := make(map[string]EndpointLimit, len(patch.EndpointLimits))
		for k, v := range patch.EndpointLimits {
			limits[k] = v
		}
		m.cfg.EndpointLimits = limits
	}
}

// Close stops the cleanup goroutine. Closing twice is safe.
func (m *MemoryLimiter) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

// cleanupLoop runs the eviction sweep on a fixed interval until Close.
func (m *MemoryLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep reclaims memory for keys that stopped being queried:
//   - idle keys (no timestamps, not blocked) are deleted
//   - stale keys whose newest timestamp is older than twice the largest
//     configured window are deleted, unless blocked
//   - expired blocks are cleared; the record stays if it has timestamps
//
// A live block is never removed, so Check keeps denying it after the sweep.
func (m *MemoryLimiter) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	staleCutoff := now.Add(-2 * m.cfg.maxWindow())

	for k, rec := range m.records {
		if rec.blocked {
			if now.Before(rec.blockedUntil) {
				continue
			}
			rec.blocked = false
			rec.blockedUntil = time.Time{}
			if len(rec.timestamps) == 0 {
				delete(m.records, k)
			}
			continue
		}
		if len(rec.timestamps) == 0 {
			delete(m.records, k)
			continue
		}
		if rec.timestamps[len(rec.timestamps)-1].Before(staleCutoff) {
			delete(m.records, k)
		}
	}
}

// trackedKeys reports the number of records currently held, for diagnostics.
func (m *MemoryLimiter) trackedKeys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// pruneBefore drops timestamps at or before cutoff. Timestamps are appended
// in arrival order, so the retained suffix stays ordered.
func pruneBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && !timestamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[i:]...)
}

// countSince counts timestamps strictly after cutoff.
func countSince(timestamps []time.Time, cutoff time.Time) int {
	n := 0
	for i := len(timestamps) - 1; i >= 0; i-- {
		if !timestamps[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}
