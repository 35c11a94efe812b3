package realtime

import (
	"sync"
	"time"
)

// Backoff is the retry policy for a dropped realtime connection: how many
// retries to schedule and how long to wait before each.
type Backoff struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
}

// FixedDelay returns a delay function that always waits d.
func FixedDelay(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// DefaultBackoff schedules a single retry after three seconds, matching the
// connector's bounded-reconnect contract.
func DefaultBackoff() Backoff {
	return Backoff{MaxAttempts: 1, Delay: FixedDelay(3 * time.Second)}
}

// retryState guarantees at most one pending retry timer at a time and makes
// the pending timer cancellable.
type retryState struct {
	mu       sync.Mutex
	timer    *time.Timer
	pending  bool
	attempts int
}

// schedule arms a retry timer for fn according to the policy. It reports
// false without arming anything when a retry is already pending or the
// policy's attempts are exhausted.
func (r *retryState) schedule(policy Backoff, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending || r.attempts >= policy.MaxAttempts {
		return false
	}
	r.attempts++
	r.pending = true
	r.timer = time.AfterFunc(policy.Delay(r.attempts), func() {
		r.mu.Lock()
		r.pending = false
		r.mu.Unlock()
		fn()
	})
	return true
}

// cancel stops any pending retry timer.
func (r *retryState) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.pending = false
}

// reset clears the attempt counter after a successful connection.
func (r *retryState) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = 0
}

// isPending reports whether a retry timer is armed.
func (r *retryState) isPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}
