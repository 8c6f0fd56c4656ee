package logger

import (
	"sync"
	"time"
)

// circuitBreaker prevents hammering the audit store during an outage. While
// open, persistence attempts are skipped; the pending batch stays queued and
// is retried after the cooldown, so nothing is dropped.
type circuitBreaker struct {
	mu sync.RWMutex

	threshold int           // consecutive failures to trip open
	cooldown  time.Duration // how long to stay open

	failures  int
	openUntil time.Time
	isOpen    bool
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, cooldown: cooldown}
}

// allow reports whether a persistence attempt may proceed. After the cooldown
// expires the breaker half-opens and lets one attempt through.
func (cb *circuitBreaker) allow() bool {
	cb.mu.RLock()
	if !cb.isOpen {
		cb.mu.RUnlock()
		return true
	}
	expired := time.Now().After(cb.openUntil)
	cb.mu.RUnlock()

	if !expired {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	// Re-check under the write lock.
	if cb.isOpen && time.Now().After(cb.openUntil) {
		cb.isOpen = false
		cb.failures = 0
	}
	return !cb.isOpen
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.isOpen = false
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures >= cb.threshold {
		cb.isOpen = true
		cb.openUntil = time.Now().Add(cb.cooldown)
	}
}

func (cb *circuitBreaker) open() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.isOpen
}
