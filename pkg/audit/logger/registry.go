package logger

import (
	"context"
	"fmt"
	"sync"

	"custodia/pkg/audit"
)

// Prefer explicit dependency injection: construct one Logger at start-up and
// pass it to every producing component. The process-wide registry below
// exists for hosts that compose through globals; it is a thin holder, not a
// second code path.

var (
	registryMu sync.RWMutex
	registered *Logger
)

// Initialize installs a process-wide logger. It fails if one is already
// installed; call Reset first when re-composing (tests).
func Initialize(ctx context.Context, cfg Config, st audit.Store, opts ...Option) (*Logger, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registered != nil {
		return nil, fmt.Errorf("logger: already initialized")
	}
	l, err := New(ctx, cfg, st, opts...)
	if err != nil {
		return nil, err
	}
	registered = l
	return l, nil
}

// Get returns the process-wide logger installed by Initialize.
func Get() (*Logger, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if registered == nil {
		return nil, audit.ErrNotInitialized
	}
	return registered, nil
}

// Reset clears the registry without shutting the logger down. The caller owns
// the shutdown; Reset only drops the reference. Intended for tests.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registered = nil
}
