// Package store selects a persistence adapter from a storage URL so the
// composition root stays free of engine-specific wiring.
package store

import (
	"context"
	"fmt"
	"strings"

	"custodia/pkg/audit"
	"custodia/pkg/audit/store/memory"
	"custodia/pkg/audit/store/postgres"
	"custodia/pkg/audit/store/redis"
)

// Open returns the adapter matching the URL scheme:
//
//	postgres:// or postgresql://  PostgreSQL
//	redis:// or rediss://         Redis list
//	memory://                     in-memory (tests, embedded use)
func Open(ctx context.Context, url string) (audit.Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(ctx, url)
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return redis.Open(ctx, url)
	case strings.HasPrefix(url, "memory://"), url == "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("store: unsupported storage url %q", url)
	}
}
