// Package registry maps authenticated principals to their own job pool.
// Each principal's pool is created lazily on first use and lives for the
// server process's lifetime; there is no persistence across restarts.
package registry

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dustinevan/rcmd/internal/job"
)

// Registry hands out a per-principal *job.Pool, creating one the first
// time a principal is seen. Reads are far more frequent than the
// first-touch creation, so lookups take the read lock and only the
// create path takes the write lock.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*job.Pool
	log   *zap.SugaredLogger

	// ctx is handed to every Pool this registry creates: canceling it
	// (server shutdown) propagates SIGTERM to every job still running
	// across every principal's pool.
	ctx context.Context
}

// New returns an empty Registry. Pools it creates spawn jobs bound to
// ctx's lifetime.
func New(ctx context.Context, log *zap.SugaredLogger) *Registry {
	return &Registry{pools: make(map[string]*job.Pool), log: log, ctx: ctx}
}

// PoolFor returns principal's job pool, creating it if this is the
// principal's first request. Safe for concurrent use; a double-checked
// lock keeps concurrent first requests for the same principal from
// creating two pools.
func (r *Registry) PoolFor(principal string) *job.Pool {
	r.mu.RLock()
	p, ok := r.pools[principal]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok = r.pools[principal]; ok {
		return p
	}
	p = job.NewPool(r.ctx, r.log.With("principal", principal))
	r.pools[principal] = p
	r.log.Infow("created job pool for new principal", "principal", principal)
	return p
}

// Has reports whether principal already has a pool, without creating
// one. Exposed mainly for tests.
func (r *Registry) Has(principal string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pools[principal]
	return ok
}
