package fetch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// HostSemaphorePool caps in-flight requests per host. One pool is shared by
// every session of a run so both branches count against the same limit.
type HostSemaphorePool struct {
	sems  map[string]*semaphore.Weighted
	mu    sync.Mutex
	limit int64
	log   *logrus.Entry
}

// NewHostSemaphorePool creates a pool with the given per-host concurrency limit.
func NewHostSemaphorePool(maxPerHost int, log *logrus.Entry) *HostSemaphorePool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 1
		log.Warnf("max_requests_per_host invalid or zero, defaulting to %d", limit)
	}
	return &HostSemaphorePool{
		sems:  make(map[string]*semaphore.Weighted),
		limit: limit,
		log:   log,
	}
}

func (p *HostSemaphorePool) get(host string) *semaphore.Weighted {
	p.mu.Lock()
	defer p.mu.Unlock()
	sem, ok := p.sems[host]
	if !ok {
		sem = semaphore.NewWeighted(p.limit)
		p.sems[host] = sem
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit}).Debug("Created host semaphore")
	}
	return sem
}

// Acquire blocks until a permit for host is available or ctx is cancelled.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string) error {
	return p.get(host).Acquire(ctx, 1)
}

// Release returns one permit for host.
func (p *HostSemaphorePool) Release(host string) {
	p.mu.Lock()
	sem, ok := p.sems[host]
	p.mu.Unlock()
	if !ok {
		p.log.Errorf("hostsemaphore: Release called for unknown host: %s", host)
		return
	}
	sem.Release(1)
}

// Len returns the number of hosts seen so far.
func (p *HostSemaphorePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sems)
}
