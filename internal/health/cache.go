// Package health implements a cached broker-liveness probe and a metrics
// aggregation surface, with a ping-based liveness check and a log-derived
// activity fallback for when in-process counters are unavailable.
package health

import (
	"context"
	"sync"
	"time"
)

// Pinger is the subset of the broker client the health cache needs.
type Pinger interface {
	Ping(ctx context.Context, timeout time.Duration) bool
}

// Cache holds the last-known broker liveness state, refreshing it via a
// fresh ping only once its TTL has elapsed. A healthy result is cached
// longer (30s) than a degraded one (5s), so a real outage is noticed
// quickly while a healthy broker isn't re-pinged on every health request.
type Cache struct {
	pinger Pinger

	healthyTTL  time.Duration
	degradedTTL time.Duration
	pingTimeout time.Duration

	mu        sync.Mutex
	isAlive   bool
	lastCheck time.Time
	ttl       time.Duration
}

// NewCache builds a health cache around pinger, using the default
// TTLs (30s healthy, 5s degraded, 3s ping timeout).
func NewCache(pinger Pinger) *Cache {
	return &Cache{
		pinger:      pinger,
		healthyTTL:  30 * time.Second,
		degradedTTL: 5 * time.Second,
		pingTimeout: 3 * time.Second,
	}
}

// IsAlive returns the cached liveness state, refreshing it with a fresh
// ping if the cache has expired or has never been populated.
func (c *Cache) IsAlive(ctx context.Context) bool {
	c.mu.Lock()
	expired := c.lastCheck.IsZero() || time.Since(c.lastCheck) > c.ttl
	c.mu.Unlock()
	if !expired {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.isAlive
	}

	alive := c.pinger.Ping(ctx, c.pingTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.isAlive = alive
	c.lastCheck = time.Now()
	if alive {
		c.ttl = c.healthyTTL
	} else {
		c.ttl = c.degradedTTL
	}
	return c.isAlive
}
