package health

import (
	"sync"
	"sync/atomic"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// VendorCounters holds the in-process job lifecycle tallies for one
// vendor, read with atomic loads so Snapshot never blocks a writer.
type VendorCounters struct {
	Enqueued  int64
	Completed int64
	Failed    int64
	Requeued  int64
	DLQd      int64
}

// Counters is the authoritative, in-process source for live job-lifecycle
// activity: preferred over log parsing, which only serves
// historical windows predating process start.
type Counters struct {
	mu       sync.Mutex
	byVendor map[domain.Vendor]*VendorCounters
}

// NewCounters builds an empty counter set.
func NewCounters() *Counters {
	return &Counters{byVendor: make(map[domain.Vendor]*VendorCounters)}
}

func (c *Counters) vendorCounters(v domain.Vendor) *VendorCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	vc, ok := c.byVendor[v]
	if !ok {
		vc = &VendorCounters{}
		c.byVendor[v] = vc
	}
	return vc
}

// Enqueued records a job published to vendor's queue.
func (c *Counters) Enqueued(v domain.Vendor) { atomic.AddInt64(&c.vendorCounters(v).Enqueued, 1) }

// Completed records a job a handler completed successfully.
func (c *Counters) Completed(v domain.Vendor) { atomic.AddInt64(&c.vendorCounters(v).Completed, 1) }

// Failed records a job a handler reported failed (before retry routing).
func (c *Counters) Failed(v domain.Vendor) { atomic.AddInt64(&c.vendorCounters(v).Failed, 1) }

// Requeued records a job the retry manager republished.
func (c *Counters) Requeued(v domain.Vendor) { atomic.AddInt64(&c.vendorCounters(v).Requeued, 1) }

// DLQd records a job moved to the dead-letter queue.
func (c *Counters) DLQd(v domain.Vendor) { atomic.AddInt64(&c.vendorCounters(v).DLQd, 1) }

// Snapshot returns a point-in-time copy of every vendor's counters.
func (c *Counters) Snapshot() map[domain.Vendor]VendorCounters {
	c.mu.Lock()
	vendors := make([]domain.Vendor, 0, len(c.byVendor))
	counters := make([]*VendorCounters, 0, len(c.byVendor))
	for v, vc := range c.byVendor {
		vendors = append(vendors, v)
		counters = append(counters, vc)
	}
	c.mu.Unlock()

	out := make(map[domain.Vendor]VendorCounters, len(vendors))
	for i, v := range vendors {
		vc := counters[i]
		out[v] = VendorCounters{
			Enqueued:  atomic.LoadInt64(&vc.Enqueued),
			Completed: atomic.LoadInt64(&vc.Completed),
			Failed:    atomic.LoadInt64(&vc.Failed),
			Requeued:  atomic.LoadInt64(&vc.Requeued),
			DLQd:      atomic.LoadInt64(&vc.DLQd),
		}
	}
	return out
}
