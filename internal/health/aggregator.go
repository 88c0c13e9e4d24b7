package health

import (
	"context"
	"sync"
	"time"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// QueueDepthProber reports a vendor queue's depth via broker `$SYS`
// topics. ok is false when the depth could not be determined, in which
// case the caller reports the -1 sentinel.
type QueueDepthProber interface {
	QueueDepth(ctx context.Context, vendor domain.Vendor) (depth int, ok bool)
}

// Snapshot is the full metrics surface returned by the aggregator.
type Snapshot struct {
	GeneratedAt   time.Time
	APIHealthy    bool
	BrokerHealthy bool
	WorkerCount   int
	QueueDepth    map[string]int
	Activity      ActivitySnapshot
	ErrorCounts   map[string]int
	Resources     ResourceSnapshot
}

// Aggregator builds the metrics snapshot, preferring live in-process
// counters over log parsing and caching the result for 30s.
type Aggregator struct {
	cache        *Cache
	counters     *Counters
	queueProbe   QueueDepthProber
	logPath      string
	window       time.Duration
	workerMarker string
	diskPath     string
	browserNames []string

	cacheTTL time.Duration

	mu       sync.Mutex
	cached   Snapshot
	cachedAt time.Time
}

// NewAggregator builds a metrics aggregator. queueProbe may be nil, in
// which case every vendor's queue depth reports the -1 sentinel.
func NewAggregator(cache *Cache, counters *Counters, queueProbe QueueDepthProber, logPath string, windowHours int, workerMarker string) *Aggregator {
	if windowHours <= 0 {
		windowHours = 24
	}
	return &Aggregator{
		cache:        cache,
		counters:     counters,
		queueProbe:   queueProbe,
		logPath:      logPath,
		window:       time.Duration(windowHours) * time.Hour,
		workerMarker: workerMarker,
		diskPath:     "/",
		browserNames: []string{"chrome", "chromedriver", "selenium"},
		cacheTTL:     30 * time.Second,
	}
}

// Snapshot returns the current metrics snapshot, reusing a cached copy if
// it is under 30s old.
func (a *Aggregator) Snapshot(ctx context.Context) Snapshot {
	a.mu.Lock()
	if !a.cachedAt.IsZero() && time.Since(a.cachedAt) < a.cacheTTL {
		snap := a.cached
		a.mu.Unlock()
		return snap
	}
	a.mu.Unlock()

	snap := a.build(ctx)

	a.mu.Lock()
	a.cached = snap
	a.cachedAt = time.Now()
	a.mu.Unlock()
	return snap
}

func (a *Aggregator) build(ctx context.Context) Snapshot {
	now := time.Now()
	brokerHealthy := a.cache.IsAlive(ctx)

	queueDepth := make(map[string]int, len(domain.KnownVendors()))
	for _, v := range domain.KnownVendors() {
		if a.queueProbe != nil {
			if depth, ok := a.queueProbe.QueueDepth(ctx, v); ok {
				queueDepth[string(v)] = depth
				continue
			}
		}
		queueDepth[string(v)] = -1
	}

	return Snapshot{
		GeneratedAt:   now,
		APIHealthy:    true,
		BrokerHealthy: brokerHealthy,
		WorkerCount:   CountWorkerProcesses(ctx, a.workerMarker),
		QueueDepth:    queueDepth,
		Activity:      a.activity(now),
		ErrorCounts:   ParseErrorCounts(a.logPath, a.window, now),
		Resources:     SampleResources(ctx, a.diskPath, a.browserNames),
	}
}

// activity prefers in-process counters when any are populated; log
// parsing is the fallback for historical windows predating process start.
func (a *Aggregator) activity(now time.Time) ActivitySnapshot {
	if a.counters != nil {
		counterSnap := a.counters.Snapshot()
		if len(counterSnap) > 0 {
			return activityFromCounters(counterSnap)
		}
	}
	return ParseActivity(a.logPath, a.window, now)
}

func activityFromCounters(counters map[domain.Vendor]VendorCounters) ActivitySnapshot {
	snap := ActivitySnapshot{ByVendor: make(map[string]VendorActivity, len(counters))}
	for v, c := range counters {
		received := int(c.Enqueued)
		completed := int(c.Completed)
		failed := int(c.Failed)
		snap.JobsReceived += received
		snap.JobsCompleted += completed
		snap.JobsFailed += failed
		snap.ByVendor[string(v)] = VendorActivity{Received: received, Completed: completed, Failed: failed}
	}
	total := snap.JobsCompleted + snap.JobsFailed
	if total > 0 {
		snap.SuccessRate = float64(snap.JobsCompleted) / float64(total) * 100
	}
	return snap
}
