package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

type fakeQueueProbe struct {
	depths map[domain.Vendor]int
}

func (f *fakeQueueProbe) QueueDepth(_ context.Context, vendor domain.Vendor) (int, bool) {
	d, ok := f.depths[vendor]
	return d, ok
}

func TestAggregator_BuildReportsBrokerHealthAndQueueDepth(t *testing.T) {
	cache := NewCache(&fakePinger{alive: true})
	counters := NewCounters()
	probe := &fakeQueueProbe{depths: map[domain.Vendor]int{domain.VendorHDI: 7}}

	agg := NewAggregator(cache, counters, probe, "/nonexistent.log", 0, "")
	snap := agg.Snapshot(context.Background())

	assert.True(t, snap.BrokerHealthy)
	assert.Equal(t, 7, snap.QueueDepth[string(domain.VendorHDI)])
	assert.Equal(t, -1, snap.QueueDepth[string(domain.VendorAXA)])
}

func TestAggregator_NilQueueProbeReportsSentinelForAllVendors(t *testing.T) {
	cache := NewCache(&fakePinger{alive: false})
	agg := NewAggregator(cache, NewCounters(), nil, "/nonexistent.log", 24, "")
	snap := agg.Snapshot(context.Background())

	assert.False(t, snap.BrokerHealthy)
	for _, v := range domain.KnownVendors() {
		assert.Equal(t, -1, snap.QueueDepth[string(v)])
	}
}

func TestAggregator_SnapshotReusesCacheWithinTTL(t *testing.T) {
	pinger := &fakePinger{alive: true}
	cache := NewCache(pinger)
	agg := NewAggregator(cache, NewCounters(), nil, "/nonexistent.log", 24, "")

	first := agg.Snapshot(context.Background())
	second := agg.Snapshot(context.Background())
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
}

func TestAggregator_ActivityPrefersCountersOverLogParsing(t *testing.T) {
	counters := NewCounters()
	counters.Enqueued(domain.VendorHDI)
	counters.Completed(domain.VendorHDI)

	agg := NewAggregator(NewCache(&fakePinger{alive: true}), counters, nil, "/nonexistent.log", 24, "")
	snap := agg.activity(time.Now())

	assert.Equal(t, 1, snap.JobsCompleted)
	assert.Equal(t, 1, snap.ByVendor[string(domain.VendorHDI)].Completed)
}

func TestAggregator_ActivityFallsBackToLogParsingWhenCountersEmpty(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute).Format(logTimestampLayout)
	path := writeLog(t, recent+" | INFO | worker | [HDI] Recibido job: JOB-9")

	agg := NewAggregator(NewCache(&fakePinger{alive: true}), NewCounters(), nil, path, 1, "")
	snap := agg.activity(now)

	assert.Equal(t, 1, snap.JobsReceived)
}
