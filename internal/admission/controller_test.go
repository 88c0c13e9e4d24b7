package admission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

type fakeSampler struct {
	mu      sync.Mutex
	cpuPct  float64
	memPct  float64
	memAvMB float64
	cpuErr  error
	memErr  error
}

func (f *fakeSampler) CPUPercent(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cpuPct, f.cpuErr
}

func (f *fakeSampler) MemPercent(context.Context) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memPct, f.memAvMB, f.memErr
}

func TestAcquire_SucceedsWithinAllThresholds(t *testing.T) {
	c := NewController(2, 85, 85).WithSampler(&fakeSampler{cpuPct: 10, memPct: 20})
	slot, err := c.Acquire(context.Background(), "job-1", domain.VendorHDI)
	require.NoError(t, err)
	require.NotNil(t, slot)
	slot.Release()
}

func TestAcquire_RejectsWhenSlotsFull(t *testing.T) {
	c := NewController(1, 85, 85).WithSampler(&fakeSampler{cpuPct: 10, memPct: 20})
	slot, err := c.Acquire(context.Background(), "job-1", domain.VendorHDI)
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), "job-2", domain.VendorAXA)
	var resErr *domain.ResourceUnavailable
	require.Error(t, err)
	require.True(t, errors.As(err, &resErr))

	slot.Release()
	slot2, err := c.Acquire(context.Background(), "job-2", domain.VendorAXA)
	require.NoError(t, err)
	slot2.Release()
}

func TestAcquire_RejectsOnHighCPU(t *testing.T) {
	c := NewController(3, 50, 85).WithSampler(&fakeSampler{cpuPct: 99, memPct: 10})
	_, err := c.Acquire(context.Background(), "job-1", domain.VendorRUNT)
	require.Error(t, err)
	var resErr *domain.ResourceUnavailable
	require.True(t, errors.As(err, &resErr))
}

func TestAcquire_RejectsOnHighMemory(t *testing.T) {
	c := NewController(3, 85, 50).WithSampler(&fakeSampler{cpuPct: 10, memPct: 99})
	_, err := c.Acquire(context.Background(), "job-1", domain.VendorRUNT)
	require.Error(t, err)
	var resErr *domain.ResourceUnavailable
	require.True(t, errors.As(err, &resErr))
}

func TestRelease_FreesSlotForReuse(t *testing.T) {
	c := NewController(1, 85, 85).WithSampler(&fakeSampler{cpuPct: 1, memPct: 1})
	slot, err := c.Acquire(context.Background(), "job-1", domain.VendorSURA)
	require.NoError(t, err)
	slot.Release()

	snap := c.Snapshot(context.Background())
	assert.Equal(t, 0, snap.Active)
	assert.Empty(t, snap.ActiveJobs)
}

func TestSnapshot_ReportsActiveJobsByVendor(t *testing.T) {
	c := NewController(2, 85, 85).WithSampler(&fakeSampler{cpuPct: 5, memPct: 5})
	slot, err := c.Acquire(context.Background(), "job-1", domain.VendorSolidaria)
	require.NoError(t, err)
	defer slot.Release()

	snap := c.Snapshot(context.Background())
	assert.Equal(t, 1, snap.Active)
	assert.Equal(t, 1, snap.Available)
	assert.Equal(t, domain.VendorSolidaria, snap.ActiveJobs["job-1"])
}

func TestNewController_AppliesDefaultsForZeroValues(t *testing.T) {
	c := NewController(0, 0, 0)
	assert.Equal(t, DefaultMaxConcurrent, c.maxConcurrent)
	assert.Equal(t, DefaultMaxCPUPercent, c.maxCPUPercent)
	assert.Equal(t, DefaultMaxMemPercent, c.maxMemPercent)
}
