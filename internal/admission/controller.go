// Package admission implements a resource admission controller: a single
// per-worker-process gate bounding concurrent handler invocations by slot
// count and host CPU/RAM thresholds.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// Default thresholds, used when the caller passes zero values.
const (
	DefaultMaxConcurrent = 3
	DefaultMaxCPUPercent = 85.0
	DefaultMaxMemPercent = 85.0

	cpuSampleWindow = 100 * time.Millisecond
)

// Sampler abstracts CPU/RAM sampling so tests can substitute deterministic
// readings without depending on the host machine's load.
type Sampler interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemPercent(ctx context.Context) (float64, float64, error) // used%, available MB
}

type gopsutilSampler struct{}

func (gopsutilSampler) CPUPercent(_ context.Context) (float64, error) {
	percents, err := cpu.Percent(cpuSampleWindow, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("cpu sample: no readings returned")
	}
	return percents[0], nil
}

func (gopsutilSampler) MemPercent(_ context.Context) (float64, float64, error) {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	availableMB := float64(stat.Available) / (1024 * 1024)
	return stat.UsedPercent, availableMB, nil
}

// Controller gates concurrent handler invocations.
type Controller struct {
	maxConcurrent int
	maxCPUPercent float64
	maxMemPercent float64
	sampler       Sampler

	mu     sync.Mutex
	active int
	index  map[string]domain.Vendor // job_id -> vendor, for observability
}

// NewController builds a controller with the given thresholds. Pass zero
// values to use the package defaults.
func NewController(maxConcurrent int, maxCPUPercent, maxMemPercent float64) *Controller {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxCPUPercent <= 0 {
		maxCPUPercent = DefaultMaxCPUPercent
	}
	if maxMemPercent <= 0 {
		maxMemPercent = DefaultMaxMemPercent
	}
	return &Controller{
		maxConcurrent: maxConcurrent,
		maxCPUPercent: maxCPUPercent,
		maxMemPercent: maxMemPercent,
		sampler:       gopsutilSampler{},
		index:         make(map[string]domain.Vendor),
	}
}

// WithSampler overrides the CPU/RAM sampler, for tests.
func (c *Controller) WithSampler(s Sampler) *Controller {
	c.sampler = s
	return c
}

// Slot is a scoped handle on an acquired resource slot. Release must be
// called exactly once, typically via defer, on every exit path (success
// or failure) of the handler invocation that holds it.
type Slot struct {
	controller *Controller
	jobID      string
}

// Release frees the slot.
func (s *Slot) Release() {
	s.controller.release(s.jobID)
}

// Acquire checks slot capacity, then a fresh CPU sample, then RAM-used
// percentage, in that order. The first failing check raises a
// *domain.ResourceUnavailable; the caller MUST propagate it without
// acknowledging the inbound broker message.
func (c *Controller) Acquire(ctx context.Context, jobID string, vendor domain.Vendor) (*Slot, error) {
	c.mu.Lock()
	if c.active >= c.maxConcurrent {
		c.mu.Unlock()
		return nil, &domain.ResourceUnavailable{Reason: fmt.Sprintf("no free slots: %d/%d active", c.active, c.maxConcurrent)}
	}
	c.mu.Unlock()

	cpuPct, err := c.sampler.CPUPercent(ctx)
	if err != nil {
		return nil, &domain.ResourceUnavailable{Reason: fmt.Sprintf("cpu sample failed: %v", err)}
	}
	if cpuPct > c.maxCPUPercent {
		return nil, &domain.ResourceUnavailable{Reason: fmt.Sprintf("cpu usage %.1f%% exceeds limit %.1f%%", cpuPct, c.maxCPUPercent)}
	}

	memPct, _, err := c.sampler.MemPercent(ctx)
	if err != nil {
		return nil, &domain.ResourceUnavailable{Reason: fmt.Sprintf("memory sample failed: %v", err)}
	}
	if memPct > c.maxMemPercent {
		return nil, &domain.ResourceUnavailable{Reason: fmt.Sprintf("memory usage %.1f%% exceeds limit %.1f%%", memPct, c.maxMemPercent)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active >= c.maxConcurrent {
		// Lost the race between the capacity pre-check and the sampling
		// round-trip; fail closed rather than overshoot max_concurrent.
		return nil, &domain.ResourceUnavailable{Reason: fmt.Sprintf("no free slots: %d/%d active", c.active, c.maxConcurrent)}
	}
	c.active++
	c.index[jobID] = vendor
	return &Slot{controller: c, jobID: jobID}, nil
}

func (c *Controller) release(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.index, jobID)
	if c.active > 0 {
		c.active--
	}
}

// Stats is the observability snapshot of the controller's current state.
type Stats struct {
	CPUPercent     float64
	MemUsedPercent float64
	MemAvailableMB float64
	Active         int
	Available      int
	MaxConcurrent  int
	ActiveJobs     map[string]domain.Vendor
}

// Snapshot returns the current controller stats, sampling CPU/RAM fresh.
func (c *Controller) Snapshot(ctx context.Context) Stats {
	cpuPct, _ := c.sampler.CPUPercent(ctx)
	memPct, memAvail, _ := c.sampler.MemPercent(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	jobs := make(map[string]domain.Vendor, len(c.index))
	for k, v := range c.index {
		jobs[k] = v
	}
	return Stats{
		CPUPercent:     cpuPct,
		MemUsedPercent: memPct,
		MemAvailableMB: memAvail,
		Active:         c.active,
		Available:      c.maxConcurrent - c.active,
		MaxConcurrent:  c.maxConcurrent,
		ActiveJobs:     jobs,
	}
}
