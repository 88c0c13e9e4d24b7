package health

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceSnapshot is the host resource usage reported alongside the
// metrics snapshot.
type ResourceSnapshot struct {
	CPUPercent       float64
	MemPercent       float64
	DiskPercent      float64
	BrowserProcesses int
}

// SampleResources reports current CPU/RAM/disk usage and counts running
// processes whose name matches one of browserProcessNames (e.g.
// "chrome", "chromedriver"), a best-effort proxy for active browser
// automation sessions.
func SampleResources(ctx context.Context, diskPath string, browserProcessNames []string) ResourceSnapshot {
	var snap ResourceSnapshot

	if percents, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemPercent = vm.UsedPercent
	}
	if du, err := disk.UsageWithContext(ctx, diskPath); err == nil {
		snap.DiskPercent = du.UsedPercent
	}
	snap.BrowserProcesses = countMatchingProcesses(ctx, browserProcessNames)
	return snap
}

// CountWorkerProcesses counts running processes whose command line
// contains marker, used to report the worker-process count in the
// metrics snapshot.
func CountWorkerProcesses(ctx context.Context, marker string) int {
	if marker == "" {
		return 0
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0
	}
	count := 0
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, marker) {
			count++
		}
	}
	return count
}

func countMatchingProcesses(ctx context.Context, names []string) int {
	if len(names) == 0 {
		return 0
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0
	}
	count := 0
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		lowered := strings.ToLower(name)
		for _, target := range names {
			if strings.Contains(lowered, target) {
				count++
				break
			}
		}
	}
	return count
}
