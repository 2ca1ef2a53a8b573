package probes

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemResourceProbe hints at the machine's current load, grounded on the
// teacher's CPU/load sampling in internal/monitor/service.go, trimmed down
// to the short natural-language summary a prompt needs rather than a full
// dashboard snapshot.
type SystemResourceProbe struct {
	ttl time.Duration
}

func NewSystemResourceProbe(ttl time.Duration) *SystemResourceProbe {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SystemResourceProbe{ttl: ttl}
}

func (p *SystemResourceProbe) Name() string      { return "system" }
func (p *SystemResourceProbe) TTL() time.Duration { return p.ttl }

func (p *SystemResourceProbe) Hint(ctx context.Context) (string, error) {
	usage, err := readCPUPercent(ctx)
	if err != nil {
		return "", err
	}

	cores, _ := cpu.CountsWithContext(ctx, true)
	var loadAvg1 float64
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		loadAvg1 = avg.Load1
	}
	memPct := 0.0
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		memPct = vm.UsedPercent
	}

	return fmt.Sprintf(
		"System: %s, %.0f%% CPU across %d cores, load %.2f, %.0f%% memory used.",
		runtime.GOOS, usage, cores, loadAvg1, memPct,
	), nil
}

func readCPUPercent(ctx context.Context) (float64, error) {
	// Non-blocking sample against the last call; this mirrors the teacher's
	// fallback chain for platforms where a zero-interval sample returns 0.
	if p, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(p) > 0 {
		return p[0], nil
	}
	p, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, fmt.Errorf("system probe: cpu percent unavailable")
	}
	return p[0], nil
}
