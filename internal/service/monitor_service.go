package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

type upstreamPinger interface {
	Ping(ctx context.Context) (models.UpstreamStatus, error)
}

type cacheStatser interface {
	Stats() models.CacheStats
}

// HostProbe reads host resource figures. The default implementation uses gopsutil.
type HostProbe interface {
	CPU(ctx context.Context, window time.Duration) (percent float64, count int, err error)
	Memory(ctx context.Context) (total, available uint64, percent float64, err error)
	Disk(ctx context.Context, path string) (total, free uint64, percent float64, err error)
}

// MonitorConfig tunes the resource monitor.
type MonitorConfig struct {
	DiskPath     string
	SampleWindow time.Duration
	Timeout      time.Duration
}

// MonitorService backs the server resource monitor screen.
type MonitorService struct {
	api    upstreamPinger
	cache  cacheStatser
	probe  HostProbe
	cfg    MonitorConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewMonitorService constructs the monitor. A nil probe selects gopsutil.
func NewMonitorService(api upstreamPinger, cache cacheStatser, probe HostProbe, cfg MonitorConfig, logger *zap.Logger) *MonitorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if probe == nil {
		probe = gopsutilProbe{}
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	if cfg.SampleWindow <= 0 {
		cfg.SampleWindow = 200 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MonitorService{api: api, cache: cache, probe: probe, cfg: cfg, logger: logger, now: time.Now}
}

// Snapshot gathers host, upstream and cache figures concurrently. A failing
// probe leaves its section empty and adds a warning instead of failing the call.
func (s *MonitorService) Snapshot(ctx context.Context) (*models.ResourceSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	snap := &models.ResourceSnapshot{
		Host: models.HostResources{DiskPath: s.cfg.DiskPath, Goroutines: runtime.NumGoroutine()},
	}
	var mu sync.Mutex
	warn := func(section string, err error) {
		s.logger.Warn("resource probe failed", zap.String("probe", section), zap.Error(err))
		mu.Lock()
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("%s: %v", section, err))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		percent, count, err := s.probe.CPU(gctx, s.cfg.SampleWindow)
		if err != nil {
			warn("cpu", err)
			return nil
		}
		mu.Lock()
		snap.Host.CPUPercent, snap.Host.CPUCount = percent, count
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		total, available, percent, err := s.probe.Memory(gctx)
		if err != nil {
			warn("memory", err)
			return nil
		}
		mu.Lock()
		snap.Host.MemoryTotal, snap.Host.MemoryAvailable, snap.Host.MemoryPercent = total, available, percent
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		total, free, percent, err := s.probe.Disk(gctx, s.cfg.DiskPath)
		if err != nil {
			warn("disk", err)
			return nil
		}
		mu.Lock()
		snap.Host.DiskTotal, snap.Host.DiskFree, snap.Host.DiskPercent = total, free, percent
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		status, err := s.api.Ping(gctx)
		if err != nil {
			warn("upstream", err)
		}
		mu.Lock()
		snap.Upstream = status
		mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.cache != nil {
		snap.Cache = s.cache.Stats()
	}
	snap.ObservedAt = s.now().UTC()
	return snap, nil
}

type gopsutilProbe struct{}

func (gopsutilProbe) CPU(ctx context.Context, window time.Duration) (float64, int, error) {
	percents, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, 0, err
	}
	count, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, 0, err
	}
	if len(percents) == 0 {
		return 0, count, nil
	}
	return percents[0], count, nil
}

func (gopsutilProbe) Memory(ctx context.Context) (uint64, uint64, float64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	return v.Total, v.Available, v.UsedPercent, nil
}

func (gopsutilProbe) Disk(ctx context.Context, path string) (uint64, uint64, float64, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, 0, 0, err
	}
	return u.Total, u.Free, u.UsedPercent, nil
}
