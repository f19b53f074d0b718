// Package collector samples host resource usage with gopsutil.
package collector

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/BradenHooton/hostpanel/internal/models"
)

const bytesPerGB = 1024 * 1024 * 1024

// Sampler produces metric samples and a host description.
type Sampler interface {
	Sample(ctx context.Context) (*models.SystemMetricCreateRequest, error)
	HostInfo(ctx context.Context) (*models.ServerInfo, error)
}

// source is the gopsutil surface used by HostSampler.
type source struct {
	cpuPercent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	memory     func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	diskUsage  func(ctx context.Context, path string) (*disk.UsageStat, error)
	loadAvg    func(ctx context.Context) (*load.AvgStat, error)
	hostInfo   func(ctx context.Context) (*host.InfoStat, error)
}

var gopsutilSource = source{
	cpuPercent: cpu.PercentWithContext,
	memory:     mem.VirtualMemoryWithContext,
	diskUsage:  disk.UsageWithContext,
	loadAvg:    load.AvgWithContext,
	hostInfo:   host.InfoWithContext,
}

// HostSampler reads the local machine.
type HostSampler struct {
	diskPath    string
	cpuInterval time.Duration
	src         source
}

func NewHostSampler(diskPath string) *HostSampler {
	return &HostSampler{diskPath: diskPath, cpuInterval: time.Second, src: gopsutilSource}
}

func (s *HostSampler) Sample(ctx context.Context) (*models.SystemMetricCreateRequest, error) {
	percents, err := s.src.cpuPercent(ctx, s.cpuInterval, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := s.src.memory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory usage: %w", err)
	}

	du, err := s.src.diskUsage(ctx, s.diskPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage of %s: %w", s.diskPath, err)
	}

	m := &models.SystemMetricCreateRequest{
		CPUUsagePercent:    clampPercent(cpuPct),
		MemoryUsagePercent: clampPercent(vm.UsedPercent),
		DiskUsagePercent:   clampPercent(du.UsedPercent),
		MemoryTotalGB:      toGB(vm.Total),
		MemoryUsedGB:       toGB(vm.Used),
		DiskTotalGB:        toGB(du.Total),
		DiskUsedGB:         toGB(du.Used),
	}

	// load averages are unavailable on some platforms; report zeros
	if avg, err := s.src.loadAvg(ctx); err == nil {
		m.LoadAverage1m = round2(avg.Load1)
		m.LoadAverage5m = round2(avg.Load5)
		m.LoadAverage15m = round2(avg.Load15)
	}

	return m, nil
}

func (s *HostSampler) HostInfo(ctx context.Context) (*models.ServerInfo, error) {
	hi, err := s.src.hostInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read host info: %w", err)
	}

	arch := hi.KernelArch
	if arch == "" {
		arch = runtime.GOARCH
	}

	return &models.ServerInfo{
		Hostname:      hi.Hostname,
		OSName:        hi.Platform,
		OSVersion:     hi.PlatformVersion,
		KernelVersion: hi.KernelVersion,
		Architecture:  arch,
		BootTime:      time.Unix(int64(hi.BootTime), 0).UTC(),
		AdditionalInfo: models.JSONMap{
			"platform_family":     hi.PlatformFamily,
			"virtualization":      hi.VirtualizationSystem,
			"virtualization_role": hi.VirtualizationRole,
			"procs":               hi.Procs,
			"uptime_seconds":      hi.Uptime,
			"host_id":             hi.HostID,
		},
	}, nil
}

func toGB(b uint64) float64 {
	return round2(float64(b) / bytesPerGB)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampPercent(v float64) float64 {
	return math.Min(100, math.Max(0, round2(v)))
}
