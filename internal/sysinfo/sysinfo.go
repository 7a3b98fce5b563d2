package sysinfo

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"
)

// Snapshot is one point-in-time reading of the host.
type Snapshot struct {
	Timestamp time.Time   `json:"timestamp"`
	Host      HostInfo    `json:"host"`
	CPU       CPUInfo     `json:"cpu"`
	Memory    MemoryInfo  `json:"memory"`
	Disks     []DiskInfo  `json:"disks"`
	Processes int         `json:"process_count"`
	TopByCPU  []ProcStats `json:"top_by_cpu,omitempty"`
	TopByMem  []ProcStats `json:"top_by_memory,omitempty"`
}

type HostInfo struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Platform      string `json:"platform"`
	KernelVersion string `json:"kernel_version"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
}

type CPUInfo struct {
	Cores        int       `json:"cores"`
	UsagePercent float64   `json:"usage_percent"`
	PerCore      []float64 `json:"per_core,omitempty"`
}

type MemoryInfo struct {
	TotalBytes     uint64  `json:"total_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
	SwapTotalBytes uint64  `json:"swap_total_bytes"`
	SwapUsedBytes  uint64  `json:"swap_used_bytes"`
}

type DiskInfo struct {
	Mountpoint  string  `json:"mountpoint"`
	Filesystem  string  `json:"filesystem"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

type ProcStats struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float32 `json:"memory_percent"`
}

// Collector gathers host metrics. Collection fans out across the metric
// families; a failure in one family fails the whole snapshot so callers
// never see partially-populated data presented as complete.
type Collector struct {
	logger *slog.Logger
	// topN bounds the per-process listings in a snapshot.
	topN int
}

func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{logger: logger, topN: 5}
}

// Snapshot collects a full reading of the host.
func (c *Collector) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Timestamp: time.Now().UTC()}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		info, err := host.InfoWithContext(gctx)
		if err != nil {
			return err
		}
		snap.Host = HostInfo{
			Hostname:      info.Hostname,
			OS:            info.OS,
			Platform:      info.Platform,
			KernelVersion: info.KernelVersion,
			UptimeSeconds: info.Uptime,
		}
		return nil
	})

	g.Go(func() error {
		cpuInfo, err := c.collectCPU(gctx)
		if err != nil {
			return err
		}
		snap.CPU = *cpuInfo
		return nil
	})

	g.Go(func() error {
		memInfo, err := c.collectMemory(gctx)
		if err != nil {
			return err
		}
		snap.Memory = *memInfo
		return nil
	})

	g.Go(func() error {
		disks, err := c.collectDisks(gctx)
		if err != nil {
			return err
		}
		snap.Disks = disks
		return nil
	})

	g.Go(func() error {
		count, topCPU, topMem, err := c.collectProcesses(gctx)
		if err != nil {
			return err
		}
		snap.Processes = count
		snap.TopByCPU = topCPU
		snap.TopByMem = topMem
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *Collector) collectCPU(ctx context.Context) (*CPUInfo, error) {
	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}

	// A zero interval reads usage since the previous call, which avoids
	// blocking the snapshot for a sampling window.
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, p := range perCore {
		total += p
	}
	if len(perCore) > 0 {
		total /= float64(len(perCore))
	}

	return &CPUInfo{
		Cores:        counts,
		UsagePercent: total,
		PerCore:      perCore,
	}, nil
}

func (c *Collector) collectMemory(ctx context.Context) (*MemoryInfo, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}

	return &MemoryInfo{
		TotalBytes:     vm.Total,
		UsedBytes:      vm.Used,
		AvailableBytes: vm.Available,
		UsedPercent:    vm.UsedPercent,
		SwapTotalBytes: swap.Total,
		SwapUsedBytes:  swap.Used,
	}, nil
}

func (c *Collector) collectDisks(ctx context.Context) ([]DiskInfo, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	var disks []DiskInfo
	for _, part := range partitions {
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			// Pseudo-filesystems and stale mounts fail here; skip them
			// rather than failing the snapshot.
			c.logger.Debug("skipping unreadable mountpoint",
				slog.String("mountpoint", part.Mountpoint),
				slog.Any("error", err))
			continue
		}
		disks = append(disks, DiskInfo{
			Mountpoint:  part.Mountpoint,
			Filesystem:  part.Fstype,
			TotalBytes:  usage.Total,
			UsedBytes:   usage.Used,
			FreeBytes:   usage.Free,
			UsedPercent: usage.UsedPercent,
		})
	}
	return disks, nil
}

func (c *Collector) collectProcesses(ctx context.Context) (int, []ProcStats, []ProcStats, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, nil, nil, err
	}

	stats := make([]ProcStats, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// The process may have exited between listing and inspection.
			continue
		}
		cpuPct, _ := p.CPUPercentWithContext(ctx)
		memPct, _ := p.MemoryPercentWithContext(ctx)
		stats = append(stats, ProcStats{
			PID:        p.Pid,
			Name:       name,
			CPUPercent: cpuPct,
			MemPercent: memPct,
		})
	}

	topCPU := topBy(stats, c.topN, func(a, b ProcStats) bool { return a.CPUPercent > b.CPUPercent })
	topMem := topBy(stats, c.topN, func(a, b ProcStats) bool { return a.MemPercent > b.MemPercent })
	return len(stats), topCPU, topMem, nil
}

func topBy(stats []ProcStats, n int, less func(a, b ProcStats) bool) []ProcStats {
	sorted := append([]ProcStats(nil), stats...)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
