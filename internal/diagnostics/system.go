// Package diagnostics reads host resource usage. The doctor command
// reports it and the run command uses it to pick a default worker
// count when none is configured.
package diagnostics

import (
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics holds a point-in-time snapshot of host resources.
type SystemMetrics struct {
	CPUModel   string  `json:"cpu_model"`
	CPUCores   int     `json:"cpu_cores"`
	CPUThreads int     `json:"cpu_threads"`
	CPUPercent float64 `json:"cpu_percent"`

	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent"`

	DiskTotalGB float64 `json:"disk_total_gb"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskPercent float64 `json:"disk_percent"`

	LoadAvg1  float64 `json:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15"`
}

// Collector gathers SystemMetrics. CPU percent is computed from the
// delta between successive Collect calls, so the first call reports 0.
type Collector struct {
	mu           sync.Mutex
	lastCPUTotal float64
	lastCPUIdle  float64

	infoOnce   sync.Once
	cpuModel   string
	cpuCores   int
	cpuThreads int
}

// NewCollector creates a metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Collect gathers current host statistics. Individual probes that fail
// leave their fields zeroed rather than failing the whole snapshot.
func (c *Collector) Collect() SystemMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := SystemMetrics{}
	c.collectHardwareInfo(&stats)
	c.collectCPU(&stats)
	c.collectMemory(&stats)
	c.collectDisk(&stats)
	c.collectLoad(&stats)
	return stats
}

func (c *Collector) collectHardwareInfo(stats *SystemMetrics) {
	c.infoOnce.Do(func() {
		if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
			c.cpuModel = strings.TrimSpace(infos[0].ModelName)
		}
		if cores, err := cpu.Counts(false); err == nil && cores > 0 {
			c.cpuCores = cores
		}
		if threads, err := cpu.Counts(true); err == nil && threads > 0 {
			c.cpuThreads = threads
		}
	})
	stats.CPUModel = c.cpuModel
	stats.CPUCores = c.cpuCores
	stats.CPUThreads = c.cpuThreads
}

func (c *Collector) collectCPU(stats *SystemMetrics) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}

	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idle := t.Idle + t.Iowait

	if c.lastCPUTotal > 0 {
		totalDelta := total - c.lastCPUTotal
		idleDelta := idle - c.lastCPUIdle
		if totalDelta > 0 {
			stats.CPUPercent = (1 - idleDelta/totalDelta) * 100
		}
	}

	c.lastCPUTotal = total
	c.lastCPUIdle = idle
}

func (c *Collector) collectMemory(stats *SystemMetrics) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	stats.MemTotalMB = float64(vm.Total) / 1024 / 1024
	stats.MemUsedMB = float64(vm.Used) / 1024 / 1024
	stats.MemPercent = vm.UsedPercent
}

func (c *Collector) collectDisk(stats *SystemMetrics) {
	usage, err := disk.Usage(rootDiskPath())
	if err != nil {
		return
	}
	stats.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	stats.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
	stats.DiskPercent = usage.UsedPercent
}

func (c *Collector) collectLoad(stats *SystemMetrics) {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	stats.LoadAvg1 = avg.Load1
	stats.LoadAvg5 = avg.Load5
	stats.LoadAvg15 = avg.Load15
}

// DefaultParallelism picks a worker count for stage execution: the
// logical CPU count, clamped to [2, 16]. Provider invocations are
// network bound, so a couple of workers still help on a single core.
func DefaultParallelism() int {
	n := runtime.NumCPU()
	if threads, err := cpu.Counts(true); err == nil && threads > 0 {
		n = threads
	}
	if n < 2 {
		return 2
	}
	if n > 16 {
		return 16
	}
	return n
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}
