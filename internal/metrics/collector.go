package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Snapshot is one resource sample
type Snapshot struct {
	ProcessRSSBytes   uint64
	ProcessCPUPercent float64 // per core, can exceed 100 on multi-core
	SystemMemPercent  float64
	SystemMemUsed     uint64
	Timestamp         time.Time
}

// Collector samples process and system resources at an interval and logs
// them. It keeps the peak RSS so a run can report whether memory stayed flat.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	mu      sync.RWMutex
	last    *Snapshot
	peakRSS uint64
}

// NewCollector creates a collector. Intervals under a second fall back to 30s.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// Start samples until ctx is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Sample()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.log(c.Sample())
		}
	}
}

// Sample takes one snapshot and records it as the latest
func (c *Collector) Sample() *Snapshot {
	s := &Snapshot{Timestamp: time.Now()}

	if c.proc != nil {
		if info, err := c.proc.MemoryInfo(); err == nil {
			s.ProcessRSSBytes = info.RSS
		}
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPUPercent = pct
		}
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		s.SystemMemPercent = vmem.UsedPercent
		s.SystemMemUsed = vmem.Used
	}

	c.mu.Lock()
	c.last = s
	if s.ProcessRSSBytes > c.peakRSS {
		c.peakRSS = s.ProcessRSSBytes
	}
	c.mu.Unlock()

	return s
}

func (c *Collector) log(s *Snapshot) {
	c.logger.Info("Resource usage",
		zap.String("rss", FormatBytes(s.ProcessRSSBytes)),
		zap.Float64("proc_cpu", s.ProcessCPUPercent),
		zap.Float64("sys_mem_pct", s.SystemMemPercent),
		zap.String("sys_mem_used", FormatBytes(s.SystemMemUsed)),
	)
}

// Last returns the latest snapshot, or nil before the first sample
func (c *Collector) Last() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// PeakRSS returns the highest RSS seen so far
func (c *Collector) PeakRSS() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peakRSS
}

// FormatBytes renders a byte count with a binary unit and one decimal
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
