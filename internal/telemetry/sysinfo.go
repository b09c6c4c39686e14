package telemetry

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"

	"github.com/servemon/servemon/internal/model"
)

const bytesPerGB = 1 << 30

// rootPath is the mount point sampled for disk utilization.
const rootPath = "/"

// SampleSystemResources reads CPU/memory/disk/network utilization, records
// each reading as a gauge and appends one system-sample row. The returned
// sample is what was persisted.
func (c *Collector) SampleSystemResources(ctx context.Context) (model.SystemSample, error) {
	sample := model.SystemSample{Timestamp: nowMillis()}

	// Percent with a zero interval compares against the previous call
	// instead of blocking the scheduler for a measurement window.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		return sample, fmt.Errorf("cpu: %w", err)
	} else if len(pct) > 0 {
		sample.CPUPercent = pct[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return sample, fmt.Errorf("memory: %w", err)
	}
	sample.MemoryPercent = vm.UsedPercent
	sample.MemoryUsedGB = float64(vm.Used) / bytesPerGB

	du, err := disk.UsageWithContext(ctx, rootPath)
	if err != nil {
		return sample, fmt.Errorf("disk: %w", err)
	}
	sample.DiskPercent = du.UsedPercent
	sample.DiskUsedGB = float64(du.Used) / bytesPerGB

	// Network counters are optional: some environments don't expose them.
	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		sample.NetBytesSent = counters[0].BytesSent
		sample.NetBytesRecv = counters[0].BytesRecv
	}

	c.RecordGauge("system.cpu.percent", sample.CPUPercent, nil)
	c.RecordGauge("system.memory.percent", sample.MemoryPercent, nil)
	c.RecordGauge("system.memory.used_gb", sample.MemoryUsedGB, nil)
	c.RecordGauge("system.disk.percent", sample.DiskPercent, nil)
	c.RecordGauge("system.disk.used_gb", sample.DiskUsedGB, nil)

	if err := c.store.AppendSystemSample(sample); err != nil {
		return sample, fmt.Errorf("append system sample: %w", err)
	}
	return sample, nil
}
