package telemetry

import (
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/servemon/servemon/internal/model"
	"github.com/servemon/servemon/internal/store"
)

// Utilization bands shared by the disk and memory probes.
const (
	probeUnhealthyPct = 90
	probeWarningPct   = 80
)

// DiskSpaceCheck probes free space on a mount point.
type DiskSpaceCheck struct {
	Path string
}

func (c *DiskSpaceCheck) Name() string { return "disk_space" }

func (c *DiskSpaceCheck) Run() model.HealthStatus {
	path := c.Path
	if path == "" {
		path = rootPath
	}
	du, err := disk.Usage(path)
	if err != nil {
		return model.StatusError
	}
	return bandStatus(du.UsedPercent)
}

// MemoryCheck probes virtual memory pressure.
type MemoryCheck struct{}

func (c *MemoryCheck) Name() string { return "memory" }

func (c *MemoryCheck) Run() model.HealthStatus {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return model.StatusError
	}
	return bandStatus(vm.UsedPercent)
}

// StoreCheck probes connectivity to the metric store.
type StoreCheck struct {
	Store *store.Store
}

func (c *StoreCheck) Name() string { return "database" }

func (c *StoreCheck) Run() model.HealthStatus {
	if err := c.Store.Ping(); err != nil {
		return model.StatusUnhealthy
	}
	return model.StatusHealthy
}

func bandStatus(usedPct float64) model.HealthStatus {
	switch {
	case usedPct > probeUnhealthyPct:
		return model.StatusUnhealthy
	case usedPct > probeWarningPct:
		return model.StatusWarning
	default:
		return model.StatusHealthy
	}
}
