package services

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

const (
	maxCPUPercent    = 70.0
	maxMemoryPercent = 80.0
	cpuSampleWindow  = 100 * time.Millisecond
)

// ResourceMonitor gates task admission on host load. A sampling failure
// never blocks admission.
type ResourceMonitor interface {
	CanStartTask(ctx context.Context) bool
}

type resourceMonitor struct {
	log *logger.Logger
}

func NewResourceMonitor(log *logger.Logger) ResourceMonitor {
	return &resourceMonitor{log: log.With("service", "ResourceMonitor")}
}

func (m *resourceMonitor) CanStartTask(ctx context.Context) bool {
	if percents, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false); err != nil {
		m.log.Debug("CPU sample failed, allowing task", "error", err)
	} else if len(percents) > 0 && percents[0] >= maxCPUPercent {
		m.log.Warn("Denying task on CPU pressure", "cpu_percent", percents[0])
		return false
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		m.log.Debug("Memory sample failed, allowing task", "error", err)
	} else if vm.UsedPercent >= maxMemoryPercent {
		m.log.Warn("Denying task on memory pressure", "memory_percent", vm.UsedPercent)
		return false
	}

	return true
}
