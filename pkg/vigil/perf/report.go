package perf

import (
	"runtime"
	"time"
)

// Summary aggregates completed-work bookkeeping for a report.
type Summary struct {
	TotalStarted    int64               `json:"total_started"`
	TotalCompleted  int64               `json:"total_completed"`
	TotalFailed     int64               `json:"total_failed"`
	TotalOrphaned   int64               `json:"total_orphaned"`
	ActiveCount     int                 `json:"active_count"`
	AverageDuration time.Duration       `json:"average_duration"`
	Recent          []PerformanceRecord `json:"recent"`
}

// MemoryStats is a point-in-time view of process memory.
type MemoryStats struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
}

// Report is the sampler's full report for dashboards.
type Report struct {
	Summary  Summary       `json:"summary"`
	Warnings []Warning     `json:"warnings"`
	Memory   MemoryStats   `json:"memory"`
	Uptime   time.Duration `json:"uptime"`
}

// Report assembles the current report: totals, the rolling warning
// history, process memory, and uptime.
func (s *Sampler) Report() Report {
	mem := readMemory()

	s.mu.Lock()
	summary := Summary{
		TotalStarted:    s.totalStarted,
		TotalCompleted:  s.totalCompleted,
		TotalFailed:     s.totalFailed,
		TotalOrphaned:   s.totalOrphaned,
		ActiveCount:     len(s.active),
		AverageDuration: s.avgDuration,
		Recent:          append([]PerformanceRecord(nil), s.records...),
	}
	warnings := append([]Warning(nil), s.warnings...)
	uptime := time.Since(s.startedAt)
	s.mu.Unlock()

	return Report{
		Summary:  summary,
		Warnings: warnings,
		Memory:   mem,
		Uptime:   uptime,
	}
}

func readMemory() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
	}
}
