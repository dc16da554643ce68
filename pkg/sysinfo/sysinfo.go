// Package sysinfo describes the machine a benchmark or server runs on.
package sysinfo

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

type SystemInfo struct {
	OS              string        `json:"os"`
	Architecture    string        `json:"architecture"`
	CPUModel        string        `json:"cpu_model"`
	CPUCores        int           `json:"cpu_cores"`
	CPUThreads      int           `json:"cpu_threads"`
	TotalMemory     uint64        `json:"total_memory"`
	AvailableMemory uint64        `json:"available_memory"`
	GoVersion       string        `json:"go_version"`
	Hostname        string        `json:"hostname"`
	Platform        string        `json:"platform"`
	KernelVersion   string        `json:"kernel_version"`
	Uptime          time.Duration `json:"uptime"`
	LoadAverage     float64       `json:"load_average"`
}

// Collect gathers what the platform exposes. Probes that fail leave their
// fields zero.
func Collect(ctx context.Context) (*SystemInfo, error) {
	info := &SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		GoVersion:    runtime.Version(),
		CPUCores:     runtime.NumCPU(),
	}

	if cpuInfo, err := cpu.InfoWithContext(ctx); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = strings.TrimSpace(cpuInfo[0].ModelName)
	}

	if threads, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUThreads = threads
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemory = memInfo.Total
		info.AvailableMemory = memInfo.Available
	}

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hostInfo.Hostname
		info.Platform = hostInfo.Platform
		info.KernelVersion = hostInfo.KernelVersion
		info.Uptime = time.Duration(hostInfo.Uptime) * time.Second
	}

	if loadAvg, err := load.AvgWithContext(ctx); err == nil {
		info.LoadAverage = loadAvg.Load1
	}

	return info, nil
}

// Fields returns label/value rows in display order.
func (s *SystemInfo) Fields() [][2]string {
	return [][2]string{
		{"OS", fmt.Sprintf("%s/%s", s.OS, s.Architecture)},
		{"Platform", s.Platform},
		{"Kernel", s.KernelVersion},
		{"Hostname", s.Hostname},
		{"CPU", s.CPUModel},
		{"Cores / Threads", fmt.Sprintf("%d / %d", s.CPUCores, s.CPUThreads)},
		{"Memory", fmt.Sprintf("%.2f GB (%.2f GB free)", gigabytes(s.TotalMemory), gigabytes(s.AvailableMemory))},
		{"Load (1m)", fmt.Sprintf("%.2f", s.LoadAverage)},
		{"Uptime", s.Uptime.String()},
		{"Go", s.GoVersion},
	}
}

func gigabytes(b uint64) float64 {
	return float64(b) / (1024 * 1024 * 1024)
}
