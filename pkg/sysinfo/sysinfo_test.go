package sysinfo

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestCollect(t *testing.T) {
	info, err := Collect(context.Background())
	if err != nil {
		t.Fatalf("Failed to collect system info: %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS mismatch: expected %s, got %s", runtime.GOOS, info.OS)
	}

	if info.Architecture != runtime.GOARCH {
		t.Errorf("Architecture mismatch: expected %s, got %s", runtime.GOARCH, info.Architecture)
	}

	if info.GoVersion != runtime.Version() {
		t.Errorf("Go version mismatch: expected %s, got %s", runtime.Version(), info.GoVersion)
	}

	if info.CPUCores != runtime.NumCPU() {
		t.Errorf("CPU cores mismatch: expected %d, got %d", runtime.NumCPU(), info.CPUCores)
	}

	// platform probes may be unavailable; they must still be sane
	if info.AvailableMemory > info.TotalMemory {
		t.Errorf("available memory %d exceeds total %d", info.AvailableMemory, info.TotalMemory)
	}
	if info.LoadAverage < 0 || info.Uptime < 0 {
		t.Error("negative load or uptime")
	}
}

func TestCollectCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// probes fail on a canceled context; the runtime fields are still set
	info, err := Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.OS != runtime.GOOS || info.GoVersion == "" {
		t.Errorf("info = %+v", info)
	}
}

func TestFields(t *testing.T) {
	info := &SystemInfo{
		OS:              "linux",
		Architecture:    "amd64",
		CPUModel:        "Test CPU",
		CPUCores:        8,
		CPUThreads:      16,
		TotalMemory:     16 * 1024 * 1024 * 1024,
		AvailableMemory: 4 * 1024 * 1024 * 1024,
		Uptime:          90 * time.Minute,
		GoVersion:       "go1.21.0",
	}

	fields := info.Fields()
	got := map[string]string{}
	for _, f := range fields {
		got[f[0]] = f[1]
	}

	if fields[0][0] != "OS" || got["OS"] != "linux/amd64" {
		t.Errorf("OS row = %q", got["OS"])
	}
	if got["Cores / Threads"] != "8 / 16" {
		t.Errorf("cores row = %q", got["Cores / Threads"])
	}
	if !strings.HasPrefix(got["Memory"], "16.00 GB (4.00 GB free)") {
		t.Errorf("memory row = %q", got["Memory"])
	}
	if got["Uptime"] != "1h30m0s" {
		t.Errorf("uptime row = %q", got["Uptime"])
	}
}
