package collector

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"syspulse/internal/model"
)

const gb = 1024 * 1024 * 1024

// probeTimeout bounds the reachability dial. A probe that cannot complete
// within it yields a null latency reading, never a failed sample.
const probeTimeout = 5 * time.Second

// CollectionError reports which host subsystem could not be read. A sample
// that fails to collect is skipped whole; no partial rows.
type CollectionError struct {
	Subsystem string
	Err       error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: %v", e.Subsystem, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// HostSource reads the local machine's vitals and probes network
// reachability with a single TCP dial.
type HostSource struct {
	pingHost string
	diskPath string
	now      func() time.Time
}

func NewHostSource(pingHost string) *HostSource {
	return &HostSource{
		pingHost: pingHost,
		diskPath: "/",
		now:      time.Now,
	}
}

// Collect gathers one sample. CPU, memory, disk, and uptime must all read
// cleanly; the latency probe is allowed to fail and reports nil when it does.
func (s *HostSource) Collect(ctx context.Context) (model.MetricSample, error) {
	sample := model.MetricSample{
		Timestamp: s.now().UTC().Truncate(time.Second),
	}

	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return model.MetricSample{}, &CollectionError{Subsystem: "cpu", Err: err}
	}
	if len(pct) > 0 {
		sample.CPUPercent = pct[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return model.MetricSample{}, &CollectionError{Subsystem: "memory", Err: err}
	}
	sample.MemoryPercent = vm.UsedPercent
	sample.MemoryUsedGB = float64(vm.Used) / gb
	sample.MemoryTotalGB = float64(vm.Total) / gb

	du, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return model.MetricSample{}, &CollectionError{Subsystem: "disk", Err: err}
	}
	sample.DiskPercent = du.UsedPercent
	sample.DiskUsedGB = float64(du.Used) / gb
	sample.DiskTotalGB = float64(du.Total) / gb

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return model.MetricSample{}, &CollectionError{Subsystem: "uptime", Err: err}
	}
	sample.UptimeSeconds = int64(uptime)

	sample.NetworkLatencyMS = s.probeLatency(ctx)
	return sample, nil
}

// probeLatency dials the configured host once and reports the elapsed time
// in milliseconds. Any dial failure, timeout included, reads as nil.
func (s *HostSource) probeLatency(ctx context.Context) *float64 {
	if s.pingHost == "" {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(dialCtx, "tcp", s.pingHost)
	if err != nil {
		return nil
	}
	conn.Close()
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	return &ms
}
