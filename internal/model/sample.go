package model

import "time"

// MetricSample is one host observation. NetworkLatencyMS is nil when the
// reachability probe failed or was disabled; nil is a valid reading and must
// never collapse to zero.
type MetricSample struct {
	ID               int64     `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryPercent    float64   `json:"memory_percent"`
	MemoryUsedGB     float64   `json:"memory_used_gb"`
	MemoryTotalGB    float64   `json:"memory_total_gb"`
	DiskPercent      float64   `json:"disk_percent"`
	DiskUsedGB       float64   `json:"disk_used_gb"`
	DiskTotalGB      float64   `json:"disk_total_gb"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	NetworkLatencyMS *float64  `json:"network_latency_ms"`
}

// Aggregate summarizes the samples inside one time window. A window with no
// samples yields SampleCount 0 and zeroed numeric fields. The latency fields
// are nil when no sample in the window carried a latency reading.
type Aggregate struct {
	SampleCount  int64    `json:"sample_count"`
	AvgCPU       float64  `json:"avg_cpu"`
	MinCPU       float64  `json:"min_cpu"`
	MaxCPU       float64  `json:"max_cpu"`
	AvgMemory    float64  `json:"avg_memory"`
	MinMemory    float64  `json:"min_memory"`
	MaxMemory    float64  `json:"max_memory"`
	AvgDisk      float64  `json:"avg_disk"`
	MinDisk      float64  `json:"min_disk"`
	MaxDisk      float64  `json:"max_disk"`
	AvgLatencyMS *float64 `json:"avg_latency_ms"`
	MinLatencyMS *float64 `json:"min_latency_ms"`
	MaxLatencyMS *float64 `json:"max_latency_ms"`
}
