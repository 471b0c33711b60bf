package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"syspulse/internal/model"
)

// ErrEmptyRange marks a report window that matched no samples.
var ErrEmptyRange = errors.New("no samples in range")

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatText:
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want json, csv, or text)", s)
	}
}

// ContentType maps a format to its HTTP media type.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// Store is the slice of storage the reporter needs.
type Store interface {
	QueryRange(ctx context.Context, from, to time.Time) ([]model.MetricSample, error)
	Aggregate(ctx context.Context, from, to time.Time) (model.Aggregate, error)
}

type Reporter struct {
	store Store
	now   func() time.Time
}

func NewReporter(st Store) *Reporter {
	return &Reporter{store: st, now: time.Now}
}

type payload struct {
	GeneratedAt  time.Time            `json:"generated_at"`
	Window       model.Window         `json:"window"`
	TotalRecords int                  `json:"total_records"`
	Statistics   []model.MetricSample `json:"statistics"`
	Summary      model.Aggregate      `json:"summary"`
}

// Render produces the report for [from, to] in the requested format.
// A window with no samples returns ErrEmptyRange. The sample list and the
// summary come from two separate reads, so under concurrent appends the
// summary may cover rows inserted between them; each read is still a
// consistent snapshot.
func (r *Reporter) Render(ctx context.Context, from, to time.Time, format Format) ([]byte, error) {
	samples, err := r.store.QueryRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query report window: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("window %s to %s: %w",
			from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), ErrEmptyRange)
	}
	summary, err := r.store.Aggregate(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregate report window: %w", err)
	}

	p := payload{
		GeneratedAt:  r.now().UTC().Truncate(time.Second),
		Window:       model.Window{From: from.UTC(), To: to.UTC()},
		TotalRecords: len(samples),
		Statistics:   samples,
		Summary:      summary,
	}

	switch format {
	case FormatJSON:
		return renderJSON(p)
	case FormatCSV:
		return renderCSV(samples)
	case FormatText:
		return renderText(p), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

func renderJSON(p payload) ([]byte, error) {
	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return out, nil
}

// csvHeader is the fixed export column set. Latency is empty, not zero,
// when the sample has no reading.
var csvHeader = []string{
	"timestamp", "cpu_percent", "memory_percent", "disk_percent",
	"uptime_seconds", "network_latency_ms",
}

func renderCSV(samples []model.MetricSample) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range samples {
		latency := ""
		if s.NetworkLatencyMS != nil {
			latency = formatFloat(*s.NetworkLatencyMS)
		}
		row := []string{
			s.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(s.CPUPercent),
			formatFloat(s.MemoryPercent),
			formatFloat(s.DiskPercent),
			strconv.FormatInt(s.UptimeSeconds, 10),
			latency,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderText(p payload) []byte {
	var b strings.Builder
	rule := strings.Repeat("=", 64)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, " SysPulse Report")
	fmt.Fprintf(&b, " Generated: %s\n", p.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, " Window:    %s to %s\n",
		p.Window.From.Format(time.RFC3339), p.Window.To.Format(time.RFC3339))
	fmt.Fprintf(&b, " Records:   %d\n", p.TotalRecords)
	fmt.Fprintln(&b, rule)
	b.WriteString("\n")

	fmt.Fprintln(&b, "Summary")
	fmt.Fprintf(&b, "  CPU %%:      avg %.1f  min %.1f  max %.1f\n",
		p.Summary.AvgCPU, p.Summary.MinCPU, p.Summary.MaxCPU)
	fmt.Fprintf(&b, "  Memory %%:   avg %.1f  min %.1f  max %.1f\n",
		p.Summary.AvgMemory, p.Summary.MinMemory, p.Summary.MaxMemory)
	fmt.Fprintf(&b, "  Disk %%:     avg %.1f  min %.1f  max %.1f\n",
		p.Summary.AvgDisk, p.Summary.MinDisk, p.Summary.MaxDisk)
	if p.Summary.AvgLatencyMS != nil {
		fmt.Fprintf(&b, "  Latency ms: avg %.1f  min %.1f  max %.1f\n",
			*p.Summary.AvgLatencyMS, deref(p.Summary.MinLatencyMS), deref(p.Summary.MaxLatencyMS))
	} else {
		fmt.Fprintln(&b, "  Latency ms: no readings")
	}
	b.WriteString("\n")

	fmt.Fprintln(&b, "Samples")
	for _, s := range p.Statistics {
		fmt.Fprintf(&b, "  [%d] %s\n", s.ID, s.Timestamp.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "      cpu:     %.1f%%\n", s.CPUPercent)
		fmt.Fprintf(&b, "      memory:  %.1f%% (%.2f / %.2f GB)\n",
			s.MemoryPercent, s.MemoryUsedGB, s.MemoryTotalGB)
		fmt.Fprintf(&b, "      disk:    %.1f%% (%.2f / %.2f GB)\n",
			s.DiskPercent, s.DiskUsedGB, s.DiskTotalGB)
		fmt.Fprintf(&b, "      uptime:  %s (%ds)\n", humanizeUptime(s.UptimeSeconds), s.UptimeSeconds)
		if s.NetworkLatencyMS != nil {
			fmt.Fprintf(&b, "      latency: %.1f ms\n", *s.NetworkLatencyMS)
		} else {
			fmt.Fprintln(&b, "      latency: n/a")
		}
	}
	return []byte(b.String())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func humanizeUptime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
