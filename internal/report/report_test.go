package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"syspulse/internal/model"
)

var reportBase = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	samples []model.MetricSample
	agg     model.Aggregate
	err     error
}

func (f *fakeStore) QueryRange(ctx context.Context, from, to time.Time) ([]model.MetricSample, error) {
	return f.samples, f.err
}

func (f *fakeStore) Aggregate(ctx context.Context, from, to time.Time) (model.Aggregate, error) {
	return f.agg, f.err
}

func f64(v float64) *float64 { return &v }

func fixtureSamples() []model.MetricSample {
	return []model.MetricSample{
		{
			ID:            1,
			Timestamp:     reportBase,
			CPUPercent:    12.5,
			MemoryPercent: 41.5,
			MemoryUsedGB:  6.64,
			MemoryTotalGB: 16,
			DiskPercent:   72.1,
			DiskUsedGB:    165.8,
			DiskTotalGB:   230,
			UptimeSeconds: 93784,
		},
		{
			ID:               2,
			Timestamp:        reportBase.Add(time.Minute),
			CPUPercent:       20,
			MemoryPercent:    42,
			MemoryUsedGB:     6.7,
			MemoryTotalGB:    16,
			DiskPercent:      72.2,
			DiskUsedGB:       166,
			DiskTotalGB:      230,
			UptimeSeconds:    93844,
			NetworkLatencyMS: f64(12.7),
		},
	}
}

func fixtureAggregate() model.Aggregate {
	return model.Aggregate{
		SampleCount: 2,
		AvgCPU:      16.25, MinCPU: 12.5, MaxCPU: 20,
		AvgMemory: 41.75, MinMemory: 41.5, MaxMemory: 42,
		AvgDisk: 72.15, MinDisk: 72.1, MaxDisk: 72.2,
		AvgLatencyMS: f64(12.7), MinLatencyMS: f64(12.7), MaxLatencyMS: f64(12.7),
	}
}

func newTestReporter(st Store) *Reporter {
	rep := NewReporter(st)
	rep.now = func() time.Time { return reportBase.Add(2 * time.Hour) }
	return rep
}

func TestRenderJSON(t *testing.T) {
	st := &fakeStore{samples: fixtureSamples(), agg: fixtureAggregate()}
	rep := newTestReporter(st)

	out, err := rep.Render(context.Background(), reportBase, reportBase.Add(time.Hour), FormatJSON)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if doc["total_records"] != float64(2) {
		t.Errorf("total_records = %v, want 2", doc["total_records"])
	}
	if _, ok := doc["generated_at"]; !ok {
		t.Error("generated_at missing")
	}
	win, ok := doc["window"].(map[string]any)
	if !ok || win["from"] == nil || win["to"] == nil {
		t.Errorf("window = %v, want from/to", doc["window"])
	}

	stats, ok := doc["statistics"].([]any)
	if !ok || len(stats) != 2 {
		t.Fatalf("statistics = %v, want 2 entries", doc["statistics"])
	}
	first := stats[0].(map[string]any)
	latency, present := first["network_latency_ms"]
	if !present {
		t.Error("network_latency_ms omitted, want explicit null")
	}
	if latency != nil {
		t.Errorf("first latency = %v, want null", latency)
	}
	second := stats[1].(map[string]any)
	if second["network_latency_ms"] != 12.7 {
		t.Errorf("second latency = %v, want 12.7", second["network_latency_ms"])
	}

	summary, ok := doc["summary"].(map[string]any)
	if !ok {
		t.Fatalf("summary = %v, want object", doc["summary"])
	}
	if summary["sample_count"] != float64(2) {
		t.Errorf("summary.sample_count = %v, want 2", summary["sample_count"])
	}
	if summary["avg_cpu"] != 16.25 {
		t.Errorf("summary.avg_cpu = %v, want 16.25", summary["avg_cpu"])
	}
}

func TestRenderCSV(t *testing.T) {
	st := &fakeStore{samples: fixtureSamples(), agg: fixtureAggregate()}
	rep := newTestReporter(st)

	out, err := rep.Render(context.Background(), reportBase, reportBase.Add(time.Hour), FormatCSV)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("output is not CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}

	wantHeader := "timestamp,cpu_percent,memory_percent,disk_percent,uptime_seconds,network_latency_ms"
	if got := strings.Join(records[0], ","); got != wantHeader {
		t.Errorf("header = %q, want %q", got, wantHeader)
	}
	if records[1][0] != "2025-03-14T09:00:00Z" {
		t.Errorf("timestamp = %q, want RFC3339", records[1][0])
	}
	if records[1][5] != "" {
		t.Errorf("nil latency = %q, want empty field", records[1][5])
	}
	if records[2][5] != "12.7" {
		t.Errorf("latency = %q, want 12.7", records[2][5])
	}
	if records[1][4] != "93784" {
		t.Errorf("uptime = %q, want 93784", records[1][4])
	}
}

func TestJSONAndCSVCarryTheSameSamples(t *testing.T) {
	st := &fakeStore{samples: fixtureSamples(), agg: fixtureAggregate()}
	rep := newTestReporter(st)
	ctx := context.Background()

	jsonOut, err := rep.Render(ctx, reportBase, reportBase.Add(time.Hour), FormatJSON)
	if err != nil {
		t.Fatalf("Render json: %v", err)
	}
	csvOut, err := rep.Render(ctx, reportBase, reportBase.Add(time.Hour), FormatCSV)
	if err != nil {
		t.Fatalf("Render csv: %v", err)
	}

	var doc struct {
		Statistics []model.MetricSample `json:"statistics"`
	}
	if err := json.Unmarshal(jsonOut, &doc); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(csvOut)).ReadAll()
	if err != nil {
		t.Fatalf("decode csv: %v", err)
	}
	if len(doc.Statistics) != len(records)-1 {
		t.Fatalf("json has %d samples, csv has %d", len(doc.Statistics), len(records)-1)
	}
	for i, s := range doc.Statistics {
		if got := records[i+1][0]; got != s.Timestamp.UTC().Format(time.RFC3339) {
			t.Errorf("row %d timestamp = %q, want %q", i, got, s.Timestamp.UTC().Format(time.RFC3339))
		}
	}
}

func TestRenderText(t *testing.T) {
	st := &fakeStore{samples: fixtureSamples(), agg: fixtureAggregate()}
	rep := newTestReporter(st)

	out, err := rep.Render(context.Background(), reportBase, reportBase.Add(time.Hour), FormatText)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	text := string(out)

	for _, want := range []string{
		"SysPulse Report",
		"Records:   2",
		"avg 16.2",
		"1d 2h 3m",
		"(93784s)",
		"latency: n/a",
		"latency: 12.7 ms",
		"6.64 / 16.00 GB",
		"165.80 / 230.00 GB",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text report missing %q\n%s", want, text)
		}
	}
}

func TestRenderTextWithoutLatencyReadings(t *testing.T) {
	samples := fixtureSamples()[:1]
	agg := fixtureAggregate()
	agg.AvgLatencyMS, agg.MinLatencyMS, agg.MaxLatencyMS = nil, nil, nil
	st := &fakeStore{samples: samples, agg: agg}
	rep := newTestReporter(st)

	out, err := rep.Render(context.Background(), reportBase, reportBase.Add(time.Hour), FormatText)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(out), "Latency ms: no readings") {
		t.Errorf("summary should note missing latency readings:\n%s", out)
	}
}

func TestRenderEmptyRange(t *testing.T) {
	st := &fakeStore{}
	rep := newTestReporter(st)

	_, err := rep.Render(context.Background(), reportBase, reportBase.Add(time.Hour), FormatJSON)
	if !errors.Is(err, ErrEmptyRange) {
		t.Errorf("Render error = %v, want ErrEmptyRange", err)
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	st := &fakeStore{samples: fixtureSamples(), agg: fixtureAggregate()}
	rep := newTestReporter(st)

	if _, err := rep.Render(context.Background(), reportBase, reportBase.Add(time.Hour), Format("xml")); err == nil {
		t.Error("Render accepted unknown format")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"CSV", FormatCSV, false},
		{" text ", FormatText, false},
		{"xml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHumanizeUptime(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{93784, "1d 2h 3m"},
		{59, "0d 0h 0m"},
		{3660, "0d 1h 1m"},
		{0, "0d 0h 0m"},
		{-5, "0d 0h 0m"},
	}
	for _, tt := range tests {
		if got := humanizeUptime(tt.seconds); got != tt.want {
			t.Errorf("humanizeUptime(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
