package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"syspulse/internal/model"
)

// timeLayout is fixed-width (zero-padded nanoseconds, always UTC) so stored
// strings sort lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type sampleRow struct {
	ID               int64    `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp        string   `gorm:"column:timestamp;not null;index:idx_system_stats_timestamp"`
	CPUPercent       float64  `gorm:"column:cpu_percent;not null;index:idx_system_stats_cpu_percent"`
	MemoryPercent    float64  `gorm:"column:memory_percent;not null;index:idx_system_stats_memory_percent"`
	MemoryUsedGB     float64  `gorm:"column:memory_used_gb;not null"`
	MemoryTotalGB    float64  `gorm:"column:memory_total_gb;not null"`
	DiskPercent      float64  `gorm:"column:disk_percent;not null;index:idx_system_stats_disk_percent"`
	DiskUsedGB       float64  `gorm:"column:disk_used_gb;not null"`
	DiskTotalGB      float64  `gorm:"column:disk_total_gb;not null"`
	UptimeSeconds    int64    `gorm:"column:uptime_seconds;not null"`
	NetworkLatencyMS *float64 `gorm:"column:network_latency_ms"`
}

func (sampleRow) TableName() string { return "system_stats" }

// Store owns the durable sample table. It is safe for concurrent callers:
// WAL mode keeps readers off the writer's back, busy_timeout bounds writer
// contention, and every mutation is a single-statement transaction.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database file at path and ensures the
// system_stats table and its indexes exist. Repeated opens are harmless.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty database path")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, classify("open", err)
	}
	if err := db.AutoMigrate(&sampleRow{}); err != nil {
		return nil, classify("migrate", err)
	}
	logger.Debug("database ready", "path", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("underlying db handle: %w", err)
	}
	return sqlDB.Close()
}

// Append inserts one sample and writes the assigned id back into it.
func (s *Store) Append(ctx context.Context, sample *model.MetricSample) (int64, error) {
	row := toRow(*sample)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, classify("append", err)
	}
	sample.ID = row.ID
	return row.ID, nil
}

// QueryRange returns the samples with from <= timestamp <= to in timestamp
// order (id breaks ties). Callers receive copies of the stored rows.
func (s *Store) QueryRange(ctx context.Context, from, to time.Time) ([]model.MetricSample, error) {
	var rows []sampleRow
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", formatTime(from), formatTime(to)).
		Order("timestamp ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("query range", err)
	}
	out := make([]model.MetricSample, 0, len(rows))
	for _, r := range rows {
		sample, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, nil
}

// Latest returns the most recent sample (highest timestamp, then highest id)
// or nil when the table is empty.
func (s *Store) Latest(ctx context.Context) (*model.MetricSample, error) {
	var rows []sampleRow
	err := s.db.WithContext(ctx).
		Order("timestamp DESC, id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, classify("latest", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sample, err := fromRow(rows[0])
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

// ByID returns the sample with the given id, or nil when absent.
func (s *Store) ByID(ctx context.Context, id int64) (*model.MetricSample, error) {
	var rows []sampleRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error
	if err != nil {
		return nil, classify("by id", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sample, err := fromRow(rows[0])
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

const aggregateSQL = `
SELECT
  COUNT(*)                         AS sample_count,
  COALESCE(AVG(cpu_percent), 0)    AS avg_cpu,
  COALESCE(MIN(cpu_percent), 0)    AS min_cpu,
  COALESCE(MAX(cpu_percent), 0)    AS max_cpu,
  COALESCE(AVG(memory_percent), 0) AS avg_memory,
  COALESCE(MIN(memory_percent), 0) AS min_memory,
  COALESCE(MAX(memory_percent), 0) AS max_memory,
  COALESCE(AVG(disk_percent), 0)   AS avg_disk,
  COALESCE(MIN(disk_percent), 0)   AS min_disk,
  COALESCE(MAX(disk_percent), 0)   AS max_disk,
  AVG(network_latency_ms)          AS avg_latency_ms,
  MIN(network_latency_ms)          AS min_latency_ms,
  MAX(network_latency_ms)          AS max_latency_ms
FROM system_stats
WHERE timestamp >= ? AND timestamp <= ?`

// Aggregate computes one summary pass over the window. An empty window is
// the documented degenerate case: zero counts and values, nil latency, no
// error. SQL aggregate functions skip NULL latency readings, so the latency
// fields summarize only the samples that carried one.
func (s *Store) Aggregate(ctx context.Context, from, to time.Time) (model.Aggregate, error) {
	var agg model.Aggregate
	err := s.db.WithContext(ctx).
		Raw(aggregateSQL, formatTime(from), formatTime(to)).
		Scan(&agg).Error
	if err != nil {
		return model.Aggregate{}, classify("aggregate", err)
	}
	return agg, nil
}

// PurgeOlderThan deletes every row with timestamp < cutoff and reports how
// many went. Running it again with the same cutoff deletes nothing.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", formatTime(cutoff)).
		Delete(&sampleRow{})
	if res.Error != nil {
		return 0, classify("purge", res.Error)
	}
	return res.RowsAffected, nil
}

// Count returns the number of stored samples.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&sampleRow{}).Count(&n).Error; err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

func toRow(sample model.MetricSample) sampleRow {
	row := sampleRow{
		ID:            sample.ID,
		Timestamp:     formatTime(sample.Timestamp),
		CPUPercent:    sample.CPUPercent,
		MemoryPercent: sample.MemoryPercent,
		MemoryUsedGB:  sample.MemoryUsedGB,
		MemoryTotalGB: sample.MemoryTotalGB,
		DiskPercent:   sample.DiskPercent,
		DiskUsedGB:    sample.DiskUsedGB,
		DiskTotalGB:   sample.DiskTotalGB,
		UptimeSeconds: sample.UptimeSeconds,
	}
	if sample.NetworkLatencyMS != nil {
		v := *sample.NetworkLatencyMS
		row.NetworkLatencyMS = &v
	}
	return row
}

func fromRow(r sampleRow) (model.MetricSample, error) {
	ts, err := parseTime(r.Timestamp)
	if err != nil {
		return model.MetricSample{}, &StorageError{
			Kind: KindCorrupt,
			Op:   "decode row",
			Err:  fmt.Errorf("row %d timestamp %q: %w", r.ID, r.Timestamp, err),
		}
	}
	sample := model.MetricSample{
		ID:            r.ID,
		Timestamp:     ts,
		CPUPercent:    r.CPUPercent,
		MemoryPercent: r.MemoryPercent,
		MemoryUsedGB:  r.MemoryUsedGB,
		MemoryTotalGB: r.MemoryTotalGB,
		DiskPercent:   r.DiskPercent,
		DiskUsedGB:    r.DiskUsedGB,
		DiskTotalGB:   r.DiskTotalGB,
		UptimeSeconds: r.UptimeSeconds,
	}
	if r.NetworkLatencyMS != nil {
		v := *r.NetworkLatencyMS
		sample.NetworkLatencyMS = &v
	}
	return sample, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
