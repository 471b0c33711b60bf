package agent

import (
	"testing"
	"time"
)

func TestHealthSnapshot(t *testing.T) {
	h := NewHealthStatus()

	snap := h.Snapshot()
	if snap["store_ok"] != false {
		t.Errorf("store_ok = %v, want false before first success", snap["store_ok"])
	}
	if snap["samples_stored"] != int64(0) {
		t.Errorf("samples_stored = %v, want 0", snap["samples_stored"])
	}
	if _, ok := snap["last_sample_at"]; ok {
		t.Error("last_sample_at present before any sample")
	}

	first := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)
	h.SetStoreOK(true)
	h.MarkSample(first)
	h.MarkSample(second)
	h.MarkCollectionError()
	h.MarkStorageError()
	h.MarkPurge(5)
	h.MarkDigest(true)
	h.MarkDigest(false)

	snap = h.Snapshot()
	if snap["store_ok"] != true {
		t.Errorf("store_ok = %v, want true", snap["store_ok"])
	}
	if snap["samples_stored"] != int64(2) {
		t.Errorf("samples_stored = %v, want 2", snap["samples_stored"])
	}
	if snap["collection_errors"] != int64(1) {
		t.Errorf("collection_errors = %v, want 1", snap["collection_errors"])
	}
	if snap["storage_errors"] != int64(1) {
		t.Errorf("storage_errors = %v, want 1", snap["storage_errors"])
	}
	if snap["purge_runs"] != int64(1) || snap["rows_purged"] != int64(5) {
		t.Errorf("purge counters = %v/%v, want 1/5", snap["purge_runs"], snap["rows_purged"])
	}
	if snap["digests_sent"] != int64(1) || snap["digest_failures"] != int64(1) {
		t.Errorf("digest counters = %v/%v, want 1/1", snap["digests_sent"], snap["digest_failures"])
	}
	if got, ok := snap["last_sample_at"].(time.Time); !ok || !got.Equal(second) {
		t.Errorf("last_sample_at = %v, want %v", snap["last_sample_at"], second)
	}
}
