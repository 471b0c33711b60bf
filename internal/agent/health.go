package agent

import (
	"sync/atomic"
	"time"
)

type HealthStatus struct {
	storeOK          atomic.Bool
	samplesStored    atomic.Int64
	collectionErrors atomic.Int64
	storageErrors    atomic.Int64
	lastSampleAt     atomic.Int64
	rowsPurged       atomic.Int64
	purgeRuns        atomic.Int64
	digestsSent      atomic.Int64
	digestFailures   atomic.Int64
}

func NewHealthStatus() *HealthStatus {
	h := &HealthStatus{}
	h.storeOK.Store(false)
	return h
}

func (h *HealthStatus) SetStoreOK(ok bool) {
	h.storeOK.Store(ok)
}

func (h *HealthStatus) MarkSample(ts time.Time) {
	h.samplesStored.Add(1)
	h.lastSampleAt.Store(ts.UnixNano())
}

func (h *HealthStatus) MarkCollectionError() {
	h.collectionErrors.Add(1)
}

func (h *HealthStatus) MarkStorageError() {
	h.storageErrors.Add(1)
}

func (h *HealthStatus) MarkPurge(rows int64) {
	h.purgeRuns.Add(1)
	h.rowsPurged.Add(rows)
}

func (h *HealthStatus) MarkDigest(ok bool) {
	if ok {
		h.digestsSent.Add(1)
		return
	}
	h.digestFailures.Add(1)
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"store_ok":          h.storeOK.Load(),
		"samples_stored":    h.samplesStored.Load(),
		"collection_errors": h.collectionErrors.Load(),
		"storage_errors":    h.storageErrors.Load(),
		"purge_runs":        h.purgeRuns.Load(),
		"rows_purged":       h.rowsPurged.Load(),
		"digests_sent":      h.digestsSent.Load(),
		"digest_failures":   h.digestFailures.Load(),
	}
	if v := h.lastSampleAt.Load(); v > 0 {
		out["last_sample_at"] = time.Unix(0, v).UTC()
	}
	return out
}
