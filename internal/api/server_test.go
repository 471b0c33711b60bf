package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"syspulse/internal/config"
	"syspulse/internal/model"
	"syspulse/internal/notify"
	"syspulse/internal/report"
)

var apiBase = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	latest *model.MetricSample
	err    error
}

func (f *fakeStore) Latest(ctx context.Context) (*model.MetricSample, error) {
	return f.latest, f.err
}

type fakeReporter struct {
	out    []byte
	err    error
	from   time.Time
	to     time.Time
	format report.Format
}

func (f *fakeReporter) Render(ctx context.Context, from, to time.Time, format report.Format) ([]byte, error) {
	f.from, f.to, f.format = from, to, format
	return f.out, f.err
}

type fakeNotifier struct {
	res    notify.Result
	err    error
	period time.Duration
}

func (f *fakeNotifier) Digest(ctx context.Context, period time.Duration) (notify.Result, error) {
	f.period = period
	return f.res, f.err
}

type fakeHealth struct{}

func (fakeHealth) Snapshot() map[string]any {
	return map[string]any{"samples_stored": int64(3)}
}

type serverOpts struct {
	token    string
	store    Store
	reporter Reporter
	notifier Notifier
}

func newTestServer(t *testing.T, opts serverOpts) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.API.Enabled = true
	cfg.API.Token = opts.token
	cfg.AgentVersion = "test"

	if opts.store == nil {
		opts.store = &fakeStore{}
	}
	if opts.reporter == nil {
		opts.reporter = &fakeReporter{out: []byte("{}")}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(logger, cfg, opts.store, opts.reporter, opts.notifier, fakeHealth{})
	srv.now = func() time.Time { return apiBase }
	return srv
}

func doRequest(t *testing.T, srv *Server, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, serverOpts{token: "s3cret"})

	rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
	if _, ok := body["health"].(map[string]any); !ok {
		t.Errorf("health = %v, want snapshot object", body["health"])
	}
}

func TestTokenGate(t *testing.T) {
	st := &fakeStore{latest: &model.MetricSample{ID: 7, Timestamp: apiBase}}
	srv := newTestServer(t, serverOpts{token: "s3cret", store: st})

	t.Run("missing token", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/samples/latest", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/samples/latest",
			map[string]string{"Authorization": "Bearer nope"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("correct token", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/samples/latest",
			map[string]string{"Authorization": "Bearer s3cret"})
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("empty token leaves routes open", func(t *testing.T) {
		open := newTestServer(t, serverOpts{store: st})
		rec := doRequest(t, open, http.MethodGet, "/samples/latest", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestLatest(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		srv := newTestServer(t, serverOpts{store: &fakeStore{}})
		rec := doRequest(t, srv, http.MethodGet, "/samples/latest", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "no samples") {
			t.Errorf("body = %s, want no-samples error", rec.Body.String())
		}
	})

	t.Run("latest sample as JSON", func(t *testing.T) {
		st := &fakeStore{latest: &model.MetricSample{
			ID: 7, Timestamp: apiBase, CPUPercent: 12.5, UptimeSeconds: 60,
		}}
		srv := newTestServer(t, serverOpts{store: st})
		rec := doRequest(t, srv, http.MethodGet, "/samples/latest", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["id"] != float64(7) {
			t.Errorf("id = %v, want 7", body["id"])
		}
		latency, present := body["network_latency_ms"]
		if !present {
			t.Error("network_latency_ms omitted, want explicit null")
		}
		if latency != nil {
			t.Errorf("network_latency_ms = %v, want null", latency)
		}
	})
}

func TestReport(t *testing.T) {
	t.Run("bad format", func(t *testing.T) {
		srv := newTestServer(t, serverOpts{})
		rec := doRequest(t, srv, http.MethodGet, "/report?format=xml", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("bad hours", func(t *testing.T) {
		srv := newTestServer(t, serverOpts{})
		for _, q := range []string{"hours=abc", "hours=-1"} {
			rec := doRequest(t, srv, http.MethodGet, "/report?"+q, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", q, rec.Code)
			}
		}
	})

	t.Run("empty range", func(t *testing.T) {
		srv := newTestServer(t, serverOpts{reporter: &fakeReporter{err: report.ErrEmptyRange}})
		rec := doRequest(t, srv, http.MethodGet, "/report", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("csv content type and window", func(t *testing.T) {
		rep := &fakeReporter{out: []byte("timestamp\n")}
		srv := newTestServer(t, serverOpts{reporter: rep})
		rec := doRequest(t, srv, http.MethodGet, "/report?format=csv&hours=2", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("Content-Type = %q, want text/csv", ct)
		}
		if rep.format != report.FormatCSV {
			t.Errorf("format = %q, want csv", rep.format)
		}
		if want := apiBase.Add(-2 * time.Hour); !rep.from.Equal(want) {
			t.Errorf("from = %v, want %v", rep.from, want)
		}
		if !rep.to.Equal(apiBase) {
			t.Errorf("to = %v, want %v", rep.to, apiBase)
		}
	})

	t.Run("hours zero means all data", func(t *testing.T) {
		rep := &fakeReporter{out: []byte("{}")}
		srv := newTestServer(t, serverOpts{reporter: rep})
		rec := doRequest(t, srv, http.MethodGet, "/report?hours=0", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !rep.from.IsZero() {
			t.Errorf("from = %v, want zero time", rep.from)
		}
	})
}

func TestDigestEndpoint(t *testing.T) {
	t.Run("notifications disabled", func(t *testing.T) {
		srv := newTestServer(t, serverOpts{})
		rec := doRequest(t, srv, http.MethodPost, "/digest", nil)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("delivery result", func(t *testing.T) {
		n := &fakeNotifier{res: notify.Result{DeliveryID: "abc", Transport: "webhook", Attempts: 1}}
		srv := newTestServer(t, serverOpts{notifier: n})
		rec := doRequest(t, srv, http.MethodPost, "/digest", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var res notify.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if res.DeliveryID != "abc" {
			t.Errorf("delivery_id = %q, want abc", res.DeliveryID)
		}
		if n.period <= 0 {
			t.Errorf("digest period = %v, want positive", n.period)
		}
	})

	t.Run("delivery failure", func(t *testing.T) {
		n := &fakeNotifier{err: &notify.NotifyError{Transport: "webhook", Err: errors.New("down")}}
		srv := newTestServer(t, serverOpts{notifier: n})
		rec := doRequest(t, srv, http.MethodPost, "/digest", nil)
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})
}
