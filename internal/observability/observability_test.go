package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/noni/smptweaks/internal/pkg/logger"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveStoreOperation("embedded", "fetch", "success", time.Millisecond)
	m.SetDegraded(true)
	m.SetActivePlayers(3)
	m.IncFlush("leave", "success")
	m.IncCacheLookup("hit")
	m.IncWorkerTask(true)
	m.ObserveStartup(time.Second)
	m.ObserveHTTP("GET", "/readyz", "200", time.Millisecond)
	m.StartPoolCollector(context.Background(), "embedded", func() PoolSnapshot { return PoolSnapshot{} })
	m.StartRedisCollector(context.Background(), nil, nil)
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil handler: got %d", rec.Code)
	}
}

func TestInitDisabled(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "")
	if m := Init(nil, false); m != nil {
		t.Fatalf("Init without opt-in should return nil")
	}
}

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.SetDegraded(true)
	m.SetActivePlayers(2)
	m.IncFlush("shutdown", "error")
	m.IncWorkerTask(true)

	if got := testutil.ToFloat64(m.degraded); got != 1 {
		t.Fatalf("degraded gauge: %v", got)
	}
	if got := testutil.ToFloat64(m.workerPanics); got != 1 {
		t.Fatalf("worker panics: %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"smptweaks_active_players 2", `smptweaks_progression_flush_total{status="error",trigger="shutdown"} 1`} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("exposition missing %q", name)
		}
	}
}

func TestPoolCollectorSamples(t *testing.T) {
	t.Setenv("METRICS_SCRAPE_INTERVAL_SECONDS", "1")
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.StartPoolCollector(ctx, "embedded", func() PoolSnapshot {
		return PoolSnapshot{Capacity: 10, InUse: 3, Open: 4}
	})
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(m.poolStats.WithLabelValues("embedded", "in_use")) == 3 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("pool gauges never sampled")
}

func TestParseHeaders(t *testing.T) {
	h := parseHeaders("authorization=Bearer x, ,bad,tenant=smp,empty=")
	if len(h) != 2 || h["authorization"] != "Bearer x" || h["tenant"] != "smp" {
		t.Fatalf("headers: %v", h)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty headers should be nil")
	}
}

func TestClampRatio(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0: 0, 0.5: 0.5, 1: 1, 7: 1} {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v): got %v want %v", in, got, want)
		}
	}
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), logger.NewNop(), OtelConfig{})
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestTracerWithoutProvider(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}
