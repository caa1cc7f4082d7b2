package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noni/smptweaks/internal/data/store"
	domain "github.com/noni/smptweaks/internal/domain/progression"
	httpH "github.com/noni/smptweaks/internal/http/handlers"
	"github.com/noni/smptweaks/internal/observability"
	"github.com/noni/smptweaks/internal/pkg/logger"
	"github.com/noni/smptweaks/internal/progression"
)

func newTestRouter(t *testing.T, mgr *progression.Manager, metrics *observability.Metrics) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{
		Log:                logger.NewNop(),
		Metrics:            metrics,
		HealthHandler:      httpH.NewHealthHandler(mgr),
		ProgressionHandler: httpH.NewProgressionHandler(mgr, progression.DefaultCurve),
	})
}

func serve(r *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, path, nil))
	return rec
}

func TestRouterWithEmbeddedStore(t *testing.T) {
	backend, err := store.NewEmbeddedFileStore(store.Config{DataDir: t.TempDir()}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewEmbeddedFileStore: %v", err)
	}
	mgr := progression.NewManager(context.Background(), logger.NewNop(), progression.ManagerConfig{}, backend, nil)
	defer mgr.Shutdown(context.Background())
	r := newTestRouter(t, mgr, observability.New())

	if rec := serve(r, "/healthcheck"); rec.Code != nethttp.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("/healthcheck: %d %q", rec.Code, rec.Body.String())
	}
	if rec := serve(r, "/readyz"); rec.Code != nethttp.StatusOK {
		t.Fatalf("/readyz: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(r, "/api/players/not-a-uuid"); rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("invalid id: %d", rec.Code)
	}
	if rec := serve(r, "/api/players/"+uuid.NewString()); rec.Code != nethttp.StatusNotFound {
		t.Fatalf("unknown player: %d", rec.Code)
	}

	id := uuid.New()
	stored := &domain.Record{PlayerID: id, DisplayName: "Alex", Level: 2, TotalXP: 175, XPDisplayMode: domain.DisplayPercentage}
	if res := mgr.Save(context.Background(), stored); !res.OK() {
		t.Fatalf("Save: %v", res.Reason)
	}
	rec := serve(r, "/api/players/"+id.String())
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("stored player: %d %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["display_name"] != "Alex" || body["online"] != false || body["progress"] != "50%" {
		t.Fatalf("unexpected body %v", body)
	}

	mgr.Join(context.Background(), id, "Alex")
	rec = serve(r, "/api/players/"+id.String())
	if !strings.Contains(rec.Body.String(), `"online":true`) {
		t.Fatalf("online player: %s", rec.Body.String())
	}

	if rec := serve(r, "/metrics"); rec.Code != nethttp.StatusOK || !strings.Contains(rec.Body.String(), "smptweaks_http_requests_total") {
		t.Fatalf("/metrics: %d", rec.Code)
	}
}

func TestRouterDegraded(t *testing.T) {
	mgr := progression.NewManager(context.Background(), logger.NewNop(), progression.ManagerConfig{}, nil, errors.New("no driver"))
	defer mgr.Shutdown(context.Background())
	r := newTestRouter(t, mgr, nil)

	if rec := serve(r, "/healthcheck"); rec.Code != nethttp.StatusOK {
		t.Fatalf("/healthcheck must stay up: %d", rec.Code)
	}
	if rec := serve(r, "/readyz"); rec.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("/readyz: %d", rec.Code)
	}
	if rec := serve(r, "/api/players/"+uuid.NewString()); rec.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("players while degraded: %d", rec.Code)
	}
	if rec := serve(r, "/metrics"); rec.Code != nethttp.StatusNotFound {
		t.Fatalf("/metrics without metrics: %d", rec.Code)
	}
}
