package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/noni/smptweaks/internal/http/handlers"
	httpMW "github.com/noni/smptweaks/internal/http/middleware"
	"github.com/noni/smptweaks/internal/observability"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	HealthHandler      *httpH.HealthHandler
	ProgressionHandler *httpH.ProgressionHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("smptweaks"))
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.ProgressionHandler != nil {
			api.GET("/players/:id", cfg.ProgressionHandler.GetPlayer)
		}
	}

	return r
}
