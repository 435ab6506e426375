package http

import (
	"net/http"

	"github.com/astro-web3/token-relay/internal/config"
	"github.com/astro-web3/token-relay/internal/domain/authn"
	"github.com/astro-web3/token-relay/pkg/metrics"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterDeps struct {
	Handler         *Handler
	IdentityHandler *IdentityHandler
	AuthService     authn.Service
	Metrics         metrics.RelayMetrics
	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler
}

func NewRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoOpRelayMetrics()
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	if cfg.Observability.TraceEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(loggingMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	authenticated := router.Group("/", authMiddleware(deps.AuthService, deps.Metrics))

	api := authenticated.Group("/api/v1")
	api.GET("/whoami", deps.Handler.WhoAmI)
	api.Any("/relay/:upstream/*path", deps.Handler.Relay)

	if deps.IdentityHandler != nil {
		path, identityHandler := deps.IdentityHandler.Handler()
		authenticated.Any(path, gin.WrapH(identityHandler))
	}

	return router
}
