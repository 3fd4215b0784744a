// Package httpapi 는 레지스트리 파사드와 channelRemote RPC 를 gin 라우트로 노출한다.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/health"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/audit"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/remote"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/service"
)

// AuditReader: 감사 로그 조회 (audit.Repository 가 만족한다)
type AuditReader interface {
	Recent(ctx context.Context, channel string, limit int) ([]audit.PushAudit, error)
}

// Options: 라우터 구성 옵션
type Options struct {
	TelemetryEnabled bool
	ServiceName      string
}

// Deps: 라우트 핸들러 의존성. RPC/Audit/Gatherer 는 nil 이면 해당 라우트를 등록하지 않는다.
type Deps struct {
	Service      *service.Service
	RPC          *remote.Handler
	Audit        AuditReader
	Gatherer     prometheus.Gatherer
	HealthChecks map[string]health.Check
}

// NewRouter: gin 엔진을 구성한다.
func NewRouter(opts Options, deps Deps, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// OTel 미들웨어는 가장 앞에 둔다
	if opts.TelemetryEnabled {
		router.Use(otelgin.Middleware(opts.ServiceName))
		logger.Info("otel_http_middleware_enabled", "service", opts.ServiceName)
	}
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger, "/health", "/health/ready", "/metrics"))

	registerHealthRoutes(router, deps)

	h := &handlers{svc: deps.Service, rpc: deps.RPC, audit: deps.Audit, logger: logger}

	if deps.RPC != nil {
		router.POST("/rpc/:namespace/:service/:method", h.remoteCall)
	}

	api := router.Group("/api")
	api.GET("/state", h.state)

	channels := api.Group("/channels/:channel")
	channels.GET("/members", h.members)
	channels.POST("/members", h.add)
	channels.GET("/members/:uid", h.isMember)
	channels.DELETE("/members/:uid", h.leave)
	channels.GET("/servers", h.membersByServer)
	channels.GET("/len", h.length)
	channels.DELETE("", h.destroy)
	channels.POST("/push", h.push)

	users := api.Group("/users/:uid")
	users.GET("/channels", h.memberships)
	users.DELETE("/channels", h.leaveAll)

	if deps.Audit != nil {
		api.GET("/audit/pushes", h.recentPushes)
	}

	logger.Info("registry_http_api_registered", "rpc", deps.RPC != nil, "audit", deps.Audit != nil)
	return router
}

func registerHealthRoutes(router *gin.Engine, deps Deps) {
	// Liveness: 외부 의존성 상태와 무관하게 200
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, health.Get())
	})

	router.GET("/health/ready", func(c *gin.Context) {
		payload := health.Evaluate(c.Request.Context(), deps.HealthChecks)
		status := http.StatusOK
		if payload.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, payload)
	})

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
}
