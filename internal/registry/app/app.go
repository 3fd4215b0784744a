package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valkey-io/valkey-go"
	"gorm.io/gorm"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/bootstrap"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/dbutil"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/health"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/httpclient"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/httpserver"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/mq"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/processinglock"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/valkeyx"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/audit"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/cluster"
	rconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/config"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/httpapi"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/index"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/lifecycle"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/pusher"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/remote"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/service"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/store"
)

const (
	shutdownTimeout = 10 * time.Second
	stopTimeout     = 10 * time.Second
)

// registryDirectory: 조회용 Directory 와, valkey 모드일 때만 존재하는 heartbeat 대상
type registryDirectory struct {
	cluster.Directory
	heartbeat *cluster.ValkeyDirectory
}

// registryAudit: 감사 로그가 꺼져 있으면 repo 는 nil 이다.
type registryAudit struct {
	repo *audit.Repository
}

func selfServer(cfg *rconfig.Config) cluster.Server {
	return cluster.Server{
		ID:       cfg.Node.ServerID,
		Type:     cfg.Node.ServerType,
		Addr:     cfg.Node.AdvertisedAddr,
		Frontend: cfg.Node.Frontend,
	}
}

// newClusterValkey: 디렉터리, 전달 스트림, cleanup 락이 공유하는 클라이언트.
// 스토어 연결은 lifecycle 이 소유하므로 별도 클라이언트를 쓴다.
func newClusterValkey(ctx context.Context, cfg *rconfig.Config, logger *slog.Logger) (valkey.Client, func(), error) {
	client, closeFn, err := bootstrap.OpenValkey(ctx, bootstrap.ValkeyConfigFor(cfg.Redis, rconfig.ServiceName, cfg.Node.ServerID, "cluster"), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init cluster valkey failed: %w", err)
	}
	return client, closeFn, nil
}

func newKeyspace(cfg *rconfig.Config) index.Keyspace {
	return index.NewKeyspace(cfg.Registry.KeyPrefix)
}

func newSweepLock(cfg *rconfig.Config, client valkey.Client, keys index.Keyspace, logger *slog.Logger) lifecycle.SweepLock {
	// cleanup 은 "{prefix}:" 아래를 모두 지우므로 락 키는 그 밖에 둔다
	keyFunc := func(resource string) string {
		return valkeyx.BuildKey(keys.Prefix()+"-lock", resource)
	}
	return processinglock.New(client, logger, keyFunc, cfg.Registry.SweepLockTTL, cfg.Node.ServerID)
}

func newLifecycle(cfg *rconfig.Config, keys index.Keyspace, lock lifecycle.SweepLock, logger *slog.Logger) *lifecycle.Controller {
	connect := func(ctx context.Context) (store.Store, error) {
		client, _, err := bootstrap.OpenValkey(ctx, bootstrap.ValkeyConfigFor(cfg.Redis, rconfig.ServiceName, cfg.Node.ServerID, "store"), logger)
		if err != nil {
			return nil, err
		}
		return store.NewValkeyStore(client, logger), nil
	}
	return lifecycle.New(connect, lifecycle.Options{
		Keys:                  keys,
		CleanupOnStart:        cfg.Registry.CleanupOnStart,
		ScanPageSize:          int64(cfg.Registry.ScanPageSize),
		CleanupPagesPerSecond: cfg.Registry.CleanupPagesPerSecond,
		SweepLock:             lock,
	}, logger)
}

func newDirectory(cfg *rconfig.Config, client valkey.Client, logger *slog.Logger) (*registryDirectory, error) {
	self := selfServer(cfg)

	switch cfg.Cluster.Mode {
	case rconfig.ClusterModeValkey:
		dir, err := cluster.NewValkeyDirectory(client, self, cluster.ValkeyOptions{
			Prefix:        cfg.Cluster.DirectoryPrefix,
			StaleAfter:    cfg.Node.StaleAfter,
			CacheTTL:      cfg.Cluster.CacheTTL,
			CacheCapacity: cfg.Cluster.CacheCapacity,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create valkey directory failed: %w", err)
		}
		return &registryDirectory{Directory: dir, heartbeat: dir}, nil
	default:
		var servers []cluster.Server
		if cfg.Cluster.TopologyFile != "" {
			loaded, err := cluster.LoadTopologyFile(cfg.Cluster.TopologyFile)
			if err != nil {
				return nil, fmt.Errorf("load topology failed: %w", err)
			}
			servers = loaded
		}
		dir, err := cluster.NewStaticDirectory(self, servers)
		if err != nil {
			return nil, fmt.Errorf("create static directory failed: %w", err)
		}
		logger.Info("static_directory_loaded", "servers", len(servers), "file", cfg.Cluster.TopologyFile)
		return &registryDirectory{Directory: dir}, nil
	}
}

// newMetricsRegistry: /metrics 로 노출되는 전용 레지스트리
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newPushMetrics(reg *prometheus.Registry) *pusher.Metrics {
	return pusher.NewMetrics(reg)
}

func newInvoker(cfg *rconfig.Config) remote.Invoker {
	return remote.NewHTTPInvoker(httpclient.New(httpclient.Config{
		Timeout:        cfg.Push.ServerTimeout,
		ConnectTimeout: cfg.Push.ConnectTimeout,
		HTTP2Enabled:   cfg.Push.HTTP2Enabled,
		Tracing:        cfg.Telemetry.Enabled,
	}))
}

func newAudit(ctx context.Context, cfg *rconfig.Config, logger *slog.Logger) (*registryAudit, func(), error) {
	if !cfg.Audit.Enabled {
		return &registryAudit{}, func() {}, nil
	}

	db, err := dbutil.OpenWithRetry(ctx, func(ctx context.Context) (*gorm.DB, error) {
		return audit.Open(ctx, cfg.Audit)
	}, dbutil.DefaultRetryConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db failed: %w", err)
	}

	repo := audit.New(db)
	if err := repo.AutoMigrate(ctx); err != nil {
		_ = repo.Close()
		return nil, nil, fmt.Errorf("audit auto migrate failed: %w", err)
	}
	logger.Info("audit_enabled", "driver", cfg.Audit.Driver)

	closeFn := func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("audit_close_failed", "err", closeErr)
		}
	}
	return &registryAudit{repo: repo}, closeFn, nil
}

func newPusher(
	cfg *rconfig.Config,
	dir *registryDirectory,
	invoker remote.Invoker,
	metrics *pusher.Metrics,
	auditLog *registryAudit,
	logger *slog.Logger,
) *pusher.Pusher {
	opts := pusher.Options{
		Concurrency:   cfg.Push.Concurrency,
		ServerTimeout: cfg.Push.ServerTimeout,
	}
	if auditLog.repo != nil {
		opts.Recorder = auditLog.repo
	}
	return pusher.New(dir.Directory, invoker, opts, metrics, logger)
}

func newRemoteHandler(cfg *rconfig.Config, client valkey.Client, dir *registryDirectory, logger *slog.Logger) *remote.Handler {
	publisher := mq.NewStreamPublisher(client, logger, mq.StreamPublisherConfig{MaxLen: cfg.Delivery.MaxLen})
	deliverer := remote.NewStreamDeliverer(publisher, cfg.Delivery.StreamPrefix, cfg.Node.ServerID, logger)
	return remote.NewHandler(deliverer, dir.IsFrontend, logger)
}

// newService: 파사드를 만들고 시작한다. 정리 함수는 진행 중인 연산을 기다린 뒤 스토어를 닫는다.
func newService(
	ctx context.Context,
	lc *lifecycle.Controller,
	keys index.Keyspace,
	p *pusher.Pusher,
	logger *slog.Logger,
) (*service.Service, func(), error) {
	svc := service.New(lc, keys, p, logger)
	if err := svc.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("start registry failed: %w", err)
	}

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx, false); err != nil {
			logger.Warn("registry_stop_failed", "err", err)
		}
	}
	return svc, stop, nil
}

func newHealthChecks(svc *service.Service, client valkey.Client) map[string]health.Check {
	return map[string]health.Check{
		"cluster_valkey": func(ctx context.Context) error {
			return valkeyx.Ping(ctx, client)
		},
		"registry": func(context.Context) error {
			if state := svc.State(); state != lifecycle.StateStarted {
				return errors.New("registry " + state.String())
			}
			return nil
		},
	}
}

func newRouter(
	cfg *rconfig.Config,
	svc *service.Service,
	rpc *remote.Handler,
	auditLog *registryAudit,
	reg *prometheus.Registry,
	checks map[string]health.Check,
	logger *slog.Logger,
) *gin.Engine {
	deps := httpapi.Deps{
		Service:      svc,
		RPC:          rpc,
		Gatherer:     reg,
		HealthChecks: checks,
	}
	if auditLog.repo != nil {
		deps.Audit = auditLog.repo
	}
	return httpapi.NewRouter(httpapi.Options{
		TelemetryEnabled: cfg.Telemetry.Enabled,
		ServiceName:      cfg.Telemetry.ServiceName,
	}, deps, logger)
}

func newHTTPServer(cfg *rconfig.Config, router *gin.Engine) *http.Server {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return httpserver.NewServer(addr, router, httpserver.OptionsFromTuning(cfg.ServerTuning, true))
}

// newRunner: HTTP 서버가 요청 수신을 멈춘 뒤 레지스트리를 drain 하며 Stop 한다.
func newRunner(
	cfg *rconfig.Config,
	logger *slog.Logger,
	server *http.Server,
	dir *registryDirectory,
	svc *service.Service,
) *bootstrap.Runner {
	var tasks []bootstrap.BackgroundTask
	if dir.heartbeat != nil {
		tasks = append(tasks, bootstrap.BackgroundTask{
			Name:        "directory_heartbeat",
			ErrorLogKey: "directory_heartbeat_failed",
			Run: func(ctx context.Context) error {
				return dir.heartbeat.RunHeartbeat(ctx, cfg.Node.HeartbeatInterval)
			},
		})
	}
	return &bootstrap.Runner{
		Service:         rconfig.ServiceName,
		Logger:          logger,
		Server:          server,
		ShutdownTimeout: shutdownTimeout,
		Tasks:           tasks,
		Drain: func(ctx context.Context) error {
			if svc == nil {
				return nil
			}
			return svc.Stop(ctx, false)
		},
	}
}
