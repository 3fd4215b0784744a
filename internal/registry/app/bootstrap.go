//go:build !wireinject

package app

import (
	"context"
	"log/slog"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/bootstrap"
	rconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/config"
)

// Initialize 는 레지스트리 노드의 의존성을 초기화하고 Runner 를 반환한다.
// 레지스트리는 반환 전에 Started 상태가 된다.
func Initialize(ctx context.Context, cfg *rconfig.Config, logger *slog.Logger) (*bootstrap.Runner, func(), error) {
	clusterClient, cleanupClusterValkey, err := newClusterValkey(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	keys := newKeyspace(cfg)
	sweepLock := newSweepLock(cfg, clusterClient, keys, logger)
	controller := newLifecycle(cfg, keys, sweepLock, logger)

	directory, err := newDirectory(cfg, clusterClient, logger)
	if err != nil {
		cleanupClusterValkey()
		return nil, nil, err
	}

	auditLog, cleanupAudit, err := newAudit(ctx, cfg, logger)
	if err != nil {
		cleanupClusterValkey()
		return nil, nil, err
	}

	reg := newMetricsRegistry()
	metrics := newPushMetrics(reg)
	invoker := newInvoker(cfg)
	p := newPusher(cfg, directory, invoker, metrics, auditLog, logger)

	svc, stopService, err := newService(ctx, controller, keys, p, logger)
	if err != nil {
		cleanupAudit()
		cleanupClusterValkey()
		return nil, nil, err
	}

	rpc := newRemoteHandler(cfg, clusterClient, directory, logger)
	checks := newHealthChecks(svc, clusterClient)
	router := newRouter(cfg, svc, rpc, auditLog, reg, checks, logger)
	httpServer := newHTTPServer(cfg, router)

	runner := newRunner(cfg, logger, httpServer, directory, svc)

	cleanup := func() {
		stopService()
		cleanupAudit()
		cleanupClusterValkey()
	}

	return runner, cleanup, nil
}
