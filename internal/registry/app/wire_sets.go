//go:build wireinject

package app

import "github.com/google/wire"

var registryProviderSet = wire.NewSet(
	newClusterValkey,
	newKeyspace,
	newSweepLock,
	newLifecycle,
	newDirectory,
	newMetricsRegistry,
	newPushMetrics,
	newInvoker,
	newAudit,
	newPusher,
	newService,
	newRemoteHandler,
	newHealthChecks,
	newRouter,
	newHTTPServer,
	newRunner,
)
