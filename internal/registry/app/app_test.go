package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/testhelper"
	rconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/config"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/lifecycle"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/service"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/store"
)

func testConfig() *rconfig.Config {
	return &rconfig.Config{
		Registry: rconfig.RegistryConfig{
			KeyPrefix:    "chreg",
			ScanPageSize: 10,
			SweepLockTTL: time.Minute,
		},
		Node: rconfig.NodeConfig{
			ServerID:          "backend-1",
			ServerType:        "backend",
			AdvertisedAddr:    "http://127.0.0.1:40300",
			HeartbeatInterval: time.Second,
			StaleAfter:        3 * time.Second,
		},
		Cluster: rconfig.ClusterConfig{
			Mode:            rconfig.ClusterModeStatic,
			DirectoryPrefix: rconfig.DefaultDirectoryPrefix,
			CacheTTL:        time.Second,
			CacheCapacity:   8,
		},
		Push: rconfig.PushConfig{Concurrency: 2, ServerTimeout: time.Second, ConnectTimeout: time.Second},
		Delivery: rconfig.DeliveryConfig{
			StreamPrefix: rconfig.DefaultDeliveryStreamPrefix,
			MaxLen:       100,
		},
	}
}

func TestNewDirectory_Static(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	raw := "servers:\n  - {id: srvA, type: connector, addr: 'http://10.0.0.1:40300', frontend: true}\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write topology failed: %v", err)
	}
	cfg := testConfig()
	cfg.Cluster.TopologyFile = path

	dir, err := newDirectory(cfg, nil, testhelper.NewDiscardLogger())
	if err != nil {
		t.Fatalf("newDirectory failed: %v", err)
	}
	if dir.heartbeat != nil {
		t.Fatal("static directory should not run a heartbeat")
	}
	servers, err := dir.Servers(context.Background())
	if err != nil || len(servers) != 2 {
		t.Fatalf("expected self plus srvA, got %v (err=%v)", servers, err)
	}

	runner := newRunner(cfg, testhelper.NewDiscardLogger(), nil, dir, nil)
	if len(runner.Tasks) != 0 {
		t.Fatalf("expected no background tasks, got %d", len(runner.Tasks))
	}
	if err := runner.Drain(context.Background()); err != nil {
		t.Fatalf("drain without service should be a no-op: %v", err)
	}

	cfg.Cluster.TopologyFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := newDirectory(cfg, nil, testhelper.NewDiscardLogger()); err == nil {
		t.Fatal("expected error for missing topology file")
	}
}

func TestNewDirectory_ValkeyRunsHeartbeat(t *testing.T) {
	_, client := testhelper.NewMiniValkey(t)
	cfg := testConfig()
	cfg.Cluster.Mode = rconfig.ClusterModeValkey

	dir, err := newDirectory(cfg, client, testhelper.NewDiscardLogger())
	if err != nil {
		t.Fatalf("newDirectory failed: %v", err)
	}
	if dir.heartbeat == nil {
		t.Fatal("valkey directory should expose heartbeat")
	}

	runner := newRunner(cfg, testhelper.NewDiscardLogger(), nil, dir, nil)
	if len(runner.Tasks) != 1 || runner.Tasks[0].Name != "directory_heartbeat" {
		t.Fatalf("unexpected background tasks: %+v", runner.Tasks)
	}
}

func TestNewSweepLock_KeyOutsideRegistryKeyspace(t *testing.T) {
	mr, client := testhelper.NewMiniValkey(t)
	cfg := testConfig()

	lock := newSweepLock(cfg, client, newKeyspace(cfg), testhelper.NewDiscardLogger())
	if err := lock.Start(context.Background(), "cleanup"); err != nil {
		t.Fatalf("lock start failed: %v", err)
	}
	owner, err := mr.Get("chreg-lock:cleanup")
	if err != nil || owner != "backend-1" {
		t.Fatalf("expected lock owned by node, got %q (err=%v)", owner, err)
	}
}

func TestNewAudit(t *testing.T) {
	logger := testhelper.NewDiscardLogger()
	cfg := testConfig()

	disabled, cleanup, err := newAudit(context.Background(), cfg, logger)
	if err != nil || disabled.repo != nil {
		t.Fatalf("disabled audit should have no repo: %+v (err=%v)", disabled, err)
	}
	cleanup()

	cfg.Audit = rconfig.AuditConfig{Enabled: true, Driver: rconfig.AuditDriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "audit.db")}
	enabled, cleanup, err := newAudit(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("sqlite audit failed: %v", err)
	}
	defer cleanup()
	if enabled.repo == nil {
		t.Fatal("expected repository")
	}
	rows, err := enabled.repo.Recent(context.Background(), "", 10)
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected empty migrated table, got %v (err=%v)", rows, err)
	}
}

func TestNewService_StartFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Host, cfg.Redis.Port = "127.0.0.1", 1
	cfg.Redis.DialTimeout = 200 * time.Millisecond
	logger := testhelper.NewDiscardLogger()
	keys := newKeyspace(cfg)

	svc, stop, err := newService(context.Background(), newLifecycle(cfg, keys, nil, logger), keys, nil, logger)
	if err == nil || svc != nil || stop != nil {
		t.Fatal("expected start to fail without a reachable store")
	}
}

func TestNewHealthChecks(t *testing.T) {
	_, client := testhelper.NewMiniValkey(t)
	cfg := testConfig()
	logger := testhelper.NewDiscardLogger()
	keys := newKeyspace(cfg)

	checks := newHealthChecks(service.New(newLifecycle(cfg, keys, nil, logger), keys, nil, logger), client)
	if err := checks["cluster_valkey"](context.Background()); err != nil {
		t.Fatalf("cluster valkey check failed: %v", err)
	}
	if err := checks["registry"](context.Background()); err == nil {
		t.Fatal("registry check should fail before start")
	}
}

func TestNewRunner_DrainStopsRegistry(t *testing.T) {
	_, client := testhelper.NewMiniValkey(t)
	cfg := testConfig()
	logger := testhelper.NewDiscardLogger()
	keys := newKeyspace(cfg)
	lc := lifecycle.New(func(context.Context) (store.Store, error) {
		return store.NewValkeyStore(client, logger), nil
	}, lifecycle.Options{Keys: keys}, logger)
	svc := service.New(lc, keys, nil, logger)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	dir, err := newDirectory(cfg, nil, logger)
	if err != nil {
		t.Fatalf("newDirectory failed: %v", err)
	}
	runner := newRunner(cfg, logger, nil, dir, svc)
	if err := runner.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if svc.State() != lifecycle.StateClosed {
		t.Fatalf("expected closed after drain, got %s", svc.State())
	}
}
