package cluster

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/testhelper"
)

func newTestDirectory(t *testing.T, self Server, cacheTTL time.Duration) (*ValkeyDirectory, func(Server, time.Time)) {
	t.Helper()
	mr, client := testhelper.NewMiniValkey(t)
	dir, err := NewValkeyDirectory(client, self, ValkeyOptions{
		Prefix:        "dir",
		StaleAfter:    15 * time.Second,
		CacheTTL:      cacheTTL,
		CacheCapacity: 4,
	}, testhelper.NewDiscardLogger())
	if err != nil {
		t.Fatalf("create directory failed: %v", err)
	}

	seed := func(s Server, at time.Time) {
		raw, err := json.Marshal(record{Server: s, HeartbeatAt: at.UnixMilli()})
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		mr.HSet("dir:servers", s.ID, string(raw))
	}
	return dir, seed
}

func TestValkeyDirectory_RegisterAndList(t *testing.T) {
	self := Server{ID: "srvB", Type: "connector", Addr: "http://b", Frontend: true}
	dir, seed := newTestDirectory(t, self, 0)
	ctx := context.Background()

	now := time.Now()
	seed(Server{ID: "srvA", Type: "connector", Addr: "http://a"}, now)
	seed(Server{ID: "chat-1", Type: "chat", Addr: "http://c"}, now)

	if err := dir.Register(ctx); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	connectors, err := dir.ServersByType(ctx, "connector")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(connectors) != 2 || connectors[0].ID != "srvA" || connectors[1].ID != "srvB" {
		t.Fatalf("unexpected connectors: %+v", connectors)
	}
	if connectors[1].Addr != "http://b" || !connectors[1].Frontend {
		t.Errorf("self record not round-tripped: %+v", connectors[1])
	}

	if err := dir.Deregister(ctx); err != nil {
		t.Fatalf("deregister failed: %v", err)
	}
	connectors, _ = dir.ServersByType(ctx, "connector")
	if len(connectors) != 1 {
		t.Fatalf("expected only srvA after deregister, got %+v", connectors)
	}
}

func TestValkeyDirectory_StaleAndCorruptFiltered(t *testing.T) {
	dir, seed := newTestDirectory(t, Server{ID: "self", Type: "connector"}, 0)
	ctx := context.Background()

	now := time.Now()
	dir.now = func() time.Time { return now }
	seed(Server{ID: "fresh", Type: "connector"}, now.Add(-time.Second))
	seed(Server{ID: "stale", Type: "connector"}, now.Add(-time.Minute))
	seed(Server{ID: "other", Type: "connector"}, now)
	dir.client.Do(ctx, dir.client.B().Hset().Key("dir:servers").FieldValue().FieldValue("broken", "{").Build())
	// field 와 레코드 id 불일치
	dir.client.Do(ctx, dir.client.B().Hset().Key("dir:servers").FieldValue().FieldValue("renamed", mustRecord(t, "other", now)).Build())

	servers, err := dir.Servers(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(servers) != 2 || servers[0].ID != "fresh" || servers[1].ID != "other" {
		t.Fatalf("unexpected servers: %+v", servers)
	}

	n, err := dir.Prune(ctx)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 pruned (stale, broken, renamed), got %d", n)
	}
	if n, _ := dir.Prune(ctx); n != 0 {
		t.Fatalf("second prune should be empty, got %d", n)
	}
}

func mustRecord(t *testing.T, id string, at time.Time) string {
	t.Helper()
	raw, err := json.Marshal(record{Server: Server{ID: id, Type: "connector"}, HeartbeatAt: at.UnixMilli()})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return string(raw)
}

func TestValkeyDirectory_CachedLookup(t *testing.T) {
	dir, seed := newTestDirectory(t, Server{ID: "self", Type: "connector"}, time.Minute)
	ctx := context.Background()

	seed(Server{ID: "srvA", Type: "connector"}, time.Now())
	first, _ := dir.Servers(ctx)
	if len(first) != 1 {
		t.Fatalf("expected 1 server, got %d", len(first))
	}

	seed(Server{ID: "srvB", Type: "connector"}, time.Now())
	cached, _ := dir.Servers(ctx)
	if len(cached) != 1 {
		t.Fatalf("expected cached result, got %d servers", len(cached))
	}

	if err := dir.Deregister(ctx); err != nil {
		t.Fatalf("deregister failed: %v", err)
	}
	fresh, _ := dir.Servers(ctx)
	if len(fresh) != 2 {
		t.Fatalf("expected cache purge to expose srvB, got %d servers", len(fresh))
	}
}

func TestValkeyDirectory_RunHeartbeat(t *testing.T) {
	mr, client := testhelper.NewMiniValkey(t)
	self := Server{ID: "srvA", Type: "connector", Addr: "http://a", Frontend: true}
	dir, err := NewValkeyDirectory(client, self, ValkeyOptions{Prefix: "dir", StaleAfter: time.Second}, testhelper.NewDiscardLogger())
	if err != nil {
		t.Fatalf("create directory failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dir.RunHeartbeat(ctx, 10*time.Millisecond) }()

	deadline := time.Now().Add(time.Second)
	for mr.HGet("dir:servers", "srvA") == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if mr.HGet("dir:servers", "srvA") == "" {
		t.Fatal("heartbeat did not register self")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("heartbeat returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not stop")
	}
	if mr.HGet("dir:servers", "srvA") != "" {
		t.Fatal("self record should be removed on shutdown")
	}

	if err := dir.RunHeartbeat(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
