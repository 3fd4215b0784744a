package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/valkey-io/valkey-go"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/processinglock"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/testhelper"
	rerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/errors"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/index"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/store"
)

func newTestController(t *testing.T, opts Options) (*Controller, *miniredis.Miniredis, valkey.Client) {
	t.Helper()
	mr, client := testhelper.NewMiniValkey(t)
	logger := testhelper.NewDiscardLogger()
	if opts.Keys == (index.Keyspace{}) {
		opts.Keys = index.NewKeyspace("test")
	}
	connect := func(context.Context) (store.Store, error) {
		return store.NewValkeyStore(client, logger), nil
	}
	return New(connect, opts, logger), mr, client
}

func TestController_Transitions(t *testing.T) {
	c, _, _ := newTestController(t, Options{})
	ctx := context.Background()

	if c.State() != StateInited {
		t.Fatalf("expected inited, got %s", c.State())
	}
	if _, _, err := c.Acquire(); !errors.Is(err, rerrors.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted before start, got %v", err)
	}

	if err := c.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if c.State() != StateStarted {
		t.Fatalf("expected started, got %s", c.State())
	}
	if err := c.Start(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double start, got %v", err)
	}

	st, release, err := c.Acquire()
	if err != nil || st == nil {
		t.Fatalf("acquire failed: %v", err)
	}
	release()

	if err := c.Stop(ctx, false); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("expected closed, got %s", c.State())
	}
	if _, _, err := c.Acquire(); !errors.Is(err, rerrors.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted after stop, got %v", err)
	}
	if err := c.Start(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("closed is terminal, got %v", err)
	}
	if err := c.Stop(ctx, true); err != nil {
		t.Fatalf("second stop should be no-op: %v", err)
	}
}

func TestController_ConnectFailureStaysInited(t *testing.T) {
	boom := errors.New("dial refused")
	c := New(func(context.Context) (store.Store, error) { return nil, boom }, Options{}, testhelper.NewDiscardLogger())

	err := c.Start(context.Background())
	if !rerrors.IsStoreUnavailable(err) || !errors.Is(err, boom) {
		t.Fatalf("expected StoreUnavailableError wrapping cause, got %v", err)
	}
	if c.State() != StateInited {
		t.Fatalf("expected inited after failed start, got %s", c.State())
	}
}

func TestController_StopDrainsInFlight(t *testing.T) {
	c, _, _ := newTestController(t, Options{})
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	_, release, err := c.Acquire()
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Stop(ctx, false) }()

	// Closed 는 동기적으로 설정된다
	deadline := time.Now().Add(time.Second)
	for c.State() != StateClosed && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.State() != StateClosed {
		t.Fatal("state should be closed while draining")
	}

	select {
	case <-done:
		t.Fatal("stop returned before in-flight call released")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stop failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stop did not finish after release")
	}
}

func TestController_ForceStopDoesNotWait(t *testing.T) {
	c, _, _ := newTestController(t, Options{})
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_, release, err := c.Acquire()
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer release()

	done := make(chan error, 1)
	go func() { done <- c.Stop(ctx, true) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("force stop failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("force stop should not wait for in-flight calls")
	}
}

func TestController_CleanupOnStart(t *testing.T) {
	c, mr, _ := newTestController(t, Options{CleanupOnStart: true, ScanPageSize: 1, CleanupPagesPerSecond: 1000})
	mr.HSet("test:c#lobby", "u1", "srvA")
	mr.SetAdd("test:s#5:lobby:srvA", "u1")
	mr.HSet("test:u#u1", "lobby", "srvA")
	mr.Set("keep:me", "1")

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	for _, k := range []string{"test:c#lobby", "test:s#5:lobby:srvA", "test:u#u1"} {
		if mr.Exists(k) {
			t.Fatalf("%s should be swept", k)
		}
	}
	if !mr.Exists("keep:me") {
		t.Fatal("foreign key must survive sweep")
	}
}

func TestController_CleanupSkippedWhenLocked(t *testing.T) {
	mr, client := testhelper.NewMiniValkey(t)
	logger := testhelper.NewDiscardLogger()
	lock := processinglock.New(client, logger, func(r string) string { return "lock:" + r }, time.Minute, "node-a")

	mr.Set("lock:cleanup", "node-b")
	mr.HSet("test:c#lobby", "u1", "srvA")

	c := New(func(context.Context) (store.Store, error) {
		return store.NewValkeyStore(client, logger), nil
	}, Options{Keys: index.NewKeyspace("test"), CleanupOnStart: true, SweepLock: lock}, logger)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !mr.Exists("test:c#lobby") {
		t.Fatal("sweep must be skipped while another node holds the lock")
	}
	if got, _ := mr.Get("lock:cleanup"); got != "node-b" {
		t.Fatalf("foreign lock must stay, got %q", got)
	}
}

func TestController_CleanupFailureDoesNotBlockStart(t *testing.T) {
	c, mr, _ := newTestController(t, Options{CleanupOnStart: true})
	mr.SetError("LOADING")

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("sweep failure must not fail start: %v", err)
	}
	if c.State() != StateStarted {
		t.Fatalf("expected started, got %s", c.State())
	}
}

// gatedLock: Start 가 release 채널이 닫힐 때까지 sweep 을 붙잡는다.
type gatedLock struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedLock() *gatedLock {
	return &gatedLock{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedLock) Start(context.Context, string) error {
	close(g.entered)
	<-g.release
	return nil
}

func (g *gatedLock) Finish(context.Context, string) error { return nil }

func TestController_RejectsCallsWhileSweeping(t *testing.T) {
	lock := newGatedLock()
	c, mr, _ := newTestController(t, Options{CleanupOnStart: true, SweepLock: lock})
	mr.HSet("test:c#stale", "u0", "srvA")

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background()) }()
	<-lock.entered

	if c.State() != StateStarting {
		t.Fatalf("expected starting during sweep, got %s", c.State())
	}
	if _, _, err := c.Acquire(); !errors.Is(err, rerrors.ErrNotStarted) {
		t.Fatalf("calls during sweep must be rejected, got %v", err)
	}

	close(lock.release)
	if err := <-started; err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if mr.Exists("test:c#stale") {
		t.Fatal("stale key should be swept")
	}

	st, release, err := c.Acquire()
	if err != nil {
		t.Fatalf("acquire after sweep failed: %v", err)
	}
	if err := index.New(st, index.NewKeyspace("test"), testhelper.NewDiscardLogger()).Add(context.Background(), "lobby", "u1", "srvA"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	release()
	if !mr.Exists("test:c#lobby") {
		t.Fatal("membership added after start must survive")
	}
}

func TestController_StopWhileStarting(t *testing.T) {
	lock := newGatedLock()
	c, _, _ := newTestController(t, Options{CleanupOnStart: true, SweepLock: lock})

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background()) }()
	<-lock.entered

	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop(context.Background(), false) }()
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateClosed {
		if time.Now().After(deadline) {
			t.Fatal("stop did not close the controller")
		}
		time.Sleep(time.Millisecond)
	}

	close(lock.release)
	if err := <-started; !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition when stopped during start, got %v", err)
	}
	if err := <-stopped; err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("expected closed, got %s", c.State())
	}
}
