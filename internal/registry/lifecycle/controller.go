// Package lifecycle 은 레지스트리 스토어 연결의 수명과 상태 전이를 관리한다.
// Started 상태가 아닌 동안에는 어떤 인덱스/팬아웃 연산도 스토어에 닿지 않는다.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/processinglock"
	rerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/errors"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/index"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/store"
)

// ErrInvalidTransition: 허용되지 않은 상태 전이 (예: Closed 에서 start)
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// sweepResource: cleanup 단일 실행 락의 리소스 이름
const sweepResource = "cleanup"

// Connector: 스토어 연결을 만든다. Start 때 한 번 호출된다.
type Connector func(ctx context.Context) (store.Store, error)

// SweepLock: 여러 노드가 동시에 cleanup 하지 않도록 막는 락 (processinglock.Service)
type SweepLock interface {
	Start(ctx context.Context, resource string) error
	Finish(ctx context.Context, resource string) error
}

// Options: 컨트롤러 동작 옵션
type Options struct {
	Keys           index.Keyspace
	CleanupOnStart bool
	ScanPageSize   int64
	// CleanupPagesPerSecond: 0 이하면 속도 제한 없음
	CleanupPagesPerSecond float64
	SweepLock             SweepLock
}

// Controller: 상태 머신과 in-flight 게이트
type Controller struct {
	connect Connector
	opts    Options
	logger  *slog.Logger

	mu       sync.RWMutex
	state    State
	store    store.Store
	inflight sync.WaitGroup
}

// New: Inited 상태의 Controller 를 생성한다.
func New(connect Connector, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ScanPageSize <= 0 {
		opts.ScanPageSize = 100
	}
	return &Controller{connect: connect, opts: opts, logger: logger}
}

// State: 현재 상태
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Start: 스토어에 연결하고 Starting 을 거쳐 Started 로 전이한다.
// CleanupOnStart 면 Starting 동안 cleanup 을 끝낸다. 그 사이 Acquire 는 ErrNotStarted 로 거절되므로
// 새 멤버십이 sweep 에 지워지는 일은 없다. cleanup 실패는 로그만 남긴다.
// Starting 중에 Stop 되면 Started 로 가지 않고 ErrInvalidTransition 을 반환한다.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInited {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, state)
	}

	st, err := c.connect(ctx)
	if err != nil {
		c.mu.Unlock()
		return rerrors.WrapStore("connect", err)
	}
	c.store = st
	c.state = StateStarting
	// sweep 도 in-flight 로 잡아 stop 이 기다리게 한다.
	c.inflight.Add(1)
	c.mu.Unlock()

	if c.opts.CleanupOnStart {
		c.sweep(ctx, st)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight.Done()
	if c.state != StateStarting {
		return fmt.Errorf("%w: stopped while starting", ErrInvalidTransition)
	}
	c.state = StateStarted
	c.logger.Info("registry_started", "prefix", c.opts.Keys.Prefix(), "cleanup_on_start", c.opts.CleanupOnStart)
	return nil
}

// Acquire: Started 상태면 스토어와 release 함수를 반환한다. 호출자는 연산이 끝나면 release 를 호출해야 한다.
// 그 외 상태면 ErrNotStarted 를 반환한다.
func (c *Controller) Acquire() (store.Store, func(), error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateStarted {
		return nil, nil, rerrors.ErrNotStarted
	}
	c.inflight.Add(1)
	return c.store, c.inflight.Done, nil
}

// Stop: 즉시 Closed 로 전이한다. 이후 Acquire 는 모두 거절된다.
// force 가 false 면 진행 중인 연산이 끝날 때까지(ctx 한도) 기다린 뒤 스토어를 닫는다.
// 이미 Closed 면 아무 것도 하지 않는다.
func (c *Controller) Stop(ctx context.Context, force bool) error {
	c.mu.Lock()
	prev := c.state
	st := c.store
	c.state = StateClosed
	c.mu.Unlock()

	if prev != StateStarted && prev != StateStarting {
		return nil
	}

	if !force {
		c.drain(ctx)
	}

	if err := st.Close(); err != nil {
		return rerrors.WrapStore("close", err)
	}
	c.logger.Info("registry_stopped", "force", force)
	return nil
}

func (c *Controller) drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("stop_drain_timeout", "err", ctx.Err())
	}
}

func (c *Controller) sweep(ctx context.Context, st store.Store) {
	if c.opts.SweepLock != nil {
		if err := c.opts.SweepLock.Start(ctx, sweepResource); err != nil {
			if errors.Is(err, processinglock.ErrAlreadyProcessing) {
				c.logger.Info("cleanup_skipped_locked")
				return
			}
			c.logger.Warn("cleanup_lock_failed", "err", err)
			return
		}
		defer func() {
			if err := c.opts.SweepLock.Finish(context.WithoutCancel(ctx), sweepResource); err != nil {
				c.logger.Warn("cleanup_unlock_failed", "err", err)
			}
		}()
	}

	var limiter index.Limiter
	if c.opts.CleanupPagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.opts.CleanupPagesPerSecond), 1)
	}

	started := time.Now()
	deleted, err := index.New(st, c.opts.Keys, c.logger).Cleanup(ctx, c.opts.ScanPageSize, limiter)
	if err != nil {
		c.logger.Warn("cleanup_failed", "deleted", deleted, "err", err)
		return
	}
	c.logger.Info("cleanup_completed", "deleted", deleted, "elapsed", time.Since(started))
}
