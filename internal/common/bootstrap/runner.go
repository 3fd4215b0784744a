package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/httpserver"
)

// BackgroundTask: HTTP 서버와 같은 errgroup 에서 도는 작업 (디렉터리 heartbeat 등).
// Run 이 에러를 반환하면 서버까지 함께 내려간다.
type BackgroundTask struct {
	Name        string
	ErrorLogKey string
	Run         func(ctx context.Context) error
}

// Runner: 노드 하나의 실행 단위.
// 서버와 백그라운드 작업을 돌리고, 종료 시 서버가 요청 수신을 멈춘 다음 Drain 을 호출한다.
type Runner struct {
	Service         string
	Logger          *slog.Logger
	Server          *http.Server
	ShutdownTimeout time.Duration
	Tasks           []BackgroundTask
	// Drain: 서버 종료 후 ShutdownTimeout 한도 안에서 호출된다. nil 이면 건너뛴다.
	Drain func(ctx context.Context) error
}

// Run: SIGINT/SIGTERM 또는 ctx 취소, 혹은 작업 실패까지 실행한다.
// Drain 은 실행 결과와 관계없이 한 번 호출되며, 그 에러는 실행 에러와 합쳐서 반환한다.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil {
		return nil
	}
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(signalCtx)
	for _, task := range r.Tasks {
		if task.Run == nil {
			continue
		}
		g.Go(func() error { return r.runTask(gctx, task) })
	}

	r.Logger.Info("server_start", "service", r.Service, "addr", r.Server.Addr, "tasks", len(r.Tasks))
	g.Go(func() error {
		if err := httpserver.Serve(gctx, r.Server, r.ShutdownTimeout); err != nil {
			return fmt.Errorf("http server serve failed: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	if runErr != nil {
		runErr = fmt.Errorf("run %s failed: %w", r.Service, runErr)
	}
	drainErr := r.drain(ctx)
	r.Logger.Info("server_stopped", "service", r.Service, "failed", runErr != nil || drainErr != nil)
	return errors.Join(runErr, drainErr)
}

func (r *Runner) runTask(ctx context.Context, task BackgroundTask) error {
	err := task.Run(ctx)
	if err == nil || (errors.Is(err, context.Canceled) && ctx.Err() != nil) {
		r.Logger.Debug("background_task_stopped", "task", task.Name)
		return nil
	}
	logKey := task.ErrorLogKey
	if logKey == "" {
		logKey = "background_task_failed"
	}
	r.Logger.Error(logKey, "task", task.Name, "err", err)
	return fmt.Errorf("%s failed: %w", task.Name, err)
}

func (r *Runner) drain(ctx context.Context) error {
	if r.Drain == nil {
		return nil
	}
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.ShutdownTimeout)
	defer cancel()
	if err := r.Drain(drainCtx); err != nil {
		r.Logger.Warn("server_drain_failed", "service", r.Service, "err", err)
		return fmt.Errorf("drain %s failed: %w", r.Service, err)
	}
	return nil
}
