// Package pusher 는 채널 멤버가 있는 서버마다 원격 pushMessage 를 호출하는 팬아웃을 구현한다.
package pusher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/cluster"
	rerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/errors"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/remote"
)

const tracerName = "channel-registry-go/pusher"

// MemberLister: (channel, server) 멤버 조회 (index.Index 가 만족한다)
type MemberLister interface {
	Members(ctx context.Context, channel, serverID string) ([]string, error)
}

// Recorder: 푸시 결과를 외부(감사 로그 등)에 남긴다. 실패해도 푸시 결과에는 영향이 없다.
type Recorder interface {
	Record(ctx context.Context, req Request, outcome Outcome) error
}

// Request: pushMessage 입력
type Request struct {
	ServerType string
	Route      string
	Payload    json.RawMessage
	Channel    string
}

// ServerOutcome: 서버 하나에 대한 호출 결과
type ServerOutcome struct {
	ServerID string
	UIDs     []string // 호출 대상 uid
	Failed   []string // 전달 실패 uid
	Err      error    // 전송 단계 실패
}

// Outcome: 팬아웃 전체 결과. Targets 는 멤버가 있어 실제로 호출한 서버만 디렉터리 순서로 담는다.
// NoTargets 는 serverType 에 등록된 서버가 하나도 없었다는 뜻이며 에러가 아니다.
type Outcome struct {
	Targets   []ServerOutcome
	Failed    []string
	NoTargets bool
}

// Delivered: 실패 uid 가 하나도 없는지
func (o Outcome) Delivered() bool { return len(o.Failed) == 0 }

// Options: 동시성/타임아웃 설정
type Options struct {
	Concurrency   int
	ServerTimeout time.Duration
	Recorder      Recorder
}

// Pusher: 팬아웃 푸시 실행기
type Pusher struct {
	directory cluster.Directory
	invoker   remote.Invoker
	opts      Options
	metrics   *Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

// New: Pusher 를 생성한다. metrics 는 nil 이어도 된다.
func New(directory cluster.Directory, invoker remote.Invoker, opts Options, metrics *Metrics, logger *slog.Logger) *Pusher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{
		directory: directory,
		invoker:   invoker,
		opts:      opts,
		metrics:   metrics,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
	}
}

// Push: serverType 서버들 중 channel 멤버를 가진 서버마다 pushMessage 를 호출하고 결과를 모은다.
//
// 서버별 호출은 서로 독립적이며 한 서버의 실패는 그 서버의 uid 만 Failed 에 더한다.
// 대상 서버가 없으면 경고 로그만 남기고 NoTargets 가 켜진 빈 Outcome 을 반환한다.
// 멤버 조회 실패는 해당 서버를 건너뛰고, 모든 서버 처리가 끝난 뒤 부분 Outcome 과 StoreUnavailableError 를 함께 반환한다.
func (p *Pusher) Push(ctx context.Context, members MemberLister, req Request) (Outcome, error) {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "ChannelRegistry.Push",
		trace.WithAttributes(
			attribute.String("registry.channel", req.Channel),
			attribute.String("registry.server_type", req.ServerType),
			attribute.String("registry.route", req.Route),
		),
	)
	defer span.End()

	servers, err := p.directory.ServersByType(ctx, req.ServerType)
	if err != nil {
		err = fmt.Errorf("resolve servers failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.observePush("error", time.Since(started).Seconds(), 0)
		return Outcome{}, err
	}
	if len(servers) == 0 {
		p.logger.WarnContext(ctx, "push_no_targets", "server_type", req.ServerType, "channel", req.Channel, "route", req.Route)
		span.SetAttributes(attribute.Bool("registry.no_targets", true))
		p.metrics.observePush("no_targets", time.Since(started).Seconds(), 0)
		return Outcome{NoTargets: true}, nil
	}

	type slot struct {
		outcome  ServerOutcome
		invoked  bool
		storeErr error
	}
	slots := make([]slot, len(servers))

	wp := pool.New().WithMaxGoroutines(min(p.opts.Concurrency, len(servers)))
	for i, server := range servers {
		wp.Go(func() {
			uids, err := members.Members(ctx, req.Channel, server.ID)
			if err != nil {
				p.logger.WarnContext(ctx, "push_members_failed", "channel", req.Channel, "server_id", server.ID, "err", err)
				slots[i].storeErr = err
				return
			}
			if len(uids) == 0 {
				return
			}
			slots[i].invoked = true
			slots[i].outcome = p.pushToServer(ctx, server, req, uids)
		})
	}
	wp.Wait()

	var outcome Outcome
	var storeErrs []error
	for _, s := range slots {
		if s.storeErr != nil {
			storeErrs = append(storeErrs, s.storeErr)
			continue
		}
		if !s.invoked {
			continue
		}
		outcome.Targets = append(outcome.Targets, s.outcome)
		outcome.Failed = append(outcome.Failed, s.outcome.Failed...)
	}

	result := "ok"
	if !outcome.Delivered() {
		result = "partial"
	}
	var retErr error
	if len(storeErrs) > 0 {
		result = "error"
		retErr = rerrors.WrapStore("push_members", errors.Join(storeErrs...))
		span.RecordError(retErr)
		span.SetStatus(codes.Error, retErr.Error())
	}
	span.SetAttributes(
		attribute.Int("registry.target_servers", len(outcome.Targets)),
		attribute.Int("registry.failed_uids", len(outcome.Failed)),
	)
	p.metrics.observePush(result, time.Since(started).Seconds(), len(outcome.Failed))

	p.logger.DebugContext(ctx, "push_completed",
		"channel", req.Channel,
		"route", req.Route,
		"targets", len(outcome.Targets),
		"failed", len(outcome.Failed),
	)

	if p.opts.Recorder != nil {
		if err := p.opts.Recorder.Record(context.WithoutCancel(ctx), req, outcome); err != nil {
			p.logger.WarnContext(ctx, "push_record_failed", "channel", req.Channel, "err", err)
		}
	}
	return outcome, retErr
}

func (p *Pusher) pushToServer(ctx context.Context, server cluster.Server, req Request, uids []string) ServerOutcome {
	ctx, span := p.tracer.Start(ctx, "ChannelRegistry.PushServer",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("registry.server_id", server.ID),
			attribute.Int("registry.uids", len(uids)),
		),
	)
	defer span.End()

	out := ServerOutcome{ServerID: server.ID, UIDs: uids}

	env, err := remote.NewPushEnvelope(req.Route, req.Payload, uids)
	if err == nil {
		callCtx := ctx
		if p.opts.ServerTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.opts.ServerTimeout)
			defer cancel()
		}
		var res remote.PushResult
		if err = p.invoker.Invoke(callCtx, server, env, &res); err == nil {
			out.Failed = res.FailIDs
		}
	}

	if err != nil {
		out.Err = err
		out.Failed = uids
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.observeInvocation(false)
		p.logger.WarnContext(ctx, "push_server_failed",
			"server_id", server.ID,
			"channel", req.Channel,
			"route", req.Route,
			"uid_count", len(uids),
			"err", err,
		)
		return out
	}

	p.metrics.observeInvocation(true)
	return out
}
