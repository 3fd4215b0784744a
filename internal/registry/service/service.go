// Package service 는 채널 레지스트리의 공개 파사드이다.
// 모든 호출은 lifecycle 게이트를 거치며, Started 가 아니면 스토어에 닿지 않고 ErrNotStarted 를 반환한다.
// 에러가 나면 값은 빈 값(빈 슬라이스, 0, false)이다.
// Push/PushMessage 만 예외로, 일부 서버의 멤버 조회가 실패해도 나머지 서버의 결과를 에러와 함께 돌려준다.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	json "github.com/goccy/go-json"

	rerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/errors"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/index"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/lifecycle"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/pusher"
)

// ErrPushDisabled: 팬아웃 푸셔 없이 생성된 서비스에서 PushMessage 를 호출했을 때
var ErrPushDisabled = errors.New("push is not configured")

// Service: 채널 레지스트리 파사드
type Service struct {
	lc     *lifecycle.Controller
	keys   index.Keyspace
	pusher *pusher.Pusher
	logger *slog.Logger
}

// New: Service 를 생성한다. p 가 nil 이면 PushMessage 는 ErrPushDisabled 를 반환한다.
func New(lc *lifecycle.Controller, keys index.Keyspace, p *pusher.Pusher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{lc: lc, keys: keys, pusher: p, logger: logger}
}

// withIndex: lifecycle 게이트를 통과한 경우에만 fn 을 실행한다.
func withIndex[T any](s *Service, empty T, fn func(x *index.Index) (T, error)) (T, error) {
	st, release, err := s.lc.Acquire()
	if err != nil {
		return empty, err
	}
	defer release()

	v, err := fn(index.New(st, s.keys, s.logger))
	if err != nil {
		return empty, err
	}
	return v, nil
}

// Start: 스토어에 연결하고 Started 로 전이한다.
func (s *Service) Start(ctx context.Context) error { return s.lc.Start(ctx) }

// Stop: Closed 로 전이하고 스토어 연결을 닫는다. force 면 진행 중 호출을 기다리지 않는다.
func (s *Service) Stop(ctx context.Context, force bool) error { return s.lc.Stop(ctx, force) }

// State: 현재 수명 주기 상태
func (s *Service) State() lifecycle.State { return s.lc.State() }

// Add: uid 를 channel 의 serverID 멤버로 등록한다.
func (s *Service) Add(ctx context.Context, channel, uid, serverID string) error {
	_, err := withIndex(s, struct{}{}, func(x *index.Index) (struct{}, error) {
		return struct{}{}, x.Add(ctx, channel, uid, serverID)
	})
	return err
}

// Leave: uid 를 channel 에서 제거한다. serverID 는 비워둘 수 있다.
func (s *Service) Leave(ctx context.Context, channel, uid, serverID string) error {
	_, err := withIndex(s, struct{}{}, func(x *index.Index) (struct{}, error) {
		return struct{}{}, x.Leave(ctx, channel, uid, serverID)
	})
	return err
}

// Destroy: 채널의 모든 멤버십을 제거한다.
func (s *Service) Destroy(ctx context.Context, channel string) error {
	_, err := withIndex(s, struct{}{}, func(x *index.Index) (struct{}, error) {
		return struct{}{}, x.Destroy(ctx, channel)
	})
	return err
}

// Len: 채널 멤버 수
func (s *Service) Len(ctx context.Context, channel string) (int64, error) {
	return withIndex(s, 0, func(x *index.Index) (int64, error) {
		return x.Len(ctx, channel)
	})
}

// Members: 채널 멤버. serverID 가 주어지면 그 서버의 멤버만 반환한다.
func (s *Service) Members(ctx context.Context, channel, serverID string) ([]string, error) {
	return withIndex(s, []string{}, func(x *index.Index) ([]string, error) {
		return x.Members(ctx, channel, serverID)
	})
}

// MembersByServer: 서버별 채널 멤버
func (s *Service) MembersByServer(ctx context.Context, channel string) (map[string][]string, error) {
	return withIndex(s, map[string][]string{}, func(x *index.Index) (map[string][]string, error) {
		return x.MembersByServer(ctx, channel)
	})
}

// IsMember: uid 가 channel 멤버인지
func (s *Service) IsMember(ctx context.Context, channel, uid string) (bool, error) {
	return withIndex(s, false, func(x *index.Index) (bool, error) {
		return x.IsMember(ctx, channel, uid)
	})
}

// ChannelsForUser: uid 가 속한 채널 목록
func (s *Service) ChannelsForUser(ctx context.Context, uid string) ([]string, error) {
	return withIndex(s, []string{}, func(x *index.Index) ([]string, error) {
		return x.ChannelsForUser(ctx, uid)
	})
}

// Memberships: uid 의 {channel: serverID}
func (s *Service) Memberships(ctx context.Context, uid string) (map[string]string, error) {
	return withIndex(s, map[string]string{}, func(x *index.Index) (map[string]string, error) {
		return x.Memberships(ctx, uid)
	})
}

// LeaveAll: uid 를 모든 채널에서 제거하고 제거된 채널 목록을 반환한다.
// 일부 채널만 실패한 경우에도 에러와 함께 빈 목록을 반환한다.
func (s *Service) LeaveAll(ctx context.Context, uid string) ([]string, error) {
	return withIndex(s, []string{}, func(x *index.Index) ([]string, error) {
		return x.LeaveAll(ctx, uid)
	})
}

// PushMessage: serverType 서버 중 channel 멤버를 가진 서버마다 push 하고 전달 실패 uid 를 반환한다.
// 빈 목록이면 모두 전달된 것이다. 일부 서버의 멤버 조회가 실패하면 나머지 서버에서 실패한 uid 를 에러와 함께 반환한다.
func (s *Service) PushMessage(ctx context.Context, serverType, route string, payload json.RawMessage, channel string) ([]string, error) {
	outcome, err := s.Push(ctx, pusher.Request{ServerType: serverType, Route: route, Payload: payload, Channel: channel})
	if outcome.Failed == nil {
		return []string{}, err
	}
	return outcome.Failed, err
}

// Push: PushMessage 의 서버별 상세 결과 버전.
// 푸셔가 에러를 내도 그때까지 모인 Outcome 은 버리지 않는다.
func (s *Service) Push(ctx context.Context, req pusher.Request) (pusher.Outcome, error) {
	st, release, err := s.lc.Acquire()
	if err != nil {
		return pusher.Outcome{}, err
	}
	defer release()

	if s.pusher == nil {
		return pusher.Outcome{}, ErrPushDisabled
	}
	if strings.TrimSpace(req.Channel) == "" {
		return pusher.Outcome{}, fmt.Errorf("%w: channel is empty", rerrors.ErrInvalidArgument)
	}
	return s.pusher.Push(ctx, index.New(st, s.keys, s.logger), req)
}
