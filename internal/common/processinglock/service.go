// Package processinglock 은 여러 노드가 공유하는 Valkey 위에서 단일 실행(single-flight) 락을 제공한다.
package processinglock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	cerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/errors"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/valkeyx"
)

// KeyFunc: 리소스 식별자를 락 키로 변환합니다.
type KeyFunc func(resource string) string

// ErrAlreadyProcessing: 다른 소유자가 이미 락을 보유하고 있을 때 반환되는 에러
var ErrAlreadyProcessing = errors.New("already processing")

// 소유자 토큰이 일치할 때만 삭제한다.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Service: SET NX EX 기반의 처리 락 서비스
type Service struct {
	client  valkey.Client
	logger  *slog.Logger
	keyFunc KeyFunc
	ttl     time.Duration
	owner   string
}

// New: 새로운 Service 인스턴스를 생성합니다. owner 는 락 값으로 저장되어 해제 시 검증됩니다.
func New(client valkey.Client, logger *slog.Logger, keyFunc KeyFunc, ttl time.Duration, owner string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if owner == "" {
		owner = "1"
	}
	return &Service{
		client:  client,
		logger:  logger,
		keyFunc: keyFunc,
		ttl:     ttl,
		owner:   owner,
	}
}

// Start: 처리 락을 획득합니다. (SET NX EX)
// 이미 락이 존재하면 ErrAlreadyProcessing 을 감싼 LockError 를 반환합니다.
func (s *Service) Start(ctx context.Context, resource string) error {
	key := s.keyFunc(resource)
	cmd := s.client.B().Set().Key(key).Value(s.owner).Nx().Ex(s.ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if valkeyx.IsNil(err) {
			return fmt.Errorf("%w: %w", ErrAlreadyProcessing, cerrors.LockError{Resource: resource, Description: "already processing"})
		}
		return valkeyx.WrapRedisKeyError("processing_start", key, err)
	}
	s.logger.Debug("processing_started", "resource", resource, "owner", s.owner)
	return nil
}

// Finish: 자신이 보유한 처리 락만 해제합니다. TTL 만료 후 다른 소유자가 잡은 락은 건드리지 않습니다.
func (s *Service) Finish(ctx context.Context, resource string) error {
	key := s.keyFunc(resource)
	released, err := releaseScript.Exec(ctx, s.client, []string{key}, []string{s.owner}).AsInt64()
	if err != nil {
		return valkeyx.WrapRedisKeyError("processing_finish", key, err)
	}
	s.logger.Debug("processing_finished", "resource", resource, "released", released > 0)
	return nil
}

// IsProcessing: 현재 처리가 진행 중인지(락이 존재하는지) 확인합니다.
func (s *Service) IsProcessing(ctx context.Context, resource string) (bool, error) {
	key := s.keyFunc(resource)
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, valkeyx.WrapRedisKeyError("processing_exists", key, err)
	}
	return n > 0, nil
}
