package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/valkeyx"
)

// ValkeyStore: valkey-go 클라이언트 기반 Store 구현
type ValkeyStore struct {
	client    valkey.Client
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewValkeyStore: ValkeyStore 를 생성한다. Close 는 클라이언트를 함께 닫는다.
func NewValkeyStore(client valkey.Client, logger *slog.Logger) *ValkeyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValkeyStore{client: client, logger: logger}
}

// SetMember: HSET key field value
func (s *ValkeyStore) SetMember(ctx context.Context, key, field, value string) error {
	cmd := s.client.B().Hset().Key(key).FieldValue().FieldValue(field, value).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return valkeyx.WrapRedisKeyError("hset", key, err)
	}
	return nil
}

// GetMember: HGET key field
func (s *ValkeyStore) GetMember(ctx context.Context, key, field string) (string, bool, error) {
	value, err := s.client.Do(ctx, s.client.B().Hget().Key(key).Field(field).Build()).ToString()
	if err != nil {
		if valkeyx.IsNil(err) {
			return "", false, nil
		}
		return "", false, valkeyx.WrapRedisKeyError("hget", key, err)
	}
	return value, true, nil
}

// DelMember: HDEL key field
func (s *ValkeyStore) DelMember(ctx context.Context, key, field string) error {
	if err := s.client.Do(ctx, s.client.B().Hdel().Key(key).Field(field).Build()).Error(); err != nil {
		return valkeyx.WrapRedisKeyError("hdel", key, err)
	}
	return nil
}

// Mapping: HGETALL key. 키가 없으면 빈 map 을 반환한다.
func (s *ValkeyStore) Mapping(ctx context.Context, key string) (map[string]string, error) {
	values, err := s.client.Do(ctx, s.client.B().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		if valkeyx.IsNil(err) {
			return map[string]string{}, nil
		}
		return nil, valkeyx.WrapRedisKeyError("hgetall", key, err)
	}
	return values, nil
}

// MappingLen: HLEN key
func (s *ValkeyStore) MappingLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Do(ctx, s.client.B().Hlen().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, valkeyx.WrapRedisKeyError("hlen", key, err)
	}
	return n, nil
}

// AddToSet: SADD key member
func (s *ValkeyStore) AddToSet(ctx context.Context, key, member string) error {
	if err := s.client.Do(ctx, s.client.B().Sadd().Key(key).Member(member).Build()).Error(); err != nil {
		return valkeyx.WrapRedisKeyError("sadd", key, err)
	}
	return nil
}

// RemoveFromSet: SREM key member
func (s *ValkeyStore) RemoveFromSet(ctx context.Context, key, member string) error {
	if err := s.client.Do(ctx, s.client.B().Srem().Key(key).Member(member).Build()).Error(); err != nil {
		return valkeyx.WrapRedisKeyError("srem", key, err)
	}
	return nil
}

// MembersOfSet: SMEMBERS key. 키가 없으면 빈 슬라이스를 반환한다.
func (s *ValkeyStore) MembersOfSet(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.Do(ctx, s.client.B().Smembers().Key(key).Build()).AsStrSlice()
	if err != nil {
		if valkeyx.IsNil(err) {
			return []string{}, nil
		}
		return nil, valkeyx.WrapRedisKeyError("smembers", key, err)
	}
	return members, nil
}

// HasKey: EXISTS key
func (s *ValkeyStore) HasKey(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, valkeyx.WrapRedisKeyError("exists", key, err)
	}
	return n > 0, nil
}

// ScanKeysByPrefix: SCAN MATCH {prefix}* COUNT {count}
func (s *ValkeyStore) ScanKeysByPrefix(ctx context.Context, prefix string, count int64, fn func(keys []string) error) error {
	if err := valkeyx.ScanPrefix(ctx, s.client, prefix, count, fn); err != nil {
		return fmt.Errorf("scan keys by prefix failed: %w", err)
	}
	return nil
}

// DeleteKeys: DEL key [key ...]. 삭제된 키 수를 반환한다.
func (s *ValkeyStore) DeleteKeys(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).AsInt64()
	if err != nil {
		return 0, valkeyx.WrapRedisError("del", err)
	}
	return n, nil
}

// Apply: MULTI, ops..., EXEC 를 한 연결에 파이프라인으로 전송한다.
// EXEC 가 실패하거나 큐잉 단계에서 에러가 나면 어떤 변경도 적용되지 않는다.
func (s *ValkeyStore) Apply(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	cmds := make(valkey.Commands, 0, len(ops)+2)
	cmds = append(cmds, s.client.B().Multi().Build())
	for _, op := range ops {
		cmd, err := s.build(op)
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}
	cmds = append(cmds, s.client.B().Exec().Build())

	resps := s.client.DoMulti(ctx, cmds...)
	for i, resp := range resps {
		if err := resp.Error(); err != nil {
			return valkeyx.WrapRedisError(fmt.Sprintf("multi_exec[%d]", i), err)
		}
	}

	// EXEC 응답 안의 개별 명령 에러(WRONGTYPE 등) 확인
	results, err := resps[len(resps)-1].ToArray()
	if err != nil {
		return valkeyx.WrapRedisError("exec", err)
	}
	for i, result := range results {
		if err := result.Error(); err != nil {
			return valkeyx.WrapRedisKeyError(ops[i].Kind.String(), ops[i].Key, err)
		}
	}
	return nil
}

func (s *ValkeyStore) build(op Op) (valkey.Completed, error) {
	b := s.client.B()
	switch op.Kind {
	case OpSetMember:
		return b.Hset().Key(op.Key).FieldValue().FieldValue(op.Field, op.Value).Build(), nil
	case OpDelMember:
		return b.Hdel().Key(op.Key).Field(op.Field).Build(), nil
	case OpAddToSet:
		return b.Sadd().Key(op.Key).Member(op.Value).Build(), nil
	case OpRemoveFromSet:
		return b.Srem().Key(op.Key).Member(op.Value).Build(), nil
	default:
		return valkey.Completed{}, fmt.Errorf("%w: %d", errUnknownOp, op.Kind)
	}
}

var errUnknownOp = errors.New("unknown store op")

// Ping: 연결 상태 확인
func (s *ValkeyStore) Ping(ctx context.Context) error {
	return valkeyx.Ping(ctx, s.client)
}

// Close: 클라이언트 연결을 닫는다. 여러 번 호출해도 안전하다.
func (s *ValkeyStore) Close() error {
	s.closeOnce.Do(func() {
		s.client.Close()
		s.logger.Debug("store_closed")
	})
	return nil
}
