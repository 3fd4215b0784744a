// Package store 는 레지스트리 인덱스가 사용하는 공유 키-값 스토어 추상화이다.
// 해시/셋 원시 연산과 prefix 스캔/삭제만 제공하며 비즈니스 규칙은 두지 않는다.
// 구현체는 내부에서 재시도하지 않는다.
package store

import "context"

// OpKind: 배치(Apply)에 담기는 변경 연산 종류
type OpKind int

const (
	// OpSetMember: 해시 필드 설정 (HSET key field value)
	OpSetMember OpKind = iota + 1
	// OpDelMember: 해시 필드 삭제 (HDEL key field)
	OpDelMember
	// OpAddToSet: 셋 멤버 추가 (SADD key value)
	OpAddToSet
	// OpRemoveFromSet: 셋 멤버 제거 (SREM key value)
	OpRemoveFromSet
)

func (k OpKind) String() string {
	switch k {
	case OpSetMember:
		return "set_member"
	case OpDelMember:
		return "del_member"
	case OpAddToSet:
		return "add_to_set"
	case OpRemoveFromSet:
		return "remove_from_set"
	default:
		return "unknown"
	}
}

// Op: 배치 변경 연산 하나. Field 는 해시 연산에서만, Value 는 HSET/SADD/SREM 에서 사용한다.
type Op struct {
	Kind  OpKind
	Key   string
	Field string
	Value string
}

// SetMember 는 HSET 연산을 만든다.
func SetMember(key, field, value string) Op {
	return Op{Kind: OpSetMember, Key: key, Field: field, Value: value}
}

// DelMember 는 HDEL 연산을 만든다.
func DelMember(key, field string) Op {
	return Op{Kind: OpDelMember, Key: key, Field: field}
}

// AddToSet 는 SADD 연산을 만든다.
func AddToSet(key, member string) Op {
	return Op{Kind: OpAddToSet, Key: key, Value: member}
}

// RemoveFromSet 는 SREM 연산을 만든다.
func RemoveFromSet(key, member string) Op {
	return Op{Kind: OpRemoveFromSet, Key: key, Value: member}
}

// Store: 레지스트리 스토어 어댑터. 모든 연산은 실패할 수 있다.
type Store interface {
	SetMember(ctx context.Context, key, field, value string) error
	// GetMember 는 필드가 없으면 ("", false, nil) 을 반환한다.
	GetMember(ctx context.Context, key, field string) (string, bool, error)
	DelMember(ctx context.Context, key, field string) error
	Mapping(ctx context.Context, key string) (map[string]string, error)
	MappingLen(ctx context.Context, key string) (int64, error)

	AddToSet(ctx context.Context, key, member string) error
	RemoveFromSet(ctx context.Context, key, member string) error
	MembersOfSet(ctx context.Context, key string) ([]string, error)

	HasKey(ctx context.Context, key string) (bool, error)
	// ScanKeysByPrefix 는 커서 기반으로 prefix 키를 페이지 단위(count 힌트)로 fn 에 전달한다.
	ScanKeysByPrefix(ctx context.Context, prefix string, count int64, fn func(keys []string) error) error
	DeleteKeys(ctx context.Context, keys ...string) (int64, error)

	// Apply 는 ops 를 순서대로 하나의 트랜잭션(MULTI/EXEC)으로 실행한다.
	Apply(ctx context.Context, ops []Op) error

	Ping(ctx context.Context) error
	Close() error
}
