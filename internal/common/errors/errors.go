// Package errors: 레지스트리 서비스 전체에서 공용으로 사용되는 인프라스트럭처 에러 타입들을 정의한다.
// 도메인 특화 에러는 internal/registry/errors 에서 이 타입들을 감싸서 사용한다.
package errors

import (
	"errors"
	"fmt"
)

// RedisError: Redis/Valkey 작업을 수행하는 도중 발생한 에러
type RedisError struct {
	Operation string
	Key       string
	Err       error
}

func (e RedisError) Error() string {
	msg := fmt.Sprintf("redis error operation=%s", e.Operation)
	if e.Key != "" {
		msg = fmt.Sprintf("%s key=%s", msg, e.Key)
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e RedisError) Unwrap() error { return e.Err }

// DatabaseError: 데이터베이스(PostgreSQL/SQLite) 작업을 수행하는 도중 발생한 에러
type DatabaseError struct {
	Operation string
	Err       error
}

func (e DatabaseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("db error operation=%s", e.Operation)
	}
	return fmt.Sprintf("db error operation=%s: %v", e.Operation, e.Err)
}

func (e DatabaseError) Unwrap() error { return e.Err }

// LockError: 분산 락 획득 실패 등 락 관련 처리 중 발생하는 에러
type LockError struct {
	Resource    string
	Description string
}

func (e LockError) Error() string {
	msg := e.Description
	if msg == "" {
		msg = "failed to acquire lock"
	}
	if e.Resource != "" {
		msg = fmt.Sprintf("%s resource=%s", msg, e.Resource)
	}
	return msg
}

// IsRedisError: 에러 체인에 RedisError 가 포함되어 있는지 확인한다.
func IsRedisError(err error) bool {
	if err == nil {
		return false
	}
	var target RedisError
	return errors.As(err, &target)
}
