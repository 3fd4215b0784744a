// Package errors: 채널 레지스트리 도메인 에러 타입.
// 공용 인프라 에러(cerrors.RedisError 등)를 감싸 Index/Pusher 경계에서 도메인 의미로 변환한다.
package errors

import (
	"errors"
	"fmt"
)

// ErrNotStarted: 서비스가 Started 상태가 아닐 때 반환된다. 스토어에는 접근하지 않는다.
var ErrNotStarted = errors.New("channel registry not started")


// ErrInvalidArgument: 빈 채널/유저 식별자 등 잘못된 입력
var ErrInvalidArgument = errors.New("invalid argument")

// StoreUnavailableError: 공유 스토어 호출이 실패했을 때의 에러
type StoreUnavailableError struct {
	Operation string
	Err       error
}

func (e StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable operation=%s: %v", e.Operation, e.Err)
}

func (e StoreUnavailableError) Unwrap() error { return e.Err }

// CorruptRecordError: 인덱스 레코드가 깨져 있을 때의 에러 (예: 서버 값이 빈 문자열)
type CorruptRecordError struct {
	Key   string
	Field string
}

func (e CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record key=%s field=%s", e.Key, e.Field)
}

// RemoteInvocationError: 특정 서버로의 원격 push 호출 실패
type RemoteInvocationError struct {
	ServerID string
	Err      error
}

func (e RemoteInvocationError) Error() string {
	return fmt.Sprintf("remote invocation failed server=%s: %v", e.ServerID, e.Err)
}

func (e RemoteInvocationError) Unwrap() error { return e.Err }

// WrapStore: 스토어 에러를 StoreUnavailableError 로 감싼다. 이미 감싸져 있으면 그대로 둔다.
func WrapStore(operation string, err error) error {
	if err == nil {
		return nil
	}
	var existing StoreUnavailableError
	if errors.As(err, &existing) {
		return err
	}
	return StoreUnavailableError{Operation: operation, Err: err}
}

// IsStoreUnavailable: 에러 체인에 StoreUnavailableError 가 있는지 확인한다.
func IsStoreUnavailable(err error) bool {
	var target StoreUnavailableError
	return errors.As(err, &target)
}
