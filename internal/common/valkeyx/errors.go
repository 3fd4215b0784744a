package valkeyx

import (
	cerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/errors"
)

// WrapRedisError: Redis 관련 에러를 공통 타입으로 감싼다.
func WrapRedisError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return cerrors.RedisError{Operation: operation, Err: err}
}

// WrapRedisKeyError: 대상 키를 포함하여 Redis 에러를 공통 타입으로 감싼다.
func WrapRedisKeyError(operation, key string, err error) error {
	if err == nil {
		return nil
	}
	return cerrors.RedisError{Operation: operation, Key: key, Err: err}
}
