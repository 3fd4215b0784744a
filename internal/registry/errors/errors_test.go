package errors

import (
	"errors"
	"fmt"
	"testing"

	cerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/errors"
)

func TestWrapStore_PreservesCause(t *testing.T) {
	cause := cerrors.RedisError{Operation: "hset", Err: errors.New("connection reset")}

	err := WrapStore("add", cause)
	if !IsStoreUnavailable(err) {
		t.Fatalf("expected StoreUnavailableError, got %T", err)
	}
	if !cerrors.IsRedisError(err) {
		t.Fatal("redis cause should stay reachable through Unwrap")
	}

	again := WrapStore("leave", fmt.Errorf("outer: %w", err))
	var sue StoreUnavailableError
	if !errors.As(again, &sue) || sue.Operation != "add" {
		t.Fatalf("expected original operation kept, got %v", again)
	}
}

func TestWrapStore_Nil(t *testing.T) {
	if WrapStore("add", nil) != nil {
		t.Fatal("nil error should stay nil")
	}
}

func TestRemoteInvocationError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := RemoteInvocationError{ServerID: "srvA", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause via errors.Is")
	}
}
