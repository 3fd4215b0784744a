package testhelper

import (
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/valkey-io/valkey-go"
)

// NewMiniValkey: miniredis 인스턴스와 그에 연결된 valkey 클라이언트를 생성합니다.
// 두 리소스 모두 t.Cleanup 으로 정리됩니다.
func NewMiniValkey(t *testing.T) (*miniredis.Miniredis, valkey.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := NewValkeyClient(t, mr.Addr())
	return mr, client
}

// NewValkeyClient: 주어진 주소로 테스트용 valkey 클라이언트를 생성합니다.
// miniredis 는 CLIENT TRACKING 을 지원하지 않으므로 캐시를 끄고 단일 클라이언트로 고정합니다.
func NewValkeyClient(t *testing.T, addr string) valkey.Client {
	t.Helper()

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{addr},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	if err != nil {
		t.Fatalf("create valkey client failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// NewDiscardLogger: 출력을 버리는 테스트용 로거를 생성합니다.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// UniqueTestPrefix: 테스트별로 고유한 키 prefix를 생성합니다.
func UniqueTestPrefix(t *testing.T) string {
	return "test:" + t.Name()
}
