package valkeyx

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

// DefaultScanCount: SCAN 한 페이지의 COUNT 힌트 기본값
const DefaultScanCount = 100

// ScanPrefix: prefix 로 시작하는 키를 SCAN 커서로 페이지 단위 순회한다.
// 각 페이지마다 fn 이 호출되며, fn 이 에러를 반환하면 순회를 중단한다.
// 빈 페이지는 fn 에 전달하지 않는다.
func ScanPrefix(
	ctx context.Context,
	client valkey.Client,
	prefix string,
	count int64,
	fn func(keys []string) error,
) error {
	if count <= 0 {
		count = DefaultScanCount
	}
	pattern := EscapeGlob(prefix) + "*"

	var cursor uint64
	for {
		cmd := client.B().Scan().Cursor(cursor).Match(pattern).Count(count).Build()
		entry, err := client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return WrapRedisKeyError("scan", pattern, err)
		}
		if len(entry.Elements) > 0 {
			if err := fn(entry.Elements); err != nil {
				return fmt.Errorf("scan page handler failed: %w", err)
			}
		}
		cursor = entry.Cursor
		if cursor == 0 {
			return nil
		}
	}
}
