package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/valkey-io/valkey-go"

	commonconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/config"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/valkeyx"
)

// ValkeyConfigFor: RedisConfig 를 용도별 연결 설정으로 바꿉니다.
// 연결 이름은 "{service}.{serverID}.{role}" 이며 CLIENT LIST 에서 노드와 용도를 구분하는 데 씁니다.
// serverID 의 공백은 "_" 로 바꿉니다.
func ValkeyConfigFor(cfg commonconfig.RedisConfig, service, serverID, role string) valkeyx.Config {
	return valkeyx.Config{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   fmt.Sprintf("%s.%s.%s", service, strings.Join(strings.Fields(serverID), "_"), role),
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		DisableCache: true,
	}
}

// OpenValkey: 연결을 열고 닫기 함수를 함께 돌려줍니다.
func OpenValkey(ctx context.Context, cfg valkeyx.Config, logger *slog.Logger) (valkey.Client, func(), error) {
	client, err := valkeyx.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("valkey_client_opened", "client_name", cfg.ClientName, "addr", cfg.Addr)
	return client, func() {
		client.Close()
		logger.Debug("valkey_client_closed", "client_name", cfg.ClientName)
	}, nil
}
