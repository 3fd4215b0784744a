package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/cache"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/valkeyx"
)

const serversCacheKey = "servers"

// record: Valkey 해시에 저장되는 서버 레코드
type record struct {
	Server
	HeartbeatAt int64 `json:"heartbeatAt"` // unix millis
}

// ValkeyOptions: ValkeyDirectory 설정
type ValkeyOptions struct {
	Prefix        string
	StaleAfter    time.Duration
	CacheTTL      time.Duration
	CacheCapacity int
}

// ValkeyDirectory: 각 노드가 스스로 등록하고 heartbeat 로 갱신하는 Directory.
// 레코드는 {prefix}:servers 해시(id -> JSON)에 저장되며, StaleAfter 이상 갱신되지 않은 레코드는 조회에서 제외된다.
type ValkeyDirectory struct {
	client     valkey.Client
	self       Server
	key        string
	staleAfter time.Duration
	cache      *cache.TTLLRUCache[[]Server]
	logger     *slog.Logger
	now        func() time.Time
}

// NewValkeyDirectory: ValkeyDirectory 를 생성합니다. CacheTTL 이 0 이면 캐시를 쓰지 않습니다.
func NewValkeyDirectory(client valkey.Client, self Server, opts ValkeyOptions, logger *slog.Logger) (*ValkeyDirectory, error) {
	if client == nil {
		return nil, errors.New("valkey client is nil")
	}
	if strings.TrimSpace(self.ID) == "" {
		return nil, errors.New("self server id is empty")
	}
	if opts.StaleAfter <= 0 {
		return nil, fmt.Errorf("invalid stale after: %v", opts.StaleAfter)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ValkeyDirectory{
		client:     client,
		self:       self,
		key:        valkeyx.BuildKey(opts.Prefix, "servers"),
		staleAfter: opts.StaleAfter,
		cache:      cache.NewTTLLRUCache[[]Server](opts.CacheCapacity, opts.CacheTTL),
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Register: 자기 자신의 레코드를 현재 시각으로 기록합니다. heartbeat 도 이 함수를 사용합니다.
func (d *ValkeyDirectory) Register(ctx context.Context) error {
	payload, err := json.Marshal(record{Server: d.self, HeartbeatAt: d.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("marshal server record failed: %w", err)
	}
	cmd := d.client.B().Hset().Key(d.key).FieldValue().FieldValue(d.self.ID, string(payload)).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return valkeyx.WrapRedisKeyError("hset", d.key, err)
	}
	return nil
}

// Deregister: 자기 자신의 레코드를 제거합니다.
func (d *ValkeyDirectory) Deregister(ctx context.Context) error {
	d.cache.Purge()
	if err := d.client.Do(ctx, d.client.B().Hdel().Key(d.key).Field(d.self.ID).Build()).Error(); err != nil {
		return valkeyx.WrapRedisKeyError("hdel", d.key, err)
	}
	return nil
}

// Servers: 살아 있는 전체 서버 목록을 반환합니다.
func (d *ValkeyDirectory) Servers(ctx context.Context) ([]Server, error) {
	if cached, ok := d.cache.Get(serversCacheKey); ok {
		return append([]Server(nil), cached...), nil
	}

	live, _, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	d.cache.Set(serversCacheKey, live)
	return append([]Server(nil), live...), nil
}

// ServersByType: 주어진 타입의 살아 있는 서버 목록을 반환합니다.
func (d *ValkeyDirectory) ServersByType(ctx context.Context, serverType string) ([]Server, error) {
	servers, err := d.Servers(ctx)
	if err != nil {
		return nil, err
	}
	return filterByType(servers, serverType), nil
}

// IsFrontend: 현재 노드의 frontend 여부
func (d *ValkeyDirectory) IsFrontend() bool { return d.self.Frontend }

// load: 해시 전체를 읽어 살아 있는 서버와 만료된 서버 ID 를 나눠 반환한다.
func (d *ValkeyDirectory) load(ctx context.Context) ([]Server, []string, error) {
	raw, err := d.client.Do(ctx, d.client.B().Hgetall().Key(d.key).Build()).AsStrMap()
	if err != nil && !valkeyx.IsNil(err) {
		return nil, nil, valkeyx.WrapRedisKeyError("hgetall", d.key, err)
	}

	cutoff := d.now().Add(-d.staleAfter).UnixMilli()
	live := make([]Server, 0, len(raw))
	var stale []string
	for id, value := range raw {
		var rec record
		if err := json.Unmarshal([]byte(value), &rec); err != nil || rec.ID != id {
			d.logger.Warn("directory_record_corrupt", "server_id", id, "err", err)
			stale = append(stale, id)
			continue
		}
		if rec.HeartbeatAt < cutoff {
			stale = append(stale, id)
			continue
		}
		live = append(live, rec.Server)
	}
	sortServers(live)
	return live, stale, nil
}

// Prune: 만료되었거나 손상된 레코드를 해시에서 제거하고 제거한 수를 반환합니다.
func (d *ValkeyDirectory) Prune(ctx context.Context) (int, error) {
	_, stale, err := d.load(ctx)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := d.client.Do(ctx, d.client.B().Hdel().Key(d.key).Field(stale...).Build()).Error(); err != nil {
		return 0, valkeyx.WrapRedisKeyError("hdel", d.key, err)
	}
	d.cache.Purge()
	return len(stale), nil
}

// RunHeartbeat: ctx 가 끝날 때까지 interval 마다 자기 레코드를 갱신하고 만료 레코드를 정리합니다.
// 종료 시 자기 레코드를 제거합니다. 일시적인 저장소 오류는 로그만 남기고 계속 진행합니다.
func (d *ValkeyDirectory) RunHeartbeat(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid heartbeat interval: %v", interval)
	}
	if err := d.Register(ctx); err != nil {
		return fmt.Errorf("initial register failed: %w", err)
	}
	d.logger.Info("directory_registered", "server_id", d.self.ID, "server_type", d.self.Type, "addr", d.self.Addr)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			deregCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interval)
			err := d.Deregister(deregCtx)
			cancel()
			if err != nil {
				d.logger.Warn("directory_deregister_failed", "server_id", d.self.ID, "err", err)
			} else {
				d.logger.Info("directory_deregistered", "server_id", d.self.ID)
			}
			return nil
		case <-ticker.C:
			if err := d.Register(ctx); err != nil {
				d.logger.Warn("heartbeat_failed", "server_id", d.self.ID, "err", err)
				continue
			}
			if n, err := d.Prune(ctx); err != nil {
				d.logger.Warn("directory_prune_failed", "err", err)
			} else if n > 0 {
				d.logger.Info("directory_stale_pruned", "count", n)
			}
		}
	}
}
