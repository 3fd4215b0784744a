package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	commonconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/config"
)

// ServerConfig: HTTP 서버 설정 alias
type ServerConfig = commonconfig.ServerConfig

// ServerTuningConfig: 서버 튜닝 설정 alias
type ServerTuningConfig = commonconfig.ServerTuningConfig

// RedisConfig: 레지스트리 저장소(Valkey) 연결 설정 alias
type RedisConfig = commonconfig.RedisConfig

// LogConfig: 파일 로깅 설정 alias
type LogConfig = commonconfig.LogConfig

// RegistryConfig: 멤버십 인덱스 키스페이스와 시작 시 정리 작업 설정
type RegistryConfig struct {
	KeyPrefix             string
	CleanupOnStart        bool
	ScanPageSize          int
	CleanupPagesPerSecond float64
	SweepLockTTL          time.Duration
}

// NodeConfig: 이 프로세스가 클러스터에 등록하는 자기 자신의 정보
type NodeConfig struct {
	ServerID          string
	ServerType        string
	AdvertisedAddr    string // 다른 노드가 RPC 호출에 사용하는 base URL
	Frontend          bool
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
}

// ClusterConfig: 클러스터 디렉터리 구성 방식
type ClusterConfig struct {
	Mode            string // static | valkey
	TopologyFile    string // static 모드 YAML 파일 경로
	DirectoryPrefix string
	CacheTTL        time.Duration
	CacheCapacity   int
}

// PushConfig: 팬아웃 푸시 동시성과 원격 호출 타임아웃 설정
type PushConfig struct {
	Concurrency    int
	ServerTimeout  time.Duration
	ConnectTimeout time.Duration
	HTTP2Enabled   bool
}

// DeliveryConfig: 원격 푸시를 수신한 노드가 메시지를 적재하는 스트림 설정
type DeliveryConfig struct {
	StreamPrefix string
	MaxLen       int64
}

// PostgresConfig: 감사 로그용 PostgreSQL 접속 정보
type PostgresConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN: gorm postgres 드라이버용 접속 문자열을 생성합니다.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// AuditConfig: 푸시 결과 감사 로그 설정
type AuditConfig struct {
	Enabled    bool
	Driver     string // postgres | sqlite
	SQLitePath string
	Postgres   PostgresConfig
}

// Config: 전체 애플리케이션 설정 구조체
type Config struct {
	Server       ServerConfig
	ServerTuning ServerTuningConfig
	Redis        RedisConfig
	Log          LogConfig
	Telemetry    commonconfig.TelemetryConfig
	Registry     RegistryConfig
	Node         NodeConfig
	Cluster      ClusterConfig
	Push         PushConfig
	Delivery     DeliveryConfig
	Audit        AuditConfig
}

// LoadFromEnv: 환경 변수로부터 전체 애플리케이션 설정을 로드합니다.
func LoadFromEnv() (*Config, error) {
	server, err := commonconfig.ReadServerConfigFromEnv(DefaultServerPort)
	if err != nil {
		return nil, fmt.Errorf("read server config failed: %w", err)
	}
	serverTuning, err := commonconfig.ReadServerTuningConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("read server tuning config failed: %w", err)
	}
	redisCfg, err := commonconfig.ReadRedisConfigFromEnv(
		[]string{"REGISTRY_REDIS_HOST", "REDIS_HOST"},
		[]string{"REGISTRY_REDIS_PORT", "REDIS_PORT"},
		[]string{"REGISTRY_REDIS_PASSWORD", "REDIS_PASSWORD"},
		commonconfig.DefaultRedisHost,
		commonconfig.DefaultRedisPort,
		"",
	)
	if err != nil {
		return nil, fmt.Errorf("read redis config failed: %w", err)
	}
	logCfg, err := commonconfig.ReadLogConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("read log config failed: %w", err)
	}
	telemetry, err := commonconfig.ReadTelemetryConfigFromEnv(ServiceName)
	if err != nil {
		return nil, fmt.Errorf("read telemetry config: %w", err)
	}
	registry, err := readRegistryConfig()
	if err != nil {
		return nil, err
	}
	node, err := readNodeConfig(server.Port)
	if err != nil {
		return nil, err
	}
	cluster, err := readClusterConfig()
	if err != nil {
		return nil, err
	}
	push, err := readPushConfig()
	if err != nil {
		return nil, err
	}
	delivery, err := readDeliveryConfig()
	if err != nil {
		return nil, err
	}
	audit, err := readAuditConfig()
	if err != nil {
		return nil, err
	}
	for name, prefix := range map[string]string{
		"CLUSTER_DIRECTORY_PREFIX": cluster.DirectoryPrefix,
		"DELIVERY_STREAM_PREFIX":   delivery.StreamPrefix,
	} {
		if insideKeyspace(registry.KeyPrefix, prefix) {
			return nil, fmt.Errorf("invalid %s=%q: overlaps registry keyspace %q", name, prefix, registry.KeyPrefix)
		}
	}

	return &Config{
		Server:       server,
		ServerTuning: serverTuning,
		Redis:        redisCfg,
		Log:          logCfg,
		Telemetry:    telemetry,
		Registry:     registry,
		Node:         node,
		Cluster:      cluster,
		Push:         push,
		Delivery:     delivery,
		Audit:        audit,
	}, nil
}

// insideKeyspace: cleanup 은 "{registryPrefix}:" 아래 키를 모두 지운다.
func insideKeyspace(registryPrefix, prefix string) bool {
	return prefix == registryPrefix || strings.HasPrefix(prefix, registryPrefix+":")
}

func readRegistryConfig() (RegistryConfig, error) {
	cleanup, err := commonconfig.BoolFromEnv("REGISTRY_CLEANUP_ON_START", false)
	if err != nil {
		return RegistryConfig{}, fmt.Errorf("read REGISTRY_CLEANUP_ON_START failed: %w", err)
	}
	pageSize, err := commonconfig.IntFromEnv("REGISTRY_SCAN_PAGE_SIZE", DefaultScanPageSize)
	if err != nil {
		return RegistryConfig{}, fmt.Errorf("read REGISTRY_SCAN_PAGE_SIZE failed: %w", err)
	}
	if pageSize <= 0 {
		return RegistryConfig{}, fmt.Errorf("invalid REGISTRY_SCAN_PAGE_SIZE: %d", pageSize)
	}
	rate, err := commonconfig.Float64FromEnv("REGISTRY_CLEANUP_PAGES_PER_SECOND", DefaultCleanupPagesPerSecond)
	if err != nil {
		return RegistryConfig{}, fmt.Errorf("read REGISTRY_CLEANUP_PAGES_PER_SECOND failed: %w", err)
	}
	if rate < 0 {
		return RegistryConfig{}, fmt.Errorf("invalid REGISTRY_CLEANUP_PAGES_PER_SECOND: %v", rate)
	}
	lockTTL, err := commonconfig.DurationSecondsFromEnv("REGISTRY_SWEEP_LOCK_TTL_SECONDS", int64(DefaultSweepLockTTL/time.Second))
	if err != nil {
		return RegistryConfig{}, fmt.Errorf("read REGISTRY_SWEEP_LOCK_TTL_SECONDS failed: %w", err)
	}

	prefix := strings.TrimSuffix(commonconfig.StringFromEnv("REGISTRY_KEY_PREFIX", DefaultKeyPrefix), ":")
	if prefix == "" {
		return RegistryConfig{}, fmt.Errorf("invalid REGISTRY_KEY_PREFIX: empty")
	}

	return RegistryConfig{
		KeyPrefix:             prefix,
		CleanupOnStart:        cleanup,
		ScanPageSize:          pageSize,
		CleanupPagesPerSecond: rate,
		SweepLockTTL:          lockTTL,
	}, nil
}

func readNodeConfig(serverPort int) (NodeConfig, error) {
	hostname, err := os.Hostname()
	if err != nil || strings.TrimSpace(hostname) == "" {
		hostname = "localhost"
	}

	frontend, err := commonconfig.BoolFromEnv("NODE_FRONTEND", true)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("read NODE_FRONTEND failed: %w", err)
	}
	heartbeat, err := commonconfig.DurationMillisFromEnv("NODE_HEARTBEAT_INTERVAL_MS", DefaultHeartbeatInterval.Milliseconds())
	if err != nil {
		return NodeConfig{}, fmt.Errorf("read NODE_HEARTBEAT_INTERVAL_MS failed: %w", err)
	}
	if heartbeat <= 0 {
		return NodeConfig{}, fmt.Errorf("invalid NODE_HEARTBEAT_INTERVAL_MS: %v", heartbeat)
	}
	staleAfter, err := commonconfig.DurationMillisFromEnv("NODE_STALE_AFTER_MS", DefaultStaleAfter.Milliseconds())
	if err != nil {
		return NodeConfig{}, fmt.Errorf("read NODE_STALE_AFTER_MS failed: %w", err)
	}
	if staleAfter <= heartbeat {
		return NodeConfig{}, fmt.Errorf("NODE_STALE_AFTER_MS (%v) must exceed heartbeat interval (%v)", staleAfter, heartbeat)
	}

	defaultAddr := "http://" + net.JoinHostPort(hostname, strconv.Itoa(serverPort))

	return NodeConfig{
		ServerID:          commonconfig.StringFromEnv("NODE_SERVER_ID", hostname),
		ServerType:        commonconfig.StringFromEnv("NODE_SERVER_TYPE", DefaultServerType),
		AdvertisedAddr:    strings.TrimSuffix(commonconfig.StringFromEnv("NODE_ADVERTISED_ADDR", defaultAddr), "/"),
		Frontend:          frontend,
		HeartbeatInterval: heartbeat,
		StaleAfter:        staleAfter,
	}, nil
}

func readClusterConfig() (ClusterConfig, error) {
	mode := strings.ToLower(commonconfig.StringFromEnv("CLUSTER_MODE", ClusterModeValkey))
	if mode != ClusterModeStatic && mode != ClusterModeValkey {
		return ClusterConfig{}, fmt.Errorf("invalid CLUSTER_MODE: %q", mode)
	}
	cacheTTL, err := commonconfig.DurationMillisFromEnv("CLUSTER_CACHE_TTL_MS", DefaultDirectoryCacheTTL.Milliseconds())
	if err != nil {
		return ClusterConfig{}, fmt.Errorf("read CLUSTER_CACHE_TTL_MS failed: %w", err)
	}
	cacheCap, err := commonconfig.IntFromEnv("CLUSTER_CACHE_CAPACITY", DefaultDirectoryCacheCap)
	if err != nil {
		return ClusterConfig{}, fmt.Errorf("read CLUSTER_CACHE_CAPACITY failed: %w", err)
	}

	return ClusterConfig{
		Mode:            mode,
		TopologyFile:    commonconfig.StringFromEnv("CLUSTER_TOPOLOGY_FILE", ""),
		DirectoryPrefix: commonconfig.StringFromEnv("CLUSTER_DIRECTORY_PREFIX", DefaultDirectoryPrefix),
		CacheTTL:        cacheTTL,
		CacheCapacity:   cacheCap,
	}, nil
}

func readPushConfig() (PushConfig, error) {
	concurrency, err := commonconfig.IntFromEnv("PUSH_CONCURRENCY", DefaultPushConcurrency)
	if err != nil {
		return PushConfig{}, fmt.Errorf("read PUSH_CONCURRENCY failed: %w", err)
	}
	if concurrency <= 0 {
		return PushConfig{}, fmt.Errorf("invalid PUSH_CONCURRENCY: %d", concurrency)
	}
	serverTimeout, err := commonconfig.DurationMillisFromEnv("PUSH_SERVER_TIMEOUT_MS", DefaultPushServerTimeout.Milliseconds())
	if err != nil {
		return PushConfig{}, fmt.Errorf("read PUSH_SERVER_TIMEOUT_MS failed: %w", err)
	}
	connectTimeout, err := commonconfig.DurationMillisFromEnv("PUSH_CONNECT_TIMEOUT_MS", DefaultPushConnectTimeout.Milliseconds())
	if err != nil {
		return PushConfig{}, fmt.Errorf("read PUSH_CONNECT_TIMEOUT_MS failed: %w", err)
	}
	http2Enabled, err := commonconfig.BoolFromEnv("PUSH_HTTP2_ENABLED", true)
	if err != nil {
		return PushConfig{}, fmt.Errorf("read PUSH_HTTP2_ENABLED failed: %w", err)
	}

	return PushConfig{
		Concurrency:    concurrency,
		ServerTimeout:  serverTimeout,
		ConnectTimeout: connectTimeout,
		HTTP2Enabled:   http2Enabled,
	}, nil
}

func readDeliveryConfig() (DeliveryConfig, error) {
	maxLen, err := commonconfig.Int64FromEnv("DELIVERY_STREAM_MAX_LEN", commonconfig.DefaultStreamMaxLen)
	if err != nil {
		return DeliveryConfig{}, fmt.Errorf("read DELIVERY_STREAM_MAX_LEN failed: %w", err)
	}
	return DeliveryConfig{
		StreamPrefix: commonconfig.StringFromEnv("DELIVERY_STREAM_PREFIX", DefaultDeliveryStreamPrefix),
		MaxLen:       maxLen,
	}, nil
}

func readAuditConfig() (AuditConfig, error) {
	enabled, err := commonconfig.BoolFromEnv("AUDIT_ENABLED", false)
	if err != nil {
		return AuditConfig{}, fmt.Errorf("read AUDIT_ENABLED failed: %w", err)
	}
	driver := strings.ToLower(commonconfig.StringFromEnv("AUDIT_DRIVER", AuditDriverPostgres))
	if driver != AuditDriverPostgres && driver != AuditDriverSQLite {
		return AuditConfig{}, fmt.Errorf("invalid AUDIT_DRIVER: %q", driver)
	}
	port, err := commonconfig.IntFromEnv("DB_PORT", 5432)
	if err != nil {
		return AuditConfig{}, fmt.Errorf("read DB_PORT failed: %w", err)
	}

	return AuditConfig{
		Enabled:    enabled,
		Driver:     driver,
		SQLitePath: commonconfig.StringFromEnv("AUDIT_SQLITE_PATH", "channel_registry_audit.db"),
		Postgres: PostgresConfig{
			Host:     commonconfig.StringFromEnv("DB_HOST", "localhost"),
			Port:     port,
			Name:     commonconfig.StringFromEnv("DB_NAME", "channel_registry"),
			User:     commonconfig.StringFromEnv("DB_USER", "channel_registry_app"),
			Password: commonconfig.StringFromEnv("DB_PASSWORD", ""),
			SSLMode:  commonconfig.StringFromEnv("DB_SSLMODE", "disable"),
		},
	}, nil
}
