package config

import "time"

// ServiceName: 텔레메트리/로그 파일에 사용되는 서비스 이름
const ServiceName = "channel-registry"

// DefaultServerPort: HTTP API 기본 포트
const DefaultServerPort = 40300

// 레지스트리 키스페이스/정리 기본값.
const (
	DefaultKeyPrefix             = "chreg"
	DefaultScanPageSize          = 100
	DefaultCleanupPagesPerSecond = 50
	DefaultSweepLockTTL          = 60 * time.Second
)

// 클러스터 디렉터리 관련 상수 목록이다.
const (
	ClusterModeStatic = "static"
	ClusterModeValkey = "valkey"

	DefaultDirectoryPrefix   = "chreg-dir"
	DefaultServerType        = "connector"
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultStaleAfter        = 15 * time.Second
	DefaultDirectoryCacheTTL = 2 * time.Second
	DefaultDirectoryCacheCap = 64
)

// 팬아웃 푸시 기본값.
const (
	DefaultPushConcurrency    = 16
	DefaultPushServerTimeout  = 3 * time.Second
	DefaultPushConnectTimeout = time.Second
)

// 수신측 스트림 전달 기본값.
const (
	DefaultDeliveryStreamPrefix = "chreg-push"
)

// 감사 로그 드라이버 목록이다.
const (
	AuditDriverPostgres = "postgres"
	AuditDriverSQLite   = "sqlite"
)
