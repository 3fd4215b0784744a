package config

// Valkey 공통 기본값.
const (
	// DefaultRedisHost: Valkey 기본 호스트
	DefaultRedisHost = "localhost"
	// DefaultRedisPort: Valkey 기본 포트
	DefaultRedisPort = 6379
)

// 스트림 공통 상수.
const (
	// DefaultStreamMaxLen: XADD MAXLEN ~ 기본값
	DefaultStreamMaxLen = 1000
)

// DefaultOTLPEndpoint: OTLP gRPC 수집기 기본 주소
const DefaultOTLPEndpoint = "jaeger:4317"
