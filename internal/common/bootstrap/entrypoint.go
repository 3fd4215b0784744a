package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	commonconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/config"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/telemetry"
)

// ConfigLoader: 설정을 로드하는 함수 타입
type ConfigLoader[C any] func() (*C, error)

// LogConfigGetter: 설정에서 로깅 설정을 추출하는 함수 타입
type LogConfigGetter[C any] func(*C) commonconfig.LogConfig

// TelemetryConfigGetter: 설정에서 OpenTelemetry 설정을 추출하는 함수 타입
type TelemetryConfigGetter[C any] func(*C) commonconfig.TelemetryConfig

// AppInitializer: 애플리케이션 초기화 함수 타입 (Runner 와 정리 함수 반환)
type AppInitializer[C any] func(context.Context, *C, *slog.Logger) (*Runner, func(), error)

// Entrypoint: 서비스 시작에 필요한 훅 모음
type Entrypoint[C any] struct {
	LogFileName     string
	LoadConfig      ConfigLoader[C]
	LogConfig       LogConfigGetter[C]
	TelemetryConfig TelemetryConfigGetter[C]
	Initialize      AppInitializer[C]
}

// RunServiceEntrypoint: 서비스 공통 시작점.
// .env 로드, 설정 로드, 텔레메트리/로거 설정, 앱 초기화 및 실행을 담당합니다.
// 반환되는 로거는 실패 로그를 남길 때 사용합니다.
func RunServiceEntrypoint[C any](ctx context.Context, logger *slog.Logger, ep Entrypoint[C]) (*slog.Logger, error) {
	if err := commonconfig.LoadDotenvIfPresent(); err != nil {
		return logger, fmt.Errorf("load dotenv failed: %w", err)
	}

	cfg, err := ep.LoadConfig()
	if err != nil {
		return logger, fmt.Errorf("load config failed: %w", err)
	}

	var telemetryCfg commonconfig.TelemetryConfig
	if ep.TelemetryConfig != nil {
		telemetryCfg = ep.TelemetryConfig(cfg)
	}
	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return logger, fmt.Errorf("init telemetry failed: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if shutdownErr := provider.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("telemetry_shutdown_failed", "err", shutdownErr)
		}
	}()
	if provider.IsEnabled() {
		logger = NewConsoleLogger(true)
		logger.Info("telemetry_enabled",
			"endpoint", telemetryCfg.OTLPEndpoint,
			"sample_rate", telemetryCfg.SampleRate,
		)
	}

	var logCfg commonconfig.LogConfig
	if ep.LogConfig != nil {
		logCfg = ep.LogConfig(cfg)
	}
	if strings.TrimSpace(logCfg.Dir) != "" {
		fileLogger, logErr := EnableFileLogging(logCfg, ep.LogFileName, provider.IsEnabled())
		if logErr != nil {
			return logger, fmt.Errorf("enable file logging failed: %w", logErr)
		}
		if fileLogger != nil {
			logger = fileLogger
		}
	}

	runner, cleanup, err := ep.Initialize(ctx, cfg, logger)
	if err != nil {
		return logger, fmt.Errorf("initialize app failed: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := runner.Run(ctx); err != nil {
		return logger, fmt.Errorf("run app failed: %w", err)
	}
	return logger, nil
}
