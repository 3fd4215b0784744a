package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/bootstrap"
	commonconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/config"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/health"
	rapp "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/app"
	rconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/config"
)

// Version: 빌드 시 ldflags로 주입됨 (예: -ldflags="-X main.Version=1.0.0")
var Version = "dev"

func main() {
	health.Init(Version)

	logger := bootstrap.NewLogger()
	slog.SetDefault(logger)

	finalLogger, err := bootstrap.RunServiceEntrypoint(context.Background(), logger, bootstrap.Entrypoint[rconfig.Config]{
		LogFileName:     "channel-registry.log",
		LoadConfig:      rconfig.LoadFromEnv,
		LogConfig:       func(cfg *rconfig.Config) commonconfig.LogConfig { return cfg.Log },
		TelemetryConfig: func(cfg *rconfig.Config) commonconfig.TelemetryConfig { return cfg.Telemetry },
		Initialize:      rapp.Initialize,
	})
	if err != nil {
		logger = finalLogger
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}
