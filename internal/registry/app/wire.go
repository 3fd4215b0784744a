//go:build wireinject

package app

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/bootstrap"
	rconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/config"
)

//go:generate go run github.com/google/wire/cmd/wire@v0.7.0
func Initialize(
	ctx context.Context,
	cfg *rconfig.Config,
	logger *slog.Logger,
) (*bootstrap.Runner, func(), error) {
	wire.Build(
		registryProviderSet,
	)
	return nil, nil, nil
}
