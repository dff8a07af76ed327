package activation

import (
	"github.com/keyforge/keyforge/internal/activation/repository"
	"github.com/keyforge/keyforge/internal/activation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("activation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(NewSweeper),
	fx.Invoke(runSweeper),
)
