package license

import (
	"github.com/keyforge/keyforge/internal/license/repository"
	"github.com/keyforge/keyforge/internal/license/service"
	"go.uber.org/fx"
)

var Module = fx.Module("license.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
