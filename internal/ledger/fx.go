package ledger

import (
	"github.com/keyforge/keyforge/internal/ledger/repository"
	"github.com/keyforge/keyforge/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
