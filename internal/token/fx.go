package token

import (
	"github.com/keyforge/keyforge/internal/token/service"
	"go.uber.org/fx"
)

var Module = fx.Module("token.codec",
	fx.Provide(service.NewKeyPair),
	fx.Provide(service.New),
)
