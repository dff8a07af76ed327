package coupon

import (
	"github.com/keyforge/keyforge/internal/coupon/repository"
	"github.com/keyforge/keyforge/internal/coupon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("coupon.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
