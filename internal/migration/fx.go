package migration

import (
	"strings"

	"github.com/keyforge/keyforge/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Startup migrations are postgres-only; other dialects manage
		// schema out of band.
		if !strings.EqualFold(cfg.DBType, "postgres") {
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
