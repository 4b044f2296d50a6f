package migration

import (
	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/seed"
	"github.com/smallbiznis/nodeboss/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBAutoMigrate {
			if db.IsPostgres(conn) {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if _, err := Apply(sqlDB, log.Named("migration")); err != nil {
					return err
				}
			} else {
				log.Warn("auto migrate only supports postgres; schema must be provisioned",
					zap.String("db_type", cfg.DBType),
				)
			}
		}

		return seed.Bootstrap(conn, seed.Options{
			OrgName:       cfg.DefaultOrgName,
			AdminEmail:    cfg.BootstrapAdminEmail,
			AdminPassword: cfg.BootstrapAdminPassword,
		})
	}),
)
