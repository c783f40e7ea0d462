package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/db"
	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

// partialIndexes are not expressible through gorm tags. SQLite and Postgres
// share the syntax.
var partialIndexes = []string{
	"CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_active_owner ON carts (owner_kind, owner_value) WHERE status = 'active'",
	"CREATE INDEX IF NOT EXISTS ix_carts_active_expires ON carts (expires_at) WHERE status = 'active'",
}

// MaybeRunDev migrates the database on boot in dev when the feature flag is
// enabled. SQLite databases get the schema from the gorm models because the
// SQL migrations target Postgres.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "sqlite": cfg.FeatureFlags.UseSQLite})

	if cfg.FeatureFlags.UseSQLite {
		logg.Info(ctx, "migrating sqlite schema from models")
		if err := AutoMigrateModels(client.DB().WithContext(ctx)); err != nil {
			return fmt.Errorf("auto-migrating models: %w", err)
		}
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, EmbeddedDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}

// AutoMigrateModels creates the cart schema from the gorm models.
func AutoMigrateModels(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.CatalogVariant{},
		&models.Coupon{},
		&models.CartRecord{},
		&models.CartItem{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	); err != nil {
		return err
	}
	for _, stmt := range partialIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
