package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/db"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

func TestAutoMigrateModelsOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:automigrate?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, AutoMigrateModels(conn))
	// running twice must be harmless
	require.NoError(t, AutoMigrateModels(conn))

	for _, table := range []string{"carts", "cart_items", "coupons", "catalog_variants", "outbox_events", "outbox_dlq"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex("carts", "ux_carts_active_owner"))
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvProd},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true, UseSQLite: true},
	}
	// a nil client would panic if anything ran
	err := MaybeRunDev(context.Background(), cfg, logger.New(logger.Options{ServiceName: "test"}), (*db.Client)(nil))
	assert.NoError(t, err)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := embedded.ReadDir(embeddedRoot)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 5)
}
