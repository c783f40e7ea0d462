package bootstrap

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/cartcore-backend/internal/cart"
	"github.com/angelmondragon/cartcore-backend/internal/catalog"
	"github.com/angelmondragon/cartcore-backend/internal/coupons"
	"github.com/angelmondragon/cartcore-backend/internal/rates"
	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/db"
	"github.com/angelmondragon/cartcore-backend/pkg/idempotency"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
	"github.com/angelmondragon/cartcore-backend/pkg/metrics"
	"github.com/angelmondragon/cartcore-backend/pkg/outbox"
)

// CartDeps are the shared clients the cart manager is built from.
type CartDeps struct {
	Config *config.Config
	DB     *db.Client
	Claims idempotency.Store
	Logger *logger.Logger
	// Registerer receives the cart metrics; nil disables them.
	Registerer prometheus.Registerer
	// SweepBatch overrides the expiry batch from config when positive.
	SweepBatch int
}

// CartService assembles the cart manager with its postgres-backed
// collaborators.
func CartService(deps CartDeps) (cart.Service, error) {
	if deps.Config == nil || deps.DB == nil || deps.Claims == nil || deps.Logger == nil {
		return nil, fmt.Errorf("cart deps incomplete")
	}
	conn := deps.DB.DB()

	engine, err := coupons.NewEngine(coupons.NewStore(conn), nil)
	if err != nil {
		return nil, fmt.Errorf("coupon engine: %w", err)
	}
	provider, err := rates.NewFlatProvider(deps.Config.Rates)
	if err != nil {
		return nil, fmt.Errorf("rates provider: %w", err)
	}
	claims, err := idempotency.NewManager(deps.Claims, deps.Config.Cart.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency manager: %w", err)
	}

	batch := deps.SweepBatch
	if batch <= 0 {
		batch = deps.Config.Cron.ExpiryBatchMax
	}

	return cart.NewService(cart.ServiceParams{
		Repo:       cart.NewRepository(conn),
		Tx:         deps.DB,
		Catalog:    catalog.NewRepository(conn),
		Coupons:    engine,
		Rates:      provider,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), deps.Logger),
		Claims:     claims,
		Logger:     deps.Logger,
		Observer:   metrics.NewCartMetrics(deps.Registerer),
		Config:     deps.Config.Cart,
		SweepBatch: batch,
		Now:        func() time.Time { return time.Now().UTC() },
	})
}
