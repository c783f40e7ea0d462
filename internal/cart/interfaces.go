package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartcore-backend/internal/coupons"
	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	"github.com/angelmondragon/cartcore-backend/pkg/outbox"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	Create(ctx context.Context, record *models.CartRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CartRecord, error)
	FindActiveByOwner(ctx context.Context, kind enums.OwnerKind, value string) (*models.CartRecord, error)
	FindLatestByOwner(ctx context.Context, kind enums.OwnerKind, value string) (*models.CartRecord, error)
	SaveVersioned(ctx context.Context, record *models.CartRecord, expectedVersion int64) error
	ExpireStale(ctx context.Context, now time.Time, limit int) ([]models.CartRecord, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	EmitAll(ctx context.Context, tx *gorm.DB, events []outbox.DomainEvent) error
}

type couponValidator interface {
	Validate(ctx context.Context, code string, snap coupons.Snapshot, attachedCode string) (*coupons.Rule, error)
	Revalidate(ctx context.Context, code string, snap coupons.Snapshot) (*coupons.Rule, bool, error)
	RecordRedemption(ctx context.Context, code string) error
}

type claimer interface {
	Claim(ctx context.Context, scope, op, key string) (bool, error)
	Release(ctx context.Context, scope, op, key string) error
}

// Observer receives mutation outcomes for metrics.
type Observer interface {
	MutationConflict(op string)
	MutationCommitted(op string, attempts int)
}

type noopObserver struct{}

func (noopObserver) MutationConflict(string)       {}
func (noopObserver) MutationCommitted(string, int) {}
