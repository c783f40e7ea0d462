package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
)

// ErrVersionConflict is returned by SaveVersioned when the stored version no
// longer matches the one the caller loaded.
var ErrVersionConflict = errors.New("cart version conflict")

// activeOwnerIndex guards one active cart per owner.
const activeOwnerIndex = "ux_carts_active_owner"

var savedColumns = []string{
	"status",
	"version",
	"coupon",
	"details",
	"subtotal_cents",
	"discount_cents",
	"tax_cents",
	"shipping_cents",
	"total_cents",
	"merged_into_id",
	"converted_order_id",
	"last_mutated_at",
	"expires_at",
}

// Repository persists cart aggregates.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the cart and its items.
func (r *Repository) Create(ctx context.Context, record *models.CartRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CartRecord, error) {
	var record models.CartRecord
	err := r.withItems(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindActiveByOwner returns the owner's active cart.
func (r *Repository) FindActiveByOwner(ctx context.Context, kind enums.OwnerKind, value string) (*models.CartRecord, error) {
	var record models.CartRecord
	err := r.withItems(ctx).
		Where("owner_kind = ? AND owner_value = ? AND status = ?", kind, value, enums.CartStatusActive).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindLatestByOwner returns the owner's most recent cart in any status.
func (r *Repository) FindLatestByOwner(ctx context.Context, kind enums.OwnerKind, value string) (*models.CartRecord, error) {
	var record models.CartRecord
	err := r.withItems(ctx).
		Where("owner_kind = ? AND owner_value = ?", kind, value).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// SaveVersioned writes record if the stored version still equals
// expectedVersion, then replaces the item rows.
func (r *Repository) SaveVersioned(ctx context.Context, record *models.CartRecord, expectedVersion int64) error {
	row := *record
	row.Items = nil

	res := r.db.WithContext(ctx).
		Model(&row).
		Where("version = ?", expectedVersion).
		Select(savedColumns).
		Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}

	if err := r.db.WithContext(ctx).Where("cart_id = ?", record.ID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	if len(record.Items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&record.Items).Error
}

// ExpireStale flips up to limit active carts whose expires_at has passed and
// returns them with their new status and version.
func (r *Repository) ExpireStale(ctx context.Context, now time.Time, limit int) ([]models.CartRecord, error) {
	var stale []models.CartRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND expires_at <= ?", enums.CartStatusActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&stale).Error
	if err != nil || len(stale) == 0 {
		return nil, err
	}

	ids := make([]uuid.UUID, len(stale))
	for i := range stale {
		ids[i] = stale[i].ID
	}
	err = r.db.WithContext(ctx).
		Model(&models.CartRecord{}).
		Where("id IN ? AND status = ?", ids, enums.CartStatusActive).
		Updates(map[string]any{
			"status":          enums.CartStatusExpired,
			"version":         gorm.Expr("version + 1"),
			"last_mutated_at": now,
		}).Error
	if err != nil {
		return nil, err
	}
	for i := range stale {
		stale[i].Status = enums.CartStatusExpired
		stale[i].Version++
		stale[i].LastMutatedAt = now
	}
	return stale, nil
}

func (r *Repository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}
