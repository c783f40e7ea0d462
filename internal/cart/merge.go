package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

// Merge failure steps reported in error details.
const (
	MergeStepValidate = "validate"
	MergeStepCatalog  = "catalog"
	MergeStepCoupon   = "coupon"
	MergeStepRates    = "rates"
	MergeStepCommit   = "commit"
)

// NoticeQuantityClamped marks a summed quantity that was capped at MaxQuantity.
const NoticeQuantityClamped = "quantity_clamped"

type MergeInput struct {
	CustomerID     string
	SessionToken   string
	IdempotencyKey string
}

// MergeNotice reports an adjustment made while merging.
type MergeNotice struct {
	Code      string    `json:"code"`
	ItemID    uuid.UUID `json:"itemId"`
	ProductID string    `json:"productId"`
	VariantID string    `json:"variantId,omitempty"`
	Requested int       `json:"requested"`
	Applied   int       `json:"applied"`
}

type MergeResult struct {
	Cart         *Cart
	SourceCartID uuid.UUID
	Notices      []MergeNotice
}

// Merge folds the guest cart behind in.SessionToken into the customer's
// active cart. Either both carts commit or neither does.
func (s *service) Merge(ctx context.Context, in MergeInput) (*MergeResult, error) {
	customer, err := NewCustomerOwner(in.CustomerID)
	if err != nil {
		return nil, mergeFailure(MergeStepValidate, err)
	}
	session, err := NewSessionOwner(in.SessionToken)
	if err != nil {
		return nil, mergeFailure(MergeStepValidate, err)
	}
	ctx = s.logg.WithOperation(s.logg.WithCustomerID(ctx, customer.Value()), opMerge)

	scope := "customer:" + customer.Value()
	claimed, err := s.claims.Claim(ctx, scope, opMerge, in.IdempotencyKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	if !claimed {
		s.logg.Info(ctx, "duplicate cart merge skipped")
		target, err := s.ensureCustomerCart(ctx, customer, s.currency)
		if err != nil {
			return nil, err
		}
		return &MergeResult{Cart: target}, nil
	}

	var result *MergeResult
	err = s.retry(ctx, opMerge, func(ctx context.Context) error {
		res, err := s.mergeOnce(ctx, customer, session)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if relErr := s.claims.Release(ctx, scope, opMerge, in.IdempotencyKey); relErr != nil {
			s.logg.Error(ctx, "failed to release idempotency claim", relErr)
		}
		if pkgerrors.Is(err, pkgerrors.CodeConflict) {
			return nil, mergeFailure(MergeStepCommit, err)
		}
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"cart_id":        result.Cart.ID.String(),
		"source_cart_id": result.SourceCartID.String(),
		"notices":        len(result.Notices),
	})
	s.logg.Info(logCtx, "guest cart merged")
	return result, nil
}

func (s *service) mergeOnce(ctx context.Context, customer, session Owner) (*MergeResult, error) {
	guestRec, err := s.repo.FindLatestByOwner(ctx, session.Kind(), session.Value())
	if err != nil {
		if isNotFound(err) {
			return nil, mergeFailure(MergeStepValidate, pkgerrors.New(pkgerrors.CodeNotFound, "guest cart not found"))
		}
		return nil, mergeFailure(MergeStepValidate, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart"))
	}
	if guestRec.Status == enums.CartStatusDeleted {
		return nil, mergeFailure(MergeStepValidate, pkgerrors.New(pkgerrors.CodeNotFound, "guest cart not found"))
	}
	guest, err := fromRecord(guestRec)
	if err != nil {
		return nil, mergeFailure(MergeStepValidate, err)
	}
	// a closed guest cart must fail before a customer cart is created for it
	now := s.clock()
	if err := s.checkOpen(ctx, guest, now); err != nil {
		return nil, mergeFailure(MergeStepValidate, err)
	}
	target, err := s.ensureCustomerCart(ctx, customer, guest.Currency)
	if err != nil {
		return nil, mergeFailure(MergeStepValidate, err)
	}

	guest, target, err = s.loadPair(ctx, guest.ID, target.ID)
	if err != nil {
		return nil, mergeFailure(MergeStepValidate, err)
	}
	if err := s.checkMergeable(ctx, guest, target, now); err != nil {
		return nil, mergeFailure(MergeStepValidate, err)
	}

	next := target.clone()
	notices, err := s.mergeItems(ctx, guest, next, now)
	if err != nil {
		return nil, mergeFailure(MergeStepCatalog, err)
	}

	if next.Coupon == nil && guest.Coupon != nil {
		rule, ok, err := s.coupons.Revalidate(ctx, guest.Coupon.Code, couponSnapshot(next))
		if err != nil {
			return nil, mergeFailure(MergeStepCoupon, err)
		}
		if ok {
			next.Coupon = appliedFromRule(rule)
		}
	}

	if err := recompute(ctx, s.rates, next); err != nil {
		return nil, mergeFailure(MergeStepRates, err)
	}
	next.touch(now, s.ttl)

	closed := guest.clone()
	closed.Status = enums.CartStatusMerged
	closed.MergedIntoID = &next.ID
	closed.Version++
	closed.LastMutatedAt = now

	events := mergeEvents(closed, next, actorFor(Auth{CustomerID: customer.Value()}))
	first, second := closed, next
	firstVersion, secondVersion := guest.Version, target.Version
	if !idLess(closed.ID, next.ID) {
		first, second = next, closed
		firstVersion, secondVersion = target.Version, guest.Version
	}
	if err := s.saveAll(ctx, []int64{firstVersion, secondVersion}, events, first, second); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		return nil, mergeFailure(MergeStepCommit, err)
	}
	return &MergeResult{Cart: next, SourceCartID: guest.ID, Notices: notices}, nil
}

// loadPair reads both carts in lexicographic id order so concurrent merges
// touching the same carts always lock in the same sequence.
func (s *service) loadPair(ctx context.Context, guestID, targetID uuid.UUID) (*Cart, *Cart, error) {
	if guestID == targetID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot merge a cart into itself")
	}
	order := []uuid.UUID{guestID, targetID}
	if !idLess(guestID, targetID) {
		order = []uuid.UUID{targetID, guestID}
	}
	loaded := make(map[uuid.UUID]*Cart, 2)
	for _, id := range order {
		c, err := s.load(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		loaded[id] = c
	}
	return loaded[guestID], loaded[targetID], nil
}

func (s *service) checkMergeable(ctx context.Context, guest, target *Cart, now time.Time) error {
	for _, c := range []*Cart{guest, target} {
		if err := s.checkOpen(ctx, c, now); err != nil {
			return err
		}
	}
	if guest.Currency != target.Currency {
		return pkgerrors.New(pkgerrors.CodeValidation, "carts use different currencies").
			WithDetails(map[string]any{
				"guestCurrency":    guest.Currency.String(),
				"customerCurrency": target.Currency.String(),
			})
	}
	return nil
}

// checkOpen rejects a cart that is terminal or past its expiry.
func (s *service) checkOpen(ctx context.Context, c *Cart, now time.Time) error {
	if c.expired(now) {
		s.expireLazily(ctx, c)
		return terminalError(enums.CartStatusExpired)
	}
	if err := terminalError(c.Status); err != nil {
		return withTerminalDetails(err, c)
	}
	return nil
}

// mergeItems adds every guest line to target. Matching identities sum and
// are clamped at MaxQuantity; other lines are appended with fresh ids and
// their original price snapshot.
func (s *service) mergeItems(ctx context.Context, guest, target *Cart, now time.Time) ([]MergeNotice, error) {
	var notices []MergeNotice
	for _, gi := range guest.Items {
		idx := target.findIdentity(gi.ProductID, gi.VariantID, gi.AttributesHash)
		requested := gi.Quantity
		if idx >= 0 {
			requested += target.Items[idx].Quantity
		}
		applied := requested
		if applied > MaxQuantity {
			applied = MaxQuantity
		}
		if _, err := checkAvailability(ctx, s.catalog, target, gi.ProductID, gi.VariantID, applied); err != nil {
			return nil, err
		}

		var itemID uuid.UUID
		if idx >= 0 {
			target.Items[idx].Quantity = applied
			itemID = target.Items[idx].ID
		} else {
			item := gi
			item.ID = uuid.New()
			item.Attributes = copyAttributes(gi.Attributes)
			item.Quantity = applied
			item.DiscountCents = 0
			if item.AddedAt.IsZero() {
				item.AddedAt = now
			}
			target.Items = append(target.Items, item)
			itemID = item.ID
		}
		if applied != requested {
			notices = append(notices, MergeNotice{
				Code:      NoticeQuantityClamped,
				ItemID:    itemID,
				ProductID: gi.ProductID,
				VariantID: gi.VariantID,
				Requested: requested,
				Applied:   applied,
			})
		}
	}
	return notices, nil
}

// mergeFailure wraps err with the step it failed at, keeping its code.
func mergeFailure(step string, err error) error {
	details := map[string]any{"step": step}
	if typed := pkgerrors.As(err); typed != nil {
		if inner, ok := typed.Details().(map[string]any); ok {
			if _, tagged := inner["step"]; tagged {
				return err
			}
			for k, v := range inner {
				details[k] = v
			}
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeOf(err), err, "cart merge failed at "+step).WithDetails(details)
}

func idLess(a, b uuid.UUID) bool {
	return a.String() < b.String()
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
