package cart

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartcore-backend/internal/catalog"
	"github.com/angelmondragon/cartcore-backend/internal/rates"
	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/db"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
	"github.com/angelmondragon/cartcore-backend/pkg/outbox"
)

const (
	opUpdateDetails = "update_details"
	opAddItem       = "add_item"
	opUpdateItem    = "update_item"
	opRemoveItem    = "remove_item"
	opClearItems    = "clear_items"
	opApplyCoupon   = "apply_coupon"
	opRemoveCoupon  = "remove_coupon"
	opDelete        = "delete"
	opMerge         = "merge"
	opConvert       = "convert"
	opExpire        = "expire"

	defaultSweepBatch = 500
	createAttempts    = 3
)

// Service is the cart aggregate manager.
type Service interface {
	CreateGuest(ctx context.Context, currency string) (*Cart, error)
	ResolveCustomerCart(ctx context.Context, customerID, currency string) (*Cart, error)
	Fetch(ctx context.Context, cartID uuid.UUID, auth Auth) (*Cart, error)
	FetchBySession(ctx context.Context, token string) (*Cart, error)
	UpdateDetails(ctx context.Context, in UpdateDetailsInput) (*Cart, error)
	AddItem(ctx context.Context, in AddItemInput) (*Cart, error)
	UpdateItem(ctx context.Context, in UpdateItemInput) (*Cart, error)
	RemoveItem(ctx context.Context, in RemoveItemInput) (*Cart, error)
	ClearItems(ctx context.Context, in Request) (*Cart, error)
	ApplyCoupon(ctx context.Context, in ApplyCouponInput) (*Cart, error)
	RemoveCoupon(ctx context.Context, in Request) (*Cart, error)
	Delete(ctx context.Context, in Request) error
	Merge(ctx context.Context, in MergeInput) (*MergeResult, error)
	MarkConverted(ctx context.Context, in ConvertInput) (*Cart, error)
	ExpireSweep(ctx context.Context, now time.Time) (int, error)
}

// Request identifies the cart a mutation targets and who is asking.
type Request struct {
	CartID         uuid.UUID
	Auth           Auth
	IdempotencyKey string
}

type AddItemInput struct {
	Request
	ProductID  string
	VariantID  string
	Quantity   int
	Attributes map[string]string
}

// UpdateItemInput changes the fields that are set. A non-nil Attributes
// pointing at an empty map clears the attributes.
type UpdateItemInput struct {
	Request
	ItemID     uuid.UUID
	Quantity   *int
	Attributes *map[string]string
}

type RemoveItemInput struct {
	Request
	ItemID uuid.UUID
}

type UpdateDetailsInput struct {
	Request
	Email          *string
	ShippingMethod *string
	Notes          *string
}

type ApplyCouponInput struct {
	Request
	Code string
}

// ConvertInput is sent by the order service once an order was placed from
// the cart.
type ConvertInput struct {
	CartID         uuid.UUID
	OrderID        string
	IdempotencyKey string
}

// ServiceParams wires the cart manager.
type ServiceParams struct {
	Repo     CartRepository
	Tx       txRunner
	Catalog  catalog.Lookup
	Coupons  couponValidator
	Rates    rates.Provider
	Outbox   eventEmitter
	Claims   claimer
	Logger   *logger.Logger
	Observer Observer
	Config   config.CartConfig
	// SweepBatch caps the carts one ExpireSweep call flips.
	SweepBatch int
	Now        func() time.Time
}

type service struct {
	repo        CartRepository
	tx          txRunner
	catalog     catalog.Lookup
	coupons     couponValidator
	rates       rates.Provider
	outbox      eventEmitter
	claims      claimer
	logg        *logger.Logger
	observer    Observer
	validate    *validator.Validate
	ttl         time.Duration
	maxAttempts int
	backoff     time.Duration
	currency    enums.Currency
	sweepBatch  int
	now         func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog lookup required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon engine required")
	}
	if params.Rates == nil {
		return nil, fmt.Errorf("rates provider required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Claims == nil {
		return nil, fmt.Errorf("idempotency claims required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Config.TTL <= 0 {
		return nil, fmt.Errorf("cart ttl must be positive")
	}
	currency, err := enums.ParseCurrency(params.Config.DefaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("default currency: %w", err)
	}

	svc := &service{
		repo:        params.Repo,
		tx:          params.Tx,
		catalog:     params.Catalog,
		coupons:     params.Coupons,
		rates:       params.Rates,
		outbox:      params.Outbox,
		claims:      params.Claims,
		logg:        params.Logger,
		observer:    params.Observer,
		validate:    validator.New(),
		ttl:         params.Config.TTL,
		maxAttempts: params.Config.MaxAttempts,
		backoff:     params.Config.RetryBackoff,
		currency:    currency,
		sweepBatch:  params.SweepBatch,
		now:         params.Now,
	}
	if svc.observer == nil {
		svc.observer = noopObserver{}
	}
	if svc.maxAttempts < 1 {
		svc.maxAttempts = 1
	}
	if svc.sweepBatch <= 0 {
		svc.sweepBatch = defaultSweepBatch
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// CreateGuest opens an active cart owned by a fresh session token.
func (s *service) CreateGuest(ctx context.Context, currency string) (*Cart, error) {
	cur, err := s.resolveCurrency(currency)
	if err != nil {
		return nil, err
	}
	for attempt := 1; attempt <= createAttempts; attempt++ {
		token, err := NewSessionToken()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate session token")
		}
		c, err := s.create(ctx, SessionOwner{Token: token}, cur, nil)
		if err == nil {
			s.logg.Info(s.logg.WithCartID(ctx, c.ID.String()), "guest cart created")
			return c, nil
		}
		if !db.IsUniqueViolation(err, activeOwnerIndex) {
			return nil, err
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a session token")
}

// ResolveCustomerCart returns the customer's active cart, creating one in
// currency when none exists. An active cart that has outlived its TTL is
// expired and replaced.
func (s *service) ResolveCustomerCart(ctx context.Context, customerID, currency string) (*Cart, error) {
	owner, err := NewCustomerOwner(customerID)
	if err != nil {
		return nil, err
	}
	cur, err := s.resolveCurrency(currency)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCustomerID(ctx, owner.Value())
	return s.ensureCustomerCart(ctx, owner, cur)
}

func (s *service) ensureCustomerCart(ctx context.Context, owner Owner, cur enums.Currency) (*Cart, error) {
	for attempt := 1; attempt <= createAttempts; attempt++ {
		rec, err := s.repo.FindActiveByOwner(ctx, owner.Kind(), owner.Value())
		switch {
		case err == nil:
			existing, err := fromRecord(rec)
			if err != nil {
				return nil, err
			}
			if !existing.expired(s.clock()) {
				return existing, nil
			}
			s.expireLazily(ctx, existing)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer cart")
		}

		created, err := s.create(ctx, owner, cur, actorFor(Auth{CustomerID: owner.Value()}))
		if err == nil {
			s.logg.Info(s.logg.WithCartID(ctx, created.ID.String()), "customer cart created")
			return created, nil
		}
		if !db.IsUniqueViolation(err, activeOwnerIndex) {
			return nil, err
		}
		// lost the race to a concurrent resolve; load theirs
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "customer cart was modified concurrently")
}

func (s *service) create(ctx context.Context, owner Owner, cur enums.Currency, actor *outbox.ActorRef) (*Cart, error) {
	now := s.clock()
	c := &Cart{
		ID:            uuid.New(),
		Owner:         owner,
		Currency:      cur,
		Status:        enums.CartStatusActive,
		Version:       1,
		CreatedAt:     now,
		LastMutatedAt: now,
		ExpiresAt:     now.Add(s.ttl),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, toRecord(c)); err != nil {
			return err
		}
		return s.outbox.EmitAll(ctx, tx, []outbox.DomainEvent{cartEvent(enums.EventCartCreated, c, actor, nil)})
	})
	if err != nil {
		if db.IsUniqueViolation(err, activeOwnerIndex) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return c, nil
}

// Fetch returns the cart if auth owns it. A deleted cart reads as not found;
// a cart past its TTL flips to expired and reads as expired.
func (s *service) Fetch(ctx context.Context, cartID uuid.UUID, auth Auth) (*Cart, error) {
	c, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := readError(c.Status); err != nil {
		return nil, err
	}
	if err := authorize(c, auth); err != nil {
		return nil, err
	}
	return s.checkReadable(ctx, c)
}

// FetchBySession returns the latest cart issued to a session token.
func (s *service) FetchBySession(ctx context.Context, token string) (*Cart, error) {
	owner, err := NewSessionOwner(token)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.FindLatestByOwner(ctx, owner.Kind(), owner.Value())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	c, err := fromRecord(rec)
	if err != nil {
		return nil, err
	}
	if err := readError(c.Status); err != nil {
		return nil, err
	}
	return s.checkReadable(ctx, c)
}

func (s *service) checkReadable(ctx context.Context, c *Cart) (*Cart, error) {
	if c.expired(s.clock()) {
		s.expireLazily(ctx, c)
		return nil, terminalError(enums.CartStatusExpired)
	}
	if c.Status == enums.CartStatusExpired {
		return nil, terminalError(enums.CartStatusExpired)
	}
	return c, nil
}

func (s *service) UpdateDetails(ctx context.Context, in UpdateDetailsInput) (*Cart, error) {
	if in.Email == nil && in.ShippingMethod == nil && in.Notes == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	details, err := s.normalizeDetails(in)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, in.Request, opUpdateDetails, func(_ context.Context, c *Cart, _ time.Time) ([]change, error) {
		if details.Email != nil {
			c.Details.Email = *details.Email
		}
		if details.ShippingMethod != nil {
			c.Details.ShippingMethod = *details.ShippingMethod
		}
		if details.Notes != nil {
			c.Details.Notes = *details.Notes
		}
		return []change{{event: enums.EventCartUpdated}}, nil
	})
}

func (s *service) normalizeDetails(in UpdateDetailsInput) (UpdateDetailsInput, error) {
	out := in
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" {
			if err := s.validate.Var(email, "email,max=254"); err != nil {
				return out, pkgerrors.New(pkgerrors.CodeValidation, "email is invalid").
					WithDetails(map[string]any{"field": "email"})
			}
		}
		out.Email = &email
	}
	if in.ShippingMethod != nil {
		method := strings.ToLower(strings.TrimSpace(*in.ShippingMethod))
		if checker, ok := s.rates.(interface{ SupportsMethod(string) bool }); ok && method != "" && !checker.SupportsMethod(method) {
			return out, pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping method").
				WithDetails(map[string]any{"field": "shippingMethod"})
		}
		out.ShippingMethod = &method
	}
	if in.Notes != nil && utf8.RuneCountInString(*in.Notes) > maxNotesLength {
		return out, pkgerrors.New(pkgerrors.CodeValidation, "notes too long").
			WithDetails(map[string]any{"field": "notes", "max": maxNotesLength})
	}
	return out, nil
}

func (s *service) AddItem(ctx context.Context, in AddItemInput) (*Cart, error) {
	return s.mutate(ctx, in.Request, opAddItem, func(ctx context.Context, c *Cart, now time.Time) ([]change, error) {
		before := len(c.Items)
		item, err := AddItem(ctx, s.catalog, c, in, now)
		if err != nil {
			return nil, err
		}
		event := enums.EventCartItemAdded
		if len(c.Items) == before {
			event = enums.EventCartItemUpdated
		}
		return []change{{event: event, item: item}}, nil
	})
}

func (s *service) UpdateItem(ctx context.Context, in UpdateItemInput) (*Cart, error) {
	return s.mutate(ctx, in.Request, opUpdateItem, func(_ context.Context, c *Cart, _ time.Time) ([]change, error) {
		item, err := UpdateItem(c, in)
		if err != nil {
			return nil, err
		}
		return []change{{event: enums.EventCartItemUpdated, item: item}}, nil
	})
}

func (s *service) RemoveItem(ctx context.Context, in RemoveItemInput) (*Cart, error) {
	return s.mutate(ctx, in.Request, opRemoveItem, func(_ context.Context, c *Cart, _ time.Time) ([]change, error) {
		item, err := RemoveItem(c, in.ItemID)
		if err != nil {
			return nil, err
		}
		return []change{{event: enums.EventCartItemRemoved, item: item}}, nil
	})
}

func (s *service) ClearItems(ctx context.Context, in Request) (*Cart, error) {
	return s.mutate(ctx, in, opClearItems, func(_ context.Context, c *Cart, _ time.Time) ([]change, error) {
		removed := append([]Item(nil), c.Items...)
		if ClearItems(c) == 0 {
			return nil, nil
		}
		changes := make([]change, 0, len(removed))
		for i := range removed {
			changes = append(changes, change{event: enums.EventCartItemRemoved, item: &removed[i]})
		}
		return changes, nil
	})
}

func (s *service) ApplyCoupon(ctx context.Context, in ApplyCouponInput) (*Cart, error) {
	return s.mutate(ctx, in.Request, opApplyCoupon, func(ctx context.Context, c *Cart, _ time.Time) ([]change, error) {
		attached := ""
		if c.Coupon != nil {
			attached = c.Coupon.Code
		}
		rule, err := s.coupons.Validate(ctx, in.Code, couponSnapshot(c), attached)
		if err != nil {
			return nil, err
		}
		c.Coupon = appliedFromRule(rule)
		return []change{{event: enums.EventCartCouponApplied, coupon: rule.Code}}, nil
	})
}

// RemoveCoupon detaches the coupon. Removing from a cart without one
// succeeds without a new version.
func (s *service) RemoveCoupon(ctx context.Context, in Request) (*Cart, error) {
	return s.mutate(ctx, in, opRemoveCoupon, func(_ context.Context, c *Cart, _ time.Time) ([]change, error) {
		if c.Coupon == nil {
			return nil, nil
		}
		code := c.Coupon.Code
		c.Coupon = nil
		return []change{{event: enums.EventCartCouponRemoved, coupon: code}}, nil
	})
}

// Delete moves the cart to deleted. Deleting a deleted cart succeeds.
func (s *service) Delete(ctx context.Context, in Request) error {
	current, err := s.load(ctx, in.CartID)
	if err != nil {
		return err
	}
	if err := authorize(current, in.Auth); err != nil {
		return err
	}
	if current.Status == enums.CartStatusDeleted {
		return nil
	}
	_, err = s.mutate(ctx, in, opDelete, func(_ context.Context, c *Cart, _ time.Time) ([]change, error) {
		if err := Transition(c.Status, enums.CartStatusDeleted); err != nil {
			return nil, err
		}
		c.Status = enums.CartStatusDeleted
		return []change{{event: enums.EventCartDeleted}}, nil
	})
	if pkgerrors.Is(err, pkgerrors.CodeCartDeleted) {
		return nil
	}
	return err
}

// MarkConverted closes the cart after an order was placed from it and
// records the coupon redemption. Converting twice with the same order id
// returns the converted cart.
func (s *service) MarkConverted(ctx context.Context, in ConvertInput) (*Cart, error) {
	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	current, err := s.load(ctx, in.CartID)
	if err != nil {
		return nil, err
	}
	if current.Status == enums.CartStatusConverted && current.ConvertedOrderID == orderID {
		return current, nil
	}

	req := Request{CartID: in.CartID, IdempotencyKey: in.IdempotencyKey}
	converted, err := s.mutateAs(ctx, req, opConvert, systemActor(orderID), nil, func(_ context.Context, c *Cart, _ time.Time) ([]change, error) {
		if len(c.Items) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot convert an empty cart")
		}
		if err := Transition(c.Status, enums.CartStatusConverted); err != nil {
			return nil, err
		}
		c.Status = enums.CartStatusConverted
		c.ConvertedOrderID = orderID
		return []change{{event: enums.EventCartConverted, orderID: orderID}}, nil
	})
	if err != nil {
		return nil, err
	}

	// a replayed duplicate finds the cart already converted and must not count twice
	if converted.Coupon != nil && current.Status == enums.CartStatusActive && converted.Status == enums.CartStatusConverted {
		if err := s.coupons.RecordRedemption(ctx, converted.Coupon.Code); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"cart_id":     converted.ID.String(),
				"coupon_code": converted.Coupon.Code,
				"error":       err.Error(),
			})
			s.logg.Warn(logCtx, "coupon redemption not recorded")
		}
	}
	return converted, nil
}

// ExpireSweep flips one batch of stale active carts to expired and returns
// how many changed.
func (s *service) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	var expired []*Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		records, err := s.repo.WithTx(tx).ExpireStale(ctx, now, s.sweepBatch)
		if err != nil {
			return err
		}
		events := make([]outbox.DomainEvent, 0, len(records))
		for i := range records {
			c, err := fromRecord(&records[i])
			if err != nil {
				return err
			}
			expired = append(expired, c)
			events = append(events, cartEvent(enums.EventCartExpired, c, systemActor(opExpire), nil))
		}
		return s.outbox.EmitAll(ctx, tx, events)
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire stale carts")
	}
	return len(expired), nil
}

// change describes one effect of a mutation; the outbox event is built
// after the new version is assigned.
type change struct {
	event   enums.OutboxEventType
	item    *Item
	coupon  string
	orderID string
}

type applyFunc func(ctx context.Context, c *Cart, now time.Time) ([]change, error)

func (s *service) mutate(ctx context.Context, req Request, op string, apply applyFunc) (*Cart, error) {
	auth := req.Auth
	return s.mutateAs(ctx, req, op, actorFor(auth), func(c *Cart) error { return authorize(c, auth) }, apply)
}

// mutateAs runs apply against a fresh clone of the cart and commits it with
// a version check, retrying on conflict. A nil authz skips the owner check.
func (s *service) mutateAs(ctx context.Context, req Request, op string, actor *outbox.ActorRef, authz func(*Cart) error, apply applyFunc) (*Cart, error) {
	if req.CartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	ctx = s.logg.WithOperation(s.logg.WithCartID(ctx, req.CartID.String()), op)

	scope := req.CartID.String()
	claimed, err := s.claims.Claim(ctx, scope, op, req.IdempotencyKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	if !claimed {
		s.logg.Info(ctx, "duplicate cart mutation skipped")
		return s.replay(ctx, req.CartID, op, authz)
	}

	var result *Cart
	err = s.retry(ctx, op, func(ctx context.Context) error {
		c, err := s.applyOnce(ctx, req.CartID, actor, authz, apply)
		if err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		if relErr := s.claims.Release(ctx, scope, op, req.IdempotencyKey); relErr != nil {
			s.logg.Error(ctx, "failed to release idempotency claim", relErr)
		}
		return nil, err
	}
	return result, nil
}

func (s *service) applyOnce(ctx context.Context, cartID uuid.UUID, actor *outbox.ActorRef, authz func(*Cart) error, apply applyFunc) (*Cart, error) {
	current, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if authz != nil {
		if err := authz(current); err != nil {
			return nil, err
		}
	}
	now := s.clock()
	if current.expired(now) {
		s.expireLazily(ctx, current)
		return nil, terminalError(enums.CartStatusExpired)
	}
	if err := terminalError(current.Status); err != nil {
		return nil, withTerminalDetails(err, current)
	}

	next := current.clone()
	changes, err := apply(ctx, next, now)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return current, nil
	}
	if err := recompute(ctx, s.rates, next); err != nil {
		return nil, err
	}
	next.touch(now, s.ttl)

	events := make([]outbox.DomainEvent, 0, len(changes))
	for _, ch := range changes {
		events = append(events, ch.toEvent(next, actor))
	}
	if err := s.save(ctx, current.Version, events, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (ch change) toEvent(c *Cart, actor *outbox.ActorRef) outbox.DomainEvent {
	switch {
	case ch.item != nil:
		return itemEvent(ch.event, c, actor, ch.item)
	case ch.coupon != "":
		return couponEvent(ch.event, c, actor, ch.coupon)
	case ch.orderID != "":
		return orderEvent(ch.event, c, actor, ch.orderID)
	default:
		return cartEvent(ch.event, c, actor, nil)
	}
}

// save commits one cart and its events.
func (s *service) save(ctx context.Context, expected int64, events []outbox.DomainEvent, carts ...*Cart) error {
	return s.saveAll(ctx, []int64{expected}, events, carts...)
}

// saveAll commits carts, each guarded by the index-aligned expected version,
// and events in one transaction.
func (s *service) saveAll(ctx context.Context, expected []int64, events []outbox.DomainEvent, carts ...*Cart) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for i, c := range carts {
			if err := repo.SaveVersioned(ctx, toRecord(c), expected[i]); err != nil {
				return err
			}
		}
		return s.outbox.EmitAll(ctx, tx, events)
	})
	if err == nil || errors.Is(err, ErrVersionConflict) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
}

// retry runs attempt until it stops reporting a version conflict or the
// attempt budget is spent.
func (s *service) retry(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	for i := 1; i <= s.maxAttempts; i++ {
		err := attempt(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			if err == nil {
				s.observer.MutationCommitted(op, i)
			}
			return err
		}
		s.observer.MutationConflict(op)
		if i == s.maxAttempts {
			break
		}
		if err := s.sleep(ctx, i); err != nil {
			return err
		}
	}
	s.logg.Warn(ctx, "cart mutation retries exhausted")
	return pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently").
		WithDetails(map[string]any{"attempts": s.maxAttempts})
}

func (s *service) sleep(ctx context.Context, attempt int) error {
	if s.backoff <= 0 {
		return nil
	}
	delay := s.backoff * time.Duration(attempt)
	delay += time.Duration(rand.Int63n(int64(s.backoff)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// expireLazily persists the expired flip. A lost race is fine: the other
// writer saw the same stale cart.
func (s *service) expireLazily(ctx context.Context, c *Cart) {
	if Transition(c.Status, enums.CartStatusExpired) != nil {
		return
	}
	next := c.clone()
	next.Status = enums.CartStatusExpired
	next.Version++
	next.LastMutatedAt = s.clock()
	event := cartEvent(enums.EventCartExpired, next, systemActor(opExpire), nil)
	if err := s.save(ctx, c.Version, []outbox.DomainEvent{event}, next); err != nil && !errors.Is(err, ErrVersionConflict) {
		s.logg.Error(s.logg.WithCartID(ctx, c.ID.String()), "failed to persist cart expiry", err)
	}
}

// replay answers a duplicate mutation with the cart as it stands now. A
// cart closed since the first call reports the same error a fresh call
// would, except the status the operation itself produces.
func (s *service) replay(ctx context.Context, cartID uuid.UUID, op string, authz func(*Cart) error) (*Cart, error) {
	c, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if authz != nil {
		if err := authz(c); err != nil {
			return nil, err
		}
	}
	if err := readError(c.Status); err != nil {
		return nil, err
	}
	if op == opConvert && c.Status == enums.CartStatusConverted {
		return c, nil
	}
	if err := terminalError(c.Status); err != nil {
		return nil, withTerminalDetails(err, c)
	}
	return c, nil
}

func (s *service) load(ctx context.Context, cartID uuid.UUID) (*Cart, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	rec, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return fromRecord(rec)
}

func (s *service) resolveCurrency(raw string) (enums.Currency, error) {
	if strings.TrimSpace(raw) == "" {
		return s.currency, nil
	}
	cur, err := enums.ParseCurrency(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency").
			WithDetails(map[string]any{"field": "currency"})
	}
	return cur, nil
}

func (s *service) clock() time.Time {
	return s.now().UTC()
}

// authorize checks the caller against the cart owner.
func authorize(c *Cart, auth Auth) error {
	if auth.SessionToken == "" && auth.CustomerID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "cart credentials required")
	}
	switch owner := c.Owner.(type) {
	case SessionOwner:
		if tokensEqual(auth.SessionToken, owner.Token) {
			return nil
		}
	case CustomerOwner:
		if tokensEqual(auth.CustomerID, owner.CustomerID) {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "cart belongs to another owner")
}

func withTerminalDetails(err error, c *Cart) error {
	typed := pkgerrors.As(err)
	if typed == nil || c.Status != enums.CartStatusMerged || c.MergedIntoID == nil {
		return err
	}
	return typed.WithDetails(map[string]any{"mergedIntoCartId": c.MergedIntoID.String()})
}
