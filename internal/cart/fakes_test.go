package cart

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartcore-backend/internal/catalog"
	"github.com/angelmondragon/cartcore-backend/internal/coupons"
	"github.com/angelmondragon/cartcore-backend/internal/rates"
	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	"github.com/angelmondragon/cartcore-backend/pkg/idempotency"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
	"github.com/angelmondragon/cartcore-backend/pkg/outbox"
)

var testStart = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// memRepo keeps carts in memory and enforces the version check and the one
// active cart per owner rule like the real table does.
type memRepo struct {
	mu sync.Mutex
	// txMu serializes memTx so a rollback never overwrites another commit.
	txMu      sync.Mutex
	records   map[uuid.UUID]models.CartRecord
	order     []uuid.UUID
	conflicts int
	saveErr   error
	saves     int
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[uuid.UUID]models.CartRecord{}}
}

func (r *memRepo) WithTx(tx *gorm.DB) CartRepository { return r }

func (r *memRepo) Create(ctx context.Context, record *models.CartRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.Status == enums.CartStatusActive && record.Status == enums.CartStatusActive &&
			existing.OwnerKind == record.OwnerKind && existing.OwnerValue == record.OwnerValue {
			return errors.New("UNIQUE constraint failed: carts.owner_kind, carts.owner_value")
		}
	}
	r.records[record.ID] = copyRecord(*record)
	r.order = append(r.order, record.ID)
	return nil
}

func (r *memRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.CartRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := copyRecord(rec)
	return &out, nil
}

func (r *memRepo) FindActiveByOwner(ctx context.Context, kind enums.OwnerKind, value string) (*models.CartRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		rec := r.records[id]
		if rec.OwnerKind == kind && rec.OwnerValue == value && rec.Status == enums.CartStatusActive {
			out := copyRecord(rec)
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) FindLatestByOwner(ctx context.Context, kind enums.OwnerKind, value string) (*models.CartRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.records[r.order[i]]
		if rec.OwnerKind == kind && rec.OwnerValue == value {
			out := copyRecord(rec)
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) SaveVersioned(ctx context.Context, record *models.CartRecord, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.conflicts > 0 {
		r.conflicts--
		return ErrVersionConflict
	}
	stored, ok := r.records[record.ID]
	if !ok || stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	r.records[record.ID] = copyRecord(*record)
	r.saves++
	return nil
}

func (r *memRepo) ExpireStale(ctx context.Context, now time.Time, limit int) ([]models.CartRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CartRecord
	for _, id := range r.order {
		rec := r.records[id]
		if rec.Status != enums.CartStatusActive || rec.ExpiresAt.After(now) {
			continue
		}
		if len(out) == limit {
			break
		}
		rec.Status = enums.CartStatusExpired
		rec.Version++
		rec.LastMutatedAt = now
		r.records[id] = rec
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

func (r *memRepo) get(t *testing.T, id uuid.UUID) models.CartRecord {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		t.Fatalf("cart %s not stored", id)
	}
	return rec
}

func (r *memRepo) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// snapshot and restore give memTx rollback semantics.
func (r *memRepo) snapshot() map[uuid.UUID]models.CartRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]models.CartRecord, len(r.records))
	for id, rec := range r.records {
		out[id] = copyRecord(rec)
	}
	return out
}

func (r *memRepo) restore(state map[uuid.UUID]models.CartRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = state
}

func copyRecord(rec models.CartRecord) models.CartRecord {
	out := rec
	out.Items = append([]models.CartItem(nil), rec.Items...)
	if rec.Coupon != nil {
		coupon := *rec.Coupon
		out.Coupon = &coupon
	}
	return out
}

type memTx struct {
	repo    *memRepo
	emitter *fakeEmitter
}

func (m memTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	m.repo.txMu.Lock()
	defer m.repo.txMu.Unlock()
	state := m.repo.snapshot()
	queued := m.emitter.count()
	if err := fn(nil); err != nil {
		m.repo.restore(state)
		m.emitter.truncate(queued)
		return err
	}
	return nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
	err    error
}

func (f *fakeEmitter) EmitAll(ctx context.Context, tx *gorm.DB, events []outbox.DomainEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeEmitter) truncate(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = f.events[:n]
}

func (f *fakeEmitter) types() []enums.OutboxEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]enums.OutboxEventType, len(f.events))
	for i, e := range f.events {
		out[i] = e.EventType
	}
	return out
}

type fakeCatalog struct {
	variants map[string]*catalog.Variant
	err      error
}

func (f *fakeCatalog) Variant(ctx context.Context, productID, variantID string) (*catalog.Variant, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.variants[productID+"/"+variantID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (f *fakeCatalog) put(v catalog.Variant) {
	f.variants[v.ProductID+"/"+v.VariantID] = &v
}

type fakeRules struct {
	mu       sync.Mutex
	rules    map[string]*coupons.Rule
	redeemed []string
}

func (f *fakeRules) FindByCode(ctx context.Context, code string) (*coupons.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[code]
	if !ok {
		return nil, coupons.ErrNotFound
	}
	copied := *rule
	return &copied, nil
}

func (f *fakeRules) RecordRedemption(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeemed = append(f.redeemed, code)
	return nil
}

type memClaimStore struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (m *memClaimStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *memClaimStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.claimed, k)
	}
	return nil
}

func (m *memClaimStore) ClaimKey(scope, op, id string) string {
	return "cc:claim:" + scope + ":" + op + ":" + id
}

type countingObserver struct {
	mu        sync.Mutex
	conflicts map[string]int
	attempts  map[string][]int
}

func (o *countingObserver) MutationConflict(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conflicts[op]++
}

func (o *countingObserver) MutationCommitted(op string, attempts int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts[op] = append(o.attempts[op], attempts)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc      Service
	repo     *memRepo
	events   *fakeEmitter
	catalog  *fakeCatalog
	rules    *fakeRules
	observer *countingObserver
	clock    *fakeClock
}

const testTTL = 72 * time.Hour

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:     newMemRepo(),
		events:   &fakeEmitter{},
		catalog:  &fakeCatalog{variants: map[string]*catalog.Variant{}},
		rules:    &fakeRules{rules: map[string]*coupons.Rule{}},
		observer: &countingObserver{conflicts: map[string]int{}, attempts: map[string][]int{}},
		clock:    &fakeClock{now: testStart},
	}

	engine, err := coupons.NewEngine(h.rules, h.clock.Now)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	provider, err := rates.NewFlatProvider(config.RatesConfig{
		TaxRateBPS:            1000,
		ShippingMethods:       map[string]int64{"standard": 500, "express": 1500},
		DefaultShippingMethod: "standard",
	})
	if err != nil {
		t.Fatalf("NewFlatProvider: %v", err)
	}
	claims, err := idempotency.NewManager(&memClaimStore{claimed: map[string]bool{}}, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	svc, err := NewService(ServiceParams{
		Repo:     h.repo,
		Tx:       memTx{repo: h.repo, emitter: h.events},
		Catalog:  h.catalog,
		Coupons:  engine,
		Rates:    provider,
		Outbox:   h.events,
		Claims:   claims,
		Logger:   logger.New(logger.Options{ServiceName: "cart-test", Output: io.Discard}),
		Observer: h.observer,
		Config: config.CartConfig{
			TTL:             testTTL,
			MaxAttempts:     3,
			DefaultCurrency: "USD",
		},
		Now: h.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.svc = svc

	h.catalog.put(catalog.Variant{
		ProductID: "tee", VariantID: "blue-m", Title: "Tee (blue, M)",
		UnitPriceCents: 1000, OriginalPriceCents: 1200, Currency: enums.CurrencyUSD,
		Active: true, RequiresShipping: true,
	})
	h.catalog.put(catalog.Variant{
		ProductID: "mug", VariantID: "", Title: "Mug",
		UnitPriceCents: 500, OriginalPriceCents: 500, Currency: enums.CurrencyUSD,
		Active: true, RequiresShipping: true,
	})
	h.catalog.put(catalog.Variant{
		ProductID: "gift", VariantID: "50", Title: "Gift card",
		UnitPriceCents: 5000, OriginalPriceCents: 5000, Currency: enums.CurrencyUSD,
		Active: true, IsGiftCard: true,
	})
	return h
}

func (h *harness) addRule(rule coupons.Rule) {
	h.rules.mu.Lock()
	defer h.rules.mu.Unlock()
	h.rules.rules[rule.Code] = &rule
}

func percentCoupon(code, pct string, minimum int64) coupons.Rule {
	return coupons.Rule{
		Code:              code,
		Type:              enums.DiscountTypePercentage,
		Value:             decimal.RequireFromString(pct),
		Scope:             enums.CouponScopeCart,
		MinimumSpendCents: minimum,
		Active:            true,
	}
}

func guestRequest(c *Cart) Request {
	return Request{CartID: c.ID, Auth: Auth{SessionToken: c.SessionToken()}}
}

func (h *harness) guestCart(t *testing.T) *Cart {
	t.Helper()
	c, err := h.svc.CreateGuest(context.Background(), "USD")
	if err != nil {
		t.Fatalf("CreateGuest: %v", err)
	}
	return c
}

func (h *harness) add(t *testing.T, req Request, productID, variantID string, qty int, attrs map[string]string) *Cart {
	t.Helper()
	c, err := h.svc.AddItem(context.Background(), AddItemInput{
		Request:    req,
		ProductID:  productID,
		VariantID:  variantID,
		Quantity:   qty,
		Attributes: attrs,
	})
	if err != nil {
		t.Fatalf("AddItem(%s/%s): %v", productID, variantID, err)
	}
	return c
}
