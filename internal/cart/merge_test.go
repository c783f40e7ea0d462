package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

func customerRequest(c *Cart) Request {
	return Request{CartID: c.ID, Auth: Auth{CustomerID: c.CustomerID()}}
}

func (h *harness) customerCart(t *testing.T, customerID string) *Cart {
	t.Helper()
	c, err := h.svc.ResolveCustomerCart(context.Background(), customerID, "USD")
	require.NoError(t, err)
	return c
}

func mergeStep(t *testing.T, err error) string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok, "details: %#v", typed.Details())
	step, _ := details["step"].(string)
	return step
}

func TestMergeCombinesItems(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	guest := h.guestCart(t)
	h.add(t, guestRequest(guest), "tee", "blue-m", 2, nil)
	h.add(t, guestRequest(guest), "mug", "", 1, nil)

	customer := h.customerCart(t, "cust-1")
	customer = h.add(t, customerRequest(customer), "tee", "blue-m", 3, nil)
	teeID := customer.Items[0].ID

	res, err := h.svc.Merge(ctx, MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken()})
	require.NoError(t, err)
	assert.Empty(t, res.Notices)
	assert.Equal(t, guest.ID, res.SourceCartID)

	merged := res.Cart
	assert.Equal(t, customer.ID, merged.ID)
	require.Len(t, merged.Items, 2)
	assert.Equal(t, teeID, merged.Items[0].ID)
	assert.Equal(t, 5, merged.Items[0].Quantity)
	assert.Equal(t, "mug", merged.Items[1].ProductID)
	assert.Equal(t, int64(5500), merged.Totals.SubtotalCents)
	assert.Equal(t, customer.Version+1, merged.Version)

	closed := h.repo.get(t, guest.ID)
	assert.Equal(t, enums.CartStatusMerged, closed.Status)
	require.NotNil(t, closed.MergedIntoID)
	assert.Equal(t, customer.ID, *closed.MergedIntoID)

	_, err = h.svc.AddItem(ctx, AddItemInput{Request: guestRequest(guest), ProductID: "mug", Quantity: 1})
	requireCode(t, err, pkgerrors.CodeCartMerged)

	_, err = h.svc.Merge(ctx, MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken()})
	requireCode(t, err, pkgerrors.CodeCartMerged)
	assert.Equal(t, MergeStepValidate, mergeStep(t, err))
}

func TestMergeCreatesCustomerCart(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	guest, err := h.svc.CreateGuest(context.Background(), "GBP")
	require.NoError(t, err)
	h.catalog.variants["mug/"].Currency = enums.CurrencyGBP
	h.add(t, guestRequest(guest), "mug", "", 2, nil)

	res, err := h.svc.Merge(context.Background(), MergeInput{CustomerID: "cust-new", SessionToken: guest.SessionToken()})
	require.NoError(t, err)
	assert.Equal(t, "cust-new", res.Cart.CustomerID())
	assert.Equal(t, enums.CurrencyGBP, res.Cart.Currency)
	require.Len(t, res.Cart.Items, 1)
	assert.Equal(t, 2, res.Cart.Items[0].Quantity)
}

func TestMergeClampsQuantity(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	guest := h.guestCart(t)
	h.add(t, guestRequest(guest), "tee", "blue-m", 2000, nil)
	customer := h.customerCart(t, "cust-1")
	h.add(t, customerRequest(customer), "tee", "blue-m", 9000, nil)

	res, err := h.svc.Merge(context.Background(), MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken()})
	require.NoError(t, err)
	require.Len(t, res.Cart.Items, 1)
	assert.Equal(t, MaxQuantity, res.Cart.Items[0].Quantity)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, NoticeQuantityClamped, res.Notices[0].Code)
	assert.Equal(t, 11000, res.Notices[0].Requested)
	assert.Equal(t, MaxQuantity, res.Notices[0].Applied)
}

func TestMergeCarriesGuestCoupon(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.addRule(percentCoupon("SAVE10", "10", 0))

	guest := h.guestCart(t)
	h.add(t, guestRequest(guest), "tee", "blue-m", 1, nil)
	_, err := h.svc.ApplyCoupon(ctx, ApplyCouponInput{Request: guestRequest(guest), Code: "SAVE10"})
	require.NoError(t, err)

	customer := h.customerCart(t, "cust-1")
	h.add(t, customerRequest(customer), "mug", "", 2, nil)

	res, err := h.svc.Merge(ctx, MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken()})
	require.NoError(t, err)
	require.NotNil(t, res.Cart.Coupon)
	assert.Equal(t, "SAVE10", res.Cart.Coupon.Code)
	assert.Equal(t, int64(200), res.Cart.Totals.DiscountCents)
}

func TestMergeKeepsCustomerCoupon(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.addRule(percentCoupon("GUEST", "50", 0))
	h.addRule(percentCoupon("MINE", "10", 0))

	guest := h.guestCart(t)
	h.add(t, guestRequest(guest), "tee", "blue-m", 1, nil)
	_, err := h.svc.ApplyCoupon(ctx, ApplyCouponInput{Request: guestRequest(guest), Code: "GUEST"})
	require.NoError(t, err)

	customer := h.customerCart(t, "cust-1")
	h.add(t, customerRequest(customer), "tee", "blue-m", 1, nil)
	_, err = h.svc.ApplyCoupon(ctx, ApplyCouponInput{Request: customerRequest(customer), Code: "MINE"})
	require.NoError(t, err)

	res, err := h.svc.Merge(ctx, MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken()})
	require.NoError(t, err)
	assert.Equal(t, "MINE", res.Cart.Coupon.Code)
	assert.Equal(t, int64(200), res.Cart.Totals.DiscountCents)
}

func TestMergeDropsIneligibleGuestCoupon(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.addRule(percentCoupon("SAVE10", "10", 0))

	guest := h.guestCart(t)
	h.add(t, guestRequest(guest), "tee", "blue-m", 1, nil)
	_, err := h.svc.ApplyCoupon(ctx, ApplyCouponInput{Request: guestRequest(guest), Code: "SAVE10"})
	require.NoError(t, err)
	h.customerCart(t, "cust-1")

	// the campaign ends before the shopper signs in
	h.rules.rules["SAVE10"].Active = false

	res, err := h.svc.Merge(ctx, MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken()})
	require.NoError(t, err)
	assert.Nil(t, res.Cart.Coupon)
	assert.Equal(t, int64(0), res.Cart.Totals.DiscountCents)
}

func TestMergeFailsAtomicallyOnUnavailableItem(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	guest := h.guestCart(t)
	h.add(t, guestRequest(guest), "tee", "blue-m", 1, nil)
	h.add(t, guestRequest(guest), "mug", "", 1, nil)
	customer := h.customerCart(t, "cust-1")
	eventsBefore := h.events.count()

	h.catalog.variants["mug/"].Active = false

	_, err := h.svc.Merge(context.Background(), MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken()})
	requireCode(t, err, pkgerrors.CodeProductNotAvailable)
	assert.Equal(t, MergeStepCatalog, mergeStep(t, err))

	assert.Equal(t, enums.CartStatusActive, h.repo.get(t, guest.ID).Status)
	assert.Empty(t, h.repo.get(t, customer.ID).Items)
	assert.Equal(t, eventsBefore, h.events.count())
}

func TestMergeCommitFailureWritesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	guest := h.guestCart(t)
	h.add(t, guestRequest(guest), "tee", "blue-m", 1, nil)
	customer := h.customerCart(t, "cust-1")

	h.repo.saveErr = errors.New("disk full")
	_, err := h.svc.Merge(context.Background(), MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken()})
	requireCode(t, err, pkgerrors.CodeDependency)
	assert.Equal(t, MergeStepCommit, mergeStep(t, err))

	h.repo.saveErr = nil
	assert.Equal(t, enums.CartStatusActive, h.repo.get(t, guest.ID).Status)
	assert.Equal(t, customer.Version, h.repo.get(t, customer.ID).Version)
}

func TestMergeCurrencyMismatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	guest, err := h.svc.CreateGuest(context.Background(), "EUR")
	require.NoError(t, err)
	h.customerCart(t, "cust-1")

	_, err = h.svc.Merge(context.Background(), MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken()})
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, MergeStepValidate, mergeStep(t, err))
}

func TestMergeUnknownSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.svc.Merge(context.Background(), MergeInput{CustomerID: "cust-1", SessionToken: "missing"})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = h.svc.Merge(context.Background(), MergeInput{CustomerID: "", SessionToken: "missing"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestMergeIdempotencyKey(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	guest := h.guestCart(t)
	h.add(t, guestRequest(guest), "tee", "blue-m", 1, nil)
	in := MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken(), IdempotencyKey: "merge-1"}

	first, err := h.svc.Merge(ctx, in)
	require.NoError(t, err)
	second, err := h.svc.Merge(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.Cart.ID, second.Cart.ID)
	assert.Equal(t, first.Cart.Version, second.Cart.Version)
}

func TestMergeConvertedGuestLeavesNoTrace(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	guest := h.guestCart(t)
	h.add(t, guestRequest(guest), "tee", "blue-m", 1, nil)
	_, err := h.svc.MarkConverted(ctx, ConvertInput{CartID: guest.ID, OrderID: "ord-1"})
	require.NoError(t, err)
	carts, events := h.repo.size(), h.events.count()

	_, err = h.svc.Merge(ctx, MergeInput{CustomerID: "cust-new", SessionToken: guest.SessionToken()})
	requireCode(t, err, pkgerrors.CodeCartConverted)
	assert.Equal(t, MergeStepValidate, mergeStep(t, err))
	assert.Equal(t, carts, h.repo.size(), "no customer cart is opened for a closed guest cart")
	assert.Equal(t, events, h.events.count())

	_, err = h.repo.FindActiveByOwner(ctx, enums.OwnerKindCustomer, "cust-new")
	assert.True(t, isNotFound(err))
}

func TestMergeSkipsConvertedCustomerCart(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	old := h.customerCart(t, "cust-1")
	h.add(t, customerRequest(old), "mug", "", 1, nil)
	_, err := h.svc.MarkConverted(ctx, ConvertInput{CartID: old.ID, OrderID: "ord-1"})
	require.NoError(t, err)

	guest := h.guestCart(t)
	h.add(t, guestRequest(guest), "tee", "blue-m", 2, nil)

	res, err := h.svc.Merge(ctx, MergeInput{CustomerID: "cust-1", SessionToken: guest.SessionToken()})
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, res.Cart.ID)
	require.Len(t, res.Cart.Items, 1)
	assert.Equal(t, "tee", res.Cart.Items[0].ProductID)
	assert.Equal(t, enums.CartStatusConverted, h.repo.get(t, old.ID).Status)
}
