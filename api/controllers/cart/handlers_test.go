package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartdto "github.com/angelmondragon/cartcore-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/cartcore-backend/api/middleware"
	cartsvc "github.com/angelmondragon/cartcore-backend/internal/cart"
	"github.com/angelmondragon/cartcore-backend/internal/pricing"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

type stubService struct {
	cart *cartsvc.Cart
	err  error

	createdCurrency string
	resolvedFor     string
	fetchAuth       cartsvc.Auth
	detailsInput    cartsvc.UpdateDetailsInput
	addInput        cartsvc.AddItemInput
	updateInput     cartsvc.UpdateItemInput
	couponInput     cartsvc.ApplyCouponInput
	mergeInput      cartsvc.MergeInput
	convertInput    cartsvc.ConvertInput
	deleted         *cartsvc.Request
	mergeResult     *cartsvc.MergeResult
}

func (s *stubService) CreateGuest(_ context.Context, currency string) (*cartsvc.Cart, error) {
	s.createdCurrency = currency
	return s.cart, s.err
}

func (s *stubService) ResolveCustomerCart(_ context.Context, customerID, _ string) (*cartsvc.Cart, error) {
	s.resolvedFor = customerID
	return s.cart, s.err
}

func (s *stubService) Fetch(_ context.Context, _ uuid.UUID, auth cartsvc.Auth) (*cartsvc.Cart, error) {
	s.fetchAuth = auth
	return s.cart, s.err
}

func (s *stubService) FetchBySession(context.Context, string) (*cartsvc.Cart, error) {
	return s.cart, s.err
}

func (s *stubService) UpdateDetails(_ context.Context, in cartsvc.UpdateDetailsInput) (*cartsvc.Cart, error) {
	s.detailsInput = in
	return s.cart, s.err
}

func (s *stubService) AddItem(_ context.Context, in cartsvc.AddItemInput) (*cartsvc.Cart, error) {
	s.addInput = in
	return s.cart, s.err
}

func (s *stubService) UpdateItem(_ context.Context, in cartsvc.UpdateItemInput) (*cartsvc.Cart, error) {
	s.updateInput = in
	return s.cart, s.err
}

func (s *stubService) RemoveItem(context.Context, cartsvc.RemoveItemInput) (*cartsvc.Cart, error) {
	return s.cart, s.err
}

func (s *stubService) ClearItems(context.Context, cartsvc.Request) (*cartsvc.Cart, error) {
	return s.cart, s.err
}

func (s *stubService) ApplyCoupon(_ context.Context, in cartsvc.ApplyCouponInput) (*cartsvc.Cart, error) {
	s.couponInput = in
	return s.cart, s.err
}

func (s *stubService) RemoveCoupon(context.Context, cartsvc.Request) (*cartsvc.Cart, error) {
	return s.cart, s.err
}

func (s *stubService) Delete(_ context.Context, in cartsvc.Request) error {
	s.deleted = &in
	return s.err
}

func (s *stubService) Merge(_ context.Context, in cartsvc.MergeInput) (*cartsvc.MergeResult, error) {
	s.mergeInput = in
	return s.mergeResult, s.err
}

func (s *stubService) MarkConverted(_ context.Context, in cartsvc.ConvertInput) (*cartsvc.Cart, error) {
	s.convertInput = in
	return s.cart, s.err
}

func (s *stubService) ExpireSweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func sampleCart() *cartsvc.Cart {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &cartsvc.Cart{
		ID:       uuid.New(),
		Owner:    cartsvc.SessionOwner{Token: "tok-1"},
		Currency: enums.CurrencyUSD,
		Status:   enums.CartStatusActive,
		Version:  3,
		Items: []cartsvc.Item{{
			ID: uuid.New(), ProductID: "tee", VariantID: "blue-m", Title: "Tee",
			Quantity: 2, UnitPriceCents: 1250, OriginalPriceCents: 1500, AddedAt: now,
		}},
		Totals:        pricing.Totals{SubtotalCents: 2500, TotalCents: 2500},
		CreatedAt:     now,
		LastMutatedAt: now,
		ExpiresAt:     now.Add(time.Hour),
	}
}

func newTestRouter(svc cartsvc.Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/carts", CartCreate(svc, nil))
	r.Get("/carts/current", CartCurrent(svc, nil))
	r.Post("/carts/merge", CartMerge(svc, nil))
	r.Get("/carts/{cartId}", CartFetch(svc, nil))
	r.Patch("/carts/{cartId}", CartUpdateDetails(svc, nil))
	r.Delete("/carts/{cartId}", CartDelete(svc, nil))
	r.Post("/carts/{cartId}/items", ItemAdd(svc, nil))
	r.Patch("/carts/{cartId}/items/{itemId}", ItemUpdate(svc, nil))
	r.Put("/carts/{cartId}/coupon", CouponApply(svc, nil))
	r.Post("/internal/carts/{cartId}/convert", CartConvert(svc, nil))
	return r
}

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartdto.Cart {
	t.Helper()
	var envelope struct {
		Data cartdto.Cart `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Error.Code
}

func withCustomer(req *http.Request, customerID string) *http.Request {
	return req.WithContext(middleware.WithCustomerID(req.Context(), customerID))
}

func withSession(req *http.Request, token string) *http.Request {
	return req.WithContext(middleware.WithSessionToken(req.Context(), token))
}

func TestCartCreateGuest(t *testing.T) {
	c := sampleCart()
	svc := &stubService{cart: c}

	rec := serve(t, newTestRouter(svc), httptest.NewRequest(http.MethodPost, "/carts", strings.NewReader(`{"currency":"usd"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "tok-1", rec.Header().Get(middleware.SessionHeader))
	assert.Equal(t, "USD", svc.createdCurrency)

	body := decodeCart(t, rec)
	assert.Equal(t, c.ID, body.ID)
	assert.Equal(t, enums.OwnerKindSession, body.OwnerKind)
	assert.Equal(t, 2, body.ItemCount)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "25.00", body.Items[0].Subtotal.Formatted)
	assert.Equal(t, int64(2500), body.Totals.Total.Amount)
}

func TestCartCreateWithoutBody(t *testing.T) {
	svc := &stubService{cart: sampleCart()}
	rec := serve(t, newTestRouter(svc), httptest.NewRequest(http.MethodPost, "/carts", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "", svc.createdCurrency)
}

func TestCartCreateForCustomer(t *testing.T) {
	c := sampleCart()
	c.Owner = cartsvc.CustomerOwner{CustomerID: "cust-1"}
	svc := &stubService{cart: c}

	req := withCustomer(httptest.NewRequest(http.MethodPost, "/carts", nil), "cust-1")
	rec := serve(t, newTestRouter(svc), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cust-1", svc.resolvedFor)
	assert.Empty(t, rec.Header().Get(middleware.SessionHeader))
	assert.Equal(t, "cust-1", decodeCart(t, rec).CustomerID)
}

func TestCartCurrentNeedsIdentity(t *testing.T) {
	rec := serve(t, newTestRouter(&stubService{}), httptest.NewRequest(http.MethodGet, "/carts/current", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartFetchPassesCredentials(t *testing.T) {
	c := sampleCart()
	svc := &stubService{cart: c}

	req := withSession(httptest.NewRequest(http.MethodGet, "/carts/"+c.ID.String(), nil), "tok-1")
	rec := serve(t, newTestRouter(svc), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-1", svc.fetchAuth.SessionToken)

	rec = serve(t, newTestRouter(svc), httptest.NewRequest(http.MethodGet, "/carts/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItemAddMapsInputAndErrors(t *testing.T) {
	c := sampleCart()
	svc := &stubService{cart: c}

	body := `{"product_id":" tee ","variant_id":"blue-m","quantity":3,"custom_attributes":{"engraving":"AB"}}`
	req := httptest.NewRequest(http.MethodPost, "/carts/"+c.ID.String()+"/items", strings.NewReader(body))
	req.Header.Set(middleware.IdempotencyHeader, "add-1")
	rec := serve(t, newTestRouter(svc), withSession(req, "tok-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tee", svc.addInput.ProductID)
	assert.Equal(t, 3, svc.addInput.Quantity)
	assert.Equal(t, "AB", svc.addInput.Attributes["engraving"])
	assert.Equal(t, c.ID, svc.addInput.CartID)
	assert.Equal(t, "add-1", svc.addInput.IdempotencyKey)
	assert.Equal(t, "tok-1", svc.addInput.Auth.SessionToken)

	svc.err = pkgerrors.New(pkgerrors.CodeCartMerged, "cart was merged")
	req = httptest.NewRequest(http.MethodPost, "/carts/"+c.ID.String()+"/items", strings.NewReader(body))
	rec = serve(t, newTestRouter(svc), req)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeCartMerged), errorCode(t, rec))
}

func TestCartUpdateDetails(t *testing.T) {
	c := sampleCart()
	svc := &stubService{cart: c}
	path := "/carts/" + c.ID.String()

	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"email":"a@example.com","shipping_method":"express"}`))
	rec := serve(t, newTestRouter(svc), withSession(req, "tok-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.detailsInput.Email)
	assert.Equal(t, "a@example.com", *svc.detailsInput.Email)
	require.NotNil(t, svc.detailsInput.ShippingMethod)
	assert.Equal(t, "express", *svc.detailsInput.ShippingMethod)
	assert.Nil(t, svc.detailsInput.Notes)
	assert.Equal(t, c.ID, svc.detailsInput.CartID)

	oversized := `{"notes":"` + strings.Repeat("x", 70<<10) + `"}`
	rec = serve(t, newTestRouter(svc), httptest.NewRequest(http.MethodPatch, path, strings.NewReader(oversized)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
}

func TestItemAddRejectsUnknownFields(t *testing.T) {
	c := sampleCart()
	req := httptest.NewRequest(http.MethodPost, "/carts/"+c.ID.String()+"/items", strings.NewReader(`{"product_id":"tee","price":1}`))
	rec := serve(t, newTestRouter(&stubService{cart: c}), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItemUpdate(t *testing.T) {
	c := sampleCart()
	svc := &stubService{cart: c}
	path := "/carts/" + c.ID.String() + "/items/" + c.Items[0].ID.String()

	rec := serve(t, newTestRouter(svc), httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, newTestRouter(svc), httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"custom_attributes":{}}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.updateInput.Quantity)
	require.NotNil(t, svc.updateInput.Attributes)
	assert.Empty(t, *svc.updateInput.Attributes)
	assert.Equal(t, c.Items[0].ID, svc.updateInput.ItemID)
}

func TestCouponApplyTrimsCode(t *testing.T) {
	c := sampleCart()
	svc := &stubService{cart: c}
	req := httptest.NewRequest(http.MethodPut, "/carts/"+c.ID.String()+"/coupon", strings.NewReader(`{"code":" save10 "}`))
	rec := serve(t, newTestRouter(svc), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "save10", svc.couponInput.Code)

	rec = serve(t, newTestRouter(svc), httptest.NewRequest(http.MethodPut, "/carts/"+c.ID.String()+"/coupon", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartDelete(t *testing.T) {
	c := sampleCart()
	svc := &stubService{cart: c}
	rec := serve(t, newTestRouter(svc), httptest.NewRequest(http.MethodDelete, "/carts/"+c.ID.String(), nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, svc.deleted)
	assert.Equal(t, c.ID, svc.deleted.CartID)
}

func TestCartMergeUsesSessionHeaderFallback(t *testing.T) {
	c := sampleCart()
	c.Owner = cartsvc.CustomerOwner{CustomerID: "cust-1"}
	source := uuid.New()
	svc := &stubService{mergeResult: &cartsvc.MergeResult{
		Cart:         c,
		SourceCartID: source,
		Notices: []cartsvc.MergeNotice{{
			Code: cartsvc.NoticeQuantityClamped, ItemID: c.Items[0].ID, ProductID: "tee", Requested: 11000, Applied: 9999,
		}},
	}}

	req := withSession(withCustomer(httptest.NewRequest(http.MethodPost, "/carts/merge", nil), "cust-1"), "tok-guest")
	rec := serve(t, newTestRouter(svc), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cust-1", svc.mergeInput.CustomerID)
	assert.Equal(t, "tok-guest", svc.mergeInput.SessionToken)

	var envelope struct {
		Data cartdto.MergeResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NotNil(t, envelope.Data.SourceCartID)
	assert.Equal(t, source, *envelope.Data.SourceCartID)
	require.Len(t, envelope.Data.Notices, 1)
	assert.Equal(t, 9999, envelope.Data.Notices[0].Applied)

	req = withCustomer(httptest.NewRequest(http.MethodPost, "/carts/merge", nil), "cust-1")
	rec = serve(t, newTestRouter(svc), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartConvert(t *testing.T) {
	c := sampleCart()
	c.Status = enums.CartStatusConverted
	c.ConvertedOrderID = "order-9"
	svc := &stubService{cart: c}
	path := "/internal/carts/" + c.ID.String() + "/convert"

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"order_id":"order-9"}`))
	req.Header.Set(middleware.IdempotencyHeader, "conv-1")
	rec := serve(t, newTestRouter(svc), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "order-9", svc.convertInput.OrderID)
	assert.Equal(t, "conv-1", svc.convertInput.IdempotencyKey)
	assert.Equal(t, "order-9", decodeCart(t, rec).ConvertedOrderID)

	rec = serve(t, newTestRouter(svc), httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNilService(t *testing.T) {
	rec := serve(t, newTestRouter(nil), httptest.NewRequest(http.MethodPost, "/carts", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
