package cart

import (
	"net/http"
	"strings"

	cartdto "github.com/angelmondragon/cartcore-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/cartcore-backend/api/middleware"
	"github.com/angelmondragon/cartcore-backend/api/responses"
	"github.com/angelmondragon/cartcore-backend/api/validators"
	cartsvc "github.com/angelmondragon/cartcore-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

// mutationFunc runs one cart mutation built from the decoded request.
type mutationFunc func(w http.ResponseWriter, r *http.Request, req cartsvc.Request) (*cartsvc.Cart, error)

func serviceMissing(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
}

func mutation(svc cartsvc.Service, logg *logger.Logger, fn mutationFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceMissing(w, r, logg)
			return
		}
		req, err := cartRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		c, err := fn(w, r, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCart(c))
	}
}

// CartCreate opens a guest cart, or resolves the active cart of an
// authenticated customer.
func CartCreate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceMissing(w, r, logg)
			return
		}

		var payload cartdto.CreateCartRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency := strings.ToUpper(strings.TrimSpace(payload.Currency))

		if customerID := middleware.CustomerIDFromContext(r.Context()); customerID != "" {
			c, err := svc.ResolveCustomerCart(r.Context(), customerID, currency)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, newCart(c))
			return
		}

		c, err := svc.CreateGuest(r.Context(), currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set(middleware.SessionHeader, c.SessionToken())
		responses.WriteSuccessStatus(w, http.StatusCreated, newCart(c))
	}
}

// CartCurrent returns the caller's active cart. Customers get one created on
// demand; guests must present their session token.
func CartCurrent(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceMissing(w, r, logg)
			return
		}

		var (
			c   *cartsvc.Cart
			err error
		)
		auth := authFromRequest(r)
		switch {
		case auth.CustomerID != "":
			c, err = svc.ResolveCustomerCart(r.Context(), auth.CustomerID, "")
		case auth.SessionToken != "":
			c, err = svc.FetchBySession(r.Context(), auth.SessionToken)
		default:
			err = pkgerrors.New(pkgerrors.CodeUnauthorized, "session token or bearer token required")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCart(c))
	}
}

func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceMissing(w, r, logg)
			return
		}
		cartID, err := uuidParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		c, err := svc.Fetch(r.Context(), cartID, authFromRequest(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCart(c))
	}
}

func CartUpdateDetails(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutation(svc, logg, func(w http.ResponseWriter, r *http.Request, req cartsvc.Request) (*cartsvc.Cart, error) {
		var payload cartdto.UpdateDetailsRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateDetails(r.Context(), cartsvc.UpdateDetailsInput{
			Request:        req,
			Email:          payload.Email,
			ShippingMethod: payload.ShippingMethod,
			Notes:          payload.Notes,
		})
	})
}

func CartDelete(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceMissing(w, r, logg)
			return
		}
		req, err := cartRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ItemAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutation(svc, logg, func(w http.ResponseWriter, r *http.Request, req cartsvc.Request) (*cartsvc.Cart, error) {
		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), cartsvc.AddItemInput{
			Request:    req,
			ProductID:  strings.TrimSpace(payload.ProductID),
			VariantID:  strings.TrimSpace(payload.VariantID),
			Quantity:   payload.Quantity,
			Attributes: payload.CustomAttributes,
		})
	})
}

func ItemUpdate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutation(svc, logg, func(w http.ResponseWriter, r *http.Request, req cartsvc.Request) (*cartsvc.Cart, error) {
		itemID, err := uuidParam(r, "itemId")
		if err != nil {
			return nil, err
		}
		var payload cartdto.UpdateItemRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			return nil, err
		}
		if payload.Quantity == nil && payload.CustomAttributes == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity or custom_attributes is required")
		}
		return svc.UpdateItem(r.Context(), cartsvc.UpdateItemInput{
			Request:    req,
			ItemID:     itemID,
			Quantity:   payload.Quantity,
			Attributes: payload.CustomAttributes,
		})
	})
}

func ItemRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutation(svc, logg, func(_ http.ResponseWriter, r *http.Request, req cartsvc.Request) (*cartsvc.Cart, error) {
		itemID, err := uuidParam(r, "itemId")
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(r.Context(), cartsvc.RemoveItemInput{Request: req, ItemID: itemID})
	})
}

func ItemsClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutation(svc, logg, func(_ http.ResponseWriter, r *http.Request, req cartsvc.Request) (*cartsvc.Cart, error) {
		return svc.ClearItems(r.Context(), req)
	})
}

func CouponApply(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutation(svc, logg, func(w http.ResponseWriter, r *http.Request, req cartsvc.Request) (*cartsvc.Cart, error) {
		var payload cartdto.ApplyCouponRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			return nil, err
		}
		return svc.ApplyCoupon(r.Context(), cartsvc.ApplyCouponInput{
			Request: req,
			Code:    validators.SanitizeString(payload.Code, 64),
		})
	})
}

func CouponRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutation(svc, logg, func(_ http.ResponseWriter, r *http.Request, req cartsvc.Request) (*cartsvc.Cart, error) {
		return svc.RemoveCoupon(r.Context(), req)
	})
}

// CartMerge folds the guest cart into the authenticated customer's cart.
func CartMerge(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceMissing(w, r, logg)
			return
		}

		var payload cartdto.MergeRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token := strings.TrimSpace(payload.SessionToken)
		if token == "" {
			token = middleware.SessionTokenFromContext(r.Context())
		}
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session token is required"))
			return
		}

		res, err := svc.Merge(r.Context(), cartsvc.MergeInput{
			CustomerID:     middleware.CustomerIDFromContext(r.Context()),
			SessionToken:   token,
			IdempotencyKey: strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newMergeResult(res))
	}
}

// CartConvert is called by the order service once an order was placed.
func CartConvert(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceMissing(w, r, logg)
			return
		}
		cartID, err := uuidParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cartdto.ConvertRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		c, err := svc.MarkConverted(r.Context(), cartsvc.ConvertInput{
			CartID:         cartID,
			OrderID:        validators.SanitizeString(payload.OrderID, 128),
			IdempotencyKey: strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCart(c))
	}
}
