package cart

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/cartcore-backend/api/middleware"
	cartsvc "github.com/angelmondragon/cartcore-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).
			WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

func authFromRequest(r *http.Request) cartsvc.Auth {
	return cartsvc.Auth{
		SessionToken: middleware.SessionTokenFromContext(r.Context()),
		CustomerID:   middleware.CustomerIDFromContext(r.Context()),
	}
}

// cartRequest reads the cart id, the caller credentials and the optional
// idempotency key.
func cartRequest(r *http.Request) (cartsvc.Request, error) {
	cartID, err := uuidParam(r, "cartId")
	if err != nil {
		return cartsvc.Request{}, err
	}
	return cartsvc.Request{
		CartID:         cartID,
		Auth:           authFromRequest(r),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader)),
	}, nil
}
