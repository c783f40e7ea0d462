// Package rates supplies tax and shipping amounts for cart recomputation.
package rates

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/cartcore-backend/internal/pricing"
	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

// Request describes the cart state a quote is computed for. TaxableCents is
// the discounted subtotal of taxable lines.
type Request struct {
	Currency         enums.Currency
	TaxableCents     int64
	ShippingMethod   string
	RequiresShipping bool
}

type Quote struct {
	TaxCents      int64
	ShippingCents int64
}

// Provider returns tax and shipping for a cart.
type Provider interface {
	Quote(ctx context.Context, req Request) (Quote, error)
}

// FlatProvider charges a single tax rate and a fixed fee per shipping method.
type FlatProvider struct {
	taxBPS        int64
	methods       map[string]int64
	defaultMethod string
}

func NewFlatProvider(cfg config.RatesConfig) (*FlatProvider, error) {
	if cfg.TaxRateBPS < 0 {
		return nil, fmt.Errorf("tax rate must not be negative")
	}
	methods := make(map[string]int64, len(cfg.ShippingMethods))
	for name, fee := range cfg.ShippingMethods {
		if fee < 0 {
			return nil, fmt.Errorf("shipping method %q has a negative fee", name)
		}
		methods[normalizeMethod(name)] = fee
	}
	defaultMethod := normalizeMethod(cfg.DefaultShippingMethod)
	if _, ok := methods[defaultMethod]; defaultMethod != "" && !ok {
		return nil, fmt.Errorf("default shipping method %q is not configured", defaultMethod)
	}
	return &FlatProvider{taxBPS: cfg.TaxRateBPS, methods: methods, defaultMethod: defaultMethod}, nil
}

func (p *FlatProvider) Quote(ctx context.Context, req Request) (Quote, error) {
	var q Quote
	if req.TaxableCents > 0 {
		q.TaxCents = pricing.BasisPoints(req.TaxableCents, p.taxBPS)
	}
	if !req.RequiresShipping {
		return q, nil
	}
	method := normalizeMethod(req.ShippingMethod)
	if method == "" {
		method = p.defaultMethod
	}
	fee, ok := p.methods[method]
	if !ok {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping method").
			WithDetails(map[string]any{"shippingMethod": req.ShippingMethod})
	}
	q.ShippingCents = fee
	return q, nil
}

// SupportsMethod reports whether method is configured.
func (p *FlatProvider) SupportsMethod(method string) bool {
	_, ok := p.methods[normalizeMethod(method)]
	return ok
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}
