package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeInvalidQuantity Code = "INVALID_QUANTITY"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeItemNotFound    Code = "ITEM_NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeIdempotency     Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit       Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeDependency      Code = "DEPENDENCY_ERROR"

	CodeCartExpired   Code = "CART_EXPIRED"
	CodeCartConverted Code = "CART_CONVERTED"
	CodeCartMerged    Code = "CART_MERGED"
	CodeCartDeleted   Code = "CART_DELETED"

	CodeProductNotAvailable Code = "PRODUCT_NOT_AVAILABLE"

	CodeCouponInvalid       Code = "COUPON_INVALID"
	CodeCouponMinimumNotMet Code = "COUPON_MINIMUM_NOT_MET"
	CodeCouponUsageLimit    Code = "COUPON_USAGE_LIMIT"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:      {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeInvalidQuantity: {HTTPStatus: http.StatusBadRequest, PublicMessage: "quantity out of range", DetailsAllowed: true},
	CodeUnauthorized:    {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:       {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:        {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeItemNotFound:    {HTTPStatus: http.StatusNotFound, PublicMessage: "cart item not found"},
	CodeConflict:        {HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "conflict detected", DetailsAllowed: true},
	CodeIdempotency:     {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
	CodeRateLimit:       {HTTPStatus: http.StatusTooManyRequests, Retryable: true, PublicMessage: "too many requests"},
	CodeInternal:        {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency:      {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},

	CodeCartExpired:   {HTTPStatus: http.StatusGone, PublicMessage: "cart expired"},
	CodeCartConverted: {HTTPStatus: http.StatusConflict, PublicMessage: "cart already converted to an order"},
	CodeCartMerged:    {HTTPStatus: http.StatusConflict, PublicMessage: "cart was merged into another cart", DetailsAllowed: true},
	CodeCartDeleted:   {HTTPStatus: http.StatusGone, PublicMessage: "cart deleted"},

	CodeProductNotAvailable: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "product not available", DetailsAllowed: true},

	CodeCouponInvalid:       {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "coupon is not valid"},
	CodeCouponMinimumNotMet: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "coupon minimum spend not met", DetailsAllowed: true},
	CodeCouponUsageLimit:    {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "coupon usage limit reached"},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code carried by err, or CodeInternal when err is untyped.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.code
	}
	return CodeInternal
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var typed *Error
		if !stdErrors.As(err, &typed) {
			return false
		}
		if typed.code == code {
			return true
		}
		err = typed.cause
	}
	return false
}
