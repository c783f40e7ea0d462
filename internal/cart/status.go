package cart

import (
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

// Transition validates a status change. Only active carts move, and only
// into a terminal state.
func Transition(from, to enums.CartStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown cart status")
	}
	if from != enums.CartStatusActive {
		return terminalError(from)
	}
	if to == enums.CartStatusActive {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is already active")
	}
	return nil
}

// terminalError maps a non-active status to the error a mutation attempt
// receives.
func terminalError(status enums.CartStatus) error {
	switch status {
	case enums.CartStatusMerged:
		return pkgerrors.New(pkgerrors.CodeCartMerged, "cart was merged into another cart")
	case enums.CartStatusConverted:
		return pkgerrors.New(pkgerrors.CodeCartConverted, "cart already converted to an order")
	case enums.CartStatusExpired:
		return pkgerrors.New(pkgerrors.CodeCartExpired, "cart expired")
	case enums.CartStatusDeleted:
		return pkgerrors.New(pkgerrors.CodeCartDeleted, "cart deleted")
	case enums.CartStatusActive:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, "unknown cart status")
	}
}

// readError is the error a read of a cart in status receives. Terminal
// carts other than deleted stay readable.
func readError(status enums.CartStatus) error {
	if status == enums.CartStatusDeleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return nil
}
