package enums

import "fmt"

// CartStatus is the lifecycle state of a cart. Active is the only state that
// accepts changes; the rest are final.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusMerged    CartStatus = "merged"
	CartStatusConverted CartStatus = "converted"
	CartStatusExpired   CartStatus = "expired"
	CartStatusDeleted   CartStatus = "deleted"
)

func (c CartStatus) String() string {
	return string(c)
}

func (c CartStatus) IsValid() bool {
	switch c {
	case CartStatusActive, CartStatusMerged, CartStatusConverted, CartStatusExpired, CartStatusDeleted:
		return true
	}
	return false
}

// IsTerminal reports whether the cart can no longer change.
func (c CartStatus) IsTerminal() bool {
	return c.IsValid() && c != CartStatusActive
}

// ParseCartStatus reads a status column value.
func ParseCartStatus(value string) (CartStatus, error) {
	status := CartStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid cart status %q", value)
	}
	return status, nil
}
