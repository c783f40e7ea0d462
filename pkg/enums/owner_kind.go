package enums

import "fmt"

// OwnerKind tags the cart owner column pair (owner_kind, owner_value).
type OwnerKind string

const (
	OwnerKindSession  OwnerKind = "session"
	OwnerKindCustomer OwnerKind = "customer"
)

func (k OwnerKind) String() string {
	return string(k)
}

func (k OwnerKind) IsValid() bool {
	return k == OwnerKindSession || k == OwnerKindCustomer
}

// ParseOwnerKind converts raw input into an OwnerKind.
func ParseOwnerKind(value string) (OwnerKind, error) {
	kind := OwnerKind(value)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid owner kind %q", value)
	}
	return kind, nil
}
