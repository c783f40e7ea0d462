package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Kind separates shopper tokens from service-to-service tokens.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindService  Kind = "service"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindCustomer, KindService:
		return true
	}
	return false
}

// Claims is the bearer token minted by the identity service. The subject is
// the customer id for customer tokens and the calling service name otherwise.
type Claims struct {
	Kind  Kind   `json:"kind"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// CustomerID returns the subject of a customer token, or "".
func (c *Claims) CustomerID() string {
	if c == nil || c.Kind != KindCustomer {
		return ""
	}
	return strings.TrimSpace(c.Subject)
}

// ServiceName returns the subject of a service token, or "".
func (c *Claims) ServiceName() string {
	if c == nil || c.Kind != KindService {
		return ""
	}
	return strings.TrimSpace(c.Subject)
}
