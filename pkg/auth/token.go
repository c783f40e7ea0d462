package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/cartcore-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// Mint issues a signed token. The cart API only verifies tokens; Mint backs
// tests and local tooling.
func Mint(cfg config.JWTConfig, now time.Time, ttl time.Duration, kind Kind, subject, email string) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("jwt issuer is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("jwt ttl must be positive")
	}
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid token kind %q", kind)
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("jwt subject is required")
	}

	claims := Claims{
		Kind:  kind,
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Parse validates the token signature, issuer and expiry and returns the
// typed claims.
func Parse(cfg config.JWTConfig, tokenString string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !claims.Kind.IsValid() {
		return nil, fmt.Errorf("invalid token kind %q", claims.Kind)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("token subject missing")
	}
	return claims, nil
}
