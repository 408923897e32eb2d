// Package auth tracks the judge's bearer token and refreshes it before it
// expires.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoCredentials means neither a token nor a refresh token is stored.
	ErrNoCredentials = errors.New("no credentials")
	// ErrInvalidToken wraps any failure to read a token's claims.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the claims the scoring API puts in its tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

// ParseClaims reads the claims of token. With a secret the HS512 signature
// is verified; without one the claims are only decoded, which is enough to
// schedule a refresh. Expiry is never enforced here so expired tokens can
// still be inspected.
func ParseClaims(token string, secret []byte) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidToken)
	}

	var claims Claims
	var err error
	if len(secret) == 0 {
		_, _, err = jwt.NewParser().ParseUnverified(token, &claims)
	} else {
		_, err = jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (any, error) {
			return secret, nil
		},
			jwt.WithValidMethods([]string{"HS512"}),
			jwt.WithoutClaimsValidation(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: exp is required", ErrInvalidToken)
	}
	return &claims, nil
}
