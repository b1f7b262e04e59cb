// Package auth reads the clinic API's access tokens. The portal is not the
// token's audience and cannot verify signatures; it only looks at the
// claims to avoid sending a token that has already expired.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the registered claims the portal cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Inspect parses token without verifying it. Opaque tokens fail.
func Inspect(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}
	var out Claims
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// Expiry is the exp claim of token, or the zero time when the token is
// opaque or carries none.
func Expiry(token string) time.Time {
	c, err := Inspect(token)
	if err != nil {
		return time.Time{}
	}
	return c.ExpiresAt
}

// Expired reports whether token carries an exp claim before now.
func Expired(token string, now time.Time) bool {
	exp := Expiry(token)
	return !exp.IsZero() && now.After(exp)
}
