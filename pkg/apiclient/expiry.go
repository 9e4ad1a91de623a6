package apiclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiresSoon reports whether token is a JWT whose exp claim falls within
// ExpiryLeeway. Opaque tokens and JWTs without exp never count as expiring.
func (c *Client) expiresSoon(token string) bool {
	exp, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return c.now().Add(ExpiryLeeway).After(exp)
}

// TokenExpiry returns the exp claim of a JWT without verifying its
// signature; the backend does that.
func TokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
