package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LikelyValid reports whether token carries an exp claim later than
// now+margin. The signature is not verified; the server stays authoritative.
func LikelyValid(token string, now time.Time, margin time.Duration) bool {
	if token == "" {
		return false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.After(now.Add(margin))
}

// ExpiresAt returns the token's exp claim without verifying the signature.
func ExpiresAt(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
