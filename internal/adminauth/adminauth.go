// Package adminauth issues and validates the admin surface's optional
// signed bearer token. Grounded on the teacher's internal/auth/jwt.go,
// repurposed from per-user session claims to a single admin role claim
// since player sessions are authenticated by internal/authtoken's
// opaque tokens instead.
package adminauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

// Claims is the admin JWT's payload: just a role, since there is no
// per-admin identity modeled beyond "holds a valid signed token".
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a fresh admin token for ttl, used by operator tooling
// (not exposed over HTTP) to mint tokens out of band.
func Issue(secret, role string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("adminauth: signing secret is required")
	}
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dicehall-admin",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(secret))
}

// Parse validates a signed admin token and returns its claims.
func Parse(secret, tokenString string) (*Claims, error) {
	if secret == "" {
		return nil, fmt.Errorf("adminauth: signing secret is required")
	}
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid admin token")
	}
	return claims, nil
}
