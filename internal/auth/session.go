// Package auth issues and checks the signed session tokens behind the admin
// surface: a gate claim earned at the pre-password gate, then an admin
// subject earned at login.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin marks a fully logged-in administrator session.
const RoleAdmin = "admin"

// Claims represents the session token payload.
type Claims struct {
	Gate bool   `json:"gate"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueGate issues a session token carrying only the gate claim. It admits
// the holder to the login route and nothing else.
func IssueGate(issuer, key string, ttl time.Duration) (string, time.Time, error) {
	return issue(Claims{Gate: true}, issuer, key, ttl)
}

// IssueAdmin issues a full admin session token for username.
func IssueAdmin(username, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	claims := Claims{Gate: true, Role: RoleAdmin}
	claims.Subject = username
	return issue(claims, issuer, key, ttl)
}

func issue(claims Claims, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	exp := time.Now().Add(ttl)
	claims.Issuer = issuer
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	claims.IssuedAt = jwt.NewNumericDate(time.Now())
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a session token and returns its claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}
