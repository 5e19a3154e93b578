package models

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are carried by the signed session cookie. The JWT ID is the
// server-side session id; the subject is the backend user id.
type SessionClaims struct {
	Role UserRole `json:"role"`
	jwt.RegisteredClaims
}
