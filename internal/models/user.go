package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// UserRole represents the roles issued by the backend.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
)

// UserProfile is the serialized user object kept alongside the credential.
type UserProfile struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email,omitempty"`
	Role        UserRole `json:"role"`
}

// Session holds the two session slots: the opaque bearer credential and the user profile.
type Session struct {
	ID        string      `json:"id"`
	Token     string      `json:"token"`
	User      UserProfile `json:"user"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Credential returns the bearer token, tolerating a nil session.
func (s *Session) Credential() string {
	if s == nil {
		return ""
	}
	return s.Token
}

// Principal identifies the credential behind the session without exposing it.
// Sessions without a token share the empty principal.
func (s *Session) Principal() string {
	token := s.Credential()
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// Expired reports whether the session is past its local lifetime.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
