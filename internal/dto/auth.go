package dto

import "github.com/noah-isme/supercurriculum-admin/internal/models"

// LoginRequest is the console login form.
type LoginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

// LoginResult is the backend's credential issuance response.
type LoginResult struct {
	Token string             `json:"token"`
	User  models.UserProfile `json:"user"`
}

// SessionResponse is returned to the console after a successful login.
type SessionResponse struct {
	User      models.UserProfile `json:"user"`
	ExpiresAt string             `json:"expires_at"`
}
