package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
)

type credentialIssuer interface {
	Login(ctx context.Context, email, password string) (*dto.LoginResult, error)
}

type sessionStore interface {
	Save(ctx context.Context, sess *models.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

// AuthConfig defines configuration for console sessions.
type AuthConfig struct {
	CookieSecret   string
	SessionTTL     time.Duration
	Issuer         string
	PermittedRoles []models.UserRole
}

// AuthService opens and closes console sessions. The backend issues and
// enforces the bearer credential; this service only stores it and decides
// which roles may enter the console.
type AuthService struct {
	api       credentialIssuer
	store     sessionStore
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	permitted map[models.UserRole]struct{}
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(api credentialIssuer, store sessionStore, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 12 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "supercurriculum-admin"
	}
	if len(config.PermittedRoles) == 0 {
		config.PermittedRoles = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}
	}
	permitted := make(map[models.UserRole]struct{}, len(config.PermittedRoles))
	for _, role := range config.PermittedRoles {
		permitted[models.UserRole(strings.ToUpper(string(role)))] = struct{}{}
	}
	return &AuthService{
		api:       api,
		store:     store,
		validator: validate,
		logger:    logger,
		config:    config,
		permitted: permitted,
		now:       time.Now,
	}
}

// RolePermitted reports whether role may pass the session gate.
func (s *AuthService) RolePermitted(role models.UserRole) bool {
	_, ok := s.permitted[role]
	return ok
}

// Login exchanges credentials with the backend, checks the role and opens a
// session. It returns the session and the signed cookie value.
func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*models.Session, string, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	result, err := s.api.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, "", err
	}
	if result.Token == "" {
		return nil, "", appErrors.Clone(appErrors.ErrUpstream, "backend issued no credential")
	}
	if !s.RolePermitted(result.User.Role) {
		s.logger.Info("login refused for role", zap.String("user_id", result.User.ID), zap.String("role", string(result.User.Role)))
		return nil, "", appErrors.ErrRoleNotPermitted
	}

	now := s.now().UTC()
	sess := &models.Session{
		ID:        uuid.NewString(),
		Token:     result.Token,
		User:      result.User,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}
	if err := s.store.Save(ctx, sess, s.config.SessionTTL); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
	}

	cookie, err := s.signSession(sess)
	if err != nil {
		_ = s.store.Delete(ctx, sess.ID)
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign session")
	}
	return sess, cookie, nil
}

// Authenticate resolves a signed cookie value into the stored session.
func (s *AuthService) Authenticate(ctx context.Context, cookie string) (*models.Session, error) {
	if cookie == "" {
		return nil, appErrors.ErrUnauthorized
	}
	claims, err := s.ValidateToken(cookie)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, appErrors.ErrSessionNotFound) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if sess.Expired(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session expired")
	}
	if !s.RolePermitted(sess.User.Role) {
		return nil, appErrors.ErrRoleNotPermitted
	}
	return sess, nil
}

// Logout deletes the session; the backend credential is simply forgotten.
func (s *AuthService) Logout(ctx context.Context, sess *models.Session) error {
	if sess == nil {
		return nil
	}
	if err := s.store.Delete(ctx, sess.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	return nil
}

// SessionTTL exposes the configured lifetime for cookie max-age.
func (s *AuthService) SessionTTL() time.Duration {
	return s.config.SessionTTL
}

// ValidateToken parses and validates a session cookie returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.CookieSecret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid session")
	}

	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session claims")
	}
	return claims, nil
}

func (s *AuthService) signSession(sess *models.Session) (string, error) {
	claims := models.SessionClaims{
		Role: sess.User.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.User.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.CookieSecret))
}
