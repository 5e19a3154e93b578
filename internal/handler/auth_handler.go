package handler

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/middleware"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
	"github.com/noah-isme/supercurriculum-admin/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*models.Session, string, error)
	Authenticate(ctx context.Context, cookie string) (*models.Session, error)
	Logout(ctx context.Context, sess *models.Session) error
	SessionTTL() time.Duration
}

type sessionForgetter interface {
	Forget(sessionID string)
}

// CookieConfig describes the session cookie written on login.
type CookieConfig struct {
	Name     string
	Secure   bool
	HomePath string
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
	imports sessionForgetter
	cookie  CookieConfig
}

// NewAuthHandler creates a new handler. imports may be nil.
func NewAuthHandler(svc authService, imports sessionForgetter, cookie CookieConfig) *AuthHandler {
	if cookie.HomePath == "" {
		cookie.HomePath = "/"
	}
	return &AuthHandler{service: svc, imports: imports, cookie: cookie}
}

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Supercurriculum admin</title></head>
<body>
<h1>Supercurriculum admin</h1>
{{if .}}<p role="alert">{{.}}</p>{{end}}
<form method="post" action="/auth/login">
<label>Email <input type="email" name="email" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>`))

// LoginPage renders the login form, or sends a signed-in user home.
func (h *AuthHandler) LoginPage(c *gin.Context) {
	if cookie, err := c.Cookie(h.cookie.Name); err == nil && cookie != "" {
		if _, err := h.service.Authenticate(c.Request.Context(), cookie); err == nil {
			c.Redirect(http.StatusFound, h.cookie.HomePath)
			return
		}
	}
	h.renderLogin(c, http.StatusOK, "")
}

// Login godoc
// @Summary Open a console session
// @Description Exchanges credentials with the backend and sets the session cookie. Only permitted roles may sign in.
// @Tags Authentication
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param payload body dto.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	fromForm := c.ContentType() != gin.MIMEJSON
	var req dto.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.loginFailed(c, fromForm, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	sess, cookie, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.loginFailed(c, fromForm, err)
		return
	}

	middleware.SetSessionCookie(c, h.cookie.Name, cookie, int(h.service.SessionTTL().Seconds()), h.cookie.Secure)
	if fromForm {
		c.Redirect(http.StatusSeeOther, h.cookie.HomePath)
		return
	}
	response.JSON(c, http.StatusOK, dto.SessionResponse{
		User:      sess.User,
		ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
	})
}

// Logout godoc
// @Summary Close the current session
// @Tags Authentication
// @Success 204
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	if sess == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Logout(c.Request.Context(), sess); err != nil {
		response.Error(c, err)
		return
	}
	if h.imports != nil {
		h.imports.Forget(sess.ID)
	}
	middleware.ClearSessionCookie(c, h.cookie.Name, h.cookie.Secure)
	response.NoContent(c)
}

// Me godoc
// @Summary Get current user
// @Description Returns the signed-in user's profile.
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	if sess == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, dto.SessionResponse{
		User:      sess.User,
		ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *AuthHandler) loginFailed(c *gin.Context, fromForm bool, err error) {
	if !fromForm {
		response.Error(c, err)
		return
	}
	appErr := appErrors.FromError(err)
	h.renderLogin(c, appErr.Status, appErr.Message)
}

func (h *AuthHandler) renderLogin(c *gin.Context, status int, message string) {
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	_ = loginPage.Execute(c.Writer, message)
}
