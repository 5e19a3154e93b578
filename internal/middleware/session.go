package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

// ContextSessionKey is the gin context key storing the resolved session.
const ContextSessionKey = "currentSession"

type sessionAuthenticator interface {
	Authenticate(ctx context.Context, cookie string) (*models.Session, error)
}

// GateConfig names the session cookie and the login page.
type GateConfig struct {
	CookieName string
	Secure     bool
	LoginPath  string
	Logger     *zap.Logger
}

// SessionGate protects routes by requiring a stored session. Without one the
// request is redirected to the login page and aborted before any handler runs.
func SessionGate(auth sessionAuthenticator, cfg GateConfig) gin.HandlerFunc {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		cookie, err := c.Cookie(cfg.CookieName)
		if err != nil || cookie == "" {
			c.Redirect(http.StatusFound, cfg.LoginPath)
			c.Abort()
			return
		}

		sess, err := auth.Authenticate(c.Request.Context(), cookie)
		if err != nil {
			cfg.Logger.Debug("session rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			ClearSessionCookie(c, cfg.CookieName, cfg.Secure)
			c.Redirect(http.StatusFound, cfg.LoginPath)
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, sess)
		c.Next()
	}
}

// SessionFromContext returns the session set by SessionGate.
func SessionFromContext(c *gin.Context) *models.Session {
	value, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil
	}
	sess, ok := value.(*models.Session)
	if !ok {
		return nil
	}
	return sess
}

// SetSessionCookie writes the signed session cookie.
func SetSessionCookie(c *gin.Context, name, value string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", secure, true)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c *gin.Context, name string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", secure, true)
}
