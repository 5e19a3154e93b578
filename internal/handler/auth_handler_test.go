package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
)

type fakeAuthService struct {
	req       dto.LoginRequest
	loginErr  error
	authErr   error
	loggedOut *models.Session
}

func (f *fakeAuthService) Login(_ context.Context, req dto.LoginRequest) (*models.Session, string, error) {
	f.req = req
	if f.loginErr != nil {
		return nil, "", f.loginErr
	}
	sess := testSession(models.RoleAdmin)
	sess.ExpiresAt = time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)
	return sess, "signed-cookie", nil
}

func (f *fakeAuthService) Authenticate(context.Context, string) (*models.Session, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return testSession(models.RoleAdmin), nil
}

func (f *fakeAuthService) Logout(_ context.Context, sess *models.Session) error {
	f.loggedOut = sess
	return nil
}

func (f *fakeAuthService) SessionTTL() time.Duration { return time.Hour }

type fakeForgetter struct{ forgotten []string }

func (f *fakeForgetter) Forget(id string) { f.forgotten = append(f.forgotten, id) }

func TestAuthHandlerLoginJSONSetsCookie(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc, nil, CookieConfig{Name: "sc_admin_session"})

	c, rec := newTestContext(nil)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"j@school.org","password":"pw"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	h.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "j@school.org", svc.req.Email)
	cookie := rec.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, "sc_admin_session=signed-cookie")
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "Max-Age=3600")
	assert.Contains(t, rec.Body.String(), `"expires_at":"2024-03-01T21:00:00Z"`)
}

func TestAuthHandlerLoginFormRedirectsHome(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{}, nil, CookieConfig{Name: "sc_admin_session"})
	form := url.Values{"email": {"j@school.org"}, "password": {"pw"}}

	c, rec := newTestContext(nil)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.Login(c)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestAuthHandlerLoginRoleRefused(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{loginErr: appErrors.ErrRoleNotPermitted}, nil, CookieConfig{Name: "sc_admin_session"})

	c, rec := newTestContext(nil)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"s@school.org","password":"pw"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	h.Login(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Set-Cookie"))
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "role not permitted to access the admin console", envelope.Error.Message)
}

func TestAuthHandlerLoginFormErrorRendersPage(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{loginErr: appErrors.Upstream(http.StatusUnauthorized, "invalid email or password")}, nil, CookieConfig{Name: "sc_admin_session"})
	form := url.Values{"email": {"j@school.org"}, "password": {"bad"}}

	c, rec := newTestContext(nil)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email or password")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestAuthHandlerLoginPage(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{authErr: appErrors.ErrSessionNotFound}, nil, CookieConfig{Name: "sc_admin_session"})
	c, rec := newTestContext(nil)
	c.Request = httptest.NewRequest(http.MethodGet, "/login", nil)
	h.LoginPage(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/auth/login"`)

	h = NewAuthHandler(&fakeAuthService{}, nil, CookieConfig{Name: "sc_admin_session"})
	c, rec = newTestContext(nil)
	c.Request = httptest.NewRequest(http.MethodGet, "/login", nil)
	c.Request.AddCookie(&http.Cookie{Name: "sc_admin_session", Value: "signed-cookie"})
	h.LoginPage(c)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestAuthHandlerLogoutForgetsImportsAndClearsCookie(t *testing.T) {
	svc := &fakeAuthService{}
	imports := &fakeForgetter{}
	h := NewAuthHandler(svc, imports, CookieConfig{Name: "sc_admin_session"})

	c, rec := newTestContext(testSession(models.RoleAdmin))
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	h.Logout(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	require.NotNil(t, svc.loggedOut)
	assert.Equal(t, []string{"sess-1"}, imports.forgotten)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{}, nil, CookieConfig{Name: "sc_admin_session"})

	c, rec := newTestContext(nil)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newTestContext(testSession(models.RoleSuperAdmin))
	c.Request = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	h.Me(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"SUPERADMIN"`)
}
