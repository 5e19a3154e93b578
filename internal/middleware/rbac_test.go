package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

func rbacRouter(role models.UserRole, guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextSessionKey, &models.Session{ID: "s1", User: models.UserProfile{ID: "u1", Role: role}})
		c.Next()
	})
	r.Use(guard)
	r.POST("/api/resources/:type", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.PUT("/api/users/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r *gin.Engine, method, path string) int {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec.Code
}

func TestRequireRolesForOnlyGuardsNamedType(t *testing.T) {
	guard := RequireRolesFor(models.ResourceUsers, models.RoleSuperAdmin)

	admin := rbacRouter(models.RoleAdmin, guard)
	assert.Equal(t, http.StatusCreated, serve(admin, http.MethodPost, "/api/resources/subjects"))
	assert.Equal(t, http.StatusForbidden, serve(admin, http.MethodPost, "/api/resources/users"))

	super := rbacRouter(models.RoleSuperAdmin, guard)
	assert.Equal(t, http.StatusCreated, serve(super, http.MethodPost, "/api/resources/users"))
}

func TestRBACSelf(t *testing.T) {
	r := rbacRouter(models.RoleAdmin, RBAC(string(models.RoleSuperAdmin), "SELF"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPut, "/api/users/u1"))
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPut, "/api/users/u2"))
}

func TestRBACWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireRoles(models.RoleAdmin))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/x"))
}
