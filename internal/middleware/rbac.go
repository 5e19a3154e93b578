package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
	"github.com/noah-isme/supercurriculum-admin/pkg/response"
)

// RBAC enforces role-based access control for routes behind SessionGate.
// "SELF" allows a user to act on the resource whose :id is their own.
func RBAC(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := SessionFromContext(c)
		if sess == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		allowSelf := false
		allowedRoles := make(map[models.UserRole]struct{})

		for _, a := range allowed {
			if a == "SELF" {
				allowSelf = true
				continue
			}
			allowedRoles[models.UserRole(a)] = struct{}{}
		}

		if _, ok := allowedRoles[sess.User.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == sess.User.ID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

// RequireRolesFor guards only requests whose :type path segment is t, so one
// route group can carry a stricter rule for a single resource type.
func RequireRolesFor(t models.ResourceType, roles ...models.UserRole) gin.HandlerFunc {
	guard := RequireRoles(roles...)
	return func(c *gin.Context) {
		if parsed, ok := models.ParseResourceType(c.Param("type")); !ok || parsed != t {
			c.Next()
			return
		}
		guard(c)
	}
}
