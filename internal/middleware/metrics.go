package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

// UnmatchedRoute labels requests that matched no registered route.
const UnmatchedRoute = "unmatched"

type requestObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

// Metrics records every request under its route template. The :type segment
// of resource routes is expanded to the concrete resource type when it is a
// known one. Unknown types and unmatched paths collapse to fixed labels.
func Metrics(observer requestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		observer.ObserveHTTPRequest(c.Request.Method, RouteLabel(c), c.Writer.Status(), time.Since(start))
	}
}

// RouteLabel returns the metrics label for the request's route.
func RouteLabel(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return UnmatchedRoute
	}
	if !strings.Contains(route, ":type") {
		return route
	}
	if t, ok := models.ParseResourceType(c.Param("type")); ok {
		return strings.Replace(route, ":type", string(t), 1)
	}
	return route
}
