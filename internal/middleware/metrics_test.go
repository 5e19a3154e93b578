package middleware

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type observedRequest struct {
	method string
	route  string
	status int
}

type requestLog struct {
	mu       sync.Mutex
	requests []observedRequest
}

func (l *requestLog) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, observedRequest{method: method, route: path, status: status})
}

func TestMetricsLabelsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := &requestLog{}
	r := gin.New()
	r.Use(Metrics(log))
	r.GET("/api/resources/:type", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.DELETE("/api/resources/:type/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/api/resources/Subjects")
	serve(r, http.MethodDelete, "/api/resources/activities/a1")
	serve(r, http.MethodGet, "/api/resources/wp-admin")
	serve(r, http.MethodGet, "/health")
	serve(r, http.MethodGet, "/.env")

	assert.Equal(t, []observedRequest{
		{method: http.MethodGet, route: "/api/resources/subjects", status: http.StatusOK},
		{method: http.MethodDelete, route: "/api/resources/activities/:id", status: http.StatusNoContent},
		{method: http.MethodGet, route: "/api/resources/:type", status: http.StatusOK},
		{method: http.MethodGet, route: "/health", status: http.StatusOK},
		{method: http.MethodGet, route: UnmatchedRoute, status: http.StatusNotFound},
	}, log.requests)
}

func TestMetricsWithoutObserverPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health"))
}
