package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
)

// Envelope is the body of every JSON response and every stream event.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response. Non-empty meta maps are merged into the envelope.
func JSON(c *gin.Context, status int, data interface{}, meta ...map[string]interface{}) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, Meta: mergeMeta(meta)})
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// Error sends an error response converting the error to the common structure.
// Upstream failures keep the backend's status; anything unrecognised is a 500.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// Event writes one server-sent event whose data is an envelope, so stream
// consumers decode the same shape as JSON responses.
func Event(c *gin.Context, name string, data interface{}, meta ...map[string]interface{}) {
	c.SSEvent(name, Envelope{Data: data, Meta: mergeMeta(meta)})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	noStore(c)
	c.Status(http.StatusNoContent)
}

// Session-scoped data must never be kept by shared caches.
func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

func mergeMeta(meta []map[string]interface{}) map[string]interface{} {
	var out map[string]interface{}
	for _, m := range meta {
		for k, v := range m {
			if out == nil {
				out = make(map[string]interface{}, len(m))
			}
			out[k] = v
		}
	}
	return out
}
