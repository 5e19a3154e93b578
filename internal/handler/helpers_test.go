package handler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supercurriculum-admin/internal/middleware"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

type responseEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Meta  map[string]interface{} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func testSession(role models.UserRole) *models.Session {
	return &models.Session{ID: "sess-1", Token: "tok", User: models.UserProfile{ID: "u1", DisplayName: "Ms Jones", Role: role}}
}

func newTestContext(sess *models.Session) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Set("response_meta", map[string]interface{}{})
	if sess != nil {
		c.Set(middleware.ContextSessionKey, sess)
	}
	return c, rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}
