package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/internal/middleware"
	"github.com/noah-isme/fabnest-api/internal/models"
)

type apiEnvelope struct {
	Data       json.RawMessage    `json:"data"`
	Error      *apiError          `json:"error"`
	Pagination *models.Pagination `json:"pagination"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newTestContext(method, target string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	var payload *bytes.Reader
	switch v := body.(type) {
	case nil:
		payload = bytes.NewReader(nil)
	case string:
		payload = bytes.NewReader([]byte(v))
	default:
		raw, _ := json.Marshal(v)
		payload = bytes.NewReader(raw)
	}
	c.Request = httptest.NewRequest(method, target, payload)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin}
}

func customerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Email: "user@example.com", Role: models.RoleUser}
}
