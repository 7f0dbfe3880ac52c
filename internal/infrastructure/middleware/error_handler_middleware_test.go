package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "meetsignal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func errorRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop().Sugar()
	router := gin.New()
	router.Use(RecoveryMiddleware(logger), ErrorHandlerMiddleware(logger))
	router.GET("/app", func(c *gin.Context) {
		_ = c.Error(apperrors.NewValidationError("bad meeting id").WithContext("field", "meetingId"))
	})
	router.GET("/mismatched", func(c *gin.Context) {
		// the code decides the status, not the status the caller guessed
		_ = c.Error(apperrors.NewAppError(apperrors.ErrCodeAlreadyInMeeting, "in m1", http.StatusBadRequest))
	})
	router.GET("/limited", func(c *gin.Context) {
		_ = c.Error(apperrors.NewRateLimitError())
	})
	router.GET("/unavailable", func(c *gin.Context) {
		_ = c.Error(apperrors.WrapError(errors.New("dispatcher stopped"), apperrors.ErrCodeServiceUnavailable, "signaling core unavailable", 0))
	})
	router.GET("/unauthorized", func(c *gin.Context) {
		_ = c.Error(apperrors.NewUnauthorizedError("token required"))
	})
	router.GET("/written", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		_ = c.Error(apperrors.NewInternalError("late"))
	})
	router.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("unexpected")
	})
	return router
}

func TestErrorHandlerMiddleware(t *testing.T) {
	tests := []struct {
		path   string
		status int
		code   string
		header string
		value  string
	}{
		{"/app", http.StatusBadRequest, "VALIDATION_ERROR", "", ""},
		{"/mismatched", http.StatusConflict, "ALREADY_IN_MEETING", "", ""},
		{"/limited", http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Retry-After", "1"},
		{"/unavailable", http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Retry-After", "5"},
		{"/unauthorized", http.StatusUnauthorized, "UNAUTHORIZED", "WWW-Authenticate", "Bearer"},
		{"/plain", http.StatusInternalServerError, "INTERNAL_ERROR", "", ""},
		{"/panic", http.StatusInternalServerError, "INTERNAL_ERROR", "", ""},
	}
	router := errorRouter()
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
			if tt.header != "" {
				assert.Equal(t, tt.value, w.Header().Get(tt.header))
			}
		})
	}
}

func TestErrorHandlerMiddleware_Body(t *testing.T) {
	router := errorRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app", nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body["error"])
	assert.Equal(t, map[string]interface{}{"field": "meetingId"}, body["details"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unavailable", nil))
	assert.NotContains(t, w.Body.String(), "dispatcher stopped", "causes are logged, not returned")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}
