package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func setupMiddlewareTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), ErrorHandler(zap.NewNop()))
	router.Use(handlers...)

	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString(KeySubject)})
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return router
}

func perform(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var response struct {
		Success bool `json:"success"`
		Error   struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Success)
	assert.NotEmpty(t, response.Timestamp)
	assert.Equal(t, w.Header().Get(HeaderRequestID), response.Error.RequestID)
	return response.Error.Code
}

func TestRequestID(t *testing.T) {
	router := setupMiddlewareTestRouter()

	w := perform(router, "/ok", "")
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestErrorHandler_RecoversPanic(t *testing.T) {
	router := setupMiddlewareTestRouter()

	w := perform(router, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", errorCode(t, w))
}

func TestJWTAuth(t *testing.T) {
	router := setupMiddlewareTestRouter(JWTAuth(testSecret))

	valid, err := GenerateToken("ci", testSecret, time.Hour)
	require.NoError(t, err)
	otherSecret, err := GenerateToken("ci", "other", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken("ci", testSecret, -time.Minute)
	require.NoError(t, err)

	foreignIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name         string
		header       string
		expectedCode string
	}{
		{"missing", "", "MISSING_TOKEN"},
		{"wrong scheme", "Basic " + valid, "INVALID_TOKEN_FORMAT"},
		{"no token", "Bearer", "INVALID_TOKEN_FORMAT"},
		{"wrong secret", "Bearer " + otherSecret, "INVALID_SIGNATURE"},
		{"expired", "Bearer " + expired, "TOKEN_EXPIRED"},
		{"foreign issuer", "Bearer " + foreignIssuer, "INVALID_TOKEN"},
		{"garbage", "Bearer not.a.token", "INVALID_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(router, "/ok", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.expectedCode, errorCode(t, w))
		})
	}

	t.Run("valid", func(t *testing.T) {
		w := perform(router, "/ok", "Bearer "+valid)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"subject":"ci"}`, w.Body.String())
	})
}

func TestGenerateToken_RequiresSecret(t *testing.T) {
	_, err := GenerateToken("ci", "", time.Hour)
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	defer limiter.Stop()

	router := setupMiddlewareTestRouter(RateLimit(limiter))

	assert.Equal(t, http.StatusOK, perform(router, "/ok", "").Code)

	w := perform(router, "/ok", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-Rate-Limit-Remaining"))

	w = perform(router, "/ok", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, w))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	limiter := NewRateLimiter(1, 50*time.Millisecond)
	defer limiter.Stop()

	allowed, _ := limiter.IsAllowed("a")
	assert.True(t, allowed)
	allowed, _ = limiter.IsAllowed("a")
	assert.False(t, allowed)
	allowed, _ = limiter.IsAllowed("b")
	assert.True(t, allowed)

	time.Sleep(60 * time.Millisecond)
	allowed, _ = limiter.IsAllowed("a")
	assert.True(t, allowed)
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HealthCheck("1.2.3"))

	w := perform(router, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
}
