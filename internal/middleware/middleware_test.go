package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func signed(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func adminRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", AuthRequired(secret), RequireAdmin, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})
	return r
}

func call(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequiredAndRequireAdmin(t *testing.T) {
	r := adminRouter()
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"sans en-tête", "", http.StatusUnauthorized},
		{"mauvais schéma", "Basic abc", http.StatusUnauthorized},
		{"signature invalide", "Bearer " + signed(t, []byte("autre"), jwt.MapClaims{"user_id": "u1", "role": "admin", "exp": exp}), http.StatusUnauthorized},
		{"expiré", "Bearer " + signed(t, secret, jwt.MapClaims{"user_id": "u1", "role": "admin", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"sans exp", "Bearer " + signed(t, secret, jwt.MapClaims{"user_id": "u1", "role": "admin"}), http.StatusUnauthorized},
		{"sans user_id", "Bearer " + signed(t, secret, jwt.MapClaims{"role": "admin", "exp": exp}), http.StatusUnauthorized},
		{"client", "Bearer " + signed(t, secret, jwt.MapClaims{"user_id": "u1", "role": "customer", "exp": exp}), http.StatusForbidden},
		{"admin", "Bearer " + signed(t, secret, jwt.MapClaims{"user_id": "u1", "role": "admin", "exp": exp}), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, call(r, tt.header).Code)
		})
	}
}

func TestAuthRequiredRejectsNoneAlgorithm(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": "u1", "role": "admin", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, call(adminRouter(), "Bearer "+tok).Code)
}

func TestCheckoutRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	r := gin.New()
	r.POST("/api/orders", CheckoutRateLimit(rdb, 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := post()
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusCreated, post().Code)

	blocked := post()
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Contains(t, blocked.Body.String(), "retry_after")

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusCreated, post().Code)
}

func TestCheckoutRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	r := gin.New()
	r.POST("/api/orders", CheckoutRateLimit(rdb, 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/orders", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	}
}
