package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cadence/config"
	"cadence/internal/auth"
	"cadence/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var jwtCfg = &config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Hour, Issuer: "cadence"}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "role": GetRole(c)})
	})
	r.GET("/", handlers...)
	return r
}

func do(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	token, err := auth.GenerateAccessToken(jwtCfg, "u1", "a@b.c", domain.RoleUser)
	require.NoError(t, err)
	r := newEngine(AuthRequired(jwtCfg))

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.header)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"u1","role":"USER"}`, w.Body.String())
			}
		})
	}
}

func TestGetClaims(t *testing.T) {
	token, err := auth.GenerateAccessToken(jwtCfg, "u1", "a@b.c", domain.RoleProvider)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/", AuthRequired(jwtCfg), func(c *gin.Context) {
		claims, ok := GetClaims(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Email)
	})
	w := do(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@b.c", w.Body.String())
}

func TestRoles(t *testing.T) {
	user, _ := auth.GenerateAccessToken(jwtCfg, "u1", "a@b.c", domain.RoleUser)
	admin, _ := auth.GenerateAccessToken(jwtCfg, "a1", "root@b.c", domain.RoleAdmin)

	r := newEngine(AuthRequired(jwtCfg), AdminRequired())
	assert.Equal(t, http.StatusForbidden, do(r, "Bearer "+user).Code)
	assert.Equal(t, http.StatusOK, do(r, "Bearer "+admin).Code)

	r = newEngine(AuthRequired(jwtCfg), RequireRole(domain.RoleUser, domain.RoleProvider))
	assert.Equal(t, http.StatusOK, do(r, "Bearer "+user).Code)

	r = newEngine(RequireRole(domain.RoleUser))
	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
}

func TestKeyedLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewKeyedLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("a"))

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 2, l.Prune())
	assert.True(t, l.Allow("a"))
}

func TestRateLimit(t *testing.T) {
	r := newEngine(RateLimit(NewKeyedLimiter(1, time.Hour)))
	assert.Equal(t, http.StatusOK, do(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "").Code)
}
