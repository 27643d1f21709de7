package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.GenerateToken("tenant-9", "user-3", "manager")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-9", claims.TenantID)
	assert.Equal(t, "user-3", claims.UserID)
	assert.Equal(t, "manager", claims.Role)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Hour)
	verifier := NewTokenService("secret-b", time.Hour)

	token, err := issuer.GenerateToken("tenant-1", "user-1", "staff")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewTokenService("test-secret", -time.Minute)

	token, err := svc.GenerateToken("tenant-1", "user-1", "staff")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenDefaultsEmptyTenant(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.GenerateToken("", "user-1", "staff")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, DefaultTenant, claims.TenantID)
}

func middlewareRequest(t *testing.T, svc *TokenService, authHeader string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var tenant, user string
	router := gin.New()
	router.Use(svc.Middleware())
	router.GET("/probe", func(c *gin.Context) {
		tenant = TenantFrom(c)
		user = c.GetString(ContextUserID)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	router.ServeHTTP(httptest.NewRecorder(), req)
	return tenant, user
}

func TestMiddlewareSetsClaims(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	token, err := svc.GenerateToken("tenant-2", "user-7", "staff")
	require.NoError(t, err)

	tenant, user := middlewareRequest(t, svc, "Bearer "+token)
	assert.Equal(t, "tenant-2", tenant)
	assert.Equal(t, "user-7", user)
}

func TestMiddlewareDefaultsWithoutToken(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	tenant, user := middlewareRequest(t, svc, "")
	assert.Equal(t, DefaultTenant, tenant)
	assert.Empty(t, user)
}

func TestMiddlewareDegradesOnInvalidToken(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	tenant, _ := middlewareRequest(t, svc, "Bearer not-a-token")
	assert.Equal(t, DefaultTenant, tenant)
}

func TestTenantFromMissingContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, DefaultTenant, TenantFrom(c))
}
