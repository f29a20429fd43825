package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomharwin/kestrel/internal/auth"
)

func newTestContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func testTokenConfig(t *testing.T) *auth.TokenConfig {
	t.Helper()
	keys, err := auth.GenerateKeyPair()
	require.NoError(t, err)
	return &auth.TokenConfig{
		Issuer:       "kestrel-test",
		ExpiryHours:  1,
		RefreshHours: 24,
		SigningKey:   keys.PrivateKey,
		VerifyingKey: keys.PublicKey,
	}
}

func TestJWTAuthSetsIdentity(t *testing.T) {
	cfg := testTokenConfig(t)
	token, err := auth.GenerateToken("user1", "admin", cfg)
	require.NoError(t, err)

	c, rec := newTestContext(t)
	c.Request().Header.Set("Authorization", "Bearer "+token)

	err = JWTAuth(cfg)(okHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user1", GetUserID(c))
	assert.Equal(t, "admin", GetUserRole(c))
}

func TestJWTAuthRejectsMissingAndGarbage(t *testing.T) {
	cfg := testTokenConfig(t)

	c, _ := newTestContext(t)
	err := JWTAuth(cfg)(okHandler)(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)

	c, _ = newTestContext(t)
	c.Request().Header.Set("Authorization", "Bearer not-a-token")
	err = JWTAuth(cfg)(okHandler)(c)
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestJWTAuthRejectsRefreshToken(t *testing.T) {
	cfg := testTokenConfig(t)
	refresh, err := auth.GenerateRefreshToken("user1", "user", cfg)
	require.NoError(t, err)

	c, _ := newTestContext(t)
	c.Request().Header.Set("Authorization", "Bearer "+refresh)

	err = JWTAuth(cfg)(okHandler)(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestRequireAdminRejectsUserRole(t *testing.T) {
	c, _ := newTestContext(t)
	c.Set(string(UserIDKey), "user1")
	c.Set(string(UserRoleKey), "user")

	err := RequireAdmin()(okHandler)(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}

func TestRequireAdminAllowsAdminRole(t *testing.T) {
	c, rec := newTestContext(t)
	c.Set(string(UserIDKey), "admin1")
	c.Set(string(UserRoleKey), "admin")

	err := RequireAdmin()(okHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}
