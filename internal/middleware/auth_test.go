package middleware

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-authgate/budgetgate/internal/auth"
	"github.com/go-authgate/budgetgate/internal/models"
	"github.com/go-authgate/budgetgate/internal/token"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthenticator maps raw tokens to claims or errors, and user ids to users.
type fakeAuthenticator struct {
	tokens    map[string]*token.Claims
	tokenErrs map[string]error
	users     map[string]*models.User
	lookups   int
}

func (f *fakeAuthenticator) VerifyAndAuthorize(_ context.Context, raw, scope string) (*token.Claims, error) {
	if err, ok := f.tokenErrs[raw]; ok {
		return nil, err
	}
	claims, ok := f.tokens[raw]
	if !ok {
		return nil, token.ErrInvalidToken
	}
	if scope != "" && !claims.HasScope(scope) {
		return nil, token.ErrInsufficientScope
	}
	return claims, nil
}

func (f *fakeAuthenticator) CurrentUser(_ context.Context, userID string) (*models.User, error) {
	f.lookups++
	u, ok := f.users[userID]
	if !ok || !u.IsActive {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

func newFakeAuthenticator() *fakeAuthenticator {
	return &fakeAuthenticator{
		tokens: map[string]*token.Claims{
			"admin-token": {UserID: "u-admin", Username: "root", Role: models.RoleAdmin, Scopes: []string{"api", "admin"}},
			"user-token":  {UserID: "u-user", Username: "bob", Role: models.RoleUser, Scopes: []string{"api"}},
		},
		tokenErrs: map[string]error{
			"expired-token": token.ErrExpiredToken,
			"revoked-token": token.ErrRevokedToken,
		},
		users: map[string]*models.User{
			"u-admin": {ID: "u-admin", Username: "root", Role: models.RoleAdmin, Scopes: "api,admin", IsActive: true},
			"u-user":  {ID: "u-user", Username: "bob", Role: models.RoleUser, Scopes: "api", IsActive: true},
		},
	}
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("error.html").Parse(`error: {{.error}}`)))
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))

	// Test-only route to seed a session
	r.GET("/test/session/:id", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set(SessionUserID, c.Param("id"))
		_ = session.Save()
		c.Status(http.StatusNoContent)
	})
	return r
}

func loginSession(t *testing.T, r *gin.Engine, userID string) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test/session/"+userID, nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	return w.Result().Cookies()
}

func doRequest(r *gin.Engine, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	r.ServeHTTP(w, req)
	return w
}

func withBearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withCookies(cookies []*http.Cookie, extra ...func(*http.Request)) func(*http.Request) {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
		for _, fn := range extra {
			fn(r)
		}
	}
}

func principalHandler(c *gin.Context) {
	p := models.GetPrincipalFromContext(c)
	c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "role": p.Role, "source": p.Source})
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set("Authorization", tt.header)
		got, ok := BearerToken(c)
		assert.Equal(t, tt.want, got, tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
	}
}

func TestRequireBearer(t *testing.T) {
	r := setupTestRouter()
	authn := newFakeAuthenticator()
	r.GET("/me", RequireBearer(authn, "api"), func(c *gin.Context) {
		require.NotNil(t, GetClaims(c))
		principalHandler(c)
	})

	w := doRequest(r, "/me", withBearer("user-token"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"bearer"`)

	w = doRequest(r, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Bearer realm="budgetgate"`, w.Header().Get("WWW-Authenticate"))

	w = doRequest(r, "/me", withBearer("expired-token"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token expired")

	w = doRequest(r, "/me", withBearer("revoked-token"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token revoked")

	w = doRequest(r, "/me", withBearer("forged"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestRequireBearer_InsufficientScope(t *testing.T) {
	r := setupTestRouter()
	r.GET("/reports", RequireBearer(newFakeAuthenticator(), "reports"), principalHandler)

	w := doRequest(r, "/reports", withBearer("user-token"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "insufficient_scope")
}

func TestDualAuth_Bearer(t *testing.T) {
	r := setupTestRouter()
	authn := newFakeAuthenticator()
	r.GET("/admin", DualAuth(authn), RequireAdmin(), principalHandler)

	w := doRequest(r, "/admin", withBearer("admin-token"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"bearer"`)
	assert.Zero(t, authn.lookups, "bearer path derives the role from claims")

	w = doRequest(r, "/admin", withBearer("user-token"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "access_denied")
}

func TestDualAuth_SessionRereadsRole(t *testing.T) {
	r := setupTestRouter()
	authn := newFakeAuthenticator()
	r.GET("/admin", DualAuth(authn), RequireAdmin(), principalHandler)

	cookies := loginSession(t, r, "u-admin")
	w := doRequest(r, "/admin", withCookies(cookies))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"session"`)

	// Demotion applies on the next request without a new login
	authn.users["u-admin"].Role = models.RoleUser
	w = doRequest(r, "/admin", withCookies(cookies))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDualAuth_FallsBackToSessionOnBadBearer(t *testing.T) {
	r := setupTestRouter()
	r.GET("/admin", DualAuth(newFakeAuthenticator()), RequireAdmin(), principalHandler)

	cookies := loginSession(t, r, "u-admin")
	w := doRequest(r, "/admin", withCookies(cookies, withBearer("expired-token")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"session"`)
}

func TestDualAuth_Unauthenticated(t *testing.T) {
	r := setupTestRouter()
	r.GET("/admin/clients", DualAuth(newFakeAuthenticator()), RequireAdmin(), principalHandler)

	w := doRequest(r, "/admin/clients?page=2", func(req *http.Request) {
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
	})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fadmin%2Fclients%3Fpage%3D2", w.Header().Get("Location"))

	w = doRequest(r, "/admin/clients", func(req *http.Request) {
		req.Header.Set("Accept", "application/json")
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
}

func TestDualAuth_DeactivatedSessionUser(t *testing.T) {
	r := setupTestRouter()
	authn := newFakeAuthenticator()
	r.GET("/admin", DualAuth(authn), RequireAdmin(), principalHandler)

	cookies := loginSession(t, r, "u-admin")
	authn.users["u-admin"].IsActive = false

	w := doRequest(r, "/admin", withCookies(cookies))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireScope(t *testing.T) {
	r := setupTestRouter()
	r.GET("/admin-api", DualAuth(newFakeAuthenticator()), RequireScope("admin"), principalHandler)

	assert.Equal(t, http.StatusOK, doRequest(r, "/admin-api", withBearer("admin-token")).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(r, "/admin-api", withBearer("user-token")).Code)
}

func TestRequireAdmin_NoPrincipal(t *testing.T) {
	r := setupTestRouter()
	r.GET("/admin", RequireAdmin(), principalHandler)

	w := doRequest(r, "/admin", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
