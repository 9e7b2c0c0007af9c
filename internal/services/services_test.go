package services

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-authgate/budgetgate/internal/auth"
	"github.com/go-authgate/budgetgate/internal/ledger"
	"github.com/go-authgate/budgetgate/internal/models"
	"github.com/go-authgate/budgetgate/internal/store"
	"github.com/go-authgate/budgetgate/internal/store/storetest"
	"github.com/go-authgate/budgetgate/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword     = "correct-horse-battery"
	testClientID     = "budget-web"
	testClientSecret = "0123456789abcdef0123456789abcdef-web"
	testRedirectURI  = "https://budget.example.com/callback"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store   *store.Store
	clock   *testClock
	creds   *auth.CredentialStore
	issuer  *token.Issuer
	auth    *AuthService
	oauth   *AuthorizationService
	clients *ClientService
	users   *UserService
}

func newTestEnv(t *testing.T, s *store.Store) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	creds := auth.NewCredentialStore(s, auth.NewHasher(bcrypt.MinCost), clock.Now)
	l := ledger.New(s, ledger.WithClock(clock.Now))
	issuer := token.NewIssuer(token.Config{
		AccessSecret:  []byte("access-secret-access-secret-0123"),
		RefreshSecret: []byte("refresh-secret-refresh-secret-01"),
		Issuer:        "budgetgate",
		Audience:      "budgetgate-api",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}, l, clock.Now, nil)
	authSvc := NewAuthService(creds, issuer, nil)
	return &testEnv{
		store:   s,
		clock:   clock,
		creds:   creds,
		issuer:  issuer,
		auth:    authSvc,
		oauth:   NewAuthorizationService(creds, l, issuer, authSvc, 10*time.Minute, clock.Now, nil),
		clients: NewClientService(creds),
		users:   NewUserService(creds),
	}
}

func (e *testEnv) createUser(t *testing.T, username, role string, scopes ...string) *UserResponse {
	t.Helper()
	u, err := e.users.CreateUser(context.Background(), "test", CreateUserRequest{
		Username: username,
		Password: testPassword,
		Role:     role,
		Scopes:   scopes,
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) createClient(t *testing.T) {
	t.Helper()
	_, err := e.clients.CreateClient(context.Background(), "test", CreateClientRequest{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Scopes:       []string{"api", "reports"},
		RedirectURIs: []string{testRedirectURI},
	})
	require.NoError(t, err)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	env.createUser(t, "alice", models.RoleAdmin, "api", "admin")

	bundle, err := env.auth.Login(ctx, "alice", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "api admin", bundle.Scope)

	claims, err := env.auth.VerifyAndAuthorize(ctx, bundle.AccessToken, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	_, err = env.auth.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "nobody", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestVerifyAndAuthorize_InsufficientScope(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	env.createUser(t, "bob", models.RoleUser, "api")

	bundle, err := env.auth.Login(ctx, "bob", testPassword)
	require.NoError(t, err)

	_, err = env.auth.VerifyAndAuthorize(ctx, bundle.AccessToken, "api")
	require.NoError(t, err)
	_, err = env.auth.VerifyAndAuthorize(ctx, bundle.AccessToken, "admin")
	assert.ErrorIs(t, err, token.ErrInsufficientScope)
	_, err = env.auth.VerifyAndAuthorize(ctx, bundle.RefreshToken, "")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestRefresh_RotatesAndRereadsRole(t *testing.T) {
	storetest.ForEachBackend(t, func(t *testing.T, s *store.Store) {
		env := newTestEnv(t, s)
		ctx := context.Background()
		u := env.createUser(t, "carol", models.RoleAdmin, "api", "admin")

		first, err := env.auth.Login(ctx, "carol", testPassword)
		require.NoError(t, err)

		role := models.RoleUser
		_, err = env.users.UpdateUser(ctx, "test", u.ID, UpdateUserRequest{
			Role:   &role,
			Scopes: []string{"api"},
		})
		require.NoError(t, err)

		second, err := env.auth.Refresh(ctx, first.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, first.AccessJTI, second.AccessJTI)
		assert.Equal(t, "api", second.Scope)

		claims, err := env.issuer.VerifyAccess(ctx, second.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, claims.Role)

		// Reuse of the consumed refresh token is treated as theft
		_, err = env.auth.Refresh(ctx, first.RefreshToken)
		assert.ErrorIs(t, err, token.ErrRevokedToken)

		// The new pair is unaffected
		_, err = env.auth.Refresh(ctx, second.RefreshToken)
		require.NoError(t, err)
	})
}

func TestRefresh_DeactivatedUser(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	u := env.createUser(t, "dave", models.RoleUser)

	bundle, err := env.auth.Login(ctx, "dave", testPassword)
	require.NoError(t, err)

	inactive := false
	_, err = env.users.UpdateUser(ctx, "test", u.ID, UpdateUserRequest{IsActive: &inactive})
	require.NoError(t, err)

	_, err = env.auth.Refresh(ctx, bundle.RefreshToken)
	assert.ErrorIs(t, err, ErrAccountDisabled)

	// Rejected before consumption, so the token is still live
	revoked, err := ledger.New(env.store, ledger.WithClock(env.clock.Now)).
		IsRevoked(ctx, bundle.AccessJTI+ledger.RefreshSuffix)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRefresh_Expired(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	env.createUser(t, "erin", models.RoleUser)

	bundle, err := env.auth.Login(ctx, "erin", testPassword)
	require.NoError(t, err)

	env.clock.Advance(25 * time.Hour)
	_, err = env.auth.Refresh(ctx, bundle.RefreshToken)
	assert.ErrorIs(t, err, token.ErrExpiredToken)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	env.createUser(t, "frank", models.RoleUser)

	bundle, err := env.auth.Login(ctx, "frank", testPassword)
	require.NoError(t, err)
	claims, err := env.issuer.VerifyAccess(ctx, bundle.AccessToken)
	require.NoError(t, err)

	// A garbage refresh token does not fail the logout
	require.NoError(t, env.auth.Logout(ctx, claims, "garbage"))

	_, err = env.issuer.VerifyAccess(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, token.ErrRevokedToken)
	_, err = env.auth.Refresh(ctx, bundle.RefreshToken)
	assert.ErrorIs(t, err, token.ErrRevokedToken)
}

func TestValidateAuthorize(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	env.createClient(t)

	valid := AuthorizeRequest{
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		ResponseType: "code",
		Scope:        "api",
		State:        "xyz",
	}

	grant, err := env.oauth.ValidateAuthorize(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, []string{"api"}, grant.Scopes)
	assert.Equal(t, "xyz", grant.State)

	noScope := valid
	noScope.Scope = ""
	grant, err = env.oauth.ValidateAuthorize(ctx, noScope)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "reports"}, grant.Scopes)

	tests := []struct {
		name   string
		mutate func(r *AuthorizeRequest)
		want   error
	}{
		{"malformed client", func(r *AuthorizeRequest) { r.ClientID = "a b" }, ErrUnknownClient},
		{"unknown client", func(r *AuthorizeRequest) { r.ClientID = "unknown-client" }, ErrUnknownClient},
		{"unregistered redirect", func(r *AuthorizeRequest) { r.RedirectURI = "https://evil.example.com/cb" }, ErrInvalidRedirectURI},
		{"redirect prefix", func(r *AuthorizeRequest) { r.RedirectURI = testRedirectURI + "/extra" }, ErrInvalidRedirectURI},
		{"redirect with query", func(r *AuthorizeRequest) { r.RedirectURI = testRedirectURI + "?x=1" }, ErrInvalidRedirectURI},
		{"token response type", func(r *AuthorizeRequest) { r.ResponseType = "token" }, ErrUnsupportedResponseType},
		{"scope outside client", func(r *AuthorizeRequest) { r.Scope = "api admin" }, ErrInvalidScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := env.oauth.ValidateAuthorize(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func issueTestCode(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	ctx := context.Background()
	grant, err := env.oauth.ValidateAuthorize(ctx, AuthorizeRequest{
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		ResponseType: "code",
		Scope:        "api reports",
		State:        "st4te",
	})
	require.NoError(t, err)

	location, err := env.oauth.IssueCode(ctx, grant, userID)
	require.NoError(t, err)
	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "budget.example.com", u.Host)
	assert.Equal(t, "/callback", u.Path)
	assert.Equal(t, "st4te", u.Query().Get("state"))
	code := u.Query().Get("code")
	require.Len(t, code, 64)
	return code
}

func TestAuthorizationCodeFlow(t *testing.T) {
	storetest.ForEachBackend(t, func(t *testing.T, s *store.Store) {
		env := newTestEnv(t, s)
		ctx := context.Background()
		env.createClient(t)
		u := env.createUser(t, "gina", models.RoleUser, "api")

		code := issueTestCode(t, env, u.ID)

		// User only holds "api", so "reports" is narrowed away
		bundle, err := env.oauth.ExchangeCode(ctx, testClientID, testClientSecret, code, testRedirectURI)
		require.NoError(t, err)
		assert.Equal(t, "api", bundle.Scope)

		_, err = env.oauth.ExchangeCode(ctx, testClientID, testClientSecret, code, testRedirectURI)
		assert.ErrorIs(t, err, ErrInvalidGrant)

		refreshed, err := env.oauth.RefreshGrant(ctx, testClientID, testClientSecret, bundle.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, refreshed.AccessToken)
	})
}

func TestRefreshGrant_BoundToClient(t *testing.T) {
	storetest.ForEachBackend(t, func(t *testing.T, s *store.Store) {
		env := newTestEnv(t, s)
		ctx := context.Background()
		env.createClient(t)
		const otherSecret = "0123456789abcdef0123456789abcdef-other"
		_, err := env.clients.CreateClient(ctx, "test", CreateClientRequest{
			ClientID:     "other-client",
			ClientSecret: otherSecret,
			Scopes:       []string{"api"},
			RedirectURIs: []string{"https://other.example.com/callback"},
		})
		require.NoError(t, err)
		u := env.createUser(t, "kate", models.RoleAdmin, "api", "admin")

		bundle, err := env.oauth.ExchangeCode(ctx, testClientID, testClientSecret,
			issueTestCode(t, env, u.ID), testRedirectURI)
		require.NoError(t, err)
		assert.Equal(t, "api", bundle.Scope)

		// Another client cannot redeem it, and the failed attempt does not consume it
		_, err = env.oauth.RefreshGrant(ctx, "other-client", otherSecret, bundle.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidGrant)

		// Nor can the first-party refresh path
		_, err = env.auth.Refresh(ctx, bundle.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidGrant)

		// The user's admin scope is never added on refresh
		refreshed, err := env.oauth.RefreshGrant(ctx, testClientID, testClientSecret, bundle.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, "api", refreshed.Scope)
		claims, err := env.issuer.VerifyAccess(ctx, refreshed.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, testClientID, claims.ClientID)
		assert.False(t, claims.HasScope("admin"))
	})
}

func TestRefreshGrant_RejectsFirstPartyToken(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	env.createClient(t)
	env.createUser(t, "liam", models.RoleAdmin, "api", "admin")

	login, err := env.auth.Login(ctx, "liam", testPassword)
	require.NoError(t, err)

	_, err = env.oauth.RefreshGrant(ctx, testClientID, testClientSecret, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	// Still usable where it was issued
	_, err = env.auth.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshGrant_OnlyNarrows(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	env.createClient(t)
	u := env.createUser(t, "mona", models.RoleUser, "api", "reports")

	bundle, err := env.oauth.ExchangeCode(ctx, testClientID, testClientSecret,
		issueTestCode(t, env, u.ID), testRedirectURI)
	require.NoError(t, err)
	assert.Equal(t, "api reports", bundle.Scope)

	// The client loses "reports"
	_, err = env.clients.UpdateClient(ctx, "test", testClientID, UpdateClientRequest{Scopes: []string{"api"}})
	require.NoError(t, err)
	second, err := env.oauth.RefreshGrant(ctx, testClientID, testClientSecret, bundle.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "api", second.Scope)

	// Restoring it does not widen a grant that was already narrowed
	_, err = env.clients.UpdateClient(ctx, "test", testClientID,
		UpdateClientRequest{Scopes: []string{"api", "reports"}})
	require.NoError(t, err)
	third, err := env.oauth.RefreshGrant(ctx, testClientID, testClientSecret, second.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "api", third.Scope)

	// Nothing left in common with the grant
	_, err = env.users.UpdateUser(ctx, "test", u.ID, UpdateUserRequest{Scopes: []string{"reports"}})
	require.NoError(t, err)
	_, err = env.oauth.RefreshGrant(ctx, testClientID, testClientSecret, third.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestExchangeCode_Failures(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	env.createClient(t)
	u := env.createUser(t, "hank", models.RoleUser, "api")

	t.Run("bad client secret", func(t *testing.T) {
		code := issueTestCode(t, env, u.ID)
		_, err := env.oauth.ExchangeCode(ctx, testClientID, "wrong-secret", code, testRedirectURI)
		assert.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("mismatched redirect", func(t *testing.T) {
		code := issueTestCode(t, env, u.ID)
		_, err := env.oauth.ExchangeCode(ctx, testClientID, testClientSecret, code,
			"https://budget.example.com/other")
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("expired", func(t *testing.T) {
		code := issueTestCode(t, env, u.ID)
		env.clock.Advance(11 * time.Minute)
		_, err := env.oauth.ExchangeCode(ctx, testClientID, testClientSecret, code, testRedirectURI)
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := env.oauth.ExchangeCode(ctx, testClientID, testClientSecret, "", testRedirectURI)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("user deactivated after authorization", func(t *testing.T) {
		code := issueTestCode(t, env, u.ID)
		inactive := false
		_, err := env.users.UpdateUser(ctx, "test", u.ID, UpdateUserRequest{IsActive: &inactive})
		require.NoError(t, err)
		_, err = env.oauth.ExchangeCode(ctx, testClientID, testClientSecret, code, testRedirectURI)
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})
}

func TestExchangeCode_ConcurrentRedemption(t *testing.T) {
	storetest.ForEachBackend(t, func(t *testing.T, s *store.Store) {
		env := newTestEnv(t, s)
		ctx := context.Background()
		env.createClient(t)
		u := env.createUser(t, "ivy", models.RoleUser, "api")
		code := issueTestCode(t, env, u.ID)

		const n = 5
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = env.oauth.ExchangeCode(ctx, testClientID, testClientSecret, code, testRedirectURI)
			}()
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, ErrInvalidGrant)
		}
		assert.Equal(t, 1, wins)
	})
}

func TestIssueCode_NoOverlappingScope(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	env.createClient(t)
	u := env.createUser(t, "jack", models.RoleUser, "budgets")

	grant, err := env.oauth.ValidateAuthorize(ctx, AuthorizeRequest{
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		ResponseType: "code",
	})
	require.NoError(t, err)
	_, err = env.oauth.IssueCode(ctx, grant, u.ID)
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestIssueCode_BadRedirectRecordsNothing(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()
	env.createClient(t)
	u := env.createUser(t, "nora", models.RoleUser, "api")
	client, err := env.creds.GetClient(ctx, testClientID)
	require.NoError(t, err)

	_, err = env.oauth.IssueCode(ctx, &AuthorizationGrant{
		Client:      client,
		RedirectURI: "https://[::1",
		Scopes:      []string{"api"},
	}, u.ID)
	assert.ErrorIs(t, err, ErrInvalidRedirectURI)

	var n int64
	require.NoError(t, env.store.QueryOne(ctx, &n, `SELECT COUNT(*) FROM auth_codes`))
	assert.Zero(t, n)
}

func TestClientService(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()

	created, err := env.clients.CreateClient(ctx, "admin-1", CreateClientRequest{
		ClientID:     "report-svc",
		RedirectURIs: []string{"https://reports.example.com/cb"},
	})
	require.NoError(t, err)
	assert.Len(t, created.ClientSecret, 43)
	assert.Equal(t, []string{"api"}, created.AllowedScopes)

	fetched, err := env.clients.GetClient(ctx, "report-svc")
	require.NoError(t, err)
	assert.Empty(t, fetched.ClientSecret)

	rotated, err := env.clients.RotateSecret(ctx, "admin-1", "report-svc", "")
	require.NoError(t, err)
	assert.NotEqual(t, created.ClientSecret, rotated.ClientSecret)

	_, err = env.creds.AuthenticateClient(ctx, "report-svc", created.ClientSecret)
	assert.ErrorIs(t, err, ErrInvalidClient)
	_, err = env.creds.AuthenticateClient(ctx, "report-svc", rotated.ClientSecret)
	require.NoError(t, err)

	updated, err := env.clients.UpdateClient(ctx, "admin-1", "report-svc", UpdateClientRequest{
		Scopes: []string{"api", "reports"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "reports"}, updated.AllowedScopes)

	list, page, err := env.clients.ListClients(ctx, store.NewPaginationParams(1, 10, "report"))
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, int64(1), page.Total)

	require.NoError(t, env.clients.DeleteClient(ctx, "admin-1", "report-svc"))
	_, err = env.clients.GetClient(ctx, "report-svc")
	assert.ErrorIs(t, err, auth.ErrClientNotFound)
}

func TestUserService_EnsureAdmin(t *testing.T) {
	env := newTestEnv(t, storetest.NewSQLite(t))
	ctx := context.Background()

	require.NoError(t, env.users.EnsureAdmin(ctx, "root", ""))
	u, err := env.creds.GetUserByUsername(ctx, "root")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())

	// Second call is a no-op
	require.NoError(t, env.users.EnsureAdmin(ctx, "root", ""))

	resp, err := env.users.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "admin"}, resp.Scopes)
}
