package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-authgate/budgetgate/internal/core"
	"github.com/go-authgate/budgetgate/internal/models"
	"github.com/go-authgate/budgetgate/internal/store"
	"github.com/go-authgate/budgetgate/internal/util"

	"go.uber.org/zap"
)

// Client secret bounds. Secrets are bcrypt-hashed, which caps input at 72 bytes.
const (
	MinClientSecretLength = 32
	MaxClientSecretLength = 72
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,128}$`)

// ValidClientID reports whether id is a well-formed client identifier.
func ValidClientID(id string) bool {
	return clientIDPattern.MatchString(id)
}

// NewClient describes a client to register. An empty Secret is generated.
type NewClient struct {
	ClientID     string
	Secret       string
	Scopes       []string
	RedirectURIs []string
}

// ClientUpdate lists the mutable client attributes; nil fields are left unchanged.
type ClientUpdate struct {
	Scopes       []string
	RedirectURIs []string
}

// CreateClient registers a client and returns it with the plaintext secret.
// The plaintext is never stored and cannot be retrieved again.
func (s *CredentialStore) CreateClient(
	ctx context.Context,
	in NewClient,
) (*models.Client, string, error) {
	if !ValidClientID(in.ClientID) {
		return nil, "", ErrInvalidClientID
	}
	scopes := "api"
	if len(in.Scopes) > 0 {
		var err error
		if scopes, err = JoinScopes(in.Scopes); err != nil {
			return nil, "", err
		}
	}
	redirects, err := joinRedirectURIs(in.RedirectURIs)
	if err != nil {
		return nil, "", err
	}
	secret, hash, err := s.prepareSecret(in.Secret)
	if err != nil {
		return nil, "", err
	}

	client := &models.Client{
		ClientID:           in.ClientID,
		ClientSecret:       hash,
		ClientSecretHashed: true,
		AllowedScopes:      scopes,
		RedirectURIs:       redirects,
		CreatedAt:          s.now(),
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO clients (client_id, client_secret, client_secret_hashed, allowed_scopes, redirect_uris, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		client.ClientID, client.ClientSecret, client.ClientSecretHashed,
		client.AllowedScopes, client.RedirectURIs, client.CreatedAt,
	)
	if errors.Is(err, store.ErrDuplicateKey) {
		return nil, "", ErrClientConflict
	}
	if err != nil {
		return nil, "", err
	}
	return client, secret, nil
}

func (s *CredentialStore) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	var client models.Client
	err := s.db.QueryOne(ctx, &client,
		`SELECT * FROM clients WHERE client_id = ? LIMIT 1`, clientID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// ListClients returns one page of clients ordered by client_id. Search matches
// a case-insensitive substring of the client_id.
func (s *CredentialStore) ListClients(
	ctx context.Context,
	params store.PaginationParams,
) ([]models.Client, store.PaginationResult, error) {
	where := ""
	var args []any
	if params.Search != "" {
		where = ` WHERE LOWER(client_id) LIKE ?`
		args = append(args, "%"+strings.ToLower(params.Search)+"%")
	}

	var total int64
	if err := s.db.QueryOne(ctx, &total,
		`SELECT COUNT(*) FROM clients`+where, args...); err != nil {
		return nil, store.PaginationResult{}, err
	}

	var clients []models.Client
	err := s.db.QueryMany(ctx, &clients,
		`SELECT * FROM clients`+where+` ORDER BY client_id LIMIT ? OFFSET ?`,
		append(args, params.PageSize, params.Offset())...,
	)
	if err != nil {
		return nil, store.PaginationResult{}, err
	}
	return clients, store.CalculatePagination(total, params), nil
}

// UpdateClient changes a client's scopes or redirect URIs.
func (s *CredentialStore) UpdateClient(
	ctx context.Context,
	clientID string,
	in ClientUpdate,
) (*models.Client, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if in.Scopes != nil {
		if client.AllowedScopes, err = JoinScopes(in.Scopes); err != nil {
			return nil, err
		}
	}
	if in.RedirectURIs != nil {
		if client.RedirectURIs, err = joinRedirectURIs(in.RedirectURIs); err != nil {
			return nil, err
		}
	}

	res, err := s.db.Exec(ctx,
		`UPDATE clients SET allowed_scopes = ?, redirect_uris = ? WHERE client_id = ?`,
		client.AllowedScopes, client.RedirectURIs, client.ClientID,
	)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, ErrClientNotFound
	}
	return client, nil
}

// RotateClientSecret replaces a client's secret and returns the new plaintext once.
func (s *CredentialStore) RotateClientSecret(
	ctx context.Context,
	clientID, newSecret string,
) (string, error) {
	secret, hash, err := s.prepareSecret(newSecret)
	if err != nil {
		return "", err
	}
	res, err := s.db.Exec(ctx,
		`UPDATE clients SET client_secret = ?, client_secret_hashed = ? WHERE client_id = ?`,
		hash, true, clientID,
	)
	if err != nil {
		return "", err
	}
	if res.RowsAffected == 0 {
		return "", ErrClientNotFound
	}
	return secret, nil
}

// DeleteClient removes a client registration.
func (s *CredentialStore) DeleteClient(ctx context.Context, clientID string) error {
	res, err := s.db.Exec(ctx, `DELETE FROM clients WHERE client_id = ?`, clientID)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return ErrClientNotFound
	}
	return nil
}

// AuthenticateClient verifies client credentials. A client still holding a
// legacy plaintext secret is rehashed in place on its first successful match.
func (s *CredentialStore) AuthenticateClient(
	ctx context.Context,
	clientID, secret string,
) (*models.Client, error) {
	if !ValidClientID(clientID) || secret == "" {
		s.hasher.burn(secret)
		return nil, ErrInvalidClient
	}

	client, err := s.GetClient(ctx, clientID)
	if errors.Is(err, ErrClientNotFound) {
		s.hasher.burn(secret)
		return nil, ErrInvalidClient
	}
	if err != nil {
		return nil, err
	}

	if client.ClientSecretHashed {
		if !s.hasher.Verify(secret, client.ClientSecret) {
			return nil, ErrInvalidClient
		}
		return client, nil
	}

	if !util.ConstantTimeEqual(secret, client.ClientSecret) {
		s.hasher.burn(secret)
		return nil, ErrInvalidClient
	}
	s.migrateLegacySecret(ctx, client, secret)
	return client, nil
}

// migrateLegacySecret stores the hash of a verified plaintext secret. The
// hashed=false guard makes concurrent migrations of the same row idempotent.
// Failure is logged; the authentication that triggered it still succeeds.
func (s *CredentialStore) migrateLegacySecret(ctx context.Context, client *models.Client, plain string) {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		s.log().Error("hash legacy client secret", zap.String("client_id", client.ClientID), zap.Error(err))
		return
	}
	res, err := s.db.Exec(ctx,
		`UPDATE clients SET client_secret = ?, client_secret_hashed = ?
		 WHERE client_id = ? AND client_secret_hashed = ?`,
		hash, true, client.ClientID, false,
	)
	if err != nil {
		s.log().Error("migrate legacy client secret", zap.String("client_id", client.ClientID), zap.Error(err))
		return
	}
	if res.RowsAffected == 1 {
		s.log().Warn("migrated legacy plaintext client secret", zap.String("client_id", client.ClientID))
	}
	client.ClientSecret = hash
	client.ClientSecretHashed = true
}

func (s *CredentialStore) prepareSecret(secret string) (plain, hash string, err error) {
	if secret == "" {
		if secret, err = util.RandomURLToken(32); err != nil {
			return "", "", fmt.Errorf("%w: generate secret: %w", core.ErrInternalFailure, err)
		}
	}
	if len(secret) < MinClientSecretLength || len(secret) > MaxClientSecretLength {
		return "", "", ErrShortClientSecret
	}
	hash, err = s.hasher.Hash(secret)
	if err != nil {
		return "", "", fmt.Errorf("%w: hash secret: %w", core.ErrInternalFailure, err)
	}
	return secret, hash, nil
}

func joinRedirectURIs(uris []string) (string, error) {
	out := make([]string, 0, len(uris))
	for _, u := range uris {
		u = strings.TrimSpace(u)
		if err := util.ValidateRedirectURI(u); err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidRedirect, u, err)
		}
		out = append(out, u)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%w: at least one redirect URI is required", ErrInvalidRedirect)
	}
	return strings.Join(out, ","), nil
}
