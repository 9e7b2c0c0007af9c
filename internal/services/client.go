package services

import (
	"context"
	"time"

	"github.com/go-authgate/budgetgate/internal/auth"
	"github.com/go-authgate/budgetgate/internal/models"
	"github.com/go-authgate/budgetgate/internal/store"

	"go.uber.org/zap"
)

// ClientService is the admin surface over registered OAuth2 clients.
type ClientService struct {
	creds *auth.CredentialStore
}

func NewClientService(creds *auth.CredentialStore) *ClientService {
	return &ClientService{creds: creds}
}

func (s *ClientService) log() *zap.Logger {
	return zap.L().Named("clients")
}

type CreateClientRequest struct {
	ClientID     string
	ClientSecret string // optional; generated when empty
	Scopes       []string
	RedirectURIs []string
}

type UpdateClientRequest struct {
	Scopes       []string
	RedirectURIs []string
}

// ClientResponse is the public view of a client. ClientSecret is populated
// only by create and rotate, the one time the plaintext is available.
type ClientResponse struct {
	ClientID      string    `json:"client_id"`
	ClientSecret  string    `json:"client_secret,omitempty"`
	AllowedScopes []string  `json:"allowed_scopes"`
	RedirectURIs  []string  `json:"redirect_uris"`
	CreatedAt     time.Time `json:"created_at"`
}

func toClientResponse(c *models.Client) *ClientResponse {
	return &ClientResponse{
		ClientID:      c.ClientID,
		AllowedScopes: c.ScopeList(),
		RedirectURIs:  c.RedirectURIList(),
		CreatedAt:     c.CreatedAt,
	}
}

func (s *ClientService) CreateClient(
	ctx context.Context,
	actorID string,
	req CreateClientRequest,
) (*ClientResponse, error) {
	client, secret, err := s.creds.CreateClient(ctx, auth.NewClient{
		ClientID:     req.ClientID,
		Secret:       req.ClientSecret,
		Scopes:       req.Scopes,
		RedirectURIs: req.RedirectURIs,
	})
	if err != nil {
		return nil, err
	}
	s.log().Info("client created", zap.String("client_id", client.ClientID), zap.String("actor", actorID))

	resp := toClientResponse(client)
	resp.ClientSecret = secret
	return resp, nil
}

func (s *ClientService) GetClient(ctx context.Context, clientID string) (*ClientResponse, error) {
	client, err := s.creds.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return toClientResponse(client), nil
}

func (s *ClientService) ListClients(
	ctx context.Context,
	params store.PaginationParams,
) ([]*ClientResponse, store.PaginationResult, error) {
	clients, page, err := s.creds.ListClients(ctx, params)
	if err != nil {
		return nil, page, err
	}
	out := make([]*ClientResponse, 0, len(clients))
	for i := range clients {
		out = append(out, toClientResponse(&clients[i]))
	}
	return out, page, nil
}

func (s *ClientService) UpdateClient(
	ctx context.Context,
	actorID, clientID string,
	req UpdateClientRequest,
) (*ClientResponse, error) {
	client, err := s.creds.UpdateClient(ctx, clientID, auth.ClientUpdate{
		Scopes:       req.Scopes,
		RedirectURIs: req.RedirectURIs,
	})
	if err != nil {
		return nil, err
	}
	s.log().Info("client updated", zap.String("client_id", clientID), zap.String("actor", actorID))
	return toClientResponse(client), nil
}

// RotateSecret replaces the client secret. An empty newSecret is generated.
func (s *ClientService) RotateSecret(
	ctx context.Context,
	actorID, clientID, newSecret string,
) (*ClientResponse, error) {
	secret, err := s.creds.RotateClientSecret(ctx, clientID, newSecret)
	if err != nil {
		return nil, err
	}
	s.log().Warn("client secret rotated", zap.String("client_id", clientID), zap.String("actor", actorID))

	resp, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	resp.ClientSecret = secret
	return resp, nil
}

func (s *ClientService) DeleteClient(ctx context.Context, actorID, clientID string) error {
	if err := s.creds.DeleteClient(ctx, clientID); err != nil {
		return err
	}
	s.log().Warn("client deleted", zap.String("client_id", clientID), zap.String("actor", actorID))
	return nil
}
