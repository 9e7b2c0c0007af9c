package services

import (
	"context"
	"time"

	"github.com/go-authgate/budgetgate/internal/auth"
	"github.com/go-authgate/budgetgate/internal/models"

	"go.uber.org/zap"
)

// UserService provisions and maintains local user accounts.
type UserService struct {
	creds *auth.CredentialStore
}

func NewUserService(creds *auth.CredentialStore) *UserService {
	return &UserService{creds: creds}
}

func (s *UserService) log() *zap.Logger {
	return zap.L().Named("users")
}

type CreateUserRequest struct {
	Username string
	Password string
	Role     string
	Scopes   []string
}

// UpdateUserRequest lists optional changes; nil fields are left unchanged.
type UpdateUserRequest struct {
	Password *string
	Role     *string
	Scopes   []string
	IsActive *bool
}

// UserResponse is the public view of a user. The password hash is never exposed.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Scopes    []string  `json:"scopes"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(u *models.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		Scopes:    u.ScopeList(),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (s *UserService) CreateUser(
	ctx context.Context,
	actorID string,
	req CreateUserRequest,
) (*UserResponse, error) {
	user, err := s.creds.CreateUser(ctx, auth.NewUser{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Scopes:   req.Scopes,
	})
	if err != nil {
		return nil, err
	}
	s.log().Info("user created",
		zap.String("user_id", user.ID),
		zap.String("role", user.Role),
		zap.String("actor", actorID))
	return toUserResponse(user), nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.creds.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

// UpdateUser changes a user's password, role, scopes or active flag. Role and
// scope changes apply to sessions at once and to new tokens on their next refresh.
func (s *UserService) UpdateUser(
	ctx context.Context,
	actorID, id string,
	req UpdateUserRequest,
) (*UserResponse, error) {
	user, err := s.creds.UpdateUser(ctx, id, auth.UserUpdate{
		Password: req.Password,
		Role:     req.Role,
		Scopes:   req.Scopes,
		IsActive: req.IsActive,
	})
	if err != nil {
		return nil, err
	}
	s.log().Info("user updated",
		zap.String("user_id", id),
		zap.Bool("password_changed", req.Password != nil),
		zap.String("role", user.Role),
		zap.Bool("active", user.IsActive),
		zap.String("actor", actorID))
	return toUserResponse(user), nil
}

// EnsureAdmin creates or restores the bootstrap administrator. A generated
// password is logged exactly once, at creation.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	generated, err := s.creds.EnsureAdmin(ctx, username, password)
	if err != nil {
		return err
	}
	if generated != "" {
		s.log().Warn("created bootstrap admin with a generated password; change it after first login",
			zap.String("username", username),
			zap.String("password", generated))
	}
	return nil
}
