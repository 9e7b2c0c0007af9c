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

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Password bounds. bcrypt ignores input past 72 bytes, so longer passwords are refused.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._@-]{3,64}$`)
	scopePattern    = regexp.MustCompile(`^[A-Za-z0-9:_-]+$`)
)

// Identity is the result of a successful user authentication.
type Identity struct {
	UserID   string
	Username string
	Role     string
	Scopes   []string
}

// CredentialStore owns user and client secret material.
type CredentialStore struct {
	db     store.Querier
	hasher *Hasher
	now    core.Clock
}

// NewCredentialStore creates a credential store on top of the persistence handle.
func NewCredentialStore(db store.Querier, hasher *Hasher, clock core.Clock) *CredentialStore {
	if clock == nil {
		clock = core.SystemClock
	}
	return &CredentialStore{db: db, hasher: hasher, now: clock}
}

func (s *CredentialStore) log() *zap.Logger {
	return zap.L().Named("credentials")
}

// AuthenticateUser verifies a username and password against an active local user.
func (s *CredentialStore) AuthenticateUser(
	ctx context.Context,
	username, password string,
) (*Identity, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.burn(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Scopes:   user.ScopeList(),
	}, nil
}

func (s *CredentialStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.QueryOne(ctx, &user,
		`SELECT * FROM users WHERE username = ? LIMIT 1`, username)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *CredentialStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.QueryOne(ctx, &user, `SELECT * FROM users WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// NewUser describes a user to provision.
type NewUser struct {
	Username string
	Password string
	Role     string
	Scopes   []string
}

// CreateUser provisions a local user with a hashed password.
func (s *CredentialStore) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	if !usernamePattern.MatchString(in.Username) {
		return nil, ErrInvalidUsername
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if err := validateRole(in.Role); err != nil {
		return nil, err
	}
	scopes := models.DefaultUserScopes
	if len(in.Scopes) > 0 {
		var err error
		if scopes, err = JoinScopes(in.Scopes); err != nil {
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %w", core.ErrInternalFailure, err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		PasswordHash: hash,
		Role:         in.Role,
		Scopes:       scopes,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.insertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *CredentialStore) insertUser(ctx context.Context, u *models.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, role, scopes, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.Scopes, u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	if errors.Is(err, store.ErrDuplicateKey) {
		return ErrUsernameConflict
	}
	return err
}

// UserUpdate lists the mutable user attributes; nil fields are left unchanged.
type UserUpdate struct {
	Password *string
	Role     *string
	Scopes   []string
	IsActive *bool
}

// UpdateUser applies a password rotation, role or scope change, or (de)activation.
// Users are never deleted.
func (s *CredentialStore) UpdateUser(
	ctx context.Context,
	id string,
	in UserUpdate,
) (*models.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: hash password: %w", core.ErrInternalFailure, err)
		}
		user.PasswordHash = hash
	}
	if in.Role != nil {
		if err := validateRole(*in.Role); err != nil {
			return nil, err
		}
		user.Role = *in.Role
	}
	if in.Scopes != nil {
		scopes, err := JoinScopes(in.Scopes)
		if err != nil {
			return nil, err
		}
		user.Scopes = scopes
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	user.UpdatedAt = s.now()

	res, err := s.db.Exec(ctx,
		`UPDATE users SET password_hash = ?, role = ?, scopes = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		user.PasswordHash, user.Role, user.Scopes, user.IsActive, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// EnsureAdmin guarantees that username exists as an active admin. When the
// user is created without a configured password, a random one is generated
// and returned so the caller can surface it once.
func (s *CredentialStore) EnsureAdmin(
	ctx context.Context,
	username, password string,
) (generatedPassword string, err error) {
	existing, err := s.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if existing.IsAdmin() && existing.IsActive {
			return "", nil
		}
		role, active := models.RoleAdmin, true
		_, err = s.UpdateUser(ctx, existing.ID, UserUpdate{Role: &role, IsActive: &active})
		if err == nil {
			s.log().Warn("restored admin role on bootstrap account", zap.String("username", username))
		}
		return "", err
	case !errors.Is(err, ErrUserNotFound):
		return "", err
	}

	if password == "" {
		if password, err = util.RandomURLToken(12); err != nil {
			return "", err
		}
		generatedPassword = password
	}

	_, err = s.CreateUser(ctx, NewUser{
		Username: username,
		Password: password,
		Role:     models.RoleAdmin,
		Scopes:   []string{"api", "admin"},
	})
	if errors.Is(err, ErrUsernameConflict) {
		// Another instance created it first
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return generatedPassword, nil
}

// JoinScopes validates scope tags and joins them in their stored comma-separated form.
func JoinScopes(scopes []string) (string, error) {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		sc = strings.TrimSpace(sc)
		if !scopePattern.MatchString(sc) {
			return "", ErrInvalidScopes
		}
		if _, dup := seen[sc]; dup {
			continue
		}
		seen[sc] = struct{}{}
		out = append(out, sc)
	}
	if len(out) == 0 {
		return "", ErrInvalidScopes
	}
	return strings.Join(out, ","), nil
}

func validatePassword(p string) error {
	if len(p) < MinPasswordLength || len(p) > MaxPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

func validateRole(role string) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return ErrInvalidRole
	}
	return nil
}
