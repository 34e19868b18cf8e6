package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"imagevault/internal/models"
	"imagevault/internal/repository"
	"imagevault/internal/security"
)

// CredentialStore is the persistence the authenticator and namer rely on.
type CredentialStore interface {
	Create(ctx context.Context, username string, passwordHash, tokenHash []byte) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByTokenHash(ctx context.Context, tokenHash []byte) (models.User, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
	SetTokenHash(ctx context.Context, id int64, tokenHash []byte) error
	SetPasswordHash(ctx context.Context, id int64, passwordHash []byte) error
	ReserveImageSeq(ctx context.Context, id int64) (int64, error)
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// tokenAttempts bounds regeneration when a fresh token digest hits the unique index.
const tokenAttempts = 3

type AuthService struct {
	users         CredentialStore
	adminPassword string
	hashPassword  func(string) ([]byte, error)
	log           zerolog.Logger
}

type AuthOption func(*AuthService)

// WithPasswordHasher replaces the argon2id hasher, mainly to make tests fast.
func WithPasswordHasher(fn func(string) ([]byte, error)) AuthOption {
	return func(s *AuthService) { s.hashPassword = fn }
}

func NewAuthService(users CredentialStore, adminPassword string, log zerolog.Logger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:         users,
		adminPassword: adminPassword,
		hashPassword:  security.HashPassword,
		log:           log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AccountResult struct {
	Identity Identity
	Token    string
}

// CreateAccount registers a user behind the operator secret and returns the first token.
func (s *AuthService) CreateAccount(ctx context.Context, adminSecret, username, password string) (AccountResult, error) {
	if s.adminPassword == "" || !security.SecretsEqual(adminSecret, s.adminPassword) {
		return AccountResult{}, ErrAdminSecretWrong
	}
	if !usernamePattern.MatchString(username) || password == "" {
		return AccountResult{}, ErrInvalidInput
	}

	passwordHash, err := s.hashPassword(password)
	if err != nil {
		return AccountResult{}, fmt.Errorf("hash password: %w", err)
	}

	for attempt := 0; attempt < tokenAttempts; attempt++ {
		token, digest, err := security.GenerateToken()
		if err != nil {
			return AccountResult{}, err
		}

		user, err := s.users.Create(ctx, username, passwordHash, digest)
		switch {
		case err == nil:
			s.log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("account created")
			return AccountResult{Identity: identityOf(user), Token: token}, nil
		case errors.Is(err, repository.ErrDuplicateUsername):
			return AccountResult{}, ErrDuplicateUsername
		case errors.Is(err, repository.ErrTokenCollision):
			continue
		default:
			return AccountResult{}, fmt.Errorf("create user: %w", err)
		}
	}
	return AccountResult{}, repository.ErrTokenCollision
}

// VerifyCredentials checks a username/password pair. Legacy hashes are upgraded
// in place after a successful check.
func (s *AuthService) VerifyCredentials(ctx context.Context, username, password string) (Identity, error) {
	if username == "" || password == "" {
		return Identity{}, ErrInvalidInput
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Identity{}, ErrUsernameNotFound
		}
		return Identity{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("stored password hash unreadable")
		return Identity{}, ErrPasswordIncorrect
	}
	if !ok {
		return Identity{}, ErrPasswordIncorrect
	}

	if security.NeedsRehash(user.PasswordHash) {
		s.upgradePasswordHash(ctx, user, password)
	}

	return identityOf(user), nil
}

// IssueToken verifies credentials and replaces the account token. The previous
// token stops resolving as soon as the new digest is stored.
func (s *AuthService) IssueToken(ctx context.Context, username, password string) (string, error) {
	identity, err := s.VerifyCredentials(ctx, username, password)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < tokenAttempts; attempt++ {
		token, digest, err := security.GenerateToken()
		if err != nil {
			return "", err
		}

		err = s.users.SetTokenHash(ctx, identity.userID, digest)
		switch {
		case err == nil:
			s.log.Info().Int64("user_id", identity.userID).Msg("token issued")
			return token, nil
		case errors.Is(err, repository.ErrTokenCollision):
			continue
		default:
			return "", fmt.Errorf("store token: %w", err)
		}
	}
	return "", repository.ErrTokenCollision
}

// RotateToken is IssueToken under the name used by the reset endpoint.
func (s *AuthService) RotateToken(ctx context.Context, username, password string) (string, error) {
	return s.IssueToken(ctx, username, password)
}

// ResolveToken maps a bearer token to its owner without side effects.
func (s *AuthService) ResolveToken(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	user, err := s.users.FindByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Identity{}, ErrTokenNotFound
		}
		return Identity{}, fmt.Errorf("find token: %w", err)
	}
	return identityOf(user), nil
}

func (s *AuthService) upgradePasswordHash(ctx context.Context, user models.User, password string) {
	upgraded, err := s.hashPassword(password)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("rehash password failed")
		return
	}
	if err := s.users.SetPasswordHash(ctx, user.ID, upgraded); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("store upgraded password hash failed")
		return
	}
	s.log.Info().Int64("user_id", user.ID).Msg("password hash upgraded")
}

func identityOf(user models.User) Identity {
	return Identity{userID: user.ID, username: user.Username}
}
