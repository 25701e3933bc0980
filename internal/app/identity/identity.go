/*
Package identity implements account management and credential verification.

It owns the users table: registration, login (bcrypt password verification),
profile reads and updates, and account deletion. Connection-level authentication
(token verification at the WebSocket handshake) lives in the jwt package; this
package is the source of truth the tokens are minted from.
*/
package identity

import (
	"context"
	"errors"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"chatwire/internal/app/db"
	"chatwire/internal/app/user"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/randx"
)

var (
	// ErrInvalidCredentials is returned when the username or password does not match.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrUsernameTaken is returned when a registration or rename conflicts with an existing account.
	ErrUsernameTaken = errors.New("identity: username already taken")

	// ErrNotFound is returned when the requested account does not exist.
	ErrNotFound = errors.New("identity: account not found")

	// ErrInvalidUsername is returned when the username fails validation.
	ErrInvalidUsername = errors.New("identity: invalid username")

	// ErrInvalidPassword is returned when the password fails validation.
	ErrInvalidPassword = errors.New("identity: invalid password")

	// ErrOldPasswordMismatch is returned when the current password check fails during a change.
	ErrOldPasswordMismatch = errors.New("identity: current password is incorrect")
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_]{4,20}$`)

const (
	minPasswordLen = 6
	maxPasswordLen = 50
)

// Account is the stored representation of a user row.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// Repository defines the persistence operations the identity service needs.
type Repository interface {
	Create(ctx context.Context, acct *Account) error
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	UpdateUsername(ctx context.Context, id string, username string) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	UpdateAvatar(ctx context.Context, id string, avatarURL string) error
	UpdateLastLogin(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Service verifies credentials and manages accounts on top of a Repository.
type Service struct {
	repo       Repository
	bcryptCost int
	logger     zerolog.Logger
}

// NewService constructs a Service with the default bcrypt cost.
func NewService(repo Repository) *Service {
	return newService(repo, bcrypt.DefaultCost)
}

// NewServiceWithCost constructs a Service with a custom bcrypt cost.
// Tests use the bcrypt minimum cost to stay fast.
func NewServiceWithCost(repo Repository, cost int) *Service {
	return newService(repo, cost)
}

func newService(repo Repository, cost int) *Service {
	return &Service{
		repo:       repo,
		bcryptCost: cost,
		logger:     logx.Logger().With().Str("component", "identity").Logger(),
	}
}

func (s *Service) toUser(acct *Account) user.User {
	return user.User{
		ID:       acct.ID,
		Username: acct.Username,
		Avatar:   acct.AvatarURL,
	}
}

// Register creates a new account and returns its public identity.
func (s *Service) Register(ctx context.Context, username, password string) (user.User, error) {
	if !usernameRegex.MatchString(username) {
		return user.User{}, ErrInvalidUsername
	}

	passwordLen := utf8.RuneCountInString(password)
	if passwordLen < minPasswordLen || passwordLen > maxPasswordLen {
		return user.User{}, ErrInvalidPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return user.User{}, err
	}

	acct := &Account{
		ID:           randx.UserID(),
		Username:     username,
		PasswordHash: string(hashed),
	}

	if err := s.repo.Create(ctx, acct); err != nil {
		if db.IsUniqueViolation(err) {
			s.logger.Warn().Str("username", username).Msg("Registration conflict: username already exists")
			return user.User{}, ErrUsernameTaken
		}
		return user.User{}, err
	}

	if err := s.repo.UpdateLastLogin(ctx, acct.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", acct.ID).Msg("Failed to update last_login_at after registration")
	}

	return s.toUser(acct), nil
}

// Authenticate verifies a username/password pair and returns the account's public identity.
// The caller must not distinguish between an unknown username and a wrong password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (user.User, error) {
	acct, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if db.IsNotFound(err) || errors.Is(err, ErrNotFound) {
			return user.User{}, ErrInvalidCredentials
		}
		return user.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Str("username", username).Msg("Login failed: password mismatch")
		return user.User{}, ErrInvalidCredentials
	}

	if err := s.repo.UpdateLastLogin(ctx, acct.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", acct.ID).Msg("Failed to update last_login_at after login")
	}

	return s.toUser(acct), nil
}

// GetProfile returns the public identity for the given account id.
func (s *Service) GetProfile(ctx context.Context, id string) (user.User, error) {
	acct, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) || errors.Is(err, ErrNotFound) {
			return user.User{}, ErrNotFound
		}
		return user.User{}, err
	}

	return s.toUser(acct), nil
}

// Rename changes the account's username after validating it.
func (s *Service) Rename(ctx context.Context, id, username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}

	if err := s.repo.UpdateUsername(ctx, id, username); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrUsernameTaken
		}
		if db.IsNotFound(err) || errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	return nil
}

// ChangePassword verifies the current password and stores a new bcrypt hash.
func (s *Service) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	passwordLen := utf8.RuneCountInString(newPassword)
	if passwordLen < minPasswordLen || passwordLen > maxPasswordLen {
		return ErrInvalidPassword
	}

	acct, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) || errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrOldPasswordMismatch
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return err
	}

	return s.repo.UpdatePassword(ctx, id, string(hashed))
}

// SetAvatar stores the avatar URL for the account.
func (s *Service) SetAvatar(ctx context.Context, id, avatarURL string) error {
	if err := s.repo.UpdateAvatar(ctx, id, avatarURL); err != nil {
		if db.IsNotFound(err) || errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// DeleteAccount removes the account and, via cascade, its stored messages.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if db.IsNotFound(err) || errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
