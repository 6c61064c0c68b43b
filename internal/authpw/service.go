// Package authpw provides email/password authentication.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"moodtide/internal/store"
	"moodtide/internal/util"
)

// Error kinds surfaced to callers. The HTTP layer maps these to the wire
// error codes; everything else is Unknown.
var (
	ErrDuplicateAccount  = errors.New("email already registered")
	ErrWeakCredential    = errors.New("password must be at least 8 characters")
	ErrInvalidCredential = errors.New("invalid email or password")
)

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.UserProfile, error)
	GetUserByID(ctx context.Context, id string) (store.UserProfile, error)
	UpsertUserProfile(ctx context.Context, user store.UserProfile) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

// Service provides email/password authentication
type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUp creates a new account. The profile write is an idempotent upsert
// because the OAuth callback may have created the same profile already.
func (s *Service) SignUp(ctx context.Context, email, password string) (store.UserProfile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return store.UserProfile{}, errors.New("email and password are required")
	}
	if len(password) < 8 {
		return store.UserProfile{}, ErrWeakCredential
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.UserProfile{}, ErrDuplicateAccount
	} else if !store.IsNotFound(err) {
		return store.UserProfile{}, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.UserProfile{
		ID:           util.NewID("usr"),
		DisplayName:  displayNameFromEmail(email),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.store.UpsertUserProfile(ctx, user); err != nil {
		return store.UserProfile{}, fmt.Errorf("create profile: %w", err)
	}
	return user, nil
}

// SignIn authenticates an existing account.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.UserProfile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return store.UserProfile{}, errors.New("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			return store.UserProfile{}, ErrInvalidCredential
		}
		return store.UserProfile{}, fmt.Errorf("lookup account: %w", err)
	}
	if user.PasswordHash == "" {
		// OAuth-only account; no password to check against.
		return store.UserProfile{}, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.UserProfile{}, ErrInvalidCredential
	}
	return user, nil
}

// RequestPasswordReset creates a reset token. It returns an empty token when
// the email is unknown so callers cannot probe for registered addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return "", nil
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := s.store.CreatePasswordReset(ctx, user.ID, token, time.Now().Add(1*time.Hour)); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return errors.New("token and new password are required")
	}
	if len(newPassword) < 8 {
		return ErrWeakCredential
	}

	userID, err := s.store.GetPasswordReset(ctx, token)
	if err != nil {
		return errors.New("invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	// Password was reset; a stale token row is tolerable.
	_ = s.store.MarkPasswordResetUsed(ctx, token)
	return nil
}

func displayNameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
