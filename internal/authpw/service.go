// Package authpw provides password verification and the reset-token lifecycle.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"reviewport/api/internal/auth"
	"reviewport/api/internal/model"
)

// ErrInvalidCredentials is the single outcome for a bad email or password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrInvalidResetToken covers unknown, expired, and already-used reset tokens.
var ErrInvalidResetToken = errors.New("invalid or expired reset token")

// dummyHash is compared against when the email is unknown, so lookup misses
// cost the same as a wrong password.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("reviewport-dummy-credential"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

// ClientStore is the storage surface needed for credential and reset handling.
type ClientStore interface {
	ClientByEmail(ctx context.Context, email string) (model.Client, error)
	UpdateClientPassword(ctx context.Context, clientID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, reset model.PasswordReset) error
	ConsumePasswordReset(ctx context.Context, tokenHash string) (clientID string, err error)
}

// Service verifies credentials and manages password resets.
type Service struct {
	store    ClientStore
	resetTTL time.Duration
}

func NewService(store ClientStore) *Service {
	return &Service{store: store, resetTTL: time.Hour}
}

// VerifyCredentials returns the client when email and password match an active
// account. Unknown emails still pay a full hash comparison.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (model.Client, error) {
	client, lookupErr := s.store.ClientByEmail(ctx, email)
	if lookupErr != nil || client.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return model.Client{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(client.PasswordHash), []byte(password)); err != nil {
		return model.Client{}, ErrInvalidCredentials
	}
	if !client.IsActive {
		return model.Client{}, ErrInvalidCredentials
	}
	return client, nil
}

// HashPassword hashes a new password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// RequestReset issues a reset token for the account, or "" when the email is
// unknown. Callers must not reveal which of the two happened.
func (s *Service) RequestReset(ctx context.Context, email string) (token string, client model.Client, err error) {
	client, lookupErr := s.store.ClientByEmail(ctx, email)
	if lookupErr != nil {
		return "", model.Client{}, nil
	}

	token, err = auth.NewToken()
	if err != nil {
		return "", model.Client{}, err
	}

	reset := model.PasswordReset{
		ClientID:  client.ID,
		TokenHash: auth.HashToken(token),
		ExpiresAt: time.Now().UTC().Add(s.resetTTL),
	}
	if err := s.store.CreatePasswordReset(ctx, reset); err != nil {
		return "", model.Client{}, fmt.Errorf("create password reset: %w", err)
	}
	return token, client, nil
}

// ResetPassword consumes a reset token and stores the new password hash.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return errors.New("token and new password are required")
	}
	if len(newPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	clientID, err := s.store.ConsumePasswordReset(ctx, auth.HashToken(token))
	if err != nil {
		return ErrInvalidResetToken
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateClientPassword(ctx, clientID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// HoldUntil pads a login attempt to a minimum elapsed duration, measured from
// start. Both failure paths and lockout responses go through this.
func HoldUntil(start time.Time, min time.Duration) {
	if elapsed := time.Since(start); elapsed < min {
		time.Sleep(min - elapsed)
	}
}
