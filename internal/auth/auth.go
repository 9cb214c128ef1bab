// Package auth handles password hashing and opaque bearer tokens.
// Tokens are random and only their SHA-256 digest is stored, so a
// leaked database does not leak usable credentials.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/trk-project/trk/internal/models"
	"github.com/trk-project/trk/internal/policy"
	"github.com/trk-project/trk/internal/store"
)

// ErrInvalidCredentials is returned when a login or token lookup fails.
// The caller cannot distinguish a wrong password from an unknown user.
var ErrInvalidCredentials = errors.New("invalid credentials")

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// hashToken returns the hex SHA-256 digest of a token string.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Authenticator issues tokens and resolves them back to actors.
type Authenticator struct {
	store store.Store
}

// NewAuthenticator creates an Authenticator backed by the given store.
func NewAuthenticator(s store.Store) *Authenticator {
	return &Authenticator{store: s}
}

// Login verifies handle/password and mints a new bearer token.
func (a *Authenticator) Login(ctx context.Context, handle, password string) (string, error) {
	user, err := a.store.GetUserByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	return a.MintToken(ctx, user)
}

// MintToken creates and persists a fresh token for the user.
func (a *Authenticator) MintToken(ctx context.Context, user *models.User) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := "trk_" + hex.EncodeToString(raw)

	if err := a.store.CreateToken(ctx, user.ID, hashToken(token)); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve maps a bearer token to the actor it authenticates.
func (a *Authenticator) Resolve(ctx context.Context, token string) (policy.Actor, error) {
	if token == "" {
		return policy.Actor{}, ErrInvalidCredentials
	}
	user, err := a.store.GetUserByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return policy.Actor{}, ErrInvalidCredentials
		}
		return policy.Actor{}, err
	}
	return policy.Actor{ID: user.ID, Superuser: user.Superuser}, nil
}

// Logout revokes every token issued to the user.
func (a *Authenticator) Logout(ctx context.Context, userID string) error {
	return a.store.RevokeTokens(ctx, userID)
}
