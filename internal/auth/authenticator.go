package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/splitopus/splitopus/internal/models"
)

// UserStorage defines the interface for user persistence operations.
// This allows the authenticator to be independent of the storage implementation.
type UserStorage interface {
	UpsertUser(ctx context.Context, user *models.User) error
}

// Authenticator defines the interface for authentication implementations.
// This abstraction allows swapping the identity provider without changing
// the HTTP layer.
type Authenticator interface {
	// Authenticate verifies a credential, records the user and returns it
	// together with a session token.
	Authenticate(ctx context.Context, credential string) (*models.User, string, error)
}

// TelegramAuthenticator authenticates Mini App users by their init data.
type TelegramAuthenticator struct {
	validator *InitDataValidator
	tokens    *JWTManager
	storage   UserStorage
}

var _ Authenticator = (*TelegramAuthenticator)(nil)

// NewTelegramAuthenticator creates an authenticator backed by the given validator.
func NewTelegramAuthenticator(validator *InitDataValidator, tokens *JWTManager, storage UserStorage) *TelegramAuthenticator {
	return &TelegramAuthenticator{validator: validator, tokens: tokens, storage: storage}
}

// Authenticate validates initData, upserts the Telegram user and issues a JWT.
func (a *TelegramAuthenticator) Authenticate(ctx context.Context, initData string) (*models.User, string, error) {
	data, err := a.validator.Validate(initData)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		ID:       strconv.FormatInt(data.User.ID, 10),
		Name:     data.User.DisplayName(),
		Username: data.User.Username,
	}
	if err := a.storage.UpsertUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to save user: %w", err)
	}

	token, err := a.tokens.Generate(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}
