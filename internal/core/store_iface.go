package core

import (
	"context"
	"errors"

	"github.com/dkeye/chatrelay/internal/domain"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUserNotFound      = errors.New("user not found")
)

// TokenVerifier maps an opaque bearer credential to a user identity.
// Rejected credentials return ErrInvalidCredential; anything else is an outage.
type TokenVerifier interface {
	VerifyCredential(ctx context.Context, token string) (domain.UserID, error)
}

// MessageStore owns durable chat storage and user profiles.
// Implementations must be safe for concurrent use.
type MessageStore interface {
	LookupUserProfile(ctx context.Context, id domain.UserID) (*domain.User, error)
	PersistMessage(ctx context.Context, room domain.RoomID, user domain.UserID, content string) (*domain.ChatMessage, error)
}
