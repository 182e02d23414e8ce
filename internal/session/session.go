// Package session stores API sessions behind an injected Store so handlers
// never touch process-wide state.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// Session is an authenticated caller.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store creates, resolves and invalidates sessions.
type Store interface {
	Create(ctx context.Context, userID int64) (Session, error)
	Get(ctx context.Context, token string) (Session, error)
	Invalidate(ctx context.Context, token string) error
}
