package domain

import (
	"context"
	"time"
)

// ProfileStore fetches and updates one profile record by user id.
type ProfileStore interface {
	// Fetch returns ErrProfileNotFound when no record exists for userID.
	Fetch(ctx context.Context, userID string) (*Profile, error)
	// Update applies patch and returns the stored record. A stale IfVersion
	// fails with ErrVersionConflict.
	Update(ctx context.Context, userID string, patch ProfilePatch) (*Profile, error)
}

// IdentityProvider issues and tracks the signed-in session.
type IdentityProvider interface {
	CurrentSession(ctx context.Context) (*Session, error)
	// Subscribe registers fn for session changes; nil means signed out.
	Subscribe(fn func(*Session)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// CredentialStore holds the single generation backend credential.
type CredentialStore interface {
	// Get returns an empty string when no credential is stored.
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, value string) error
}

// ImageBackend produces image payloads for a prompt.
type ImageBackend interface {
	Generate(ctx context.Context, prompt string, count int, credential string) ([]ImagePayload, error)
}

// Clock abstracts time for entitlement cycles.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
