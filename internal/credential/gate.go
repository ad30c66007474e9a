// Package credential bridges "verify this user's identity right now" to a
// one-time platform credential ceremony. It knows nothing about sessions,
// scores or attendance; it answers only whether the enrolled person is
// present on this device.
package credential

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPlatform means the execution context is not secure
	// or lacks the platform credential capability.
	ErrUnsupportedPlatform = errors.New("platform biometric authentication is not available in this context")

	// ErrVerificationFailed means the ceremony was cancelled, timed out,
	// or returned a non-matching credential type.
	ErrVerificationFailed = errors.New("biometric verification failed")
)

// Authenticator is the platform capability: create a durable credential
// for a user, and produce one fresh assertion bound to it.
type Authenticator interface {
	CreateCredential(ctx context.Context, userID, displayName string) (string, error)
	AssertCredential(ctx context.Context, credentialID string) error
}

// Store persists credential references per user across sessions.
type Store interface {
	Get(ctx context.Context, userID string) (string, error)
	Put(ctx context.Context, userID, credentialID string) error
}

// Gate wires an Authenticator to a durable Store.
type Gate struct {
	auth  Authenticator
	store Store
}

// NewGate creates a gate.
func NewGate(auth Authenticator, store Store) *Gate {
	return &Gate{auth: auth, store: store}
}

// EnsureCredential returns the user's stored credential reference,
// creating one through the platform ceremony only when none exists.
func (g *Gate) EnsureCredential(ctx context.Context, userID, displayName string) (string, error) {
	if existing, err := g.store.Get(ctx, userID); err != nil {
		return "", fmt.Errorf("credential lookup: %w", err)
	} else if existing != "" {
		return existing, nil
	}

	credentialID, err := g.auth.CreateCredential(ctx, userID, displayName)
	if err != nil {
		return "", err
	}
	if err := g.store.Put(ctx, userID, credentialID); err != nil {
		return "", fmt.Errorf("credential save: %w", err)
	}
	return credentialID, nil
}

// ProveIdentity runs the full ceremony: ensure a credential exists, then
// request a single fresh assertion bound to it.
func (g *Gate) ProveIdentity(ctx context.Context, userID, displayName string) error {
	credentialID, err := g.EnsureCredential(ctx, userID, displayName)
	if err != nil {
		return err
	}
	return g.auth.AssertCredential(ctx, credentialID)
}
