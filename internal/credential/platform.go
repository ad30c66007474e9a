package credential

import (
	"context"

	"github.com/google/uuid"
)

// PlatformAuthenticator stands in for the device credential API. The
// real matcher lives in platform hardware; this implementation fabricates
// opaque credential references and accepts every assertion, while still
// enforcing the context checks a real platform performs.
type PlatformAuthenticator struct {
	// Secure mirrors the secure-context requirement; credentials cannot
	// be created over an untrusted transport.
	Secure bool
	// Capable reports whether the device exposes a platform
	// authenticator at all.
	Capable bool
}

// CreateCredential fabricates a durable credential reference.
func (a *PlatformAuthenticator) CreateCredential(ctx context.Context, userID, displayName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !a.Secure || !a.Capable {
		return "", ErrUnsupportedPlatform
	}
	if userID == "" {
		return "", ErrVerificationFailed
	}
	return uuid.NewString(), nil
}

// AssertCredential produces one fresh proof bound to the reference.
func (a *PlatformAuthenticator) AssertCredential(ctx context.Context, credentialID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !a.Secure || !a.Capable {
		return ErrUnsupportedPlatform
	}
	if credentialID == "" {
		return ErrVerificationFailed
	}
	return nil
}
