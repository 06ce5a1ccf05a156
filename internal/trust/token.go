// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package trust implements long-lived "remember me" tokens.
//
// A token is split into a public identifier and a high-entropy secret. Only
// the SHA-256 of the secret is persisted; the client holds "id:secret".
// Tokens are single-use: every successful verification destroys the record
// and mints a replacement, so a stolen value is good for at most one use and
// a replayed one finds nothing to match.
package trust

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token configuration.
const (
	// SecretBytes is the entropy of the generated secret.
	SecretBytes = 24

	// DefaultInterval is the lifetime of an issued token.
	DefaultInterval = 14 * 24 * time.Hour
)

// ErrTokenInvalid is returned for any verification failure that is not an
// expiry: unknown identifier, malformed client value, or hash mismatch.
var ErrTokenInvalid = errors.New("trust token invalid")

// ErrTokenExpired is returned when the presented token exists but has
// expired. The stale record is deleted when observed.
var ErrTokenExpired = errors.New("trust token expired")

// ErrTokenExists is returned by Issue when the user already holds an
// unexpired token. It must be rotated or revoked first.
var ErrTokenExists = errors.New("active trust token already exists")

// ErrNotFound is returned by Repository lookups when no token matches.
var ErrNotFound = errors.New("not found")

// Token is the persisted half of a remember-me credential.
type Token struct {
	ID         ulid.ULID
	SecretHash string
	UserID     ulid.ULID
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// IsExpired returns true if the token has expired at the given time.
func (t *Token) IsExpired(at time.Time) bool {
	return at.After(t.ExpiresAt)
}

// HashSecret computes the hex-encoded SHA-256 of a secret. This is the only
// form of the secret that is ever stored.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Repository manages trust token persistence. The same per-subject
// atomicity contract as the throttle store applies: concurrent
// verifications of the same token must serialize at the persistence
// boundary so only one can consume it.
type Repository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *Token) error

	// GetByID retrieves a token by its public identifier.
	GetByID(ctx context.Context, id ulid.ULID) (*Token, error)

	// GetByUser retrieves the token held by a user.
	GetByUser(ctx context.Context, userID ulid.ULID) (*Token, error)

	// Delete removes a token by ID. Deleting an absent token returns
	// ErrNotFound so a lost race is visible to the caller.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteExpired removes all expired tokens and returns the count.
	DeleteExpired(ctx context.Context) (int64, error)
}

// generateSecret returns a base64 secret with SecretBytes of randomness.
func generateSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("TRUST_SECRET_GENERATE_FAILED").
			With("requested_bytes", SecretBytes).
			Wrap(err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// splitClientToken splits a presented "id:secret" value on the first colon.
func splitClientToken(clientToken string) (id ulid.ULID, secret string, err error) {
	idPart, secretPart, found := strings.Cut(clientToken, ":")
	if !found || idPart == "" || secretPart == "" {
		return ulid.ULID{}, "", oops.Code("TRUST_TOKEN_MALFORMED").Wrap(ErrTokenInvalid)
	}
	parsed, parseErr := ulid.Parse(idPart)
	if parseErr != nil {
		return ulid.ULID{}, "", oops.Code("TRUST_TOKEN_MALFORMED").Wrap(ErrTokenInvalid)
	}
	return parsed, secretPart, nil
}
