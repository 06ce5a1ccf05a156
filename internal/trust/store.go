// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package trust

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sirmadman/gatekeeper/internal/identity"
)

// Store issues, verifies, and rotates trust tokens.
type Store struct {
	tokens   Repository
	users    identity.Repository
	interval time.Duration
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithInterval overrides the token lifetime.
func WithInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store with the default token lifetime.
func NewStore(tokens Repository, users identity.Repository, opts ...Option) *Store {
	s := &Store{
		tokens:   tokens,
		users:    users,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the configured token lifetime.
func (s *Store) Interval() time.Duration { return s.interval }

// Issue mints a token for the user and returns the client-facing
// "id:secret" value. The raw secret is never stored. Issuance refuses to
// overwrite an unexpired token; an expired leftover is deleted first.
func (s *Store) Issue(ctx context.Context, userID ulid.ULID) (string, error) {
	existing, err := s.tokens.GetByUser(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", oops.Code("TRUST_ISSUE_FAILED").
			With("operation", "get token by user").
			Wrap(err)
	}
	if existing != nil {
		if !existing.IsExpired(s.now()) {
			return "", oops.Code("TRUST_TOKEN_EXISTS").
				With("user_id", userID.String()).
				Wrap(ErrTokenExists)
		}
		if err := s.tokens.Delete(ctx, existing.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return "", oops.Code("TRUST_ISSUE_FAILED").
				With("operation", "delete expired token").
				Wrap(err)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return "", err
	}

	token := &Token{
		ID:         ulid.Make(),
		SecretHash: HashSecret(secret),
		UserID:     userID,
		ExpiresAt:  s.now().Add(s.interval),
		CreatedAt:  s.now(),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", oops.Code("TRUST_ISSUE_FAILED").
			With("operation", "persist token").
			Wrap(err)
	}

	return token.ID.String() + ":" + secret, nil
}

// Verify checks a presented client token. The record is consumed on every
// lookup (a tampered value cannot be retried), the expiry is checked, and
// the secret hash is compared in constant time. On success the user is
// loaded and a replacement token is issued; the new client value is
// returned alongside the user.
func (s *Store) Verify(ctx context.Context, clientToken string) (*identity.User, string, error) {
	id, secret, err := splitClientToken(clientToken)
	if err != nil {
		return nil, "", err
	}

	token, err := s.tokens.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Unknown id: either never issued or already consumed (replay).
			return nil, "", oops.Code("TRUST_TOKEN_UNKNOWN").Wrap(ErrTokenInvalid)
		}
		return nil, "", oops.Code("TRUST_VERIFY_FAILED").
			With("operation", "get token by id").
			Wrap(err)
	}

	// Single use: the record is gone before the outcome is known.
	if err := s.tokens.Delete(ctx, token.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// A concurrent verification consumed it first.
			return nil, "", oops.Code("TRUST_TOKEN_UNKNOWN").Wrap(ErrTokenInvalid)
		}
		return nil, "", oops.Code("TRUST_VERIFY_FAILED").
			With("operation", "consume token").
			Wrap(err)
	}

	if token.IsExpired(s.now()) {
		return nil, "", oops.Code("TRUST_TOKEN_EXPIRED").
			With("token_id", token.ID.String()).
			Wrap(ErrTokenExpired)
	}

	if !hashEquals(HashSecret(secret), token.SecretHash) {
		return nil, "", oops.Code("TRUST_TOKEN_MISMATCH").Wrap(ErrTokenInvalid)
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return nil, "", oops.Code("TRUST_VERIFY_FAILED").
			With("operation", "get token user").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}

	replacement, err := s.Issue(ctx, user.ID)
	if err != nil {
		return nil, "", oops.Code("TRUST_ROTATE_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return user, replacement, nil
}

// Revoke consumes a presented client token without verifying its secret,
// the logout path. Revoking an unknown token is not an error.
func (s *Store) Revoke(ctx context.Context, clientToken string) error {
	id, _, err := splitClientToken(clientToken)
	if err != nil {
		return err
	}
	if err := s.tokens.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("TRUST_REVOKE_FAILED").
			With("token_id", id.String()).
			Wrap(err)
	}
	return nil
}

// hashEquals compares two hex digests in constant time. Both inputs are
// SHA-256 digests of their respective sides, so their lengths never differ
// and the comparison cannot leak a divergence position.
func hashEquals(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}
