// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package trust_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirmadman/gatekeeper/internal/identity"
	"github.com/sirmadman/gatekeeper/internal/trust"
)

// memTokenRepo is an in-memory trust.Repository.
type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[ulid.ULID]*trust.Token
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[ulid.ULID]*trust.Token)}
}

func (m *memTokenRepo) Create(_ context.Context, token *trust.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.ID] = &cp
	return nil
}

func (m *memTokenRepo) GetByID(_ context.Context, id ulid.ULID) (*trust.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[id]
	if !ok {
		return nil, trust.ErrNotFound
	}
	cp := *token
	return &cp, nil
}

func (m *memTokenRepo) GetByUser(_ context.Context, userID ulid.ULID) (*trust.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.tokens {
		if token.UserID == userID {
			cp := *token
			return &cp, nil
		}
	}
	return nil, trust.ErrNotFound
}

func (m *memTokenRepo) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return trust.ErrNotFound
	}
	delete(m.tokens, id)
	return nil
}

func (m *memTokenRepo) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for id, token := range m.tokens {
		if token.IsExpired(now) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *memTokenRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

// memUserRepo is a minimal identity.Repository for token verification.
type memUserRepo struct {
	users map[ulid.ULID]*identity.User
}

func newMemUserRepo(users ...*identity.User) *memUserRepo {
	m := &memUserRepo{users: make(map[ulid.ULID]*identity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUserRepo) Create(_ context.Context, user *identity.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memUserRepo) GetByID(_ context.Context, id ulid.ULID) (*identity.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return user, nil
}

func (m *memUserRepo) GetByUsername(_ context.Context, username string) (*identity.User, error) {
	for _, user := range m.users {
		if strings.EqualFold(user.Username, username) {
			return user, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (m *memUserRepo) Update(_ context.Context, user *identity.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return identity.ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *memUserRepo) Delete(_ context.Context, id ulid.ULID) error {
	if _, ok := m.users[id]; !ok {
		return identity.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func newTrustFixture(t *testing.T, opts ...trust.Option) (*trust.Store, *memTokenRepo, *identity.User) {
	t.Helper()
	user, err := identity.NewUser("alice", "somehash")
	require.NoError(t, err)
	tokens := newMemTokenRepo()
	store := trust.NewStore(tokens, newMemUserRepo(user), opts...)
	return store, tokens, user
}

func TestStoreIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("returns id colon secret", func(t *testing.T) {
		store, tokens, user := newTrustFixture(t)

		clientToken, err := store.Issue(ctx, user.ID)
		require.NoError(t, err)

		idPart, secret, found := strings.Cut(clientToken, ":")
		require.True(t, found)
		id, err := ulid.Parse(idPart)
		require.NoError(t, err)
		assert.NotEmpty(t, secret)

		stored, err := tokens.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.UserID)
		assert.Equal(t, trust.HashSecret(secret), stored.SecretHash)
		assert.NotContains(t, stored.SecretHash, secret, "plaintext secret must not be persisted")
	})

	t.Run("refuses while an unexpired token exists", func(t *testing.T) {
		store, _, user := newTrustFixture(t)

		_, err := store.Issue(ctx, user.ID)
		require.NoError(t, err)

		_, err = store.Issue(ctx, user.ID)
		assert.ErrorIs(t, err, trust.ErrTokenExists)
	})

	t.Run("replaces an expired leftover", func(t *testing.T) {
		now := time.Now()
		store, tokens, user := newTrustFixture(t,
			trust.WithClock(func() time.Time { return now }))

		_, err := store.Issue(ctx, user.ID)
		require.NoError(t, err)

		now = now.Add(trust.DefaultInterval + time.Hour)
		clientToken, err := store.Issue(ctx, user.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, clientToken)
		assert.Equal(t, 1, tokens.count())
	})
}

func TestStoreVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token verifies once and rotates", func(t *testing.T) {
		store, tokens, user := newTrustFixture(t)

		clientToken, err := store.Issue(ctx, user.ID)
		require.NoError(t, err)

		got, replacement, err := store.Verify(ctx, clientToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.NotEmpty(t, replacement)
		assert.NotEqual(t, clientToken, replacement)
		assert.Equal(t, 1, tokens.count())

		// Replaying the consumed token finds nothing to match.
		_, _, err = store.Verify(ctx, clientToken)
		assert.ErrorIs(t, err, trust.ErrTokenInvalid)

		// The replacement is good for the next round.
		_, next, err := store.Verify(ctx, replacement)
		require.NoError(t, err)
		assert.NotEmpty(t, next)
	})

	t.Run("wrong secret consumes the token", func(t *testing.T) {
		store, tokens, user := newTrustFixture(t)

		clientToken, err := store.Issue(ctx, user.ID)
		require.NoError(t, err)
		idPart, _, _ := strings.Cut(clientToken, ":")

		_, _, err = store.Verify(ctx, idPart+":wrongsecret")
		assert.ErrorIs(t, err, trust.ErrTokenInvalid)
		assert.Equal(t, 0, tokens.count(), "a failed comparison still burns the token")
	})

	t.Run("expired token is rejected and deleted", func(t *testing.T) {
		now := time.Now()
		store, tokens, user := newTrustFixture(t,
			trust.WithClock(func() time.Time { return now }))

		clientToken, err := store.Issue(ctx, user.ID)
		require.NoError(t, err)

		now = now.Add(trust.DefaultInterval + time.Hour)
		_, _, err = store.Verify(ctx, clientToken)
		assert.ErrorIs(t, err, trust.ErrTokenExpired)
		assert.Equal(t, 0, tokens.count())
	})

	t.Run("malformed client values are invalid", func(t *testing.T) {
		store, _, _ := newTrustFixture(t)

		for _, bad := range []string{"", "nocolon", ":", "abc:", ":def", "not-a-ulid:secret"} {
			_, _, err := store.Verify(ctx, bad)
			assert.ErrorIs(t, err, trust.ErrTokenInvalid, "value %q", bad)
		}
	})

	t.Run("unknown id is invalid", func(t *testing.T) {
		store, _, _ := newTrustFixture(t)

		_, _, err := store.Verify(ctx, ulid.Make().String()+":secret")
		assert.ErrorIs(t, err, trust.ErrTokenInvalid)
	})
}

func TestStoreRevoke(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes an issued token", func(t *testing.T) {
		store, tokens, user := newTrustFixture(t)

		clientToken, err := store.Issue(ctx, user.ID)
		require.NoError(t, err)

		require.NoError(t, store.Revoke(ctx, clientToken))
		assert.Equal(t, 0, tokens.count())

		_, _, err = store.Verify(ctx, clientToken)
		assert.ErrorIs(t, err, trust.ErrTokenInvalid)
	})

	t.Run("revoking an unknown token is not an error", func(t *testing.T) {
		store, _, _ := newTrustFixture(t)
		assert.NoError(t, store.Revoke(ctx, ulid.Make().String()+":whatever"))
	})
}
