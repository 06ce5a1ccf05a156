// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirmadman/gatekeeper/internal/identity"
)

func newResetUser(t *testing.T) *identity.User {
	t.Helper()
	user, err := identity.NewUser("alice", "somehash")
	require.NoError(t, err)
	return user
}

func TestGenerateResetCode(t *testing.T) {
	user := newResetUser(t)

	code, err := user.GenerateResetCode()
	require.NoError(t, err)

	assert.Len(t, code, identity.ResetCodeLength)
	require.NotNil(t, user.ResetCode)
	assert.Equal(t, code, *user.ResetCode)
	require.NotNil(t, user.ResetCodeExpires)
	assert.WithinDuration(t, time.Now().Add(identity.ResetCodeExpiry), *user.ResetCodeExpires, time.Minute)
}

func TestCheckResetCode(t *testing.T) {
	t.Run("matching code succeeds and is cleared", func(t *testing.T) {
		user := newResetUser(t)
		code, err := user.GenerateResetCode()
		require.NoError(t, err)

		ok, err := user.CheckResetCode(code)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Nil(t, user.ResetCode)
		assert.Nil(t, user.ResetCodeExpires)
	})

	t.Run("cleared code cannot be reused", func(t *testing.T) {
		user := newResetUser(t)
		code, err := user.GenerateResetCode()
		require.NoError(t, err)

		ok, err := user.CheckResetCode(code)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = user.CheckResetCode(code)
		assert.ErrorIs(t, err, identity.ErrResetCodeMissing)
	})

	t.Run("wrong code fails but stays pending", func(t *testing.T) {
		user := newResetUser(t)
		_, err := user.GenerateResetCode()
		require.NoError(t, err)

		ok, err := user.CheckResetCode("wrong")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NotNil(t, user.ResetCode)
	})

	t.Run("no pending code errors", func(t *testing.T) {
		user := newResetUser(t)
		_, err := user.CheckResetCode("anything")
		assert.ErrorIs(t, err, identity.ErrResetCodeMissing)
	})

	t.Run("expired code errors and is cleared", func(t *testing.T) {
		user := newResetUser(t)
		code, err := user.GenerateResetCode()
		require.NoError(t, err)

		expired := time.Now().Add(-time.Minute)
		user.ResetCodeExpires = &expired

		_, err = user.CheckResetCode(code)
		assert.ErrorIs(t, err, identity.ErrResetCodeExpired)
		assert.Nil(t, user.ResetCode)
		assert.Nil(t, user.ResetCodeExpires)
	})
}
