// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package gate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirmadman/gatekeeper/internal/gate"
)

func TestIPRestriction(t *testing.T) {
	ctx := context.Background()

	t.Run("empty lists permit everything", func(t *testing.T) {
		r, err := gate.NewIPRestriction(nil, nil)
		require.NoError(t, err)
		assert.NoError(t, r.Evaluate(ctx, &gate.Request{RemoteIP: "203.0.113.7"}))
	})

	t.Run("deny pattern blocks", func(t *testing.T) {
		r, err := gate.NewIPRestriction(nil, []string{"10.0.*.*"})
		require.NoError(t, err)

		assert.ErrorIs(t, r.Evaluate(ctx, &gate.Request{RemoteIP: "10.0.4.2"}), gate.ErrIPDenied)
		assert.NoError(t, r.Evaluate(ctx, &gate.Request{RemoteIP: "192.168.4.2"}))
	})

	t.Run("allow list restricts to its patterns", func(t *testing.T) {
		r, err := gate.NewIPRestriction([]string{"192.168.1.*"}, nil)
		require.NoError(t, err)

		assert.NoError(t, r.Evaluate(ctx, &gate.Request{RemoteIP: "192.168.1.50"}))
		assert.ErrorIs(t, r.Evaluate(ctx, &gate.Request{RemoteIP: "192.168.2.50"}), gate.ErrIPDenied)
	})

	t.Run("deny wins over allow", func(t *testing.T) {
		r, err := gate.NewIPRestriction([]string{"192.168.*.*"}, []string{"192.168.1.66"})
		require.NoError(t, err)

		assert.ErrorIs(t, r.Evaluate(ctx, &gate.Request{RemoteIP: "192.168.1.66"}), gate.ErrIPDenied)
		assert.NoError(t, r.Evaluate(ctx, &gate.Request{RemoteIP: "192.168.1.67"}))
	})

	t.Run("star matches one octet only", func(t *testing.T) {
		r, err := gate.NewIPRestriction([]string{"10.*.1.1"}, nil)
		require.NoError(t, err)

		assert.NoError(t, r.Evaluate(ctx, &gate.Request{RemoteIP: "10.99.1.1"}))
		assert.ErrorIs(t, r.Evaluate(ctx, &gate.Request{RemoteIP: "10.9.9.1"}), gate.ErrIPDenied)
	})

	t.Run("missing remote address errors", func(t *testing.T) {
		r, err := gate.NewIPRestriction(nil, nil)
		require.NoError(t, err)
		assert.Error(t, r.Evaluate(ctx, &gate.Request{}))
	})

	t.Run("bad pattern rejected at construction", func(t *testing.T) {
		_, err := gate.NewIPRestriction([]string{"10.[0.0.1"}, nil)
		assert.Error(t, err)
	})
}

func TestFuncRestriction(t *testing.T) {
	called := false
	r := gate.NewFuncRestriction("custom", func(context.Context, *gate.Request) error {
		called = true
		return nil
	})

	assert.Equal(t, "custom", r.Kind())
	assert.NoError(t, r.Evaluate(context.Background(), &gate.Request{}))
	assert.True(t, called)
}
