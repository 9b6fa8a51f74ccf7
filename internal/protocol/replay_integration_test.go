//go:build integration

package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"commonsource/pkg/platform/sentinel"
	"commonsource/pkg/testutil/containers"
)

func TestRedisReplayGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	guard := NewRedisReplayGuard(rc.Client, time.Hour)

	require.NoError(t, guard.Claim(ctx, "nonce-1"))
	require.ErrorIs(t, guard.Claim(ctx, "nonce-1"), sentinel.ErrAlreadyUsed)
	require.NoError(t, guard.Claim(ctx, "nonce-2"))
}

func TestRedisReplayGuardExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	guard := NewRedisReplayGuard(rc.Client, 200*time.Millisecond)

	require.NoError(t, guard.Claim(ctx, "nonce-1"))
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, guard.Claim(ctx, "nonce-1"), "expired nonces may be reclaimed")
}
