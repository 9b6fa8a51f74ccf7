package protocol

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "commonsource/pkg/domain-errors"
	"commonsource/pkg/platform/sentinel"
	"commonsource/pkg/testutil"
)

func TestNonceRoundTrip(t *testing.T) {
	issuer := testutil.NewFakeWallet(t)
	holder := testutil.NewFakeWallet(t)
	ctx := context.Background()

	nonce, err := CreateNonce(ctx, issuer, holder.PrivateKey.PubKey())
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	require.NoError(t, VerifyNonce(ctx, nonce, issuer, holder.PrivateKey.PubKey()))
}

func TestNonceCrossWalletRoundTrip(t *testing.T) {
	issuer := testutil.NewFakeWallet(t)
	holder := testutil.NewFakeWallet(t)
	ctx := context.Background()

	// Holder mints the nonce against the issuer; the issuer verifies it
	// against the holder. The HMAC key is derived from the shared secret,
	// so both directions see the same key.
	nonce, err := CreateNonce(ctx, holder, issuer.PrivateKey.PubKey())
	require.NoError(t, err)

	require.NoError(t, VerifyNonce(ctx, nonce, issuer, holder.PrivateKey.PubKey()))
}

func TestNonceRejectsWrongCounterparty(t *testing.T) {
	issuer := testutil.NewFakeWallet(t)
	holder := testutil.NewFakeWallet(t)
	stranger := testutil.NewFakeWallet(t)
	ctx := context.Background()

	nonce, err := CreateNonce(ctx, issuer, holder.PrivateKey.PubKey())
	require.NoError(t, err)

	err = VerifyNonce(ctx, nonce, issuer, stranger.PrivateKey.PubKey())
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeProtocolViolation))
}

func TestNonceRejectsTampering(t *testing.T) {
	issuer := testutil.NewFakeWallet(t)
	holder := testutil.NewFakeWallet(t)
	ctx := context.Background()

	nonce, err := CreateNonce(ctx, issuer, holder.PrivateKey.PubKey())
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(nonce)
	require.NoError(t, err)
	raw[0] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	err = VerifyNonce(ctx, tampered, issuer, holder.PrivateKey.PubKey())
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeProtocolViolation))
}

func TestDeriveSerialNumberDeterministic(t *testing.T) {
	issuer := testutil.NewFakeWallet(t)
	holder := testutil.NewFakeWallet(t)
	ctx := context.Background()

	clientNonce := base64.StdEncoding.EncodeToString([]byte("client-nonce-16b"))
	serverNonce := base64.StdEncoding.EncodeToString([]byte("server-nonce-16b"))

	first, err := DeriveSerialNumber(ctx, issuer, clientNonce, serverNonce, holder.PrivateKey.PubKey())
	require.NoError(t, err)
	second, err := DeriveSerialNumber(ctx, issuer, clientNonce, serverNonce, holder.PrivateKey.PubKey())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	decoded, err := base64.StdEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)
}

func TestDeriveSerialNumberDivergesAcrossNonces(t *testing.T) {
	issuer := testutil.NewFakeWallet(t)
	holder := testutil.NewFakeWallet(t)
	ctx := context.Background()

	clientNonce := base64.StdEncoding.EncodeToString([]byte("client-nonce-16b"))
	serverA := base64.StdEncoding.EncodeToString([]byte("server-nonce-aaa"))
	serverB := base64.StdEncoding.EncodeToString([]byte("server-nonce-bbb"))

	a, err := DeriveSerialNumber(ctx, issuer, clientNonce, serverA, holder.PrivateKey.PubKey())
	require.NoError(t, err)
	b, err := DeriveSerialNumber(ctx, issuer, clientNonce, serverB, holder.PrivateKey.PubKey())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeriveSerialNumberBoundToSubject(t *testing.T) {
	issuer := testutil.NewFakeWallet(t)
	holderA := testutil.NewFakeWallet(t)
	holderB := testutil.NewFakeWallet(t)
	ctx := context.Background()

	clientNonce := base64.StdEncoding.EncodeToString([]byte("client-nonce-16b"))
	serverNonce := base64.StdEncoding.EncodeToString([]byte("server-nonce-16b"))

	a, err := DeriveSerialNumber(ctx, issuer, clientNonce, serverNonce, holderA.PrivateKey.PubKey())
	require.NoError(t, err)
	b, err := DeriveSerialNumber(ctx, issuer, clientNonce, serverNonce, holderB.PrivateKey.PubKey())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestMemoryReplayGuard(t *testing.T) {
	guard := NewMemoryReplayGuard(time.Hour)
	ctx := context.Background()

	require.NoError(t, guard.Claim(ctx, "nonce-1"))

	err := guard.Claim(ctx, "nonce-1")
	require.ErrorIs(t, err, sentinel.ErrAlreadyUsed)

	require.NoError(t, guard.Claim(ctx, "nonce-2"))
}

func TestMemoryReplayGuardExpiry(t *testing.T) {
	guard := NewMemoryReplayGuard(time.Minute)
	now := time.Now()
	guard.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, guard.Claim(ctx, "nonce-1"))

	now = now.Add(2 * time.Minute)
	require.NoError(t, guard.Claim(ctx, "nonce-1"), "expired nonces may be reclaimed")
}

func TestVerifyNonceFromDifferentIssuerWallet(t *testing.T) {
	issuerA := testutil.NewFakeWallet(t)
	issuerB := testutil.NewFakeWallet(t)
	holder := testutil.NewFakeWallet(t)
	ctx := context.Background()

	nonce, err := CreateNonce(ctx, issuerA, holder.PrivateKey.PubKey())
	require.NoError(t, err)

	// A nonce minted by one issuer wallet never verifies under another.
	err = VerifyNonce(ctx, nonce, issuerB, holder.PrivateKey.PubKey())
	require.Error(t, err)
}
