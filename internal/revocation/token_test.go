package revocation

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commonsource/internal/walletclient"
	"commonsource/pkg/testutil"
)

func newManager(t *testing.T, fake *testutil.FakeWallet) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := walletclient.New(fake, walletclient.RetryPolicy{MaxAttempts: 1, Backoff: time.Millisecond}, logger, nil)
	return NewManager(client, logger)
}

func testSerial() string {
	return base64.StdEncoding.EncodeToString([]byte("serial-preimage-material-32bytes"))
}

func TestMintPinsTokenAtIndexZero(t *testing.T) {
	fake := testutil.NewFakeWallet(t)
	serial := testSerial()

	var captured wallet.CreateActionArgs
	fake.CreateActionFunc = func(_ context.Context, args wallet.CreateActionArgs) (*wallet.CreateActionResult, error) {
		captured = args
		return &wallet.CreateActionResult{Txid: testutil.DeterministicTxid("mint")}, nil
	}

	mgr := newManager(t, fake)
	subject := fake.PrivateKey.PubKey()

	outpoint, err := mgr.Mint(context.Background(), subject, serial)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), outpoint.Index)
	assert.Equal(t, testutil.DeterministicTxid("mint"), outpoint.Txid)

	require.Len(t, captured.Outputs, 1)
	out := captured.Outputs[0]
	assert.Equal(t, uint64(1), out.Satoshis)
	assert.Equal(t, BasketFor(subject), out.Basket)
	assert.Contains(t, out.Tags, TagFor(serial))

	wantLock, err := LockingScript(serial)
	require.NoError(t, err)
	assert.Equal(t, wantLock, out.LockingScript)

	require.NotNil(t, captured.Options)
	require.NotNil(t, captured.Options.RandomizeOutputs)
	assert.False(t, *captured.Options.RandomizeOutputs)
}

func TestIsLiveReflectsSpendability(t *testing.T) {
	fake := testutil.NewFakeWallet(t)
	serial := testSerial()
	subject := fake.PrivateKey.PubKey()
	outpoint := &transaction.Outpoint{Txid: testutil.DeterministicTxid("mint"), Index: 0}

	spendable := true
	fake.ListOutputsFunc = func(_ context.Context, args wallet.ListOutputsArgs) (*wallet.ListOutputsResult, error) {
		assert.Equal(t, BasketFor(subject), args.Basket)
		assert.Equal(t, []string{TagFor(serial)}, args.Tags)
		return &wallet.ListOutputsResult{
			TotalOutputs: 1,
			Outputs: []wallet.Output{{
				Satoshis:  1,
				Spendable: spendable,
				Outpoint:  *outpoint,
				Tags:      []string{TagFor(serial)},
			}},
		}, nil
	}

	mgr := newManager(t, fake)

	live, err := mgr.IsLive(context.Background(), subject, serial, outpoint)
	require.NoError(t, err)
	assert.True(t, live)

	spendable = false
	live, err = mgr.IsLive(context.Background(), subject, serial, outpoint)
	require.NoError(t, err)
	assert.False(t, live)
}

func TestFindIgnoresOtherOutpoints(t *testing.T) {
	fake := testutil.NewFakeWallet(t)
	serial := testSerial()
	subject := fake.PrivateKey.PubKey()
	wanted := &transaction.Outpoint{Txid: testutil.DeterministicTxid("mint"), Index: 0}
	other := transaction.Outpoint{Txid: testutil.DeterministicTxid("other"), Index: 0}

	fake.ListOutputsFunc = func(_ context.Context, _ wallet.ListOutputsArgs) (*wallet.ListOutputsResult, error) {
		return &wallet.ListOutputsResult{
			TotalOutputs: 1,
			Outputs:      []wallet.Output{{Satoshis: 1, Spendable: true, Outpoint: other}},
		}, nil
	}

	mgr := newManager(t, fake)
	_, err := mgr.Find(context.Background(), subject, serial, wanted)
	require.Error(t, err)
}

func TestSpendRevealsPreimage(t *testing.T) {
	fake := testutil.NewFakeWallet(t)
	serial := testSerial()
	subject := fake.PrivateKey.PubKey()
	outpoint := &transaction.Outpoint{Txid: testutil.DeterministicTxid("mint"), Index: 0}
	reference := []byte("ref-1")

	fake.CreateActionFunc = func(_ context.Context, args wallet.CreateActionArgs) (*wallet.CreateActionResult, error) {
		require.Len(t, args.Inputs, 1)
		assert.Equal(t, *outpoint, args.Inputs[0].Outpoint)
		wantUnlock, err := UnlockingScript(serial)
		require.NoError(t, err)
		assert.Equal(t, uint32(len(wantUnlock)), args.Inputs[0].UnlockingScriptLength)
		return &wallet.CreateActionResult{
			SignableTransaction: &wallet.SignableTransaction{Reference: reference},
		}, nil
	}
	fake.SignActionFunc = func(_ context.Context, args wallet.SignActionArgs) (*wallet.SignActionResult, error) {
		assert.Equal(t, reference, args.Reference)
		wantUnlock, err := UnlockingScript(serial)
		require.NoError(t, err)
		require.Contains(t, args.Spends, uint32(0))
		assert.Equal(t, wantUnlock, args.Spends[0].UnlockingScript)
		return &wallet.SignActionResult{Txid: testutil.DeterministicTxid("spend")}, nil
	}

	mgr := newManager(t, fake)
	txid, err := mgr.Spend(context.Background(), subject, serial, outpoint)
	require.NoError(t, err)
	assert.Equal(t, testutil.DeterministicTxid("spend"), txid)
	assert.Equal(t, []string{"CreateAction", "SignAction"}, fake.Calls())
}

func TestSpendAcceptsSingleStepWallet(t *testing.T) {
	fake := testutil.NewFakeWallet(t)
	serial := testSerial()
	subject := fake.PrivateKey.PubKey()
	outpoint := &transaction.Outpoint{Txid: testutil.DeterministicTxid("mint"), Index: 0}

	fake.CreateActionFunc = func(_ context.Context, _ wallet.CreateActionArgs) (*wallet.CreateActionResult, error) {
		return &wallet.CreateActionResult{Txid: testutil.DeterministicTxid("spend")}, nil
	}

	mgr := newManager(t, fake)
	txid, err := mgr.Spend(context.Background(), subject, serial, outpoint)
	require.NoError(t, err)
	assert.Equal(t, testutil.DeterministicTxid("spend"), txid)
	assert.Equal(t, []string{"CreateAction"}, fake.Calls())
}

func TestOutpointRoundTrip(t *testing.T) {
	op := &transaction.Outpoint{Txid: testutil.DeterministicTxid("mint"), Index: 7}

	s := FormatOutpoint(op)
	parsed, err := ParseOutpoint(s)
	require.NoError(t, err)
	assert.Equal(t, op, parsed)

	_, err = ParseOutpoint("no-separator")
	require.Error(t, err)
	_, err = ParseOutpoint("zzzz.0")
	require.Error(t, err)
}
