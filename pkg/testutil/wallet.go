package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	hash "github.com/bsv-blockchain/go-sdk/primitives/hash"
	"github.com/bsv-blockchain/go-sdk/wallet"
	"github.com/stretchr/testify/require"
)

// FakeWallet does real key derivation, HMAC, and signing through an embedded
// ProtoWallet, while the transaction operations are scripted per test. Every
// call is recorded so tests can assert ordering.
type FakeWallet struct {
	*wallet.ProtoWallet
	PrivateKey *ec.PrivateKey

	CreateActionFunc     func(ctx context.Context, args wallet.CreateActionArgs) (*wallet.CreateActionResult, error)
	SignActionFunc       func(ctx context.Context, args wallet.SignActionArgs) (*wallet.SignActionResult, error)
	ListOutputsFunc      func(ctx context.Context, args wallet.ListOutputsArgs) (*wallet.ListOutputsResult, error)
	RelinquishOutputFunc func(ctx context.Context, args wallet.RelinquishOutputArgs) (*wallet.RelinquishOutputResult, error)

	mu    sync.Mutex
	calls []string
}

// NewFakeWallet builds a FakeWallet over a fresh random root key.
func NewFakeWallet(t *testing.T) *FakeWallet {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	return NewFakeWalletWithKey(t, priv)
}

// NewFakeWalletWithKey builds a FakeWallet over the given root key.
func NewFakeWalletWithKey(t *testing.T, priv *ec.PrivateKey) *FakeWallet {
	t.Helper()
	proto, err := wallet.NewProtoWallet(wallet.ProtoWalletArgs{
		Type:       wallet.ProtoWalletArgsTypePrivateKey,
		PrivateKey: priv,
	})
	require.NoError(t, err)
	return &FakeWallet{ProtoWallet: proto, PrivateKey: priv}
}

// Calls returns the recorded transaction-operation names in call order.
func (f *FakeWallet) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeWallet) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

// DeterministicTxid derives a stable fake txid from a seed string.
func DeterministicTxid(seed string) chainhash.Hash {
	var h chainhash.Hash
	copy(h[:], hash.Sha256([]byte(seed)))
	return h
}

func (f *FakeWallet) CreateAction(ctx context.Context, args wallet.CreateActionArgs, _ string) (*wallet.CreateActionResult, error) {
	f.record("CreateAction")
	if f.CreateActionFunc != nil {
		return f.CreateActionFunc(ctx, args)
	}
	return &wallet.CreateActionResult{Txid: DeterministicTxid(args.Description)}, nil
}

func (f *FakeWallet) SignAction(ctx context.Context, args wallet.SignActionArgs, _ string) (*wallet.SignActionResult, error) {
	f.record("SignAction")
	if f.SignActionFunc != nil {
		return f.SignActionFunc(ctx, args)
	}
	return &wallet.SignActionResult{Txid: DeterministicTxid(string(args.Reference))}, nil
}

func (f *FakeWallet) ListOutputs(ctx context.Context, args wallet.ListOutputsArgs, _ string) (*wallet.ListOutputsResult, error) {
	f.record("ListOutputs")
	if f.ListOutputsFunc != nil {
		return f.ListOutputsFunc(ctx, args)
	}
	return &wallet.ListOutputsResult{}, nil
}

func (f *FakeWallet) RelinquishOutput(ctx context.Context, args wallet.RelinquishOutputArgs, _ string) (*wallet.RelinquishOutputResult, error) {
	f.record("RelinquishOutput")
	if f.RelinquishOutputFunc != nil {
		return f.RelinquishOutputFunc(ctx, args)
	}
	return &wallet.RelinquishOutputResult{Relinquished: true}, nil
}
