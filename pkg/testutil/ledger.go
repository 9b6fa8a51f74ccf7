package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/wallet"
)

// Ledger simulates the wallet's view of the chain: minted outputs live in
// baskets until a spend consumes them. It scripts a FakeWallet's transaction
// operations so full issuance and revocation flows run in process.
type Ledger struct {
	mu      sync.Mutex
	seq     int
	outputs map[string]*ledgerOutput
}

type ledgerOutput struct {
	outpoint  transaction.Outpoint
	basket    string
	tags      []string
	satoshis  uint64
	spendable bool
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{outputs: make(map[string]*ledgerOutput)}
}

func outpointKey(op transaction.Outpoint) string {
	return fmt.Sprintf("%s.%d", op.Txid.String(), op.Index)
}

// Attach scripts the fake wallet's transaction operations onto the ledger.
func (l *Ledger) Attach(fake *FakeWallet) {
	fake.CreateActionFunc = func(_ context.Context, args wallet.CreateActionArgs) (*wallet.CreateActionResult, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		if len(args.Inputs) > 0 {
			// Spend staging: hand back a reference naming the input.
			ref := outpointKey(args.Inputs[0].Outpoint)
			return &wallet.CreateActionResult{
				SignableTransaction: &wallet.SignableTransaction{Reference: []byte(ref)},
			}, nil
		}

		l.seq++
		txid := DeterministicTxid(fmt.Sprintf("tx-%d", l.seq))
		for i, out := range args.Outputs {
			op := transaction.Outpoint{Txid: txid, Index: uint32(i)}
			l.outputs[outpointKey(op)] = &ledgerOutput{
				outpoint:  op,
				basket:    out.Basket,
				tags:      slices.Clone(out.Tags),
				satoshis:  out.Satoshis,
				spendable: true,
			}
		}
		return &wallet.CreateActionResult{Txid: txid}, nil
	}

	fake.SignActionFunc = func(_ context.Context, args wallet.SignActionArgs) (*wallet.SignActionResult, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		ref := string(args.Reference)
		out, ok := l.outputs[ref]
		if !ok || !out.spendable {
			return nil, fmt.Errorf("no spendable output %s", ref)
		}
		out.spendable = false
		return &wallet.SignActionResult{Txid: DeterministicTxid("spend-" + ref)}, nil
	}

	fake.ListOutputsFunc = func(_ context.Context, args wallet.ListOutputsArgs) (*wallet.ListOutputsResult, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		var matched []wallet.Output
		for _, out := range l.outputs {
			if out.basket != args.Basket {
				continue
			}
			if !hasAllTags(out.tags, args.Tags) {
				continue
			}
			matched = append(matched, wallet.Output{
				Satoshis:  out.satoshis,
				Spendable: out.spendable,
				Outpoint:  out.outpoint,
				Tags:      slices.Clone(out.tags),
			})
		}
		return &wallet.ListOutputsResult{
			TotalOutputs: uint32(len(matched)),
			Outputs:      matched,
		}, nil
	}

	fake.RelinquishOutputFunc = func(_ context.Context, args wallet.RelinquishOutputArgs) (*wallet.RelinquishOutputResult, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		delete(l.outputs, outpointKey(args.Output))
		return &wallet.RelinquishOutputResult{Relinquished: true}, nil
	}
}

func hasAllTags(have, want []string) bool {
	for _, tag := range want {
		if !slices.Contains(have, tag) {
			return false
		}
	}
	return true
}

// SpendableCount reports how many outputs remain spendable, for asserting
// that failed issuances leave no orphan tokens.
func (l *Ledger) SpendableCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, out := range l.outputs {
		if out.spendable {
			n++
		}
	}
	return n
}
