package revocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/util"
	"github.com/bsv-blockchain/go-sdk/wallet"

	"commonsource/internal/walletclient"
	domainerrors "commonsource/pkg/domain-errors"
	"commonsource/pkg/platform/sentinel"
)

// BasketPrefix scopes revocation token outputs in the issuer's wallet.
const BasketPrefix = "commonsource revocation"

// BasketFor returns the wallet basket holding revocation tokens for the given
// subject. One basket per subject keeps lookups bounded by a single holder's
// certificate count.
func BasketFor(subject *ec.PublicKey) string {
	return fmt.Sprintf("%s %s", BasketPrefix, subject.ToDERHex())
}

// TagFor returns the output tag that pins a token to its serial number within
// the subject's basket.
func TagFor(serialNumber string) string {
	return "serial " + serialNumber
}

// Manager mints, locates, and spends revocation tokens through the issuer's
// wallet.
type Manager struct {
	wallet walletclient.Ops
	logger *slog.Logger
}

// NewManager constructs a Manager around the given wallet client.
func NewManager(w walletclient.Ops, logger *slog.Logger) *Manager {
	return &Manager{wallet: w, logger: logger}
}

// Mint creates the one-satoshi token output for (subject, serial) and returns
// its outpoint. Output order is pinned so the token is always at index 0.
// Mint runs before certificate signing: a certificate must never reference an
// outpoint that does not exist on the ledger.
func (m *Manager) Mint(ctx context.Context, subject *ec.PublicKey, serialNumber string) (*transaction.Outpoint, error) {
	lockingScript, err := LockingScript(serialNumber)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeInternal, "build revocation lock", err)
	}

	result, err := m.wallet.CreateAction(ctx, wallet.CreateActionArgs{
		Description: "certificate revocation token",
		Outputs: []wallet.CreateActionOutput{{
			LockingScript:     lockingScript,
			Satoshis:          TokenSatoshis,
			OutputDescription: "revocation token",
			Basket:            BasketFor(subject),
			Tags:              []string{TagFor(serialNumber)},
		}},
		Options: &wallet.CreateActionOptions{
			RandomizeOutputs: util.BoolPtr(false),
		},
	}, walletclient.Originator)
	if err != nil {
		return nil, err
	}
	if result == nil || result.Txid == (chainhash.Hash{}) {
		return nil, domainerrors.New(domainerrors.CodeTransient, "wallet returned no transaction for revocation token")
	}

	outpoint := &transaction.Outpoint{Txid: result.Txid, Index: 0}
	m.logger.InfoContext(ctx, "minted revocation token",
		"outpoint", FormatOutpoint(outpoint),
		"subject", subject.ToDERHex(),
	)
	return outpoint, nil
}

// Find locates the live token output for (subject, serial). A missing or
// already-spent token surfaces as sentinel.ErrNotFound; callers decide whether
// that means "revoked" or "never issued".
func (m *Manager) Find(ctx context.Context, subject *ec.PublicKey, serialNumber string, outpoint *transaction.Outpoint) (*wallet.Output, error) {
	limit := uint32(100)
	result, err := m.wallet.ListOutputs(ctx, wallet.ListOutputsArgs{
		Basket:       BasketFor(subject),
		Tags:         []string{TagFor(serialNumber)},
		TagQueryMode: wallet.QueryModeAll,
		IncludeTags:  util.BoolPtr(true),
		Limit:        &limit,
	}, walletclient.Originator)
	if err != nil {
		return nil, err
	}

	for i := range result.Outputs {
		out := &result.Outputs[i]
		if !out.Spendable {
			continue
		}
		if outpoint != nil && (out.Outpoint.Txid != outpoint.Txid || out.Outpoint.Index != outpoint.Index) {
			continue
		}
		return out, nil
	}
	return nil, fmt.Errorf("revocation token for serial %s: %w", serialNumber, sentinel.ErrNotFound)
}

// IsLive reports whether the token behind outpoint is still unspent. The
// ledger is authoritative: a spendable output in the tracked basket means the
// certificate has not been revoked.
func (m *Manager) IsLive(ctx context.Context, subject *ec.PublicKey, serialNumber string, outpoint *transaction.Outpoint) (bool, error) {
	_, err := m.Find(ctx, subject, serialNumber, outpoint)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Spend consumes the token by revealing the serial preimage, revoking the
// certificate on the ledger. It stages the transaction with CreateAction and
// completes it with SignAction; the returned txid is the spend transaction.
func (m *Manager) Spend(ctx context.Context, subject *ec.PublicKey, serialNumber string, outpoint *transaction.Outpoint) (chainhash.Hash, error) {
	unlockingScript, err := UnlockingScript(serialNumber)
	if err != nil {
		return chainhash.Hash{}, domainerrors.Wrap(domainerrors.CodeInternal, "build revocation unlock", err)
	}

	created, err := m.wallet.CreateAction(ctx, wallet.CreateActionArgs{
		Description: "revoke certificate",
		Inputs: []wallet.CreateActionInput{{
			Outpoint:              *outpoint,
			InputDescription:      "revocation token",
			UnlockingScriptLength: uint32(len(unlockingScript)),
		}},
	}, walletclient.Originator)
	if err != nil {
		return chainhash.Hash{}, err
	}

	// Wallets holding spendable change may sign and broadcast in one step.
	if created.SignableTransaction == nil {
		if created.Txid == (chainhash.Hash{}) {
			return chainhash.Hash{}, domainerrors.New(domainerrors.CodeTransient, "wallet returned neither txid nor signable transaction")
		}
		return created.Txid, nil
	}

	signed, err := m.wallet.SignAction(ctx, wallet.SignActionArgs{
		Reference: created.SignableTransaction.Reference,
		Spends: map[uint32]wallet.SignActionSpend{
			0: {UnlockingScript: unlockingScript},
		},
	}, walletclient.Originator)
	if err != nil {
		return chainhash.Hash{}, err
	}

	m.logger.InfoContext(ctx, "spent revocation token",
		"outpoint", FormatOutpoint(outpoint),
		"spend_txid", signed.Txid.String(),
	)
	return signed.Txid, nil
}

// Relinquish drops the spent token from wallet tracking. Runs only after the
// spend is accepted and the certificate record is cleared; failure here is
// cosmetic and is logged, not surfaced.
func (m *Manager) Relinquish(ctx context.Context, subject *ec.PublicKey, outpoint *transaction.Outpoint) error {
	_, err := m.wallet.RelinquishOutput(ctx, wallet.RelinquishOutputArgs{
		Basket: BasketFor(subject),
		Output: *outpoint,
	}, walletclient.Originator)
	return err
}

// FormatOutpoint renders an outpoint as "<txid>.<index>", the format carried
// inside certificates.
func FormatOutpoint(op *transaction.Outpoint) string {
	return fmt.Sprintf("%s.%d", op.Txid.String(), op.Index)
}

// ParseOutpoint parses the "<txid>.<index>" form back into an outpoint.
func ParseOutpoint(s string) (*transaction.Outpoint, error) {
	txidHex, indexStr, found := strings.Cut(s, ".")
	if !found {
		return nil, fmt.Errorf("malformed outpoint %q", s)
	}
	txid, err := chainhash.NewHashFromHex(txidHex)
	if err != nil {
		return nil, fmt.Errorf("malformed outpoint txid: %w", err)
	}
	index, err := strconv.ParseUint(indexStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed outpoint index %q: %w", indexStr, err)
	}
	return &transaction.Outpoint{Txid: *txid, Index: uint32(index)}, nil
}
