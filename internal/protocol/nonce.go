// Package protocol implements the issuance handshake primitives: the nonce
// exchange, the replay guard, and serial number derivation. All cryptography
// is delegated to the wallet; this package owns the protocol discipline
// around it.
package protocol

import (
	"context"
	"fmt"

	authutils "github.com/bsv-blockchain/go-sdk/auth/utils"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/wallet"

	domainerrors "commonsource/pkg/domain-errors"
)

// CreateNonce produces a fresh server nonce bound to the counterparty's
// identity key. Only a wallet holding our root key could have produced it,
// and only against this counterparty.
func CreateNonce(ctx context.Context, w wallet.KeyOperations, counterparty *ec.PublicKey) (string, error) {
	nonce, err := authutils.CreateNonce(ctx, w, wallet.Counterparty{
		Type:         wallet.CounterpartyTypeOther,
		Counterparty: counterparty,
	})
	if err != nil {
		return "", fmt.Errorf("create nonce: %w", err)
	}
	return nonce, nil
}

// VerifyNonce checks that nonce was derived for us by the claimed
// counterparty. It fails closed: any structural anomaly or HMAC mismatch is a
// protocol violation, never a pass.
func VerifyNonce(ctx context.Context, nonce string, w wallet.KeyOperations, counterparty *ec.PublicKey) error {
	valid, err := authutils.VerifyNonce(ctx, nonce, w, wallet.Counterparty{
		Type:         wallet.CounterpartyTypeOther,
		Counterparty: counterparty,
	})
	if err != nil {
		return domainerrors.Wrap(domainerrors.CodeProtocolViolation, "nonce verification failed", err)
	}
	if !valid {
		return domainerrors.New(domainerrors.CodeProtocolViolation, "invalid nonce")
	}
	return nil
}
