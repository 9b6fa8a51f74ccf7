package protocol

import (
	"context"
	"encoding/base64"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/wallet"
)

// SerialProtocol scopes the serial-number HMAC derivation. Changing this
// string changes every serial number, so it is fixed for the lifetime of the
// deployment.
var SerialProtocol = wallet.Protocol{
	SecurityLevel: wallet.SecurityLevelEveryApp,
	Protocol:      "certificate issuance",
}

// DeriveSerialNumber computes the certificate serial number from both
// parties' nonces. The derivation is deterministic: the keyID is the
// concatenated nonces in server-first order and the HMAC input is the same
// pair client-first, so either party holding both nonces can reconstruct and
// verify the serial without a second exchange.
func DeriveSerialNumber(ctx context.Context, w wallet.KeyOperations, clientNonce, serverNonce string, subject *ec.PublicKey) (string, error) {
	result, err := w.CreateHMAC(ctx, wallet.CreateHMACArgs{
		EncryptionArgs: wallet.EncryptionArgs{
			ProtocolID: SerialProtocol,
			KeyID:      serverNonce + clientNonce,
			Counterparty: wallet.Counterparty{
				Type:         wallet.CounterpartyTypeOther,
				Counterparty: subject,
			},
		},
		Data: []byte(clientNonce + serverNonce),
	}, "")
	if err != nil {
		return "", fmt.Errorf("derive serial number: %w", err)
	}
	return base64.StdEncoding.EncodeToString(result.HMAC[:]), nil
}
