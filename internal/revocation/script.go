// Package revocation manages the lifecycle of revocation tokens: one-satoshi
// outputs whose locking condition is knowledge of the certificate serial
// number. Spending the token is the sole authorized revocation mechanism;
// third parties learn revocation status from the ledger, not from us.
package revocation

import (
	"encoding/base64"
	"fmt"

	"github.com/bsv-blockchain/go-bt/v2/bscript"
	hash "github.com/bsv-blockchain/go-sdk/primitives/hash"
)

// TokenSatoshis is the value of every revocation token output.
const TokenSatoshis = 1

// LockingScript builds the hash-puzzle lock for a serial number:
//
//	OP_SHA256 <sha256(serialBytes)> OP_EQUAL
//
// where serialBytes is the base64-decoded serial. Authorized revocation is
// therefore defined as knowledge of the serial number, not possession of a
// key. This exact semantics is load-bearing: verifiers check ledger spend
// status rather than signatures.
func LockingScript(serialNumber string) ([]byte, error) {
	serialBytes, err := base64.StdEncoding.DecodeString(serialNumber)
	if err != nil {
		return nil, fmt.Errorf("decode serial number: %w", err)
	}

	s := &bscript.Script{}
	if err := s.AppendOpcodes(bscript.OpSHA256); err != nil {
		return nil, fmt.Errorf("build locking script: %w", err)
	}
	if err := s.AppendPushData(hash.Sha256(serialBytes)); err != nil {
		return nil, fmt.Errorf("build locking script: %w", err)
	}
	if err := s.AppendOpcodes(bscript.OpEQUAL); err != nil {
		return nil, fmt.Errorf("build locking script: %w", err)
	}
	return []byte(*s), nil
}

// UnlockingScript pushes the serial preimage in the exact encoding used at
// mint time.
func UnlockingScript(serialNumber string) ([]byte, error) {
	serialBytes, err := base64.StdEncoding.DecodeString(serialNumber)
	if err != nil {
		return nil, fmt.Errorf("decode serial number: %w", err)
	}

	s := &bscript.Script{}
	if err := s.AppendPushData(serialBytes); err != nil {
		return nil, fmt.Errorf("build unlocking script: %w", err)
	}
	return []byte(*s), nil
}
