package certificate

import (
	"context"

	"github.com/bsv-blockchain/go-sdk/auth/certificates"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/wallet"

	domainerrors "commonsource/pkg/domain-errors"
)

// Assemble binds the certificate body together. The revocation outpoint is
// part of the signed body, so neither party can swap in a different outpoint
// after signing.
func Assemble(certType, serialNumber string, subject, certifier *ec.PublicKey, outpoint *transaction.Outpoint, fields map[string]string) *certificates.Certificate {
	cert := &certificates.Certificate{
		Type:               wallet.StringBase64(certType),
		SerialNumber:       wallet.StringBase64(serialNumber),
		Subject:            *subject,
		Certifier:          *certifier,
		RevocationOutpoint: outpoint,
	}
	if len(fields) > 0 {
		cert.Fields = make(map[wallet.CertificateFieldNameUnder50Bytes]wallet.StringBase64, len(fields))
		for name, value := range fields {
			cert.Fields[wallet.CertificateFieldNameUnder50Bytes(name)] = wallet.StringBase64(value)
		}
	}
	return cert
}

// Sign signs the assembled certificate with the issuer wallet. The signing
// key is derived from the root key under the "certificate signature"
// protocol, never the root key itself.
func Sign(ctx context.Context, cert *certificates.Certificate, w certificates.CertifierWallet) error {
	if err := cert.Sign(ctx, w); err != nil {
		return domainerrors.Wrap(domainerrors.CodeInternal, "sign certificate", err)
	}
	return nil
}
