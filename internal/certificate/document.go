// Package certificate carries the certificate domain: the wire document
// exchanged with holders and verifiers, closed field schemas per certificate
// type, assembly and signing, and the multi-gate verification state machine.
package certificate

import (
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/auth/certificates"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/wallet"

	"commonsource/internal/revocation"
	domainerrors "commonsource/pkg/domain-errors"
)

// Document is the JSON shape of a certificate on the wire: every
// cryptographic value rendered as a string so holders written in any language
// can round-trip it. Keys are compressed DER hex, the outpoint is
// "<txid>.<index>", the signature is DER hex.
type Document struct {
	Type               string            `json:"type"`
	SerialNumber       string            `json:"serialNumber"`
	Subject            string            `json:"subject"`
	Certifier          string            `json:"certifier"`
	RevocationOutpoint string            `json:"revocationOutpoint"`
	Fields             map[string]string `json:"fields"`
	Signature          string            `json:"signature,omitempty"`
}

// requiredFields is the structural gate's checklist, in reporting order.
var requiredFields = []struct {
	name  string
	value func(*Document) string
}{
	{"type", func(d *Document) string { return d.Type }},
	{"serialNumber", func(d *Document) string { return d.SerialNumber }},
	{"subject", func(d *Document) string { return d.Subject }},
	{"certifier", func(d *Document) string { return d.Certifier }},
	{"signature", func(d *Document) string { return d.Signature }},
}

// CheckStructure reports the first missing required field, if any.
func (d *Document) CheckStructure() error {
	for _, f := range requiredFields {
		if f.value(d) == "" {
			return domainerrors.New(domainerrors.CodeProtocolViolation,
				fmt.Sprintf("Certificate missing required field: %s", f.name))
		}
	}
	return nil
}

// ToCertificate parses the document into the SDK certificate used for
// signature verification. CheckStructure should pass first; parse failures
// here mean well-formed-looking but invalid values.
func (d *Document) ToCertificate() (*certificates.Certificate, error) {
	subject, err := ec.PublicKeyFromString(d.Subject)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeProtocolViolation, "invalid subject key", err)
	}
	certifier, err := ec.PublicKeyFromString(d.Certifier)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeProtocolViolation, "invalid certifier key", err)
	}

	cert := &certificates.Certificate{
		Type:         wallet.StringBase64(d.Type),
		SerialNumber: wallet.StringBase64(d.SerialNumber),
		Subject:      *subject,
		Certifier:    *certifier,
	}

	if d.RevocationOutpoint != "" {
		outpoint, err := revocation.ParseOutpoint(d.RevocationOutpoint)
		if err != nil {
			return nil, domainerrors.Wrap(domainerrors.CodeProtocolViolation, "invalid revocation outpoint", err)
		}
		cert.RevocationOutpoint = outpoint
	}

	if len(d.Fields) > 0 {
		cert.Fields = make(map[wallet.CertificateFieldNameUnder50Bytes]wallet.StringBase64, len(d.Fields))
		for name, value := range d.Fields {
			cert.Fields[wallet.CertificateFieldNameUnder50Bytes(name)] = wallet.StringBase64(value)
		}
	}

	if d.Signature != "" {
		sig, err := hex.DecodeString(d.Signature)
		if err != nil {
			return nil, domainerrors.Wrap(domainerrors.CodeProtocolViolation, "invalid signature encoding", err)
		}
		cert.Signature = sig
	}

	return cert, nil
}

// FromCertificate renders the SDK certificate back into wire form.
func FromCertificate(cert *certificates.Certificate) *Document {
	doc := &Document{
		Type:         string(cert.Type),
		SerialNumber: string(cert.SerialNumber),
		Subject:      cert.Subject.ToDERHex(),
		Certifier:    cert.Certifier.ToDERHex(),
	}
	if cert.RevocationOutpoint != nil {
		doc.RevocationOutpoint = revocation.FormatOutpoint(cert.RevocationOutpoint)
	}
	if len(cert.Fields) > 0 {
		doc.Fields = make(map[string]string, len(cert.Fields))
		for name, value := range cert.Fields {
			doc.Fields[string(name)] = string(value)
		}
	}
	if len(cert.Signature) > 0 {
		doc.Signature = hex.EncodeToString(cert.Signature)
	}
	return doc
}
