// Package did builds did:bsv documents and W3C-style credential envelopes for
// the presentation layer, and resolves subject DIDs against the certificate
// store for the verification binding check.
package did

import (
	"encoding/base64"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// Method is the DID method name.
const Method = "bsv"

// ForKey returns the DID for a subject identity key (compressed DER hex).
func ForKey(subjectKeyHex string) string {
	return fmt.Sprintf("did:%s:%s", Method, subjectKeyHex)
}

// JWK is a secp256k1 public key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// VerificationMethod is one key entry in a DID document.
type VerificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Controller   string `json:"controller"`
	PublicKeyJwk JWK    `json:"publicKeyJwk"`
}

// Document is a W3C-shaped DID document.
type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
}

// KeyToJWK converts a secp256k1 public key to JWK form. Coordinates are
// base64url without padding, zero-padded to 32 bytes.
func KeyToJWK(key *ec.PublicKey) JWK {
	return JWK{
		Kty: "EC",
		Crv: "secp256k1",
		X:   base64.RawURLEncoding.EncodeToString(leftPad32(key.X.Bytes())),
		Y:   base64.RawURLEncoding.EncodeToString(leftPad32(key.Y.Bytes())),
	}
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// BuildDocument constructs the DID document for a subject key.
func BuildDocument(key *ec.PublicKey) *Document {
	id := ForKey(key.ToDERHex())
	keyID := id + "#key-1"
	return &Document{
		Context: []string{
			"https://www.w3.org/ns/did/v1",
			"https://w3id.org/security/suites/jws-2020/v1",
		},
		ID: id,
		VerificationMethod: []VerificationMethod{{
			ID:           keyID,
			Type:         "JsonWebKey2020",
			Controller:   id,
			PublicKeyJwk: KeyToJWK(key),
		}},
		Authentication:  []string{keyID},
		AssertionMethod: []string{keyID},
	}
}
