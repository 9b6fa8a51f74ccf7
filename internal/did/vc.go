package did

import (
	"encoding/json"
	"fmt"
	"time"
)

// CredentialContext is the base context every issued credential carries.
const CredentialContext = "https://www.w3.org/2018/credentials/v1"

// Credential is a W3C-style verifiable credential envelope. The certificate
// signature covers the flattened field form, so the envelope itself carries
// no separate proof.
type Credential struct {
	Context           []string       `json:"@context"`
	Type              []string       `json:"type"`
	Issuer            string         `json:"issuer"`
	IssuanceDate      string         `json:"issuanceDate"`
	ExpirationDate    string         `json:"expirationDate,omitempty"`
	CredentialSubject map[string]any `json:"credentialSubject"`
}

// BuildCredential wraps identity claims in a credential envelope. expires may
// be zero for credentials without an expiration.
func BuildCredential(issuerDID, subjectDID string, claims map[string]string, issuedAt, expires time.Time) *Credential {
	subject := make(map[string]any, len(claims)+1)
	subject["id"] = subjectDID
	for name, value := range claims {
		subject[name] = value
	}

	cred := &Credential{
		Context:           []string{CredentialContext},
		Type:              []string{"VerifiableCredential", "IdentityCredential"},
		Issuer:            issuerDID,
		IssuanceDate:      issuedAt.UTC().Format(time.RFC3339),
		CredentialSubject: subject,
	}
	if !expires.IsZero() {
		cred.ExpirationDate = expires.UTC().Format(time.RFC3339)
	}
	return cred
}

// ToFields flattens the envelope into certificate fields: each envelope
// member rendered as a JSON string so the certificate signature covers the
// exact credential content.
func (c *Credential) ToFields() (map[string]string, error) {
	contextJSON, err := json.Marshal(c.Context)
	if err != nil {
		return nil, fmt.Errorf("encode credential context: %w", err)
	}
	typeJSON, err := json.Marshal(c.Type)
	if err != nil {
		return nil, fmt.Errorf("encode credential type: %w", err)
	}
	subjectJSON, err := json.Marshal(c.CredentialSubject)
	if err != nil {
		return nil, fmt.Errorf("encode credential subject: %w", err)
	}

	fields := map[string]string{
		"@context":          string(contextJSON),
		"type":              string(typeJSON),
		"issuer":            c.Issuer,
		"issuanceDate":      c.IssuanceDate,
		"credentialSubject": string(subjectJSON),
	}
	if c.ExpirationDate != "" {
		fields["expirationDate"] = c.ExpirationDate
	}
	return fields, nil
}
