package certificate

import (
	"encoding/json"
	"fmt"
	"strings"

	domainerrors "commonsource/pkg/domain-errors"
)

// Field schemas are closed: every certificate type maps to exactly one
// variant, validated once at the trust boundary. Unknown types and unknown
// field names are protocol violations, not pass-through data.

// identityFieldNames are the attributes an identity certificate may carry.
var identityFieldNames = map[string]struct{}{
	"username":  {},
	"residence": {},
	"age":       {},
	"gender":    {},
	"work":      {},
	"email":     {},
}

// FieldValidator validates a field bag against one schema variant.
type FieldValidator interface {
	Validate(fields map[string]string) error
}

// IdentityFields is the flat attribute variant. username is the anchor
// attribute and is required; the rest are optional.
type IdentityFields struct{}

func (IdentityFields) Validate(fields map[string]string) error {
	if strings.TrimSpace(fields["username"]) == "" {
		return domainerrors.New(domainerrors.CodeProtocolViolation, "identity fields require a username")
	}
	for name := range fields {
		if _, ok := identityFieldNames[name]; !ok {
			return domainerrors.Newf(domainerrors.CodeProtocolViolation, "unknown identity field %q", name)
		}
	}
	return nil
}

// CredentialEnvelope is the verifiable-credential variant: the field bag
// carries a W3C-style envelope with @context, a type array containing
// "VerifiableCredential", and a credentialSubject object.
type CredentialEnvelope struct{}

func (CredentialEnvelope) Validate(fields map[string]string) error {
	if !LooksLikeCredential(fields) {
		return domainerrors.New(domainerrors.CodeProtocolViolation, "fields do not form a verifiable credential envelope")
	}
	if strings.TrimSpace(fields["@context"]) == "" {
		return domainerrors.New(domainerrors.CodeProtocolViolation, "credential envelope missing @context")
	}
	subjectRaw, ok := fields["credentialSubject"]
	if !ok {
		return domainerrors.New(domainerrors.CodeProtocolViolation, "credential envelope missing credentialSubject")
	}
	var subject map[string]any
	if err := json.Unmarshal([]byte(subjectRaw), &subject); err != nil {
		return domainerrors.Wrap(domainerrors.CodeProtocolViolation, "credentialSubject is not a JSON object", err)
	}
	if len(subject) == 0 {
		return domainerrors.New(domainerrors.CodeProtocolViolation, "credentialSubject carries no claims")
	}
	return nil
}

// LooksLikeCredential reports whether a field bag has the envelope shape:
// an @context plus a type array containing "VerifiableCredential". This is
// the entry condition for the credential verification gate.
func LooksLikeCredential(fields map[string]string) bool {
	if _, ok := fields["@context"]; !ok {
		return false
	}
	typeRaw, ok := fields["type"]
	if !ok {
		return false
	}
	var types []string
	if err := json.Unmarshal([]byte(typeRaw), &types); err != nil {
		// A bare string type is accepted by some producers.
		return typeRaw == "VerifiableCredential"
	}
	for _, t := range types {
		if t == "VerifiableCredential" {
			return true
		}
	}
	return false
}

// SchemaRegistry maps certificate types to their field schema.
type SchemaRegistry struct {
	schemas map[string]FieldValidator
}

// NewSchemaRegistry builds the registry for the configured types.
// identityType and didType are the base64 type identifiers from config.
func NewSchemaRegistry(identityType, didType string) *SchemaRegistry {
	schemas := map[string]FieldValidator{
		identityType: IdentityFields{},
	}
	if didType != "" {
		schemas[didType] = CredentialEnvelope{}
	}
	return &SchemaRegistry{schemas: schemas}
}

// Validate checks fields against the schema registered for certType.
func (r *SchemaRegistry) Validate(certType string, fields map[string]string) error {
	schema, ok := r.schemas[certType]
	if !ok {
		return domainerrors.New(domainerrors.CodeProtocolViolation,
			fmt.Sprintf("unrecognized certificate type %q", certType))
	}
	return schema.Validate(fields)
}
