// Package certstore persists one certificate record per subject key. The slot
// is first-writer-wins: a subject with a live certificate cannot be issued a
// second one until revocation clears the slot. DID and credential data
// survive revocation for identity continuity.
package certstore

import (
	"context"
	"encoding/json"
	"time"

	"commonsource/internal/certificate"
)

// Record is the persisted state for one subject.
type Record struct {
	SubjectKey   string
	SerialNumber string
	Certificate  *certificate.Document // nil once revoked
	DID          string
	VCData       json.RawMessage
	// Keyring is the holder-supplied master keyring, stored opaque. It never
	// appears in the signed certificate or any response body.
	Keyring   json.RawMessage
	IssuedAt  time.Time
	RevokedAt *time.Time
}

// Live reports whether the subject currently holds a certificate.
func (r *Record) Live() bool {
	return r != nil && r.Certificate != nil
}

// Store is the persistence contract. Implementations return
// sentinel.ErrConflict when a live certificate already occupies the slot and
// sentinel.ErrNotFound when a record or claim is missing; services translate
// those into coded errors.
type Store interface {
	// Claim atomically reserves the subject slot for an issuance in flight.
	// It succeeds only when the subject holds no live certificate; losing
	// the race returns sentinel.ErrConflict. The winning request mints its
	// revocation token only after Claim succeeds.
	Claim(ctx context.Context, subjectKey, serialNumber string) error

	// Release abandons a claim whose issuance failed before a certificate
	// was stored. DID continuity data on the record is preserved.
	Release(ctx context.Context, subjectKey, serialNumber string) error

	// SaveCertificate stores the signed certificate into the claimed slot.
	// did and vcData are optional presentation-layer companions; keyring is
	// the holder's master keyring, held opaque alongside the certificate.
	SaveCertificate(ctx context.Context, subjectKey, serialNumber string, doc *certificate.Document, did string, vcData, keyring json.RawMessage) error

	// Get returns the record for a subject, or sentinel.ErrNotFound.
	Get(ctx context.Context, subjectKey string) (*Record, error)

	// ClearCertificate nulls the certificate and its keyring and stamps
	// revoked_at, preserving did and vc data. Runs only after the revocation
	// spend is accepted by the ledger.
	ClearCertificate(ctx context.Context, subjectKey string) error
}
