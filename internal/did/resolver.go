package did

import (
	"context"
	"errors"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"commonsource/internal/certstore"
	domainerrors "commonsource/pkg/domain-errors"
	"commonsource/pkg/platform/sentinel"
)

// Resolver resolves subject DIDs against the certificate store. The store is
// the issuer's own index, so resolution can lag a just-finished issuance;
// callers on the verification path treat failures as warnings.
type Resolver struct {
	store certstore.Store
}

// NewResolver constructs a store-backed resolver.
func NewResolver(store certstore.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the DID document for a subject key, plus the stored DID
// string when one is on file.
func (r *Resolver) Resolve(ctx context.Context, subjectKeyHex string) (*Document, error) {
	key, err := ec.PublicKeyFromString(subjectKeyHex)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeBadRequest, "invalid subject key", err)
	}

	record, err := r.store.Get(ctx, subjectKeyHex)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "no DID on file for subject")
		}
		return nil, domainerrors.Wrap(domainerrors.CodeTransient, "resolve DID", err)
	}
	if record.DID == "" {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "no DID on file for subject")
	}

	return BuildDocument(key), nil
}

// CheckBinding verifies that the DID on file for the subject matches the DID
// derived from the subject key. Used by the verification DID gate.
func (r *Resolver) CheckBinding(ctx context.Context, subjectKeyHex string) error {
	record, err := r.store.Get(ctx, subjectKeyHex)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("no DID record for subject")
		}
		return fmt.Errorf("resolve DID record: %w", err)
	}
	if record.DID == "" {
		return fmt.Errorf("subject record carries no DID")
	}
	if record.DID != ForKey(subjectKeyHex) {
		return fmt.Errorf("DID on file %q does not match subject key", record.DID)
	}
	return nil
}
