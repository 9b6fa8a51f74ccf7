package issuer

import (
	"context"
	"errors"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"go.opentelemetry.io/otel/attribute"

	"commonsource/internal/audit"
	"commonsource/internal/certificate"
	"commonsource/internal/revocation"
	domainerrors "commonsource/pkg/domain-errors"
	"commonsource/pkg/platform/sentinel"
)

// RevokeRequest identifies the certificate to revoke.
type RevokeRequest struct {
	SubjectKey  string
	Certificate *certificate.Document
	Operator    string
	RequestID   string
}

// RevokeResult reports the spend transaction that revoked the certificate.
type RevokeResult struct {
	SpendTxid string
}

// Revoke spends the certificate's revocation token and then clears the
// stored record, in that order. The ledger spend is the revocation; the
// store update is bookkeeping that must never precede it.
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) (*RevokeResult, error) {
	ctx, span := tracer.Start(ctx, "issuer.Revoke")
	defer span.End()

	if req.Certificate == nil {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "certificate is required").
			WithDetail("missing", "certificate")
	}
	doc := req.Certificate
	if doc.SerialNumber == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "certificate missing serial number").
			WithDetail("missing", "serialNumber")
	}
	if doc.RevocationOutpoint == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "certificate missing revocation outpoint").
			WithDetail("missing", "revocationOutpoint")
	}

	subject, err := ec.PublicKeyFromString(req.SubjectKey)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeBadRequest, "invalid subject key", err)
	}
	subjectHex := subject.ToDERHex()

	outpoint, err := revocation.ParseOutpoint(doc.RevocationOutpoint)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeBadRequest, "malformed revocation outpoint", err).
			WithDetail("revocationOutpoint", doc.RevocationOutpoint)
	}
	span.SetAttributes(attribute.String("revocation.outpoint", doc.RevocationOutpoint))

	// The exact outpoint must be live in the subject's basket. Absence means
	// already revoked or a foreign certificate; spending an unrelated token
	// instead would be a different certificate's revocation.
	if _, err := s.tokens.Find(ctx, subject, doc.SerialNumber, outpoint); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "No revocation tokens found").
				WithDetail("expectedOutpoint", doc.RevocationOutpoint)
		}
		return nil, domainerrors.Wrap(domainerrors.CodeTransient, "locate revocation token", err)
	}

	spendTxid, err := s.tokens.Spend(ctx, subject, doc.SerialNumber, outpoint)
	if err != nil {
		span.RecordError(err)
		return nil, domainerrors.Wrap(domainerrors.CodeTransient, "spend revocation token", err)
	}

	// Ledger spend accepted; only now touch the store.
	if err := s.store.ClearCertificate(ctx, subjectHex); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		span.RecordError(err)
		return nil, domainerrors.Wrap(domainerrors.CodeConsistency,
			"certificate revoked on ledger but record not cleared", err).
			WithDetail("spendTxid", spendTxid.String())
	}

	// Holder-facing cleanup is cosmetic after the spend.
	if err := s.tokens.Relinquish(ctx, subject, outpoint); err != nil {
		s.logger.WarnContext(ctx, "failed to relinquish spent token",
			"subject", subjectHex,
			"outpoint", doc.RevocationOutpoint,
			"error", err,
		)
	}

	if s.metrics != nil {
		s.metrics.CertificatesRevoked.Inc()
	}
	s.recorder.Emit(ctx, audit.Event{
		Action:       audit.ActionRevoked,
		SubjectKey:   subjectHex,
		SerialNumber: doc.SerialNumber,
		RequestID:    req.RequestID,
		Detail:       "by " + req.Operator,
	})
	s.logger.InfoContext(ctx, "certificate revoked",
		"subject", subjectHex,
		"serial", doc.SerialNumber,
		"spend_txid", spendTxid.String(),
		"operator", req.Operator,
	)

	return &RevokeResult{SpendTxid: spendTxid.String()}, nil
}
