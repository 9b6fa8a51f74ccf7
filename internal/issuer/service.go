// Package issuer orchestrates the certificate lifecycle: the issuance
// handshake, verification, and ordered revocation. Every step that touches
// the wallet or the ledger is strictly sequenced; the compensation paths keep
// the store and the ledger from diverging silently.
package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"commonsource/internal/audit"
	"commonsource/internal/certificate"
	"commonsource/internal/certstore"
	"commonsource/internal/did"
	"commonsource/internal/platform/metrics"
	"commonsource/internal/protocol"
	"commonsource/internal/revocation"
	"commonsource/internal/walletclient"
	domainerrors "commonsource/pkg/domain-errors"
	"commonsource/pkg/platform/sentinel"
)

var tracer = otel.Tracer("commonsource/issuer")

// Config wires the issuance service.
type Config struct {
	Wallet       walletclient.Ops
	Tokens       *revocation.Manager
	Store        certstore.Store
	ReplayGuard  protocol.ReplayGuard
	Schemas      *certificate.SchemaRegistry
	Verifier     *certificate.Verifier
	Recorder     *audit.Recorder
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	CertifierKey *ec.PublicKey
	IdentityType string
	DIDType      string
}

// Service implements the issuer side of the protocol.
type Service struct {
	wallet       walletclient.Ops
	tokens       *revocation.Manager
	store        certstore.Store
	guard        protocol.ReplayGuard
	schemas      *certificate.SchemaRegistry
	verifier     *certificate.Verifier
	recorder     *audit.Recorder
	metrics      *metrics.Metrics
	logger       *slog.Logger
	certifierKey *ec.PublicKey
	identityType string
	didType      string
}

// New constructs the Service.
func New(cfg Config) *Service {
	return &Service{
		wallet:       cfg.Wallet,
		tokens:       cfg.Tokens,
		store:        cfg.Store,
		guard:        cfg.ReplayGuard,
		schemas:      cfg.Schemas,
		verifier:     cfg.Verifier,
		recorder:     cfg.Recorder,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		certifierKey: cfg.CertifierKey,
		identityType: cfg.IdentityType,
		didType:      cfg.DIDType,
	}
}

// CertifierKey returns the issuer's identity key.
func (s *Service) CertifierKey() *ec.PublicKey {
	return s.certifierKey
}

// IssueRequest is one issuance attempt. IdentityKey is the holder's identity
// key in compressed DER hex; the nonce must have been minted by that key
// against the issuer.
type IssueRequest struct {
	IdentityKey   string
	ClientNonce   string
	Type          string
	Fields        map[string]string
	MasterKeyring map[string]string
	RequestID     string
}

// IssueResult carries the signed certificate and the issuer's nonce back to
// the holder.
type IssueResult struct {
	Certificate *certificate.Document
	ServerNonce string
}

// Issue runs the issuance handshake: verify client nonce, claim the subject
// slot, mint the revocation token, sign, persist. The token is minted before
// signing so a certificate never references a nonexistent outpoint, and the
// slot is claimed before minting so a losing concurrent request never mints.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	ctx, span := tracer.Start(ctx, "issuer.Issue", trace.WithAttributes(
		attribute.String("certificate.type", req.Type),
	))
	defer span.End()

	subject, err := ec.PublicKeyFromString(req.IdentityKey)
	if err != nil {
		return nil, s.issueFailed(ctx, span, req, domainerrors.Wrap(domainerrors.CodeBadRequest, "invalid identity key", err))
	}
	subjectHex := subject.ToDERHex()

	if err := protocol.VerifyNonce(ctx, req.ClientNonce, s.wallet, subject); err != nil {
		return nil, s.issueFailed(ctx, span, req, err)
	}
	if err := s.guard.Claim(ctx, req.ClientNonce); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			if s.metrics != nil {
				s.metrics.NonceReplays.Inc()
			}
			return nil, s.issueFailed(ctx, span, req, domainerrors.New(domainerrors.CodeProtocolViolation, "client nonce already used"))
		default:
			return nil, s.issueFailed(ctx, span, req, domainerrors.Wrap(domainerrors.CodeTransient, "replay guard unavailable", err))
		}
	}

	serverNonce, err := protocol.CreateNonce(ctx, s.wallet, subject)
	if err != nil {
		return nil, s.issueFailed(ctx, span, req, domainerrors.Wrap(domainerrors.CodeTransient, "create server nonce", err))
	}
	serialNumber, err := protocol.DeriveSerialNumber(ctx, s.wallet, req.ClientNonce, serverNonce, subject)
	if err != nil {
		return nil, s.issueFailed(ctx, span, req, domainerrors.Wrap(domainerrors.CodeTransient, "derive serial number", err))
	}

	fields, vcData, err := s.prepareFields(req.Type, subjectHex, req.Fields)
	if err != nil {
		return nil, s.issueFailed(ctx, span, req, err)
	}

	// The holder's master keyring is held opaque next to the certificate
	// record; it is never part of the signed body and never echoed back.
	var keyring json.RawMessage
	if len(req.MasterKeyring) > 0 {
		encoded, err := json.Marshal(req.MasterKeyring)
		if err != nil {
			return nil, s.issueFailed(ctx, span, req,
				domainerrors.Wrap(domainerrors.CodeBadRequest, "encode master keyring", err))
		}
		keyring = encoded
	}

	// Claim before mint: the loser of a concurrent issuance for the same
	// subject must never reach the ledger.
	if err := s.store.Claim(ctx, subjectHex, serialNumber); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, s.issueFailed(ctx, span, req, domainerrors.New(domainerrors.CodeConflict, "subject already has a certificate"))
		}
		return nil, s.issueFailed(ctx, span, req, domainerrors.Wrap(domainerrors.CodeTransient, "claim subject slot", err))
	}

	outpoint, err := s.tokens.Mint(ctx, subject, serialNumber)
	if err != nil {
		s.releaseClaim(ctx, subjectHex, serialNumber)
		return nil, s.issueFailed(ctx, span, req, err)
	}
	span.SetAttributes(attribute.String("revocation.outpoint", revocation.FormatOutpoint(outpoint)))

	cert := certificate.Assemble(req.Type, serialNumber, subject, s.certifierKey, outpoint, fields)
	if err := certificate.Sign(ctx, cert, s.wallet); err != nil {
		s.compensateMint(ctx, subject, serialNumber, outpoint)
		s.releaseClaim(ctx, subjectHex, serialNumber)
		return nil, s.issueFailed(ctx, span, req,
			domainerrors.Wrap(domainerrors.CodeConsistency, "token minted but certificate signing failed", err))
	}

	doc := certificate.FromCertificate(cert)
	subjectDID := did.ForKey(subjectHex)
	if err := s.store.SaveCertificate(ctx, subjectHex, serialNumber, doc, subjectDID, vcData, keyring); err != nil {
		s.compensateMint(ctx, subject, serialNumber, outpoint)
		return nil, s.issueFailed(ctx, span, req,
			domainerrors.Wrap(domainerrors.CodeConsistency, "certificate signed but could not be stored", err))
	}

	if s.metrics != nil {
		s.metrics.CertificatesIssued.Inc()
	}
	s.recorder.Emit(ctx, audit.Event{
		Action:       audit.ActionIssued,
		SubjectKey:   subjectHex,
		SerialNumber: serialNumber,
		RequestID:    req.RequestID,
	})
	s.logger.InfoContext(ctx, "certificate issued",
		"subject", subjectHex,
		"serial", serialNumber,
		"outpoint", revocation.FormatOutpoint(outpoint),
	)

	return &IssueResult{Certificate: doc, ServerNonce: serverNonce}, nil
}

// prepareFields validates the request fields against the closed schema for
// the certificate type. For DID certificates the flat claims are wrapped in a
// credential envelope first; the envelope is what gets signed.
func (s *Service) prepareFields(certType, subjectHex string, fields map[string]string) (map[string]string, json.RawMessage, error) {
	if certType != s.didType {
		if err := s.schemas.Validate(certType, fields); err != nil {
			return nil, nil, err
		}
		return fields, nil, nil
	}

	// Claims are validated as identity attributes before wrapping.
	if err := (certificate.IdentityFields{}).Validate(fields); err != nil {
		return nil, nil, err
	}

	cred := did.BuildCredential(
		did.ForKey(s.certifierKey.ToDERHex()),
		did.ForKey(subjectHex),
		fields,
		time.Now(),
		time.Time{},
	)
	envelope, err := cred.ToFields()
	if err != nil {
		return nil, nil, domainerrors.Wrap(domainerrors.CodeInternal, "build credential envelope", err)
	}
	if err := s.schemas.Validate(certType, envelope); err != nil {
		return nil, nil, err
	}

	vcData, err := json.Marshal(cred)
	if err != nil {
		return nil, nil, domainerrors.Wrap(domainerrors.CodeInternal, "encode credential", err)
	}
	return envelope, vcData, nil
}

// releaseClaim abandons a slot claim after a failed issuance.
func (s *Service) releaseClaim(ctx context.Context, subjectHex, serialNumber string) {
	if err := s.store.Release(ctx, subjectHex, serialNumber); err != nil {
		s.logger.ErrorContext(ctx, "failed to release subject claim",
			"subject", subjectHex,
			"serial", serialNumber,
			"error", err,
		)
	}
}

// compensateMint burns a minted token whose issuance did not complete, so no
// orphan token outlives a failed handshake. Best-effort: a failure here is
// logged for reconciliation.
func (s *Service) compensateMint(ctx context.Context, subject *ec.PublicKey, serialNumber string, outpoint *transaction.Outpoint) {
	if _, err := s.tokens.Spend(ctx, subject, serialNumber, outpoint); err != nil {
		s.logger.ErrorContext(ctx, "failed to burn orphaned revocation token",
			"subject", subject.ToDERHex(),
			"outpoint", revocation.FormatOutpoint(outpoint),
			"error", err,
		)
	}
}

func (s *Service) issueFailed(ctx context.Context, span trace.Span, req IssueRequest, err error) error {
	span.RecordError(err)
	if s.metrics != nil {
		s.metrics.IssuanceFailures.WithLabelValues(string(domainerrors.CodeOf(err))).Inc()
	}
	s.recorder.Emit(ctx, audit.Event{
		Action:     audit.ActionIssueFailed,
		SubjectKey: req.IdentityKey,
		RequestID:  req.RequestID,
		Detail:     domainerrors.MessageOf(err),
	})
	return err
}
