package certificate

import (
	"context"
	"encoding/json"
	"log/slog"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/transaction"

	domainerrors "commonsource/pkg/domain-errors"
)

// Outcome is the terminal state of a verification run.
type Outcome string

const (
	OutcomeValid   Outcome = "valid"
	OutcomeInvalid Outcome = "invalid"
	OutcomeRevoked Outcome = "revoked"
)

// Level selects how deep verification goes. Basic stops at the ledger check;
// comprehensive additionally resolves the subject's DID.
type Level string

const (
	LevelBasic         Level = "basic"
	LevelComprehensive Level = "comprehensive"
)

// VerifyRequest carries one certificate through the gates.
type VerifyRequest struct {
	Document        *Document
	UserIdentityKey string
	Level           Level
	RequireProof    bool
}

// Details reports each gate's result. DIDVerification is present only when
// the DID gate ran.
type Details struct {
	CertificateStructure bool  `json:"certificateStructure"`
	CertificateSignature bool  `json:"certificateSignature"`
	OwnershipProof       bool  `json:"ownershipProof"`
	VCVerification       bool  `json:"vcVerification"`
	RevocationStatus     bool  `json:"revocationStatus"`
	DIDVerification      *bool `json:"didVerification,omitempty"`
}

// Report is the full verification result. Error names the gate-specific
// failure reason; Warnings carry non-fatal findings.
type Report struct {
	Valid    bool           `json:"valid"`
	Outcome  Outcome        `json:"outcome"`
	Claims   map[string]any `json:"claims"`
	Details  Details        `json:"verificationDetails"`
	Warnings []string       `json:"warnings,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// TokenStatus answers whether a revocation token is still unspent.
type TokenStatus interface {
	IsLive(ctx context.Context, subject *ec.PublicKey, serialNumber string, outpoint *transaction.Outpoint) (bool, error)
}

// BindingResolver checks that the subject's DID record is consistent with the
// certificate. Resolution rides an eventually consistent index, so failures
// here never fail verification outright.
type BindingResolver interface {
	CheckBinding(ctx context.Context, subjectKeyHex string) error
}

// Verifier runs the ordered verification gates. Each gate is a hard stop
// except DID binding, which only warns.
type Verifier struct {
	certifier *ec.PublicKey
	tokens    TokenStatus
	resolver  BindingResolver
	logger    *slog.Logger
}

// NewVerifier constructs a Verifier. resolver may be nil to disable the DID
// gate entirely.
func NewVerifier(certifier *ec.PublicKey, tokens TokenStatus, resolver BindingResolver, logger *slog.Logger) *Verifier {
	return &Verifier{certifier: certifier, tokens: tokens, resolver: resolver, logger: logger}
}

// Verify walks the gates in order. The returned error is reserved for
// infrastructure failures where no verdict could be reached; protocol-level
// failures land in the Report with Valid=false.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*Report, error) {
	report := &Report{Outcome: OutcomeInvalid}
	doc := req.Document

	// Gate 1: structure.
	if err := doc.CheckStructure(); err != nil {
		report.Error = domainerrors.MessageOf(err)
		return report, nil
	}
	cert, err := doc.ToCertificate()
	if err != nil {
		report.Error = domainerrors.MessageOf(err)
		return report, nil
	}
	report.Details.CertificateStructure = true

	// Gate 2: signature. The certifier must be the registered issuer key
	// before the cryptographic check even runs.
	if doc.Certifier != v.certifier.ToDERHex() {
		report.Error = "Certificate not issued by recognized certifier"
		return report, nil
	}
	if err := cert.Verify(ctx); err != nil {
		report.Error = "Certificate signature verification failed"
		return report, nil
	}
	report.Details.CertificateSignature = true

	// Gate 3: ownership proof, entered when an identity key is presented or
	// the caller demands cryptographic proof.
	if req.RequireProof && req.UserIdentityKey == "" {
		report.Error = "Ownership proof required but no identity key presented"
		return report, nil
	}
	if req.UserIdentityKey != "" && doc.Subject != req.UserIdentityKey {
		report.Error = "Certificate subject does not match presented identity key"
		return report, nil
	}
	report.Details.OwnershipProof = true

	// Gate 4: credential envelope, entered only when the fields have the
	// verifiable-credential shape.
	if LooksLikeCredential(doc.Fields) {
		if err := (CredentialEnvelope{}).Validate(doc.Fields); err != nil {
			report.Error = domainerrors.MessageOf(err)
			return report, nil
		}
	}
	report.Details.VCVerification = true

	// Gate 5: revocation status. The ledger is the authority; a spent token
	// is a terminal Revoked verdict.
	if cert.RevocationOutpoint == nil {
		report.Error = "Certificate has no revocation outpoint"
		return report, nil
	}
	live, err := v.tokens.IsLive(ctx, &cert.Subject, string(cert.SerialNumber), cert.RevocationOutpoint)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeTransient, "revocation status unavailable", err)
	}
	if !live {
		report.Outcome = OutcomeRevoked
		report.Error = "Certificate has been revoked"
		return report, nil
	}
	report.Details.RevocationStatus = true

	// Gate 6: DID binding, comprehensive level only, warning only.
	if req.Level == LevelComprehensive && v.resolver != nil {
		ok := true
		if err := v.resolver.CheckBinding(ctx, doc.Subject); err != nil {
			ok = false
			report.Warnings = append(report.Warnings, "DID verification warning: "+err.Error())
			v.logger.WarnContext(ctx, "did binding check failed", "subject", doc.Subject, "error", err)
		}
		report.Details.DIDVerification = &ok
	}

	report.Valid = true
	report.Outcome = OutcomeValid
	report.Claims = ExtractClaims(doc.Fields)
	return report, nil
}

// ExtractClaims pulls the presentable claim set from the field bag: the
// credentialSubject for envelope certificates, the flat attributes otherwise.
func ExtractClaims(fields map[string]string) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	if LooksLikeCredential(fields) {
		var subject map[string]any
		if err := json.Unmarshal([]byte(fields["credentialSubject"]), &subject); err == nil {
			return subject
		}
		return nil
	}
	claims := make(map[string]any, len(fields))
	for name, value := range fields {
		claims[name] = value
	}
	return claims
}
