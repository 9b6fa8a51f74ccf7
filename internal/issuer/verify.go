package issuer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"commonsource/internal/audit"
	"commonsource/internal/certificate"
)

// VerifyRequest wraps a third-party verification call.
type VerifyRequest struct {
	Certificate       *certificate.Document
	UserIdentityKey   string
	VerificationLevel certificate.Level
	RequireProof      bool
	RequestID         string
}

// Verify runs the certificate through the verification gates.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*certificate.Report, error) {
	ctx, span := tracer.Start(ctx, "issuer.Verify")
	defer span.End()

	level := req.VerificationLevel
	if level == "" {
		level = certificate.LevelBasic
	}

	report, err := s.verifier.Verify(ctx, certificate.VerifyRequest{
		Document:        req.Certificate,
		UserIdentityKey: req.UserIdentityKey,
		Level:           level,
		RequireProof:    req.RequireProof,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("verification.outcome", string(report.Outcome)))
	if s.metrics != nil {
		s.metrics.Verifications.WithLabelValues(string(report.Outcome)).Inc()
	}
	s.recorder.Emit(ctx, audit.Event{
		Action:       audit.ActionVerified,
		SubjectKey:   req.Certificate.Subject,
		SerialNumber: req.Certificate.SerialNumber,
		RequestID:    req.RequestID,
		Detail:       string(report.Outcome),
	})
	return report, nil
}
