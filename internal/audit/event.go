// Package audit records certificate lifecycle events. Emission is
// fire-and-forget behind a buffered channel so the issuance and revocation
// paths never block on the broker.
package audit

import "time"

// Action identifies what happened to a certificate.
type Action string

const (
	ActionIssued      Action = "certificate.issued"
	ActionVerified    Action = "certificate.verified"
	ActionRevoked     Action = "certificate.revoked"
	ActionIssueFailed Action = "certificate.issue_failed"
)

// Event is one audit record. Keep it transport-agnostic so sinks can fan out.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       Action    `json:"action"`
	SubjectKey   string    `json:"subjectKey"`
	SerialNumber string    `json:"serialNumber,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}
