package certificate

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commonsource/pkg/testutil"
)

const testCertType = "QnZj" // "Bvc"

type stubTokenStatus struct {
	live bool
	err  error
}

func (s stubTokenStatus) IsLive(context.Context, *ec.PublicKey, string, *transaction.Outpoint) (bool, error) {
	return s.live, s.err
}

type stubResolver struct{ err error }

func (s stubResolver) CheckBinding(context.Context, string) error { return s.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signedDocument issues and signs a certificate with a real in-process wallet
// and returns its wire form plus the participants' keys.
func signedDocument(t *testing.T, fields map[string]string) (*Document, *ec.PublicKey, *ec.PublicKey) {
	t.Helper()

	issuer := testutil.NewFakeWallet(t)
	holder, err := ec.NewPrivateKey()
	require.NoError(t, err)

	serial := base64.StdEncoding.EncodeToString([]byte("serial-preimage-material-32bytes"))
	outpoint := &transaction.Outpoint{Txid: testutil.DeterministicTxid("mint"), Index: 0}

	cert := Assemble(testCertType, serial, holder.PubKey(), issuer.PrivateKey.PubKey(), outpoint, fields)
	require.NoError(t, Sign(context.Background(), cert, issuer))

	return FromCertificate(cert), issuer.PrivateKey.PubKey(), holder.PubKey()
}

func TestVerifyFreshCertificateIsValid(t *testing.T) {
	doc, issuerKey, holderKey := signedDocument(t, map[string]string{"username": "alice"})

	v := NewVerifier(issuerKey, stubTokenStatus{live: true}, nil, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{Document: doc, Level: LevelBasic})
	require.NoError(t, err)

	assert.True(t, report.Valid)
	assert.Equal(t, OutcomeValid, report.Outcome)
	assert.True(t, report.Details.CertificateStructure)
	assert.True(t, report.Details.CertificateSignature)
	assert.True(t, report.Details.RevocationStatus)
	assert.Nil(t, report.Details.DIDVerification)
	assert.Equal(t, "alice", report.Claims["username"])
	assert.Equal(t, holderKey.ToDERHex(), doc.Subject)
}

func TestVerifyMissingSignatureHaltsAtStructure(t *testing.T) {
	doc, issuerKey, _ := signedDocument(t, map[string]string{"username": "alice"})
	doc.Signature = ""

	v := NewVerifier(issuerKey, stubTokenStatus{live: true}, nil, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{Document: doc})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, "Certificate missing required field: signature", report.Error)
	// No later gate ran.
	assert.False(t, report.Details.CertificateStructure)
	assert.False(t, report.Details.CertificateSignature)
	assert.False(t, report.Details.RevocationStatus)
}

func TestVerifyRejectsUnrecognizedCertifier(t *testing.T) {
	doc, _, _ := signedDocument(t, map[string]string{"username": "alice"})

	otherKey, err := ec.NewPrivateKey()
	require.NoError(t, err)

	v := NewVerifier(otherKey.PubKey(), stubTokenStatus{live: true}, nil, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{Document: doc})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, "Certificate not issued by recognized certifier", report.Error)
	assert.True(t, report.Details.CertificateStructure)
	assert.False(t, report.Details.CertificateSignature)
}

func TestVerifyRejectsTamperedField(t *testing.T) {
	doc, issuerKey, _ := signedDocument(t, map[string]string{"username": "alice", "age": "30"})
	doc.Fields["age"] = "31"

	v := NewVerifier(issuerKey, stubTokenStatus{live: true}, nil, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{Document: doc})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, "Certificate signature verification failed", report.Error)
}

func TestVerifyRejectsTamperedOutpoint(t *testing.T) {
	doc, issuerKey, _ := signedDocument(t, map[string]string{"username": "alice"})
	swapped := &transaction.Outpoint{Txid: testutil.DeterministicTxid("other"), Index: 1}
	doc.RevocationOutpoint = swapped.Txid.String() + ".1"

	v := NewVerifier(issuerKey, stubTokenStatus{live: true}, nil, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{Document: doc})
	require.NoError(t, err)

	// The outpoint is inside the signed body.
	assert.False(t, report.Valid)
	assert.Equal(t, "Certificate signature verification failed", report.Error)
}

func TestVerifySpentTokenIsRevoked(t *testing.T) {
	doc, issuerKey, _ := signedDocument(t, map[string]string{"username": "alice"})

	v := NewVerifier(issuerKey, stubTokenStatus{live: false}, nil, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{Document: doc})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, OutcomeRevoked, report.Outcome)
	assert.Equal(t, "Certificate has been revoked", report.Error)
	assert.False(t, report.Details.RevocationStatus)
}

func TestVerifyRevocationStatusUnavailable(t *testing.T) {
	doc, issuerKey, _ := signedDocument(t, map[string]string{"username": "alice"})

	v := NewVerifier(issuerKey, stubTokenStatus{err: errors.New("ledger down")}, nil, testLogger())
	_, err := v.Verify(context.Background(), VerifyRequest{Document: doc})
	require.Error(t, err)
}

func TestVerifyOwnershipMismatch(t *testing.T) {
	doc, issuerKey, _ := signedDocument(t, map[string]string{"username": "alice"})

	stranger, err := ec.NewPrivateKey()
	require.NoError(t, err)

	v := NewVerifier(issuerKey, stubTokenStatus{live: true}, nil, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{
		Document:        doc,
		UserIdentityKey: stranger.PubKey().ToDERHex(),
	})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, "Certificate subject does not match presented identity key", report.Error)
}

func TestVerifyRequireProofWithoutKey(t *testing.T) {
	doc, issuerKey, _ := signedDocument(t, map[string]string{"username": "alice"})

	v := NewVerifier(issuerKey, stubTokenStatus{live: true}, nil, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{Document: doc, RequireProof: true})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, "Ownership proof required but no identity key presented", report.Error)
}

func TestVerifyCredentialEnvelopeGate(t *testing.T) {
	// Envelope shape without a credentialSubject fails gate 4.
	doc, issuerKey, _ := signedDocument(t, map[string]string{
		"@context": `["https://www.w3.org/2018/credentials/v1"]`,
		"type":     `["VerifiableCredential"]`,
	})

	v := NewVerifier(issuerKey, stubTokenStatus{live: true}, nil, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{Document: doc})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, "credential envelope missing credentialSubject", report.Error)
	assert.False(t, report.Details.VCVerification)
}

func TestVerifyCredentialClaims(t *testing.T) {
	doc, issuerKey, _ := signedDocument(t, map[string]string{
		"@context":          `["https://www.w3.org/2018/credentials/v1"]`,
		"type":              `["VerifiableCredential"]`,
		"credentialSubject": `{"username":"alice","age":"30"}`,
	})

	v := NewVerifier(issuerKey, stubTokenStatus{live: true}, nil, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{Document: doc})
	require.NoError(t, err)

	require.True(t, report.Valid)
	assert.Equal(t, "alice", report.Claims["username"])
}

func TestVerifyDIDBindingWarnsOnly(t *testing.T) {
	doc, issuerKey, _ := signedDocument(t, map[string]string{"username": "alice"})

	v := NewVerifier(issuerKey, stubTokenStatus{live: true}, stubResolver{err: errors.New("index lagging")}, testLogger())
	report, err := v.Verify(context.Background(), VerifyRequest{Document: doc, Level: LevelComprehensive})
	require.NoError(t, err)

	// Resolution failure downgrades to a warning.
	assert.True(t, report.Valid)
	assert.Equal(t, OutcomeValid, report.Outcome)
	require.NotNil(t, report.Details.DIDVerification)
	assert.False(t, *report.Details.DIDVerification)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "index lagging")
}
