package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-sdk/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commonsource/internal/audit"
	"commonsource/internal/certificate"
	"commonsource/internal/certstore"
	"commonsource/internal/did"
	"commonsource/internal/protocol"
	"commonsource/internal/revocation"
	"commonsource/internal/walletclient"
	domainerrors "commonsource/pkg/domain-errors"
	"commonsource/pkg/testutil"
)

const (
	identityType = "QnZj" // "Bvc"
	didType      = "ZGlk" // "did"
)

// hookedStore decorates a Store with failure injection and observation
// hooks for ordering assertions.
type hookedStore struct {
	certstore.Store
	onClear   func()
	failSave  bool
	failClear bool
}

func (h *hookedStore) SaveCertificate(ctx context.Context, subjectKey, serialNumber string, doc *certificate.Document, didStr string, vcData, keyring json.RawMessage) error {
	if h.failSave {
		return errors.New("store down")
	}
	return h.Store.SaveCertificate(ctx, subjectKey, serialNumber, doc, didStr, vcData, keyring)
}

func (h *hookedStore) ClearCertificate(ctx context.Context, subjectKey string) error {
	if h.onClear != nil {
		h.onClear()
	}
	if h.failClear {
		return errors.New("store down")
	}
	return h.Store.ClearCertificate(ctx, subjectKey)
}

type rig struct {
	svc    *Service
	issuer *testutil.FakeWallet
	holder *testutil.FakeWallet
	ledger *testutil.Ledger
	store  *hookedStore
	sink   *audit.MemorySink
}

func newRig(t *testing.T) *rig {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuerWallet := testutil.NewFakeWallet(t)
	holderWallet := testutil.NewFakeWallet(t)

	led := testutil.NewLedger()
	led.Attach(issuerWallet)

	client := walletclient.New(issuerWallet, walletclient.RetryPolicy{MaxAttempts: 1, Backoff: time.Millisecond}, logger, nil)
	tokens := revocation.NewManager(client, logger)
	store := &hookedStore{Store: certstore.NewMemory()}
	resolver := did.NewResolver(store)
	issuerKey := issuerWallet.PrivateKey.PubKey()
	verifier := certificate.NewVerifier(issuerKey, tokens, resolver, logger)
	sink := audit.NewMemorySink()
	recorder := audit.NewRecorder(sink, 64, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = recorder.Run(ctx) }()
	t.Cleanup(cancel)

	svc := New(Config{
		Wallet:       client,
		Tokens:       tokens,
		Store:        store,
		ReplayGuard:  protocol.NewMemoryReplayGuard(time.Hour),
		Schemas:      certificate.NewSchemaRegistry(identityType, didType),
		Verifier:     verifier,
		Recorder:     recorder,
		Logger:       logger,
		CertifierKey: issuerKey,
		IdentityType: identityType,
		DIDType:      didType,
	})

	return &rig{
		svc:    svc,
		issuer: issuerWallet,
		holder: holderWallet,
		ledger: led,
		store:  store,
		sink:   sink,
	}
}

func (r *rig) clientNonce(t *testing.T) string {
	t.Helper()
	nonce, err := protocol.CreateNonce(context.Background(), r.holder, r.issuer.PrivateKey.PubKey())
	require.NoError(t, err)
	return nonce
}

func (r *rig) issueRequest(t *testing.T) IssueRequest {
	t.Helper()
	return IssueRequest{
		IdentityKey: r.holder.PrivateKey.PubKey().ToDERHex(),
		ClientNonce: r.clientNonce(t),
		Type:        identityType,
		Fields:      map[string]string{"username": "alice"},
	}
}

var outpointPattern = regexp.MustCompile(`^[0-9a-f]{64}\.\d+$`)

func TestIssueHappyPath(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	result, err := r.svc.Issue(ctx, r.issueRequest(t))
	require.NoError(t, err)

	cert := result.Certificate
	assert.Equal(t, r.holder.PrivateKey.PubKey().ToDERHex(), cert.Subject)
	assert.Equal(t, r.issuer.PrivateKey.PubKey().ToDERHex(), cert.Certifier)
	assert.Regexp(t, outpointPattern, cert.RevocationOutpoint)
	assert.NotEmpty(t, cert.Signature)
	assert.Equal(t, "alice", cert.Fields["username"])

	// The server nonce is verifiable by the holder against the issuer key.
	require.NoError(t, protocol.VerifyNonce(ctx, result.ServerNonce, r.holder, r.issuer.PrivateKey.PubKey()))

	record, err := r.store.Get(ctx, cert.Subject)
	require.NoError(t, err)
	assert.True(t, record.Live())
	assert.Equal(t, did.ForKey(cert.Subject), record.DID)

	report, err := r.svc.Verify(ctx, VerifyRequest{Certificate: cert})
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, certificate.OutcomeValid, report.Outcome)
}

func TestIssueRejectsReplayedNonce(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	req := r.issueRequest(t)
	_, err := r.svc.Issue(ctx, req)
	require.NoError(t, err)

	// Free the slot so only the nonce replay can reject the second attempt.
	require.NoError(t, r.store.Store.(*certstore.MemoryStore).ClearCertificate(ctx, req.IdentityKey))

	_, err = r.svc.Issue(ctx, req)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeProtocolViolation))
	assert.Equal(t, 1, r.ledger.SpendableCount(), "replay must not mint a second token")
}

func TestIssueRejectsGarbageNonce(t *testing.T) {
	r := newRig(t)

	req := r.issueRequest(t)
	req.ClientNonce = "bm90LWEtcmVhbC1ub25jZS1hdC1hbGwtanVzdC1ieXRlcw=="

	_, err := r.svc.Issue(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeProtocolViolation))
	assert.Equal(t, 0, r.ledger.SpendableCount())
}

func TestIssueSecondCertificateConflicts(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.svc.Issue(ctx, r.issueRequest(t))
	require.NoError(t, err)

	_, err = r.svc.Issue(ctx, r.issueRequest(t))
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeConflict))
	assert.Equal(t, 1, r.ledger.SpendableCount(), "the loser must not mint")
}

func TestIssueUnknownTypeRejected(t *testing.T) {
	r := newRig(t)

	req := r.issueRequest(t)
	req.Type = "bogus"

	_, err := r.svc.Issue(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeProtocolViolation))
}

func TestIssueMintFailureAborts(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.issuer.CreateActionFunc = func(context.Context, wallet.CreateActionArgs) (*wallet.CreateActionResult, error) {
		return nil, fmt.Errorf("ledger unavailable: %w", context.DeadlineExceeded)
	}

	req := r.issueRequest(t)
	_, err := r.svc.Issue(ctx, req)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeTransient))

	// No certificate, and the slot is free for a later attempt.
	_, err = r.store.Get(ctx, req.IdentityKey)
	require.Error(t, err)

	r.ledger.Attach(r.issuer)
	_, err = r.svc.Issue(ctx, r.issueRequest(t))
	require.NoError(t, err)
}

func TestIssueStoreFailureBurnsToken(t *testing.T) {
	r := newRig(t)
	r.store.failSave = true

	_, err := r.svc.Issue(context.Background(), r.issueRequest(t))
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeConsistency))

	// The compensating spend burned the orphaned token.
	assert.Equal(t, 0, r.ledger.SpendableCount())
}

func TestIssueStoresMasterKeyringOpaquely(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	req := r.issueRequest(t)
	req.MasterKeyring = map[string]string{"username": "a2V5cmluZy1lbnRyeQ=="}

	result, err := r.svc.Issue(ctx, req)
	require.NoError(t, err)

	// Stored alongside the record, byte for byte.
	record, err := r.store.Get(ctx, result.Certificate.Subject)
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"a2V5cmluZy1lbnRyeQ=="}`, string(record.Keyring))

	// Never signed into the certificate and never echoed back.
	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "a2V5cmluZy1lbnRyeQ==")

	// Revocation drops it with the certificate.
	_, err = r.svc.Revoke(ctx, RevokeRequest{
		SubjectKey:  result.Certificate.Subject,
		Certificate: result.Certificate,
	})
	require.NoError(t, err)

	record, err = r.store.Get(ctx, result.Certificate.Subject)
	require.NoError(t, err)
	assert.Nil(t, record.Keyring)
}

func TestIssueDIDCertificate(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	req := r.issueRequest(t)
	req.Type = didType

	result, err := r.svc.Issue(ctx, req)
	require.NoError(t, err)

	cert := result.Certificate
	assert.True(t, certificate.LooksLikeCredential(cert.Fields))

	record, err := r.store.Get(ctx, cert.Subject)
	require.NoError(t, err)
	assert.NotEmpty(t, record.VCData)

	report, err := r.svc.Verify(ctx, VerifyRequest{
		Certificate:       cert,
		VerificationLevel: certificate.LevelComprehensive,
	})
	require.NoError(t, err)
	assert.True(t, report.Valid)
	require.NotNil(t, report.Details.DIDVerification)
	assert.True(t, *report.Details.DIDVerification)
	assert.Equal(t, "alice", report.Claims["username"])
}

func TestRevokeLifecycle(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	result, err := r.svc.Issue(ctx, r.issueRequest(t))
	require.NoError(t, err)
	cert := result.Certificate

	revoked, err := r.svc.Revoke(ctx, RevokeRequest{
		SubjectKey:  cert.Subject,
		Certificate: cert,
		Operator:    "ops@example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, revoked.SpendTxid)

	report, err := r.svc.Verify(ctx, VerifyRequest{Certificate: cert})
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, certificate.OutcomeRevoked, report.Outcome)
	assert.Equal(t, "Certificate has been revoked", report.Error)

	record, err := r.store.Get(ctx, cert.Subject)
	require.NoError(t, err)
	assert.False(t, record.Live())
	assert.Equal(t, did.ForKey(cert.Subject), record.DID, "revocation preserves the DID")

	// Double revoke: the token is gone.
	_, err = r.svc.Revoke(ctx, RevokeRequest{SubjectKey: cert.Subject, Certificate: cert})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeNotFound))
	assert.Contains(t, err.Error(), "No revocation tokens found")
}

func TestRevokeSpendsBeforeClearing(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	result, err := r.svc.Issue(ctx, r.issueRequest(t))
	require.NoError(t, err)

	cleared := false
	r.store.onClear = func() {
		cleared = true
		// At clear time the ledger spend has already happened.
		assert.Equal(t, 0, r.ledger.SpendableCount(), "store cleared before the ledger spend")
	}

	_, err = r.svc.Revoke(ctx, RevokeRequest{
		SubjectKey:  result.Certificate.Subject,
		Certificate: result.Certificate,
	})
	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestRevokeStoreFailureIsConsistencyHazard(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	result, err := r.svc.Issue(ctx, r.issueRequest(t))
	require.NoError(t, err)

	r.store.failClear = true
	_, err = r.svc.Revoke(ctx, RevokeRequest{
		SubjectKey:  result.Certificate.Subject,
		Certificate: result.Certificate,
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeConsistency))
}

func TestRevokeMissingFields(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.svc.Revoke(ctx, RevokeRequest{SubjectKey: "02aa"})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeBadRequest))

	_, err = r.svc.Revoke(ctx, RevokeRequest{
		SubjectKey:  "02aa",
		Certificate: &certificate.Document{SerialNumber: "abc"},
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeBadRequest))
}
