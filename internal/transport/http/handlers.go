package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"commonsource/internal/certificate"
	"commonsource/internal/issuer"
	"commonsource/internal/platform/middleware"
	domainerrors "commonsource/pkg/domain-errors"
)

type issueRequest struct {
	IdentityKey   string            `json:"identityKey"`
	ClientNonce   string            `json:"clientNonce"`
	Type          string            `json:"type"`
	Fields        map[string]string `json:"fields"`
	MasterKeyring map[string]string `json:"masterKeyring,omitempty"`
}

type issueResponse struct {
	Certificate *certificate.Document `json:"certificate"`
	ServerNonce string                `json:"serverNonce"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.IdentityKey == "" || req.ClientNonce == "" || req.Type == "" {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest,
			"identityKey, clientNonce and type are required"))
		return
	}

	result, err := h.issuer.Issue(r.Context(), issuer.IssueRequest{
		IdentityKey:   req.IdentityKey,
		ClientNonce:   req.ClientNonce,
		Type:          req.Type,
		Fields:        req.Fields,
		MasterKeyring: req.MasterKeyring,
		RequestID:     middleware.GetRequestID(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issueResponse{
		Certificate: result.Certificate,
		ServerNonce: result.ServerNonce,
	})
}

type verifyRequest struct {
	Certificate       *certificate.Document `json:"certificate"`
	UserIdentityKey   string                `json:"userIdentityKey,omitempty"`
	VerificationLevel string                `json:"verificationLevel,omitempty"`
	RequireProof      bool                  `json:"requireCryptographicProof,omitempty"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Certificate == nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "certificate is required"))
		return
	}

	report, err := h.issuer.Verify(r.Context(), issuer.VerifyRequest{
		Certificate:       req.Certificate,
		UserIdentityKey:   req.UserIdentityKey,
		VerificationLevel: certificate.Level(req.VerificationLevel),
		RequireProof:      req.RequireProof,
		RequestID:         middleware.GetRequestID(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	// Invalid and revoked verdicts are still 200s; the report carries the
	// outcome. Errors are reserved for requests that reached no verdict.
	writeJSON(w, http.StatusOK, report)
}

type revokeRequest struct {
	PublicKey   string                `json:"publicKey"`
	Certificate *certificate.Document `json:"certificate"`
}

type revokeResponse struct {
	Message   string `json:"message"`
	SpendTxid string `json:"spendTxid"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PublicKey == "" {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "publicKey is required"))
		return
	}

	result, err := h.issuer.Revoke(r.Context(), issuer.RevokeRequest{
		SubjectKey:  req.PublicKey,
		Certificate: req.Certificate,
		Operator:    middleware.GetOperator(r.Context()),
		RequestID:   middleware.GetRequestID(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeResponse{
		Message:   "certificate revoked",
		SpendTxid: result.SpendTxid,
	})
}

func (h *Handler) handleResolveDID(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	doc, err := h.resolver.Resolve(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domainerrors.Wrap(domainerrors.CodeBadRequest, "malformed request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a coded error as the JSON envelope. The code rides along
// so clients can branch without parsing the message.
func writeError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(domainerrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": domainerrors.MessageOf(err),
		"code":  string(code),
	})
}
