package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hyprcat/gateway/internal/events"
	"github.com/hyprcat/gateway/internal/identity"
	"github.com/hyprcat/gateway/internal/linkeddata"
	"github.com/hyprcat/gateway/internal/wallet"
)

// handleChallenge starts the authentication flow: the client receives a
// nonce to sign and the endpoint to bring the signature to.
func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DID    string `json:"did"`
		Domain string `json:"domain"`
	}
	if r.Body != nil {
		// The body is optional; a bare POST gets a challenge for the
		// gateway's own domain.
		_ = json.NewDecoder(r.Body).Decode(&in)
	}
	if in.Domain == "" {
		in.Domain = s.cfg.BaseURL
	}
	c, err := s.identity.IssueChallenge(in.Domain)
	if err != nil {
		s.problem(w, r, KindInternalError, "challenge generation failed", nil)
		return
	}
	s.writeLD(w, http.StatusCreated, map[string]any{
		"@context":               linkeddata.ContextURL,
		"@type":                  "hyprcat:AuthChallenge",
		"nonce":                  c.Nonce,
		"domain":                 c.Domain,
		"issuedAt":               c.IssuedAt.Format(time.RFC3339),
		"expiresAt":              c.ExpiresAt.Format(time.RFC3339),
		"hyprcat:verifyEndpoint": s.cfg.BaseURL + "/auth/verify",
	})
}

// handleVerify exchanges a signed challenge for a session token.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DID       string `json:"did"`
		Signature string `json:"signature"`
		Nonce     string `json:"nonce"`
		Scope     string `json:"scope"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.DID == "" || in.Nonce == "" {
		s.problem(w, r, KindInvalidRequest, "did, signature, and nonce are required", nil)
		return
	}
	if err := s.identity.VerifyChallenge(r.Context(), in.DID, in.Signature, in.Nonce); err != nil {
		switch {
		case errors.Is(err, identity.ErrUnknownChallenge),
			errors.Is(err, identity.ErrExpiredChallenge),
			errors.Is(err, identity.ErrBadSignature):
			s.problem(w, r, KindAuthFailed, err.Error(), nil)
		default:
			s.problem(w, r, KindInternalError, "verification failed", nil)
		}
		return
	}
	scope := in.Scope
	if scope == "" {
		scope = "agent"
	}
	token, expires, err := s.identity.IssueToken(in.DID, scope)
	if err != nil {
		s.problem(w, r, KindInternalError, "token issuance failed", nil)
		return
	}
	s.bus.Emit(events.TypeAuthVerified, "/auth/verify", in.DID, map[string]any{"scope": scope})
	s.writeLD(w, http.StatusOK, map[string]any{
		"@context":  linkeddata.ContextURL,
		"@type":     "hyprcat:AuthSession",
		"did":       in.DID,
		"token":     token,
		"tokenType": "Bearer",
		"scope":     scope,
		"expiresAt": expires.Format(time.RFC3339),
	})
}

// handleProfile returns the authenticated principal. Requires a verified
// identity, not just the attribution header.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, true)
	if !ok {
		return
	}
	body := map[string]any{
		"@context":           linkeddata.ContextURL,
		"@id":                id.DID,
		"@type":              "hyprcat:AgentProfile",
		"did":                id.DID,
		"scope":              id.Scope,
		"hyprcat:authMethod": string(id.Method),
		"hyprcat:wallet":     s.cfg.BaseURL + "/wallet",
	}
	if chains := s.prov.HistoryOf(id.DID); len(chains) > 0 {
		last := chains[len(chains)-1]
		body["hyprcat:provenanceChain"] = s.cfg.BaseURL + "/provenance/chains/" + last.ID
	}
	s.writeLD(w, http.StatusOK, body)
}

// handleWallet returns the caller's wallet snapshot with its settlement
// history.
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	state, err := s.wallets.Get(r.Context(), id.DID)
	if errors.Is(err, wallet.ErrNotFound) {
		s.problem(w, r, KindNotFound, "no wallet provisioned for "+id.DID, nil)
		return
	}
	if err != nil {
		s.problem(w, r, KindInternalError, "wallet lookup failed", nil)
		return
	}
	receipts := s.payments.Receipts(id.DID)
	history := make([]any, len(receipts))
	for i, rc := range receipts {
		history[i] = rc
	}
	s.writeLD(w, http.StatusOK, map[string]any{
		"@context":      linkeddata.ContextURL,
		"@type":         "hyprcat:Wallet",
		"did":           state.DID,
		"balances":      state.Balances,
		"tokens":        state.Tokens,
		"subscriptions": state.Subscriptions,
		"receipts":      history,
		"createdAt":     state.CreatedAt.Format(time.RFC3339),
		"updatedAt":     state.UpdatedAt.Format(time.RFC3339),
	})
}
