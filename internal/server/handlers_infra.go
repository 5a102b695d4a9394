package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hyprcat/gateway/internal/federation"
	"github.com/hyprcat/gateway/internal/linkeddata"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": Version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady probes the backing store; a failing backend flips
// readiness without taking liveness down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := s.store.List(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"status": "unavailable", "reason": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
}

// handleStats reports operational counters for dashboards and tests.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List(r.Context())
	if err != nil {
		s.problem(w, r, KindInternalError, "store enumeration failed", nil)
		return
	}
	s.writeLD(w, http.StatusOK, map[string]any{
		"@context":          linkeddata.ContextURL,
		"@type":             "hyprcat:GatewayStats",
		"resources":         len(ids),
		"pendingChallenges": s.identity.PendingChallenges(),
		"pendingInvoices":   s.payments.PendingInvoices(),
		"federatedSources":  federation.DatasetNames(),
		"storageBackend":    s.cfg.StorageBackend,
		"uptime":            time.Since(s.startedAt).Round(time.Second).String(),
	})
}
