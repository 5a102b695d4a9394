package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hyprcat/gateway/internal/linkeddata"
	"github.com/hyprcat/gateway/internal/provenance"
)

// handleProvenanceChain exports one chain. ?encoding=summary selects the
// flat listing; the default is the prov:Bundle linked-data form.
func (s *Server) handleProvenanceChain(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chainId"]
	doc, err := s.prov.Export(chainID, r.URL.Query().Get("encoding"))
	if errors.Is(err, provenance.ErrUnknownChain) {
		s.problem(w, r, KindNotFound, "no provenance chain "+chainID, nil)
		return
	}
	if err != nil {
		s.problem(w, r, KindInvalidRequest, err.Error(), nil)
		return
	}
	s.writeLD(w, http.StatusOK, doc)
}

// handleProvenanceHistory lists the caller's chains, oldest first.
func (s *Server) handleProvenanceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	chains := s.prov.HistoryOf(id.DID)
	members := make([]any, 0, len(chains))
	for _, c := range chains {
		members = append(members, map[string]any{
			"@id":               s.cfg.BaseURL + "/provenance/chains/" + c.ID,
			"@type":             "prov:Bundle",
			"hyprcat:chainId":   c.ID,
			"hyprcat:startedAt": c.StartedAt.Format(time.RFC3339),
			"hyprcat:sealed":    c.Sealed,
			"hyprcat:items":     len(c.Items),
		})
	}
	s.writeLD(w, http.StatusOK, map[string]any{
		"@context":   linkeddata.ContextURL,
		"@type":      "hydra:Collection",
		"member":     members,
		"totalItems": len(members),
	})
}
