package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hyprcat/gateway/internal/catalog"
	"github.com/hyprcat/gateway/internal/events"
	"github.com/hyprcat/gateway/internal/linkeddata"
	"github.com/hyprcat/gateway/internal/store"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.serveStored(w, r, s.cfg.BaseURL+"/")
}

func (s *Server) handleWellKnown(w http.ResponseWriter, r *http.Request) {
	s.serveStored(w, r, s.catalog.WellKnownID())
}

// handleCatalog serves the seeded catalog document as-is, or a search
// collection when any filter or paging parameter is present.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if len(q) == 0 {
		s.serveStored(w, r, s.catalog.CatalogID())
		return
	}
	params := catalog.SearchParams{
		Query:  q.Get("q"),
		Type:   q.Get("type"),
		Domain: q.Get("domain"),
	}
	params.Page, _ = strconv.Atoi(q.Get("page"))
	params.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	result, err := s.catalog.Search(r.Context(), params)
	if err != nil {
		s.problem(w, r, KindInternalError, "catalog search failed", nil)
		return
	}
	result.Set("@context", linkeddata.ContextURL)
	s.writeLD(w, http.StatusOK, result)
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	s.serveStored(w, r, s.cfg.BaseURL+"/prompts")
}

// handleNode dereferences any mesh resource by its IRI, including
// resources nested inside a collection member list.
func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id := s.cfg.BaseURL + r.URL.Path
	n, err := s.findNode(r, id)
	if errors.Is(err, store.ErrNotFound) {
		s.problem(w, r, KindNotFound, "no resource at "+id, nil)
		return
	}
	if err != nil {
		s.problem(w, r, KindInternalError, "resource lookup failed", nil)
		return
	}
	if _, ok := n["@context"]; !ok {
		n.Set("@context", linkeddata.ContextURL)
	}
	s.writeLD(w, http.StatusOK, n)
}

// findNode resolves an IRI against the store, falling back to a scan of
// nested collection members (seeded products live inside their store's
// member list rather than as top-level documents).
func (s *Server) findNode(r *http.Request, id string) (linkeddata.Node, error) {
	ctx := r.Context()
	n, err := s.store.Get(ctx, id)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, topID := range ids {
		top, err := s.store.Get(ctx, topID)
		if err != nil {
			continue
		}
		for _, member := range top.Members() {
			if member.ID() == id {
				return member.Clone(), nil
			}
		}
	}
	return nil, store.ErrNotFound
}

// handleRegister accepts a new resource for the catalog.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var n linkeddata.Node
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		s.problem(w, r, KindInvalidRequest, "body must be a JSON-LD object", nil)
		return
	}
	if res := linkeddata.ValidateResource(n); !res.Valid() {
		s.problem(w, r, KindValidationError, "resource failed validation", map[string]any{
			"hyprcat:violations": res.Errors,
			"hyprcat:paths":      res.Paths(),
		})
		return
	}
	if err := s.catalog.Register(r.Context(), n); err != nil {
		if errors.Is(err, catalog.ErrInvalidResource) {
			s.problem(w, r, KindInvalidRequest, err.Error(), nil)
			return
		}
		s.problem(w, r, KindInternalError, "registration failed", nil)
		return
	}
	s.bus.Emit(events.TypeResourceRegistered, "/nodes", n.ID(), map[string]any{
		"type": n.PrimaryType(),
	})
	s.writeLD(w, http.StatusCreated, n)
}

func (s *Server) serveStored(w http.ResponseWriter, r *http.Request, id string) {
	n, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.problem(w, r, KindNotFound, "no resource at "+id, nil)
		return
	}
	if err != nil {
		s.problem(w, r, KindInternalError, "resource lookup failed", nil)
		return
	}
	if _, ok := n["@context"]; !ok {
		n.Set("@context", linkeddata.ContextURL)
	}
	s.writeLD(w, http.StatusOK, n)
}
