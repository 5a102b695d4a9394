package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Version reported in X-HyprCAT-Version.
const Version = "1.0.0"

// Custom headers.
const (
	HeaderVersion      = "X-HyprCAT-Version"
	HeaderProvenanceID = "X-Provenance-Id"
	HeaderTraceID      = "X-Trace-Id"
	HeaderAgentDID     = "X-Agent-DID"
)

const contentTypeLD = "application/ld+json"

// writeHeaders stamps the headers carried by every response: content
// type, version tag, and the link relations advertising the catalog and
// service description.
func (s *Server) writeHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", contentTypeLD)
	h.Set(HeaderVersion, Version)
	h.Add("Link", fmt.Sprintf(`<%s>; rel="service-desc"`, s.cfg.BaseURL+"/.well-known/hyprcat"))
	h.Add("Link", fmt.Sprintf(`<%s>; rel="https://hyprcat.dev/ns/core#catalog"`, s.cfg.BaseURL+"/catalog"))
}

// writeLD emits a success JSON-LD document.
func (s *Server) writeLD(w http.ResponseWriter, status int, body any) {
	s.writeHeaders(w)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// linkProvenance advertises the provenance document for the identity
// behind the just-returned resource.
func (s *Server) linkProvenance(w http.ResponseWriter, chainID string) {
	w.Header().Add("Link", fmt.Sprintf(`<%s>; rel="http://www.w3.org/ns/prov#has_provenance"`,
		s.cfg.BaseURL+"/provenance/chains/"+chainID))
}
