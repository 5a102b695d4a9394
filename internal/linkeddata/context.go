// Package linkeddata implements the resource model of the HyprCAT mesh:
// JSON-LD nodes with Hydra affordances, the canonical namespace table,
// and SHACL-lite structural validation of resources, operations, and
// operation inputs.
//
// Nodes are treated as labeled JSON trees. No RDF expansion or reasoning
// is performed, so the package stays independent of external schema
// resources.
package linkeddata

import "strings"

// ContextURL is the canonical JSON-LD context for all HyprCAT documents.
const ContextURL = "https://hyprcat.dev/context/v1"

// Namespaces maps the well-known prefixes to their fully qualified base
// IRIs. The table is fixed at build time; a server exposes these bindings
// inline or by reference to ContextURL.
var Namespaces = map[string]string{
	"hydra":   "http://www.w3.org/ns/hydra/core#",
	"schema":  "https://schema.org/",
	"dcat":    "http://www.w3.org/ns/dcat#",
	"prov":    "http://www.w3.org/ns/prov#",
	"odrl":    "http://www.w3.org/ns/odrl/2/",
	"did":     "https://www.w3.org/ns/did/v1#",
	"vc":      "https://www.w3.org/2018/credentials#",
	"xapi":    "https://w3id.org/xapi/ontology#",
	"x402":    "https://hyprcat.dev/ns/x402#",
	"czero":   "https://hyprcat.dev/ns/czero#",
	"hyprcat": "https://hyprcat.dev/ns/core#",
}

// IDKind classifies an identifier by its prefix family. Identifiers are
// opaque; classification never inspects structure beyond the prefix.
type IDKind int

const (
	KindUnknown IDKind = iota
	KindIRI            // http:// or https://, dereferenceable
	KindDID            // did:<method>:<id>
	KindURN            // urn:<ns>:<suffix>
)

// KindOfID returns the identifier family for id.
func KindOfID(id string) IDKind {
	switch {
	case strings.HasPrefix(id, "http://"), strings.HasPrefix(id, "https://"):
		return KindIRI
	case strings.HasPrefix(id, "did:"):
		return KindDID
	case strings.HasPrefix(id, "urn:"):
		return KindURN
	default:
		return KindUnknown
	}
}

// ExpandIRI translates a prefixed form such as "hydra:Collection" into its
// fully qualified IRI. Unknown prefixes and already-absolute IRIs are
// returned unchanged.
func ExpandIRI(curie string) string {
	if strings.HasPrefix(curie, "http://") || strings.HasPrefix(curie, "https://") {
		return curie
	}
	prefix, local, ok := strings.Cut(curie, ":")
	if !ok {
		return curie
	}
	base, ok := Namespaces[prefix]
	if !ok {
		return curie
	}
	return base + local
}

// CompactIRI translates a fully qualified IRI back to its prefixed form
// using the namespace table. IRIs outside every namespace are returned
// unchanged.
func CompactIRI(iri string) string {
	for prefix, base := range Namespaces {
		if strings.HasPrefix(iri, base) {
			return prefix + ":" + strings.TrimPrefix(iri, base)
		}
	}
	return iri
}
