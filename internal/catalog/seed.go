package catalog

import (
	"context"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// Seed populates the store with the deterministic demonstration mesh:
// service description, root document, catalog, a retail store with a
// payment-constrained buy affordance, a virtual graph with a query
// affordance, a learning record store with an export affordance, and the
// prompts collection. Seeding is idempotent — rerunning overwrites the
// same ids with the same values.
func (s *Service) Seed(ctx context.Context) error {
	nodes := []linkeddata.Node{
		s.seedWellKnown(),
		s.seedRoot(),
		s.seedStore(),
		s.seedVirtualGraph(),
		s.seedLRS(),
		s.seedPrompts(),
	}
	for _, n := range nodes {
		if err := s.store.Put(ctx, n.ID(), n); err != nil {
			return err
		}
	}
	// Catalog goes last so member references resolve.
	cat := s.seedCatalog()
	return s.store.Put(ctx, cat.ID(), cat)
}

func (s *Service) seedWellKnown() linkeddata.Node {
	n := linkeddata.NewNode(s.WellKnownID(), "hyprcat:ServiceDescription")
	n.Set("hydra:title", "HyprCAT Gateway")
	n.Set("hydra:entrypoint", s.CatalogID())
	n.Set("hyprcat:version", "1.0.0")
	n.Set("hyprcat:authEndpoint", s.base+"/auth/challenge")
	n.Set("hyprcat:queryEndpoint", s.base+"/operations/query")
	return n
}

func (s *Service) seedRoot() linkeddata.Node {
	n := linkeddata.NewNode(s.base+"/", "hydra:ApiDocumentation")
	n.Set("hydra:title", "HyprCAT data marketplace")
	n.Set("hydra:description", "Hypermedia-driven data marketplace gateway. Start at the catalog and follow affordances.")
	n.Set("hydra:entrypoint", s.CatalogID())
	return n
}

func (s *Service) seedCatalog() linkeddata.Node {
	n := linkeddata.NewNode(s.CatalogID(), "hydra:Collection", "dcat:Catalog")
	n.Set("hydra:title", "HyprCAT root catalog")
	members := []any{
		map[string]any{"@id": s.base + "/nodes/store/quantum-goods", "@type": "schema:Store"},
		map[string]any{"@id": s.base + "/nodes/graph/market-insights", "@type": "czero:VirtualGraph"},
		map[string]any{"@id": s.base + "/nodes/lrs/primary", "@type": "hyprcat:LearningRecordStore"},
		map[string]any{"@id": s.base + "/prompts", "@type": "hydra:Collection"},
	}
	n.Set("member", members)
	n.Set("totalItems", len(members))
	return n
}

func (s *Service) seedStore() linkeddata.Node {
	storeID := s.base + "/nodes/store/quantum-goods"
	storeDID := "did:web:quantum-goods.example"

	buy := func(productID string, price int64) map[string]any {
		op := linkeddata.Operation{
			Method:     "POST",
			ActionType: "schema:BuyAction",
			Title:      "Purchase this product",
			Target:     s.base + "/operations/checkout",
			Returns:    "schema:Order",
			Expects: []linkeddata.PropertyShape{
				{Property: "schema:price", Required: true, Datatype: linkeddata.DatatypeDecimal},
			},
			Constraint: map[string]any{
				"@type":          "x402:PaymentRequired",
				"x402:amount":    price,
				"x402:currency":  "SAT",
				"x402:recipient": storeDID,
			},
		}
		node := op.Node()
		node["hyprcat:product"] = productID
		return node
	}

	product := func(slug, name string, price int64, stock int) map[string]any {
		id := s.base + "/nodes/product/" + slug
		return map[string]any{
			"@id":                  id,
			"@type":                "schema:Product",
			"schema:name":          name,
			"schema:price":         price,
			"schema:priceCurrency": "SAT",
			"schema:inventoryLevel": map[string]any{
				"@type":        "schema:QuantitativeValue",
				"schema:value": stock,
			},
			"stock":     stock,
			"operation": []any{buy(id, price)},
		}
	}

	n := linkeddata.NewNode(storeID, "schema:Store", "hydra:Resource")
	n.Set("schema:name", "Quantum Goods")
	n.Set("schema:description", "Demonstration retail store selling data-adjacent hardware for simulated sats.")
	n.Set("hyprcat:domain", "retail")
	n.Set("schema:identifier", storeDID)
	n.Set("member", []any{
		product("ion-cell", "Ion storage cell", 3500, 12),
		product("flux-capacitor", "Flux capacitor (refurbished)", 8200, 3),
		product("murmur-sensor", "Murmur telemetry sensor", 100, 40),
	})
	n.Set("totalItems", 3)
	return n
}

func (s *Service) seedVirtualGraph() linkeddata.Node {
	n := linkeddata.NewNode(s.base+"/nodes/graph/market-insights",
		"czero:VirtualGraph", "dcat:Dataset", "hyprcat:DataProduct")
	n.Set("schema:name", "Market insights virtual graph")
	n.Set("schema:description", "Federated view over analytics, sales, inventory, and telemetry sources.")
	n.Set("hyprcat:domain", "analytics")
	n.Set("czero:sources", []any{
		map[string]any{"endpoint": "urn:hyprcat:source:analytics", "mappingType": "tabular"},
		map[string]any{"endpoint": "urn:hyprcat:source:sales", "mappingType": "tabular"},
		map[string]any{"endpoint": "urn:hyprcat:source:inventory", "mappingType": "tabular"},
		map[string]any{"endpoint": "urn:hyprcat:source:telemetry", "mappingType": "timeseries"},
	})
	query := linkeddata.Operation{
		Method:     "POST",
		ActionType: "czero:QueryAction",
		Title:      "Run a federated query",
		Target:     s.base + "/operations/query",
		Returns:    "czero:ResultSet",
		Expects: []linkeddata.PropertyShape{
			{Property: "schema:query", Required: true, Datatype: linkeddata.DatatypeString},
		},
	}
	n.Set("operation", []any{query.Node()})
	return n
}

func (s *Service) seedLRS() linkeddata.Node {
	n := linkeddata.NewNode(s.base+"/nodes/lrs/primary",
		"hyprcat:LearningRecordStore", "xapi:LearningRecordStore")
	n.Set("schema:name", "Primary learning record store")
	n.Set("schema:description", "xAPI-style statements recorded by mesh agents.")
	export := linkeddata.Operation{
		Method:     "GET",
		ActionType: "hyprcat:ExportAction",
		Title:      "Export learning records",
		Target:     s.base + "/operations/lrs/export",
		Returns:    "hydra:Collection",
	}
	n.Set("operation", []any{export.Node()})
	return n
}

func (s *Service) seedPrompts() linkeddata.Node {
	n := linkeddata.NewNode(s.base+"/prompts", "hydra:Collection", "hyprcat:PromptCollection")
	n.Set("hydra:title", "Agent prompt collection")
	n.Set("member", []any{
		map[string]any{
			"@id":                s.base + "/prompts/retail-buyer",
			"@type":              "hyprcat:Prompt",
			"schema:name":        "retail-buyer",
			"hyprcat:promptText": "Browse the catalog, locate in-stock products within budget, and purchase the best value item.",
		},
		map[string]any{
			"@id":                s.base + "/prompts/data-analyst",
			"@type":              "hyprcat:Prompt",
			"schema:name":        "data-analyst",
			"hyprcat:promptText": "Locate data products, query them for high-spend accounts, and attest every result.",
		},
	})
	n.Set("totalItems", 2)
	return n
}
