package provenance

import (
	"fmt"
	"time"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// Export encodings.
const (
	EncodingLinkedData = "ld"
	EncodingSummary    = "summary"
)

// Export renders a chain in the requested encoding. EncodingLinkedData
// emits a prov:Bundle with typed members; EncodingSummary emits a flat
// listing. Further encodings can hang off the same switch.
func (s *Service) Export(chainID, encoding string) (map[string]any, error) {
	// ChainByID returns a detached snapshot, so no further locking.
	c, ok := s.ChainByID(chainID)
	if !ok {
		return nil, ErrUnknownChain
	}
	switch encoding {
	case EncodingSummary:
		return exportSummary(c, c.Items, c.Sealed), nil
	case EncodingLinkedData, "":
		return exportLinkedData(c, c.Items, c.Sealed), nil
	default:
		return nil, fmt.Errorf("provenance: unknown export encoding %q", encoding)
	}
}

func exportLinkedData(c *Chain, items []Item, sealed bool) map[string]any {
	members := make([]any, 0, len(items))
	for _, item := range items {
		switch {
		case item.Entity != nil:
			e := item.Entity
			members = append(members, map[string]any{
				"@id":              e.ID,
				"@type":            "prov:Entity",
				"rdfs:label":       e.Label,
				"prov:generatedAtTime": e.Timestamp.Format(time.RFC3339),
				"hyprcat:snapshot": e.Snapshot,
			})
		case item.Activity != nil:
			a := item.Activity
			members = append(members, map[string]any{
				"@id":               a.ID,
				"@type":             "prov:Activity",
				"rdfs:label":        a.Label,
				"hyprcat:actionType": a.ActionType,
				"hyprcat:strategy":  a.Strategy,
				"hyprcat:method":    a.Method,
				"hyprcat:targetUrl": a.TargetURL,
				"hyprcat:statusCode": a.StatusCode,
				"prov:used":         map[string]any{"@id": a.UsedEntityID},
				"prov:startedAtTime": a.Timestamp.Format(time.RFC3339),
			})
		}
	}
	return map[string]any{
		"@context":       linkeddata.ContextURL,
		"@id":            c.ID,
		"@type":          "prov:Bundle",
		"prov:agent":     map[string]any{"@id": c.AgentDID},
		"hyprcat:startedAt": c.StartedAt.Format(time.RFC3339),
		"hyprcat:sealed": sealed,
		"member":         members,
		"totalItems":     len(members),
	}
}

func exportSummary(c *Chain, items []Item, sealed bool) map[string]any {
	lines := make([]any, 0, len(items))
	for i, item := range items {
		switch {
		case item.Entity != nil:
			lines = append(lines, map[string]any{
				"position": i, "kind": "entity",
				"id": item.Entity.ID, "label": item.Entity.Label,
				"timestamp": item.Entity.Timestamp.Format(time.RFC3339),
			})
		case item.Activity != nil:
			a := item.Activity
			lines = append(lines, map[string]any{
				"position": i, "kind": "activity",
				"id": a.ID, "label": a.Label,
				"actionType": a.ActionType, "strategy": a.Strategy,
				"targetUrl": a.TargetURL, "statusCode": a.StatusCode,
				"timestamp": a.Timestamp.Format(time.RFC3339),
			})
		}
	}
	return map[string]any{
		"id":        c.ID,
		"agent":     c.AgentDID,
		"startedAt": c.StartedAt.Format(time.RFC3339),
		"sealed":    sealed,
		"items":     lines,
	}
}
