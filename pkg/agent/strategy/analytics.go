package strategy

import (
	"context"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// DefaultAnalyticsQuery is issued when the caller supplies none.
const DefaultAnalyticsQuery = "SELECT user_id, total_spend FROM analytics WHERE total_spend > 500 ORDER BY total_spend DESC LIMIT 5"

// Analytics runs federated queries against data products and exports
// from learning record stores.
type Analytics struct {
	// Query overrides the default query text.
	Query string
}

func (Analytics) Name() string { return "data-analyst" }

func (Analytics) Description() string {
	return "query data products and export recorded activity"
}

func (Analytics) TriggerTypes() []string {
	return []string{
		"czero:VirtualGraph",
		"dcat:Dataset",
		"hyprcat:DataProduct",
		"hyprcat:LearningRecordStore",
	}
}

func (s Analytics) Evaluate(ctx context.Context, sit Situation) (Decision, bool) {
	query := s.Query
	if query == "" {
		query = DefaultAnalyticsQuery
	}
	for _, op := range linkeddata.OperationsOf(sit.Resource) {
		switch op.ActionType {
		case "czero:QueryAction":
			return Decision{
				ShouldExecute: true,
				Operation:     op,
				Input:         map[string]any{"schema:query": query},
				Strategy:      s.Name(),
				Reason:        "run federated query against " + sit.Resource.GetString("schema:name"),
				Priority:      8,
			}, true
		case "hyprcat:ExportAction":
			return Decision{
				ShouldExecute: true,
				Operation:     op,
				Strategy:      s.Name(),
				Reason:        "export records from " + sit.Resource.GetString("schema:name"),
				Priority:      6,
			}, true
		}
	}
	return Decision{}, false
}
