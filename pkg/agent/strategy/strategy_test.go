package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

func buyOp(target string) map[string]any {
	op := linkeddata.Operation{
		Method:     "POST",
		ActionType: "schema:BuyAction",
		Title:      "buy",
		Target:     target,
	}
	return op.Node()
}

func product(id string, price int64, stock int) map[string]any {
	return map[string]any{
		"@id":          id,
		"@type":        "schema:Product",
		"schema:name":  id,
		"schema:price": price,
		"stock":        stock,
		"operation":    []any{buyOp("https://g.test/operations/checkout")},
	}
}

func storeNode(members ...any) linkeddata.Node {
	n := linkeddata.NewNode("https://g.test/nodes/store", "schema:Store")
	n.Set("member", members)
	return n
}

func TestRetailPicksFirstQualifyingInStock(t *testing.T) {
	sit := Situation{
		Resource: storeNode(
			product("urn:a", 50, 0),    // out of stock, skipped
			product("urn:b", 5000, 5),  // over the cap, skipped
			product("urn:c", 200, 5),   // first that qualifies
			product("urn:d", 100, 5),   // cheaper but later in order
		),
		Balance:  10_000,
		MaxPrice: 1000,
	}
	d, ok := Retail{}.Evaluate(context.Background(), sit)
	require.True(t, ok)
	assert.True(t, d.ShouldExecute)
	assert.Equal(t, "urn:c", d.Input["hyprcat:product"])
	assert.EqualValues(t, 200, d.Input["schema:price"])
	assert.Equal(t, "retail-buyer", d.Strategy)
	assert.Equal(t, 10, d.Priority)
}

func TestRetailRespectsBalance(t *testing.T) {
	sit := Situation{
		Resource: storeNode(product("urn:a", 200, 5)),
		Balance:  80,
		MaxPrice: 1000,
	}
	_, ok := Retail{}.Evaluate(context.Background(), sit)
	assert.False(t, ok)
}

func TestRetailOnBareProduct(t *testing.T) {
	n := linkeddata.Node(product("urn:solo", 300, 2))
	d, ok := Retail{}.Evaluate(context.Background(), Situation{Resource: n, Balance: 1000})
	require.True(t, ok)
	assert.Equal(t, "urn:solo", d.Input["hyprcat:product"])
}

func TestRetailIgnoresNodesWithoutBuyAffordance(t *testing.T) {
	n := linkeddata.NewNode("urn:p", "schema:Product")
	n.Set("schema:price", 100)
	_, ok := Retail{}.Evaluate(context.Background(), Situation{Resource: n, Balance: 1000})
	assert.False(t, ok)
}

func TestAnalyticsQueryAndExport(t *testing.T) {
	graph := linkeddata.NewNode("urn:graph", "czero:VirtualGraph")
	graph.Set("schema:name", "insights")
	queryOp := linkeddata.Operation{
		Method: "POST", ActionType: "czero:QueryAction", Title: "query",
		Target: "https://g.test/operations/query",
	}
	graph.Set("operation", []any{queryOp.Node()})

	d, ok := Analytics{}.Evaluate(context.Background(), Situation{Resource: graph})
	require.True(t, ok)
	assert.Equal(t, DefaultAnalyticsQuery, d.Input["schema:query"])
	assert.Equal(t, 8, d.Priority)

	custom, ok := Analytics{Query: "SELECT * FROM sales"}.Evaluate(context.Background(), Situation{Resource: graph})
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM sales", custom.Input["schema:query"])

	lrs := linkeddata.NewNode("urn:lrs", "hyprcat:LearningRecordStore")
	exportOp := linkeddata.Operation{
		Method: "GET", ActionType: "hyprcat:ExportAction", Title: "export",
		Target: "https://g.test/operations/lrs/export",
	}
	lrs.Set("operation", []any{exportOp.Node()})

	d, ok = Analytics{}.Evaluate(context.Background(), Situation{Resource: lrs})
	require.True(t, ok)
	assert.Equal(t, 6, d.Priority)
	assert.Nil(t, d.Input)
}

func TestRegistryMatchesOnTriggerTypes(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Retail{})
	reg.Register(Analytics{})

	assert.Len(t, reg.All(), 2)

	graph := linkeddata.NewNode("urn:g", "czero:VirtualGraph")
	matched := reg.For(graph)
	require.Len(t, matched, 1)
	assert.Equal(t, "data-analyst", matched[0].Name())

	unrelated := linkeddata.NewNode("urn:u", "hydra:Collection")
	assert.Empty(t, reg.For(unrelated))
}

func TestRegistryDecidePrefersHigherPriority(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Analytics{})
	reg.Register(Retail{})

	// A node that is both a store and a data product: retail's buy
	// proposal outranks the analytics query.
	n := storeNode(product("urn:a", 100, 5))
	n.Set("@type", []any{"schema:Store", "czero:VirtualGraph"})
	queryOp := linkeddata.Operation{
		Method: "POST", ActionType: "czero:QueryAction", Title: "query",
		Target: "https://g.test/operations/query",
	}
	n.Set("operation", []any{queryOp.Node()})

	d, ok := reg.Decide(context.Background(), Situation{Resource: n, Balance: 1000})
	require.True(t, ok)
	assert.Equal(t, "retail-buyer", d.Strategy)
}
