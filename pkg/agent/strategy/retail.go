package strategy

import (
	"context"
	"fmt"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// Retail buys the first in-stock product a store offers that fits the
// agent's budget and per-item price cap, in member order.
type Retail struct {
	// MaxPrice overrides the situation cap when non-zero.
	MaxPrice int64
}

func (Retail) Name() string { return "retail-buyer" }

func (Retail) Description() string {
	return "purchase the first in-stock product within budget"
}

func (Retail) TriggerTypes() []string {
	return []string{"schema:Store", "schema:Product", "schema:Offer"}
}

func (s Retail) Evaluate(ctx context.Context, sit Situation) (Decision, bool) {
	priceCap := sit.MaxPrice
	if s.MaxPrice > 0 {
		priceCap = s.MaxPrice
	}

	type candidate struct {
		node  linkeddata.Node
		op    linkeddata.Operation
		price int64
	}
	// First qualifying product wins; member order is the preference.
	var pick *candidate
	consider := func(n linkeddata.Node) {
		if pick != nil {
			return
		}
		price, ok := n.GetInt("schema:price")
		if !ok {
			return
		}
		if stock, ok := n.GetInt("stock"); ok && stock < 1 {
			return
		}
		if priceCap > 0 && price > priceCap {
			return
		}
		if sit.Balance > 0 && price > sit.Balance {
			return
		}
		for _, op := range linkeddata.OperationsOf(n) {
			if op.ActionType == "schema:BuyAction" {
				pick = &candidate{node: n, op: op, price: price}
				return
			}
		}
	}

	if linkeddata.IsOfType(sit.Resource, "schema:Product") {
		consider(sit.Resource)
	}
	for _, m := range sit.Resource.Members() {
		consider(m)
	}
	if pick == nil {
		return Decision{}, false
	}
	return Decision{
		ShouldExecute: true,
		Operation:     pick.op,
		Input: map[string]any{
			"hyprcat:product": pick.node.ID(),
			"schema:price":    pick.price,
		},
		Strategy: s.Name(),
		Reason:   fmt.Sprintf("buy %s for %d", pick.node.GetString("schema:name"), pick.price),
		Priority: 10,
	}, true
}
