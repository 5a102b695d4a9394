// Package governance implements the constraint pipeline attached to
// affordances: the 402 payment flow (invoice, proof, debit, receipt),
// the token gate, declarative policy evaluation, and AND/OR composites
// of the three.
package governance

import (
	"github.com/hyprcat/gateway/internal/linkeddata"
)

// Kind discriminates the constraint variants.
type Kind string

const (
	KindPayment   Kind = "payment"
	KindTokenGate Kind = "token-gate"
	KindPolicy    Kind = "policy"
	KindComposite Kind = "composite"
)

// Composite operators.
const (
	OpAnd = "AND"
	OpOr  = "OR"
)

// PaymentConstraint is the 402 requirement on an affordance.
type PaymentConstraint struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Recipient string `json:"recipient"`
}

// TokenGateConstraint requires a minimum token holding. ChainID and
// Standard describe the gated asset; the simulated model reads the
// wallet instead of a chain.
type TokenGateConstraint struct {
	RequiredToken string `json:"requiredToken"`
	MinBalance    int64  `json:"minBalance"`
	ChainID       string `json:"chainId,omitempty"`
	Standard      string `json:"standard,omitempty"`
}

// Constraint is the tagged union over the three governance kinds plus a
// single-level AND/OR composite.
type Constraint struct {
	Kind      Kind
	Payment   *PaymentConstraint
	TokenGate *TokenGateConstraint
	Policy    *Policy
	Op        string // AND or OR, composite only
	Children  []Constraint
}

// ParseConstraint decodes a constraint from its JSON-LD form, dispatching
// on @type. Returns (nil, false) for absent or unrecognized shapes.
func ParseConstraint(m map[string]any) (*Constraint, bool) {
	if m == nil {
		return nil, false
	}
	n := linkeddata.Node(m)
	switch n.PrimaryType() {
	case "x402:PaymentRequired":
		amount, _ := n.GetInt("x402:amount")
		c := &Constraint{Kind: KindPayment, Payment: &PaymentConstraint{
			Amount:    amount,
			Currency:  orDefault(n.GetString("x402:currency"), "SAT"),
			Recipient: n.GetString("x402:recipient"),
		}}
		return c, amount > 0
	case "hyprcat:TokenGate":
		min, _ := n.GetInt("minBalance")
		if min == 0 {
			min = 1
		}
		token := n.GetString("requiredToken")
		if token == "" {
			return nil, false
		}
		return &Constraint{Kind: KindTokenGate, TokenGate: &TokenGateConstraint{
			RequiredToken: token,
			MinBalance:    min,
			ChainID:       n.GetString("chainId"),
			Standard:      n.GetString("standard"),
		}}, true
	case "odrl:Policy", "odrl:Set":
		p := parsePolicy(n)
		return &Constraint{Kind: KindPolicy, Policy: p}, true
	case "hyprcat:CompositeConstraint":
		op := n.GetString("operator")
		if op != OpAnd && op != OpOr {
			op = OpAnd
		}
		var children []Constraint
		for _, raw := range n.GetList("constraints") {
			if cm, ok := raw.(map[string]any); ok {
				if child, ok := ParseConstraint(cm); ok {
					children = append(children, *child)
				}
			}
		}
		if len(children) == 0 {
			return nil, false
		}
		return &Constraint{Kind: KindComposite, Op: op, Children: children}, true
	default:
		return nil, false
	}
}

// ConstraintOf extracts and parses the constraint carried by an
// affordance, if any.
func ConstraintOf(op linkeddata.Operation) (*Constraint, bool) {
	return ParseConstraint(op.Constraint)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
