package governance

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// Policy evaluation errors. Both map to 403 at the HTTP surface.
var (
	ErrProhibited      = errors.New("governance: prohibited by policy")
	ErrObligationUnmet = errors.New("governance: policy obligation not satisfied")
)

// Policy is a declarative rights document with permission, prohibition,
// and obligation clauses. Evaluation order: a matching prohibition is
// fatal, an unsatisfied applicable obligation is fatal, otherwise permit.
type Policy struct {
	Permissions  []Rule `json:"permission,omitempty"`
	Prohibitions []Rule `json:"prohibition,omitempty"`
	Obligations  []Rule `json:"obligation,omitempty"`
}

// Rule is one clause: target, action, and operator-value constraints over
// the request context's attributes.
type Rule struct {
	Target      string           `json:"target,omitempty"`
	Action      string           `json:"action,omitempty"`
	Constraints []RuleConstraint `json:"constraint,omitempty"`
}

// RuleConstraint compares a request attribute against a literal.
type RuleConstraint struct {
	LeftOperand  string `json:"leftOperand"`
	Operator     string `json:"operator"` // eq neq lt lteq gt gteq isAnyOf
	RightOperand any    `json:"rightOperand"`
}

// RequestContext is the evaluation input.
type RequestContext struct {
	Target     string
	Action     string
	Attributes map[string]any
}

// Evaluate applies every applicable clause to the request context.
func (p *Policy) Evaluate(req RequestContext) error {
	for _, rule := range p.Prohibitions {
		if rule.applies(req) && rule.constraintsHold(req) {
			return fmt.Errorf("%w: action %q on %q", ErrProhibited, req.Action, req.Target)
		}
	}
	for _, rule := range p.Obligations {
		if rule.applies(req) && !rule.constraintsHold(req) {
			return fmt.Errorf("%w: action %q on %q", ErrObligationUnmet, req.Action, req.Target)
		}
	}
	return nil
}

func (r Rule) applies(req RequestContext) bool {
	if r.Target != "" && r.Target != req.Target {
		return false
	}
	if r.Action != "" && r.Action != req.Action {
		return false
	}
	return true
}

func (r Rule) constraintsHold(req RequestContext) bool {
	for _, c := range r.Constraints {
		if !c.holds(req) {
			return false
		}
	}
	return true
}

func (c RuleConstraint) holds(req RequestContext) bool {
	actual, ok := req.Attributes[c.LeftOperand]
	if !ok {
		return false
	}
	switch c.Operator {
	case "eq", "":
		return looseEqual(actual, c.RightOperand)
	case "neq":
		return !looseEqual(actual, c.RightOperand)
	case "lt", "lteq", "gt", "gteq":
		a, aok := toFloat(actual)
		b, bok := toFloat(c.RightOperand)
		if !aok || !bok {
			return false
		}
		switch c.Operator {
		case "lt":
			return a < b
		case "lteq":
			return a <= b
		case "gt":
			return a > b
		default:
			return a >= b
		}
	case "isAnyOf":
		set, ok := c.RightOperand.([]any)
		if !ok {
			return false
		}
		for _, candidate := range set {
			if looseEqual(actual, candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// parsePolicy decodes an odrl:Policy node into the evaluable form.
func parsePolicy(n linkeddata.Node) *Policy {
	return &Policy{
		Permissions:  parseRules(n.GetList("permission")),
		Prohibitions: parseRules(n.GetList("prohibition")),
		Obligations:  parseRules(n.GetList("obligation")),
	}
}

func parseRules(raw []any) []Rule {
	var out []Rule
	for _, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		rn := linkeddata.Node(m)
		rule := Rule{Target: rn.GetString("target"), Action: rn.GetString("action")}
		for _, cv := range rn.GetList("constraint") {
			cm, ok := cv.(map[string]any)
			if !ok {
				continue
			}
			cn := linkeddata.Node(cm)
			rule.Constraints = append(rule.Constraints, RuleConstraint{
				LeftOperand:  cn.GetString("leftOperand"),
				Operator:     cn.GetString("operator"),
				RightOperand: cm["rightOperand"],
			})
		}
		out = append(out, rule)
	}
	return out
}
