package linkeddata

import (
	"encoding/json"
	"strconv"
)

// Node is a JSON-LD resource node: a labeled JSON tree whose envelope keys
// ("@id", "@type", "@context") carry identity and typing, with arbitrary
// further properties. The zero value is not usable; construct with NewNode
// or decode from JSON.
type Node map[string]any

// NewNode builds a node with the canonical context, an id, and one or more
// declared types. types[0] is the primary type.
func NewNode(id string, types ...string) Node {
	n := Node{
		"@context": ContextURL,
		"@id":      id,
	}
	if len(types) == 1 {
		n["@type"] = types[0]
	} else if len(types) > 1 {
		n["@type"] = toAnySlice(types)
	}
	return n
}

// ID returns the node's "@id", or "" when absent or not a string.
func (n Node) ID() string {
	s, _ := n["@id"].(string)
	return s
}

// Types returns the ordered declared type set. A scalar "@type" yields a
// single-element slice; absence yields nil.
func (n Node) Types() []string {
	return TypesOf(n)
}

// PrimaryType returns types[0] or "".
func (n Node) PrimaryType() string {
	if t := n.Types(); len(t) > 0 {
		return t[0]
	}
	return ""
}

// GetString reads a string property. Numeric values are formatted, so a
// price stored as 100 and as "100" read the same.
func (n Node) GetString(key string) string {
	switch v := n[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// GetInt reads an integer property, accepting JSON numbers and numeric
// strings. Returns (0, false) when the property is absent or non-numeric.
func (n Node) GetInt(key string) (int64, bool) {
	switch v := n[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// GetFloat reads a numeric property. Returns (0, false) when absent or
// non-numeric.
func (n Node) GetFloat(key string) (float64, bool) {
	switch v := n[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// GetNode reads an embedded object property as a Node.
func (n Node) GetNode(key string) (Node, bool) {
	m, ok := n[key].(map[string]any)
	if !ok {
		return nil, false
	}
	return Node(m), true
}

// GetList reads a property as a slice. A scalar value is promoted to a
// single-element slice so callers can treat member/operation uniformly.
func (n Node) GetList(key string) []any {
	switch v := n[key].(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// Set assigns a property and returns the node for chaining during seeding.
func (n Node) Set(key string, value any) Node {
	n[key] = value
	return n
}

// Clone deep-copies the node through a JSON round trip. Stores return
// clones so callers can never mutate shared state.
func (n Node) Clone() Node {
	raw, err := json.Marshal(n)
	if err != nil {
		// Nodes come from JSON decoding or NewNode; marshal cannot fail
		// for those shapes.
		return Node{}
	}
	var out Node
	if err := json.Unmarshal(raw, &out); err != nil {
		return Node{}
	}
	return out
}

// Members returns the node's collection members ("member", with the
// "hydra:member" spelling accepted) as nodes.
func (n Node) Members() []Node {
	raw := n.GetList("member")
	if raw == nil {
		raw = n.GetList("hydra:member")
	}
	out := make([]Node, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, Node(m))
		}
	}
	return out
}

// TypesOf normalizes a type attribute that may be a single string or a
// list into an ordered sequence of type names.
func TypesOf(n Node) []string {
	switch v := n["@type"].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

// IsOfType reports whether the node declares typ anywhere in its type set.
func IsOfType(n Node, typ string) bool {
	for _, t := range TypesOf(n) {
		if t == typ {
			return true
		}
	}
	return false
}

// OperationsOf returns the node's affordances. It inspects the direct
// "operation" attribute and folds in operations nested under
// member[*].operation so a collection's affordances are discoverable
// through the collection itself.
func OperationsOf(n Node) []Operation {
	var ops []Operation
	collect := func(owner Node) {
		raw := owner.GetList("operation")
		if raw == nil {
			raw = owner.GetList("hydra:operation")
		}
		for _, v := range raw {
			if op, ok := ParseOperation(v); ok {
				if op.Target == "" {
					op.Target = owner.ID()
				}
				ops = append(ops, op)
			}
		}
	}
	collect(n)
	for _, m := range n.Members() {
		collect(m)
	}
	return ops
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
