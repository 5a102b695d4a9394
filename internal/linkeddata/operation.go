package linkeddata

// Operation is a Hydra affordance: a machine-readable description of an
// operation a client can perform on a resource.
type Operation struct {
	Method     string          `json:"method"`
	Title      string          `json:"hydra:title,omitempty"`
	Target     string          `json:"target,omitempty"`
	Returns    string          `json:"returns,omitempty"`
	Expects    []PropertyShape `json:"expects,omitempty"`
	Constraint map[string]any  `json:"constraint,omitempty"`
	ActionType string          `json:"@type,omitempty"`
}

// PropertyShape is a SHACL-lite constraint on a single input property.
// Only Property is mandatory; absent bounds are nil.
type PropertyShape struct {
	Property     string   `json:"property"`
	Required     bool     `json:"required,omitempty"`
	Datatype     string   `json:"datatype,omitempty"`
	MinLength    *int     `json:"minLength,omitempty"`
	MaxLength    *int     `json:"maxLength,omitempty"`
	MinInclusive *float64 `json:"minInclusive,omitempty"`
	MaxInclusive *float64 `json:"maxInclusive,omitempty"`
	Pattern      string   `json:"pattern,omitempty"`
	In           []any    `json:"in,omitempty"`
}

// Datatype names accepted by PropertyShape.Datatype.
const (
	DatatypeString   = "string"
	DatatypeInteger  = "integer"
	DatatypeDecimal  = "decimal"
	DatatypeBoolean  = "boolean"
	DatatypeDatetime = "datetime"
	DatatypeURI      = "uri"
)

// ParseOperation decodes an affordance from its JSON-LD form. Returns
// (zero, false) when v is not an object.
func ParseOperation(v any) (Operation, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Operation{}, false
	}
	n := Node(m)
	op := Operation{
		Method:     n.GetString("method"),
		Target:     n.GetString("target"),
		Returns:    n.GetString("returns"),
		ActionType: n.PrimaryType(),
	}
	if op.Method == "" {
		op.Method = n.GetString("hydra:method")
	}
	op.Title = n.GetString("hydra:title")
	if op.Title == "" {
		op.Title = n.GetString("title")
	}
	for _, e := range n.GetList("expects") {
		if shape, ok := parseShape(e); ok {
			op.Expects = append(op.Expects, shape)
		}
	}
	if c, ok := n.GetNode("constraint"); ok {
		op.Constraint = map[string]any(c)
	}
	return op, true
}

// Node renders the operation back to its JSON-LD form for embedding in a
// resource.
func (op Operation) Node() map[string]any {
	out := map[string]any{"method": op.Method}
	if op.ActionType != "" {
		out["@type"] = op.ActionType
	}
	if op.Title != "" {
		out["hydra:title"] = op.Title
	}
	if op.Target != "" {
		out["target"] = op.Target
	}
	if op.Returns != "" {
		out["returns"] = op.Returns
	}
	if len(op.Expects) > 0 {
		expects := make([]any, len(op.Expects))
		for i, s := range op.Expects {
			expects[i] = s.node()
		}
		out["expects"] = expects
	}
	if op.Constraint != nil {
		out["constraint"] = op.Constraint
	}
	return out
}

func parseShape(v any) (PropertyShape, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return PropertyShape{}, false
	}
	n := Node(m)
	s := PropertyShape{
		Property: n.GetString("property"),
		Datatype: n.GetString("datatype"),
		Pattern:  n.GetString("pattern"),
	}
	if b, ok := n["required"].(bool); ok {
		s.Required = b
	}
	if i, ok := n.GetInt("minLength"); ok {
		v := int(i)
		s.MinLength = &v
	}
	if i, ok := n.GetInt("maxLength"); ok {
		v := int(i)
		s.MaxLength = &v
	}
	if f, ok := n.GetFloat("minInclusive"); ok {
		v := f
		s.MinInclusive = &v
	}
	if f, ok := n.GetFloat("maxInclusive"); ok {
		v := f
		s.MaxInclusive = &v
	}
	if in, ok := n["in"].([]any); ok {
		s.In = in
	}
	return s, s.Property != ""
}

func (s PropertyShape) node() map[string]any {
	out := map[string]any{"property": s.Property}
	if s.Required {
		out["required"] = true
	}
	if s.Datatype != "" {
		out["datatype"] = s.Datatype
	}
	if s.MinLength != nil {
		out["minLength"] = *s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.MinInclusive != nil {
		out["minInclusive"] = *s.MinInclusive
	}
	if s.MaxInclusive != nil {
		out["maxInclusive"] = *s.MaxInclusive
	}
	if s.Pattern != "" {
		out["pattern"] = s.Pattern
	}
	if len(s.In) > 0 {
		out["in"] = s.In
	}
	return out
}
