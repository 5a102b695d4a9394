package linkeddata

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Validation issue codes.
const (
	CodeMissingID        = "MISSING_ID"
	CodeMissingType      = "MISSING_TYPE"
	CodeInvalidIRI       = "INVALID_IRI"
	CodeMissingContext   = "MISSING_CONTEXT"
	CodeInvalidMethod    = "INVALID_METHOD"
	CodeMissingTitle     = "MISSING_TITLE"
	CodeMissingRequired  = "MISSING_REQUIRED_PROPERTY"
	CodeInvalidPropType  = "INVALID_PROPERTY_TYPE"
	CodeShaclViolation   = "SHACL_VIOLATION"
	CodeInvalidOperation = "INVALID_OPERATION"
)

// Issue is a single validation finding.
type Issue struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// ValidationResult separates fatal errors from advisory warnings.
type ValidationResult struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether the result carries no errors.
func (r ValidationResult) Valid() bool { return len(r.Errors) == 0 }

// Paths returns the property paths of all errors, for 422 bodies.
func (r ValidationResult) Paths() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.Path != "" {
			out = append(out, e.Path)
		}
	}
	return out
}

func (r *ValidationResult) fail(code, path, msg string) {
	r.Errors = append(r.Errors, Issue{Code: code, Path: path, Message: msg})
}

func (r *ValidationResult) warn(code, path, msg string) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Path: path, Message: msg})
}

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// ValidateResource checks the structural shape of a resource node.
// A missing @context is a warning only, since context can be inherited
// from the enclosing document.
func ValidateResource(n Node) ValidationResult {
	var r ValidationResult
	id, present := n["@id"]
	switch {
	case !present:
		r.fail(CodeMissingID, "@id", "resource has no @id")
	default:
		if _, ok := id.(string); !ok {
			r.fail(CodeInvalidIRI, "@id", "@id must be a string identifier")
		}
	}
	if len(TypesOf(n)) == 0 {
		r.fail(CodeMissingType, "@type", "resource declares no primary type")
	}
	if _, ok := n["@context"]; !ok {
		r.warn(CodeMissingContext, "@context", "no @context; inherited context assumed")
	}
	for i, raw := range n.GetList("operation") {
		op, ok := ParseOperation(raw)
		if !ok {
			r.fail(CodeInvalidOperation, "operation", "operation entry is not an object")
			continue
		}
		sub := ValidateOperation(op)
		for _, e := range sub.Errors {
			e.Path = "operation[" + strconv.Itoa(i) + "]." + e.Path
			r.Errors = append(r.Errors, e)
		}
	}
	return r
}

// ValidateOperation checks an affordance: the method must be a known HTTP
// verb and the title non-empty.
func ValidateOperation(op Operation) ValidationResult {
	var r ValidationResult
	if !allowedMethods[strings.ToUpper(op.Method)] {
		r.fail(CodeInvalidMethod, "method", "method must be one of GET, POST, PUT, PATCH, DELETE")
	}
	if strings.TrimSpace(op.Title) == "" {
		r.fail(CodeMissingTitle, "hydra:title", "operation requires a title")
	}
	return r
}

// ValidateInput checks a payload against an operation's property shapes.
// A missing optional field short-circuits the remaining checks for that
// shape; every other violation is collected so the caller can report the
// full path list at once.
func ValidateInput(payload map[string]any, shapes []PropertyShape) ValidationResult {
	var r ValidationResult
	for _, s := range shapes {
		value, present := payload[s.Property]
		if !present {
			if s.Required {
				r.fail(CodeMissingRequired, s.Property, "required property is missing")
			}
			continue
		}
		if s.Datatype != "" && !matchesDatatype(value, s.Datatype) {
			r.fail(CodeInvalidPropType, s.Property, "expected datatype "+s.Datatype)
			continue
		}
		checkShapeConstraints(&r, s, value)
	}
	return r
}

func checkShapeConstraints(r *ValidationResult, s PropertyShape, value any) {
	if str, ok := value.(string); ok {
		if s.MinLength != nil && len(str) < *s.MinLength {
			r.fail(CodeShaclViolation, s.Property, "shorter than minLength")
		}
		if s.MaxLength != nil && len(str) > *s.MaxLength {
			r.fail(CodeShaclViolation, s.Property, "longer than maxLength")
		}
		if s.Pattern != "" {
			re, err := regexp.Compile(s.Pattern)
			if err != nil || !re.MatchString(str) {
				r.fail(CodeShaclViolation, s.Property, "does not match pattern")
			}
		}
	}
	if num, ok := asNumber(value); ok {
		if s.MinInclusive != nil && num < *s.MinInclusive {
			r.fail(CodeShaclViolation, s.Property, "below minInclusive")
		}
		if s.MaxInclusive != nil && num > *s.MaxInclusive {
			r.fail(CodeShaclViolation, s.Property, "above maxInclusive")
		}
	}
	if len(s.In) > 0 && !inSet(value, s.In) {
		r.fail(CodeShaclViolation, s.Property, "value not in the allowed set")
	}
}

func matchesDatatype(v any, datatype string) bool {
	switch datatype {
	case DatatypeString:
		_, ok := v.(string)
		return ok
	case DatatypeInteger:
		switch n := v.(type) {
		case float64:
			return n == float64(int64(n))
		case string:
			_, err := strconv.ParseInt(n, 10, 64)
			return err == nil
		}
		return false
	case DatatypeDecimal:
		_, ok := asNumber(v)
		return ok
	case DatatypeBoolean:
		switch n := v.(type) {
		case bool:
			return true
		case string:
			return n == "true" || n == "false"
		}
		return false
	case DatatypeDatetime:
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	case DatatypeURI:
		s, ok := v.(string)
		return ok && KindOfID(s) != KindUnknown
	default:
		return true
	}
}

func asNumber(v any) (float64, bool) {
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

func inSet(v any, set []any) bool {
	for _, candidate := range set {
		if candidate == v {
			return true
		}
		// "100" and 100 compare equal, matching the numeric coercion used
		// everywhere else in the node model.
		a, aok := asNumber(v)
		b, bok := asNumber(candidate)
		if aok && bok && a == b {
			return true
		}
	}
	return false
}
