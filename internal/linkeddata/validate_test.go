package linkeddata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateResourceMissingIDAndType(t *testing.T) {
	res := ValidateResource(Node{"schema:name": "orphan"})
	require.False(t, res.Valid())

	codes := make(map[string]bool)
	for _, e := range res.Errors {
		codes[e.Code] = true
	}
	assert.True(t, codes[CodeMissingID])
	assert.True(t, codes[CodeMissingType])
}

func TestValidateResourceContextIsOnlyAWarning(t *testing.T) {
	res := ValidateResource(Node{
		"@id":   "https://example.com/x",
		"@type": "schema:Thing",
	})
	assert.True(t, res.Valid())
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, CodeMissingContext, res.Warnings[0].Code)
}

func TestValidateResourceChecksNestedOperations(t *testing.T) {
	n := Node{
		"@context": ContextURL,
		"@id":      "https://example.com/x",
		"@type":    "schema:Product",
		"operation": []any{
			map[string]any{"method": "TELEPORT", "hydra:title": "nope"},
		},
	}
	res := ValidateResource(n)
	require.False(t, res.Valid())
	assert.Equal(t, CodeInvalidMethod, res.Errors[0].Code)
	assert.Contains(t, res.Errors[0].Path, "operation[0]")
}

func TestValidateInputRequiredAndTypes(t *testing.T) {
	shapes := []PropertyShape{
		{Property: "schema:name", Required: true, Datatype: DatatypeString},
		{Property: "schema:price", Required: true, Datatype: DatatypeDecimal},
		{Property: "note", Datatype: DatatypeString},
	}
	res := ValidateInput(map[string]any{"schema:price": "not-a-number"}, shapes)
	require.False(t, res.Valid())
	assert.ElementsMatch(t, []string{"schema:name", "schema:price"}, res.Paths())
}

func TestValidateInputMissingOptionalShortCircuits(t *testing.T) {
	minLen := 5
	shapes := []PropertyShape{
		{Property: "note", Datatype: DatatypeString, MinLength: &minLen},
	}
	res := ValidateInput(map[string]any{}, shapes)
	assert.True(t, res.Valid())
}

func TestValidateInputShaclBounds(t *testing.T) {
	minLen, maxLen := 3, 5
	minIncl, maxIncl := 1.0, 100.0
	shapes := []PropertyShape{
		{Property: "code", Datatype: DatatypeString, MinLength: &minLen, MaxLength: &maxLen, Pattern: "^[a-z]+$"},
		{Property: "qty", Datatype: DatatypeDecimal, MinInclusive: &minIncl, MaxInclusive: &maxIncl},
		{Property: "region", In: []any{"eu", "us"}},
	}

	ok := ValidateInput(map[string]any{"code": "abcd", "qty": 50.0, "region": "eu"}, shapes)
	assert.True(t, ok.Valid())

	bad := ValidateInput(map[string]any{"code": "ABCDEFG", "qty": 500.0, "region": "mars"}, shapes)
	require.False(t, bad.Valid())
	assert.Len(t, bad.Errors, 4) // maxLength, pattern, maxInclusive, in-set
	for _, e := range bad.Errors {
		assert.Equal(t, CodeShaclViolation, e.Code)
	}
}

func TestValidateInputNumericCoercionInSet(t *testing.T) {
	shapes := []PropertyShape{{Property: "n", In: []any{100.0}}}
	res := ValidateInput(map[string]any{"n": "100"}, shapes)
	assert.True(t, res.Valid())
}

func TestMatchesDatatype(t *testing.T) {
	cases := []struct {
		value    any
		datatype string
		want     bool
	}{
		{"hello", DatatypeString, true},
		{42.0, DatatypeString, false},
		{42.0, DatatypeInteger, true},
		{42.5, DatatypeInteger, false},
		{"42", DatatypeInteger, true},
		{"4.2", DatatypeDecimal, true},
		{true, DatatypeBoolean, true},
		{"true", DatatypeBoolean, true},
		{"2026-08-24T10:00:00Z", DatatypeDatetime, true},
		{"not-a-date", DatatypeDatetime, false},
		{"https://example.com/x", DatatypeURI, true},
		{"did:key:z6Mk", DatatypeURI, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchesDatatype(tc.value, tc.datatype),
			"value %v as %s", tc.value, tc.datatype)
	}
}
