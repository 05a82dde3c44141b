package expr

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/schema"
)

func blog(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewBuilder().Build(
		schema.Model("User", map[string]any{
			"name":      "String",
			"nick":      map[string]any{"type": "String", "required": false},
			"age":       "Number",
			"admin":     "Boolean",
			"born":      "Date",
			"posts":     map[string]any{"hasMany": "Post", "via": "author"},
			"address":   map[string]any{"nestOne": "Address", "required": false},
			"addresses": map[string]any{"nestMany": "Address", "required": false},
		}),
		schema.Model("Post", map[string]any{
			"title":  "String",
			"author": map[string]any{"hasOne": "User"},
		}),
		schema.Cluster("Address", map[string]any{"city": "String", "zip": "Number"}),
	)
	require.NoError(t, err)
	return reg
}

func attrOf(t *testing.T, reg *schema.Registry, model, name string) attr.Attribute {
	t.Helper()
	e, ok := reg.Entity(model)
	require.True(t, ok)
	a, ok := e.Attribute(name)
	require.True(t, ok)
	return a
}

func TestDefaultOrder(t *testing.T) {
	assert.Equal(t, []string{Has, Includes, Equality, Inequality, Comparison, In, Logical, Regex}, Default().Names())
}

func TestEqualityMatchesValueType(t *testing.T) {
	reg := blog(t)
	g := Default()
	testCases := []struct {
		attr  string
		value any
	}{
		{"name", "Geoff"},
		{"name", ""},
		{"age", 7},
		{"age", int64(7)},
		{"age", 7.5},
		{"admin", false},
		{"born", time.Now()},
	}
	for _, tc := range testCases {
		n, ok := g.Validate(tc.value, attrOf(t, reg, "User", tc.attr), reg)
		require.True(t, ok, "%s = %v", tc.attr, tc.value)
		assert.Equal(t, Equality, n.Type)
		assert.Equal(t, tc.value, n.Expr)
	}

	_, ok := g.Validate(7, attrOf(t, reg, "User", "name"), reg)
	assert.False(t, ok)
	_, ok = g.Validate("7", attrOf(t, reg, "User", "age"), reg)
	assert.False(t, ok)
	_, ok = g.Validate("2024-01-01", attrOf(t, reg, "User", "born"), reg)
	assert.False(t, ok)
}

func TestDateEqualityNeedsTime(t *testing.T) {
	reg := blog(t)
	born := attrOf(t, reg, "User", "born")

	n, ok := Default().Validate(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), born, reg)
	require.True(t, ok)
	assert.Equal(t, Equality, n.Type)

	// Dates have object value type, but plain objects are not dates.
	_, ok = Default().Validate(map[string]any{"year": 2024}, born, reg)
	assert.False(t, ok)
}

func TestEqualityNull(t *testing.T) {
	reg := blog(t)
	g := Default()

	n, ok := g.Validate(nil, attrOf(t, reg, "User", "nick"), reg)
	require.True(t, ok)
	assert.Equal(t, Equality, n.Type)

	_, ok = g.Validate(nil, attrOf(t, reg, "User", "name"), reg)
	assert.False(t, ok)
}

func TestInequality(t *testing.T) {
	reg := blog(t)
	g := Default()
	name := attrOf(t, reg, "User", "name")

	n, ok := g.Validate(map[string]any{"!": "Geoff"}, name, reg)
	require.True(t, ok)
	assert.Equal(t, Inequality, n.Type)
	assert.Equal(t, "Geoff", n.Operand)

	_, ok = g.Validate(map[string]any{"!": 3}, name, reg)
	assert.False(t, ok)
	_, ok = g.Validate(map[string]any{"!": "a", "x": "b"}, name, reg)
	assert.False(t, ok)
}

func TestComparison(t *testing.T) {
	reg := blog(t)
	g := Default()
	age := attrOf(t, reg, "User", "age")

	for _, op := range []string{OpLT, OpGT, OpLTE, OpGTE} {
		n, ok := g.Validate(map[string]any{op: 5}, age, reg)
		require.True(t, ok, op)
		assert.Equal(t, Comparison, n.Type)
		assert.Equal(t, op, n.Operator)
		assert.Equal(t, 5, n.Operand)
	}

	_, ok := g.Validate(map[string]any{"<": 5}, attrOf(t, reg, "User", "name"), reg)
	assert.False(t, ok, "non-numeric attribute")
	_, ok = g.Validate(map[string]any{"<": "5"}, age, reg)
	assert.False(t, ok, "non-numeric operand")
	_, ok = g.Validate(map[string]any{">": 1, "<": 5}, age, reg)
	assert.False(t, ok, "multi-key object")
	_, ok = g.Validate(map[string]any{"~": 5}, age, reg)
	assert.False(t, ok, "unknown operator")
}

func TestIn(t *testing.T) {
	reg := blog(t)
	g := Default()
	name := attrOf(t, reg, "User", "name")

	n, ok := g.Validate([]string{"a", "b"}, name, reg)
	require.True(t, ok)
	assert.Equal(t, In, n.Type)
	assert.Equal(t, []any{"a", "b"}, n.Operand)

	_, ok = g.Validate([]any{"a", 1}, name, reg)
	assert.False(t, ok)
}

func TestLogicalRequiresEveryBranch(t *testing.T) {
	reg := blog(t)
	g := Default()
	age := attrOf(t, reg, "User", "age")

	n, ok := g.Validate(map[string]any{"and": []any{
		map[string]any{">": 5},
		map[string]any{"<": 10},
	}}, age, reg)
	require.True(t, ok)
	assert.Equal(t, Logical, n.Type)
	assert.Equal(t, OpAnd, n.Operator)
	require.Len(t, n.Children, 2)
	assert.Equal(t, Comparison, n.Children[0].Type)
	assert.Equal(t, OpLT, n.Children[1].Operator)

	n, ok = g.Validate(map[string]any{"or": []any{1, map[string]any{"!": 2}}}, age, reg)
	require.True(t, ok)
	assert.Equal(t, OpOr, n.Operator)
	assert.Equal(t, Inequality, n.Children[1].Type)

	_, ok = g.Validate(map[string]any{"or": []any{1, "two"}}, age, reg)
	assert.False(t, ok, "one invalid branch rejects the node")
	_, ok = g.Validate(map[string]any{"and": 1}, age, reg)
	assert.False(t, ok)
	_, ok = g.Validate(map[string]any{"and": []any{}, "or": []any{}}, age, reg)
	assert.False(t, ok)
}

func TestRegex(t *testing.T) {
	reg := blog(t)
	g := Default()
	re := regexp.MustCompile("^Ge")

	n, ok := g.Validate(re, attrOf(t, reg, "User", "name"), reg)
	require.True(t, ok)
	assert.Equal(t, Regex, n.Type)
	assert.Same(t, re, n.Operand)

	_, ok = g.Validate(re, attrOf(t, reg, "User", "age"), reg)
	assert.False(t, ok)
}

func TestHasAndIncludes(t *testing.T) {
	reg := blog(t)
	g := Default()

	n, ok := g.Validate(map[string]any{"name": "Geoff", "age": map[string]any{">": 30}}, attrOf(t, reg, "Post", "author"), reg)
	require.True(t, ok)
	assert.Equal(t, Has, n.Type)
	assert.Equal(t, "User", n.Related.Name)
	assert.Equal(t, []string{"age", "name"}, n.FieldNames())
	assert.Equal(t, Comparison, n.Fields["age"].Type)

	n, ok = g.Validate(map[string]any{"city": "Oslo"}, attrOf(t, reg, "User", "address"), reg)
	require.True(t, ok)
	assert.Equal(t, Has, n.Type)

	n, ok = g.Validate(map[string]any{"zip": []any{1, 2}}, attrOf(t, reg, "User", "addresses"), reg)
	require.True(t, ok)
	assert.Equal(t, Includes, n.Type)
	assert.Equal(t, In, n.Fields["zip"].Type)

	n, ok = g.Validate(map[string]any{"title": regexp.MustCompile("x")}, attrOf(t, reg, "User", "posts"), reg)
	require.True(t, ok)
	assert.Equal(t, Includes, n.Type)

	_, ok = g.Validate(map[string]any{"title": "x"}, attrOf(t, reg, "Post", "author"), reg)
	assert.False(t, ok, "unknown key on related schema")
	_, ok = g.Validate(map[string]any{"name": 7}, attrOf(t, reg, "Post", "author"), reg)
	assert.False(t, ok, "invalid sub-expression")
	_, ok = g.Validate(map[string]any{"city": "Oslo"}, attrOf(t, reg, "User", "name"), reg)
	assert.False(t, ok, "non associative attribute")

	n, ok = g.Validate(map[string]any{"town": "Oslo"}, attrOf(t, reg, "User", "address"), reg)
	require.True(t, ok)
	assert.Equal(t, Equality, n.Type, "object equality when has rejects")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	g := Default()
	err := g.Register(Expression{Name: Equality, Match: matchEquality})
	assert.Equal(t, odmerr.CodeDuplicateGrammar, odmerr.CodeOf(err))
}

func TestPrecedenceThenRegistrationOrder(t *testing.T) {
	g := New()
	always := func(*Context, any) (Node, bool) { return Node{}, true }
	require.NoError(t, g.Register(Expression{Name: "a", Match: always}))
	require.NoError(t, g.Register(Expression{Name: "b", Match: always}))
	require.NoError(t, g.Register(Expression{Name: "c", Precedence: 2, Match: always}))
	require.NoError(t, g.Register(Expression{Name: "d", Match: always}))
	assert.Equal(t, []string{"c", "a", "b", "d"}, g.Names())

	reg := blog(t)
	n, ok := g.Validate("x", attrOf(t, reg, "User", "name"), reg)
	require.True(t, ok)
	assert.Equal(t, "c", n.Type, "first match wins")

	_, found := g.Lookup("b")
	assert.True(t, found)
}
