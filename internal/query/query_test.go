package query

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/odm/internal/expr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/schema"
)

func users(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewBuilder().Build(
		schema.Model("User", map[string]any{
			"name": "String",
			"age":  map[string]any{"type": "Number", "required": false},
		}),
		schema.Cluster("Address", map[string]any{"city": "String"}),
	)
	require.NoError(t, err)
	return reg
}

func TestScenarioNameFilter(t *testing.T) {
	reg := users(t)
	g := expr.Default()

	q := MustNew("User", map[string]any{"name": 7})
	err := q.Process(reg, g)
	require.Error(t, err)
	assert.Equal(t, odmerr.CodeUnrecognizedExpr, odmerr.CodeOf(err))
	var e *odmerr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "User", e.Model)
	assert.Equal(t, "name", e.Attribute)
	assert.Contains(t, e.Message, "7")
	assert.Nil(t, q.Processed())

	q = MustNew("User", map[string]any{"name": "Geoff"})
	require.NoError(t, q.Process(reg, g))
	node := q.Processed()["name"]
	assert.Equal(t, expr.Equality, node.Type)
	assert.Equal(t, "Geoff", node.Expr)
}

func TestIDShorthands(t *testing.T) {
	reg := users(t)
	g := expr.Default()

	q := MustNew("User", "u1")
	require.NoError(t, q.Process(reg, g))
	assert.Equal(t, expr.Equality, q.Processed()["id"].Type)
	assert.Equal(t, map[string]any{"id": "u1"}, q.Filter())

	q = MustNew("User", []string{"u1", "u2"})
	require.NoError(t, q.Process(reg, g))
	assert.Equal(t, expr.In, q.Processed()["id"].Type)

	q = MustNew("User", 42)
	err := q.Process(reg, g)
	assert.Equal(t, odmerr.CodeUnrecognizedExpr, odmerr.CodeOf(err), "numeric id against a string key")

	_, err = New("User", []any{"u1", 2})
	assert.Equal(t, odmerr.CodeInvalidIDList, odmerr.CodeOf(err))

	_, err = New("User", true)
	assert.Equal(t, odmerr.CodeInvalidShorthand, odmerr.CodeOf(err))
}

func TestIDShorthandConflictsWithWhere(t *testing.T) {
	reg := users(t)
	g := expr.Default()

	q := MustNew("User", "u1").Where(map[string]any{"id": "u2"})
	err := q.Process(reg, g)
	require.Error(t, err)
	assert.Equal(t, odmerr.CodeInvalidOption, odmerr.CodeOf(err))
	assert.Nil(t, q.Processed())

	q = MustNew("User", []string{"u1", "u2"}).Where(map[string]any{"id": map[string]any{"!": "u1"}})
	assert.Equal(t, odmerr.CodeInvalidOption, odmerr.CodeOf(q.Process(reg, g)))

	q = MustNew("User", "u1").Where(map[string]any{"name": "Geoff"})
	require.NoError(t, q.Process(reg, g))
	assert.Equal(t, map[string]any{"id": "u1", "name": "Geoff"}, q.Filter())
}

func TestReservedKeysComeFromOptions(t *testing.T) {
	reg := users(t)

	q := MustNew("User", map[string]any{"name": "Geoff"}, Options{Sort: "-age", Limit: 5, Pluck: []string{"name"}})
	require.NoError(t, q.Process(reg, expr.Default()))
	assert.Equal(t, []SortField{{Field: "age", Desc: true}}, q.SortFields())
	assert.Equal(t, 5, q.LimitValue())
	assert.Equal(t, []string{"name"}, q.PluckFields())

	q = MustNew("User", map[string]any{"limit": 3})
	err := q.Process(reg, expr.Default())
	assert.Equal(t, odmerr.CodeUnknownAttribute, odmerr.CodeOf(err), "limit inside a filter is a field")
}

func TestFullObjectShorthand(t *testing.T) {
	q := MustNew("User", map[string]any{
		"where": map[string]any{"age": map[string]any{">": 30}},
		"sort":  map[string]any{"name": "asc", "age": -1},
		"limit": 10.0,
		"pluck": []any{"name"},
	})
	require.NoError(t, q.Process(users(t), expr.Default()))
	assert.Equal(t, expr.Comparison, q.Processed()["age"].Type)
	assert.Equal(t, []SortField{{Field: "age", Desc: true}, {Field: "name"}}, q.SortFields())
	assert.Equal(t, 10, q.LimitValue())
	assert.Equal(t, []string{"name"}, q.PluckFields())

	_, err := New("User", map[string]any{"where": map[string]any{}, "limit": "ten"})
	assert.Equal(t, odmerr.CodeInvalidOption, odmerr.CodeOf(err))
}

func TestChainMethods(t *testing.T) {
	q := MustNew("User", nil).
		Where(map[string]any{"name": "Geoff"}).
		Where(map[string]any{"age": map[string]any{"<": 40}}).
		Sort([]string{"name", "age desc"}).
		Limit(2).
		Pluck("name", "age")
	require.NoError(t, q.Err())
	require.NoError(t, q.Process(users(t), expr.Default()))
	assert.Len(t, q.Processed(), 2)
	assert.Equal(t, []SortField{{Field: "name"}, {Field: "age", Desc: true}}, q.SortFields())

	q.Where(map[string]any{"name": "Ada"})
	assert.Equal(t, odmerr.CodeAlreadyProcessed, odmerr.CodeOf(q.Err()))
	assert.Equal(t, "Geoff", q.Filter()["name"])

	_, err := New("User", nil, Options{Limit: -1})
	assert.Equal(t, odmerr.CodeInvalidOption, odmerr.CodeOf(err))

	bad := MustNew("User", nil).Sort("name sideways")
	assert.Equal(t, odmerr.CodeInvalidOption, odmerr.CodeOf(bad.Err()))
}

func TestProcessRunsOnce(t *testing.T) {
	reg := users(t)
	q := MustNew("User", map[string]any{"name": "Geoff"})
	require.NoError(t, q.Process(reg, expr.Default()))
	assert.Equal(t, odmerr.CodeAlreadyProcessed, odmerr.CodeOf(q.Process(reg, expr.Default())))
	assert.True(t, q.Done())
}

func TestProcessErrors(t *testing.T) {
	reg := users(t)
	g := expr.Default()

	err := MustNew("Ghost", nil).Process(reg, g)
	assert.Equal(t, odmerr.CodeUnknownModel, odmerr.CodeOf(err))

	err = MustNew("Address", nil).Process(reg, g)
	assert.Equal(t, odmerr.CodeUnknownModel, odmerr.CodeOf(err), "clusters are not queryable")

	err = MustNew("User", map[string]any{
		"email": "x",
		"name":  regexp.MustCompile("^G"),
		"age":   "old",
	}, Options{Sort: "height", Pluck: []string{"weight"}}).Process(reg, g)
	var comp *odmerr.Composite
	require.True(t, errors.As(err, &comp))
	assert.Len(t, comp.Errors, 4)
	assert.Equal(t, []odmerr.Code{odmerr.CodeUnknownAttribute, odmerr.CodeUnrecognizedExpr}, comp.Codes())
}

func TestNodesBeforeProcess(t *testing.T) {
	q := MustNew("User", nil)
	_, _, err := q.Nodes()
	assert.Equal(t, odmerr.CodeNotProcessed, odmerr.CodeOf(err))

	require.NoError(t, q.Process(users(t), expr.Default()))
	keys, nodes, err := q.Nodes()
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, nodes)
}

func TestFingerprint(t *testing.T) {
	a := MustNew("User", map[string]any{"name": "Geoff", "age": 7}, Options{Limit: 2})
	b := MustNew("User", map[string]any{"age": 7.0, "name": "Geoff"}, Options{Limit: 2})
	c := MustNew("User", map[string]any{"name": "Geoff", "age": 8}, Options{Limit: 2})

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	fc, err := c.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.NotEqual(t, fa, fc)

	id1, err := MustNew("User", "u1").Fingerprint()
	require.NoError(t, err)
	id2, err := MustNew("User", "u2").Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}
