package adapter

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/schema"
)

type stringsOnly struct{}

func (stringsOnly) Name() string { return "strings" }
func (stringsOnly) Supports(a attr.Attribute) bool {
	return a.Kind() == attr.KindString
}

func TestProcessors(t *testing.T) {
	p := NewProcessors[func() int]("test")
	p.Register("equality", func() int { return 1 }).
		Register("in", func() int { return 2 })

	fn, err := p.Lookup("in")
	require.NoError(t, err)
	assert.Equal(t, 2, fn())
	assert.Equal(t, []string{"equality", "in"}, p.Names())

	p.Register("in", func() int { return 3 })
	fn, _ = p.Lookup("in")
	assert.Equal(t, 3, fn())

	_, err = p.Lookup("has")
	assert.Equal(t, odmerr.CodeUnsupportedExpr, odmerr.CodeOf(err))
}

func TestFactoryRegistry(t *testing.T) {
	Register("strings-test", func(*slog.Logger) Adapter { return stringsOnly{} })

	a, err := New("strings-test", nil)
	require.NoError(t, err)
	assert.Equal(t, "strings", a.Name())
	assert.Contains(t, List(), "strings-test")

	_, err = New("nope", nil)
	var unknown *UnknownAdapterError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "nope", unknown.Name)
	assert.Contains(t, unknown.Available, "strings-test")
	assert.Contains(t, err.Error(), "adapter.unknown")
}

func TestCheckSchema(t *testing.T) {
	reg, err := schema.NewBuilder().Build(
		schema.Model("User", map[string]any{"name": "String", "age": "Number"}),
	)
	require.NoError(t, err)

	err = CheckSchema(stringsOnly{}, reg)
	require.Error(t, err)
	var e *odmerr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, odmerr.CodeUnsupportedAttribute, e.Code)
	assert.Equal(t, "age", e.Attribute)
}
