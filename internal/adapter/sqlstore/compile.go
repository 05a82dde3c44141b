package sqlstore

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/odm/internal/adapter"
	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/expr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/query"
	"github.com/roach88/odm/internal/value"
)

// Func compiles a node over the JSON path of its attribute into a WHERE
// fragment and its parameters.
type Func func(c *SQLCompiler, path string, n expr.Node) (string, []any, error)

// SQLCompiler compiles processed queries to parameterized SQL over the
// documents table.
//
// Every query has an ORDER BY ending in "id ASC COLLATE BINARY" so results
// are deterministic. Values and JSON paths are always bound as parameters.
type SQLCompiler struct {
	procs *adapter.Processors[Func]
}

// NewSQLCompiler returns a compiler for the scalar expressions and has.
// includes only applies to array attributes, which the backend does not
// store, so it has no compiler.
func NewSQLCompiler() *SQLCompiler {
	procs := adapter.NewProcessors[Func](Name).
		Register(expr.Equality, compileEquality).
		Register(expr.Inequality, compileInequality).
		Register(expr.Comparison, compileComparison).
		Register(expr.In, compileIn).
		Register(expr.Logical, compileLogical).
		Register(expr.Regex, compileRegex).
		Register(expr.Has, compileHas)
	return &SQLCompiler{procs: procs}
}

// Processors returns the compiler's registry.
func (c *SQLCompiler) Processors() *adapter.Processors[Func] { return c.procs }

// EvaluateExpr compiles n over path.
func (c *SQLCompiler) EvaluateExpr(path string, n expr.Node) (string, []any, error) {
	fn, err := c.procs.Lookup(n.Type)
	if err != nil {
		return "", nil, err
	}
	return fn(c, path, n)
}

// Compile converts a processed query to SQL selecting the doc column.
// Returns (sql, params, error).
func (c *SQLCompiler) Compile(q *query.Query) (string, []any, error) {
	keys, nodes, err := q.Nodes()
	if err != nil {
		return "", nil, err
	}

	where := []string{"model = ?"}
	params := []any{q.Model()}
	for _, key := range keys {
		frag, p, err := c.EvaluateExpr(jsonPath(key), nodes[key])
		if err != nil {
			return "", nil, err
		}
		where = append(where, frag)
		params = append(params, p...)
	}

	var order []string
	for _, f := range q.SortFields() {
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		order = append(order, "json_extract(doc, ?) "+dir)
		params = append(params, jsonPath(f.Field))
	}
	order = append(order, c.stableOrderKey())

	sql := fmt.Sprintf("SELECT doc FROM documents WHERE %s ORDER BY %s",
		strings.Join(where, " AND "),
		strings.Join(order, ", "))
	if n := q.LimitValue(); n > 0 {
		sql += " LIMIT ?"
		params = append(params, n)
	}
	return sql, params, nil
}

// stableOrderKey is the tiebreaker every query ends with.
func (c *SQLCompiler) stableOrderKey() string {
	return "id ASC COLLATE BINARY"
}

func jsonPath(field string) string {
	return childPath("$", field)
}

func childPath(base, field string) string {
	return fmt.Sprintf("%s.%q", base, field)
}

const extract = "json_extract(doc, ?)"

// param converts a filter value to the form json_extract yields for it.
// Objects and arrays compare as canonical JSON text, times as RFC 3339.
func param(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool:
		return x, nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	}
	if value.TypeOf(v) == value.TypeNumber {
		f, _ := value.ToFloat(v)
		return f, nil
	}
	b, err := value.MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func compileEquality(_ *SQLCompiler, path string, n expr.Node) (string, []any, error) {
	if n.Expr == nil {
		return extract + " IS NULL", []any{path}, nil
	}
	p, err := param(n.Expr)
	if err != nil {
		return "", nil, err
	}
	return extract + " = ?", []any{path, p}, nil
}

// compileInequality uses IS NOT so that missing values differ from
// everything.
func compileInequality(_ *SQLCompiler, path string, n expr.Node) (string, []any, error) {
	p, err := param(n.Operand)
	if err != nil {
		return "", nil, err
	}
	return extract + " IS NOT ?", []any{path, p}, nil
}

func compileComparison(_ *SQLCompiler, path string, n expr.Node) (string, []any, error) {
	switch n.Operator {
	case expr.OpLT, expr.OpGT, expr.OpLTE, expr.OpGTE:
	default:
		return "", nil, odmerr.New(odmerr.CodeUnsupportedExpr, "%s: unknown comparison %q", Name, n.Operator)
	}
	p, err := param(n.Operand)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s %s ?", extract, n.Operator), []any{path, p}, nil
}

func compileIn(_ *SQLCompiler, path string, n expr.Node) (string, []any, error) {
	items, _ := value.AsArray(n.Operand)
	if len(items) == 0 {
		return "0", nil, nil
	}
	params := []any{path}
	marks := make([]string, len(items))
	for i, it := range items {
		p, err := param(it)
		if err != nil {
			return "", nil, err
		}
		params = append(params, p)
		marks[i] = "?"
	}
	return fmt.Sprintf("%s IN (%s)", extract, strings.Join(marks, ", ")), params, nil
}

func compileLogical(c *SQLCompiler, path string, n expr.Node) (string, []any, error) {
	if len(n.Children) == 0 {
		if n.Operator == expr.OpAnd {
			return "1 = 1", nil, nil
		}
		return "0", nil, nil
	}
	var parts []string
	var params []any
	for _, child := range n.Children {
		frag, p, err := c.EvaluateExpr(path, child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, frag)
		params = append(params, p...)
	}
	return "(" + strings.Join(parts, " "+strings.ToUpper(n.Operator)+" ") + ")", params, nil
}

func compileRegex(_ *SQLCompiler, path string, n expr.Node) (string, []any, error) {
	re := n.Operand.(*regexp.Regexp)
	return extract + " REGEXP ?", []any{path, re.String()}, nil
}

// compileHas matches the fields of a NestOne through longer paths into the
// same document. For a HasOne the fields are matched against the target's
// documents and the foreign key must be among their ids.
func compileHas(c *SQLCompiler, path string, n expr.Node) (string, []any, error) {
	if _, ok := n.Attr.(attr.Relational); ok {
		where, params, err := c.fields("$", n)
		if err != nil {
			return "", nil, err
		}
		sub := fmt.Sprintf("%s IN (SELECT id FROM documents WHERE model = ? AND %s)", extract, where)
		return sub, append([]any{path, n.Related.Name}, params...), nil
	}
	return c.fields(path, n)
}

// fields compiles every field node of a has below base, joined with AND.
func (c *SQLCompiler) fields(base string, n expr.Node) (string, []any, error) {
	var parts []string
	var params []any
	for _, f := range n.FieldNames() {
		frag, p, err := c.EvaluateExpr(childPath(base, f), n.Fields[f])
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, frag)
		params = append(params, p...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

// supported reports whether the backend can store a. Relations and
// clusters that span several documents or arrays of them are not.
func supported(a attr.Attribute) bool {
	switch a.Kind() {
	case attr.KindHasMany, attr.KindNestMany, attr.KindPolyMany, attr.KindPolymorphic:
		return false
	}
	return true
}
