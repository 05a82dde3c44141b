// Package memory evaluates typed filter trees directly against in-memory
// records and provides a map-backed Store.
package memory

import (
	"regexp"

	"github.com/roach88/odm/internal/adapter"
	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/expr"
	"github.com/roach88/odm/internal/query"
	"github.com/roach88/odm/internal/value"
)

// Name is the registered adapter name.
const Name = "memory"

// Predicate evaluates one node against a value.
type Predicate func(ev *Evaluator, n expr.Node, v any) (bool, error)

// Resolver loads the records a relation reference points at.
type Resolver interface {
	Resolve(ref attr.Ref) ([]map[string]any, error)
}

// Evaluator dispatches typed nodes to predicates.
type Evaluator struct {
	procs    *adapter.Processors[Predicate]
	resolver Resolver
}

// NewEvaluator returns an evaluator with the builtin predicates. r may be
// nil, in which case relations to other models never match.
func NewEvaluator(r Resolver) *Evaluator {
	procs := adapter.NewProcessors[Predicate](Name).
		Register(expr.Equality, evalEquality).
		Register(expr.Inequality, evalInequality).
		Register(expr.Comparison, evalComparison).
		Register(expr.In, evalIn).
		Register(expr.Logical, evalLogical).
		Register(expr.Regex, evalRegex).
		Register(expr.Has, evalHas).
		Register(expr.Includes, evalIncludes)
	return &Evaluator{procs: procs, resolver: r}
}

// Processors returns the evaluator's registry.
func (ev *Evaluator) Processors() *adapter.Processors[Predicate] {
	return ev.procs
}

// WithResolver returns an evaluator sharing ev's predicates.
func (ev *Evaluator) WithResolver(r Resolver) *Evaluator {
	return &Evaluator{procs: ev.procs, resolver: r}
}

// EvaluateExpr reports whether v satisfies n.
func (ev *Evaluator) EvaluateExpr(n expr.Node, v any) (bool, error) {
	fn, err := ev.procs.Lookup(n.Type)
	if err != nil {
		return false, err
	}
	return fn(ev, n, v)
}

// Match reports whether rec satisfies every processed node of q.
func (ev *Evaluator) Match(q *query.Query, rec map[string]any) (bool, error) {
	keys, nodes, err := q.Nodes()
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		n := nodes[key]
		ok, err := ev.EvaluateExpr(n, fieldValue(q.Entity(), n.Attr, rec))
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// fieldValue is the value a node over a is evaluated against. HasMany
// stores nothing, so it evaluates against the reference to its records.
func fieldValue(owner *attr.Entity, a attr.Attribute, rec map[string]any) any {
	if a.Kind() == attr.KindHasMany {
		rel := a.(attr.Relational)
		pk := attr.DefaultPrimaryKey
		if owner != nil && owner.PrimaryKey != "" {
			pk = owner.PrimaryKey
		}
		return attr.Ref{Model: rel.Target(), Field: a.Options().String("via"), Value: rec[pk], Many: true}
	}
	return rec[a.Name()]
}

func evalEquality(_ *Evaluator, n expr.Node, v any) (bool, error) {
	if n.Expr == nil {
		return v == nil, nil
	}
	return value.Equal(n.Expr, v), nil
}

func evalInequality(_ *Evaluator, n expr.Node, v any) (bool, error) {
	return !value.Equal(n.Operand, v), nil
}

func evalComparison(_ *Evaluator, n expr.Node, v any) (bool, error) {
	c, ok := value.Compare(v, n.Operand)
	if !ok {
		return false, nil
	}
	switch n.Operator {
	case expr.OpLT:
		return c < 0, nil
	case expr.OpGT:
		return c > 0, nil
	case expr.OpLTE:
		return c <= 0, nil
	case expr.OpGTE:
		return c >= 0, nil
	}
	return false, nil
}

func evalIn(_ *Evaluator, n expr.Node, v any) (bool, error) {
	items, _ := n.Operand.([]any)
	for _, it := range items {
		if value.Equal(it, v) {
			return true, nil
		}
	}
	return false, nil
}

func evalLogical(ev *Evaluator, n expr.Node, v any) (bool, error) {
	all := n.Operator == expr.OpAnd
	for _, child := range n.Children {
		ok, err := ev.EvaluateExpr(child, v)
		if err != nil {
			return false, err
		}
		if ok != all {
			return ok, nil
		}
	}
	return all, nil
}

func evalRegex(_ *Evaluator, n expr.Node, v any) (bool, error) {
	re, ok := n.Operand.(*regexp.Regexp)
	s, isStr := v.(string)
	if !ok || !isStr {
		return false, nil
	}
	return re.MatchString(s), nil
}

// evalHas matches an embedded object, or the record a foreign key points at.
func evalHas(ev *Evaluator, n expr.Node, v any) (bool, error) {
	if m, ok := value.AsMap(v); ok {
		return ev.matchFields(n, m)
	}
	if v == nil || n.Related == nil {
		return false, nil
	}
	recs, err := ev.resolve(attr.Ref{Model: n.Related.Name, Field: primaryKey(n.Related), Value: v})
	if err != nil || len(recs) == 0 {
		return false, err
	}
	return ev.matchFields(n, recs[0])
}

// evalIncludes matches when at least one embedded or related record does.
func evalIncludes(ev *Evaluator, n expr.Node, v any) (bool, error) {
	var candidates []map[string]any
	switch x := v.(type) {
	case attr.Ref:
		recs, err := ev.resolve(x)
		if err != nil {
			return false, err
		}
		candidates = recs
	default:
		items, ok := value.AsArray(v)
		if !ok {
			return false, nil
		}
		for _, it := range items {
			if m, ok := value.AsMap(it); ok {
				candidates = append(candidates, m)
			}
		}
	}
	for _, m := range candidates {
		ok, err := ev.matchFields(n, m)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (ev *Evaluator) matchFields(n expr.Node, m map[string]any) (bool, error) {
	for _, key := range n.FieldNames() {
		sub := n.Fields[key]
		ok, err := ev.EvaluateExpr(sub, fieldValue(n.Related, sub.Attr, m))
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (ev *Evaluator) resolve(ref attr.Ref) ([]map[string]any, error) {
	if ev.resolver == nil || ref.Empty() {
		return nil, nil
	}
	return ev.resolver.Resolve(ref)
}

func primaryKey(e *attr.Entity) string {
	if e.PrimaryKey != "" {
		return e.PrimaryKey
	}
	return attr.DefaultPrimaryKey
}
