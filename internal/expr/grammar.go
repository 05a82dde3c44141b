package expr

import (
	"sort"
	"sync"

	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/odmerr"
)

// Node is a validated, typed filter expression.
type Node struct {
	// Type is the name of the expression that accepted the value.
	Type string

	// Expr is the raw filter value.
	Expr any

	// Attr is the attribute the node was validated against.
	Attr attr.Attribute

	// Operator is "!", "<", ">", "<=", ">=", "and" or "or" where applicable.
	Operator string

	// Operand is the inner value of inequality, comparison and regex nodes
	// and the element list of in nodes.
	Operand any

	// Children are the branches of a logical node.
	Children []Node

	// Fields are the per-key nodes of has and includes, validated against
	// Related.
	Fields map[string]Node

	// Related is the entity has and includes recurse into.
	Related *attr.Entity
}

// FieldNames returns the keys of Fields in sorted order.
func (n Node) FieldNames() []string {
	names := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Context is what a MatchFunc validates against.
type Context struct {
	Attr    attr.Attribute
	Catalog attr.Catalog
	Grammar *Grammar
}

// Validate recursively validates raw against a within the same grammar.
func (c *Context) Validate(raw any, a attr.Attribute) (Node, bool) {
	return c.Grammar.Validate(raw, a, c.Catalog)
}

// MatchFunc accepts or rejects raw for ctx.Attr. On success it returns the
// node with at least Type and Expr set.
type MatchFunc func(ctx *Context, raw any) (Node, bool)

// Expression is a named grammar rule.
type Expression struct {
	Name       string
	Precedence int
	Match      MatchFunc
}

// Grammar is an ordered set of expressions. Registration happens at
// startup; validation afterwards is safe for concurrent use.
type Grammar struct {
	mu    sync.RWMutex
	exprs []Expression
}

// New returns an empty grammar.
func New() *Grammar {
	return &Grammar{}
}

// Default returns a grammar holding the builtin expressions.
func Default() *Grammar {
	g := New()
	for _, e := range Builtins() {
		if err := g.Register(e); err != nil {
			panic(err)
		}
	}
	return g
}

// Register adds e. Expression names are unique within a grammar.
func (g *Grammar) Register(e Expression) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, have := range g.exprs {
		if have.Name == e.Name {
			return odmerr.New(odmerr.CodeDuplicateGrammar, "expression %q already registered", e.Name)
		}
	}
	g.exprs = append(g.exprs, e)
	sort.SliceStable(g.exprs, func(i, j int) bool {
		return g.exprs[i].Precedence > g.exprs[j].Precedence
	})
	return nil
}

// Names returns expression names in matching order.
func (g *Grammar) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.exprs))
	for i, e := range g.exprs {
		out[i] = e.Name
	}
	return out
}

// Lookup returns the named expression.
func (g *Grammar) Lookup(name string) (Expression, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.exprs {
		if e.Name == name {
			return e, true
		}
	}
	return Expression{}, false
}

// Validate returns the node of the first expression accepting raw for a.
func (g *Grammar) Validate(raw any, a attr.Attribute, cat attr.Catalog) (Node, bool) {
	g.mu.RLock()
	exprs := g.exprs
	g.mu.RUnlock()

	ctx := &Context{Attr: a, Catalog: cat, Grammar: g}
	for _, e := range exprs {
		n, ok := e.Match(ctx, raw)
		if !ok {
			continue
		}
		n.Type = e.Name
		n.Expr = raw
		n.Attr = a
		return n, true
	}
	return Node{}, false
}
