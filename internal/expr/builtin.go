package expr

import (
	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/value"
)

// Builtin expression names.
const (
	Equality   = "equality"
	Inequality = "inequality"
	Comparison = "comparison"
	In         = "in"
	Logical    = "logical"
	Regex      = "regex"
	Has        = "has"
	Includes   = "includes"
)

// Logical and comparison operators.
const (
	OpNot = "!"
	OpLT  = "<"
	OpGT  = ">"
	OpLTE = "<="
	OpGTE = ">="
	OpAnd = "and"
	OpOr  = "or"
)

// Builtins returns the builtin expressions in registration order.
func Builtins() []Expression {
	return []Expression{
		{Name: Equality, Match: matchEquality},
		{Name: Inequality, Match: matchInequality},
		{Name: Comparison, Match: matchComparison},
		{Name: In, Match: matchIn},
		{Name: Logical, Match: matchLogical},
		{Name: Regex, Match: matchRegex},
		{Name: Has, Precedence: 1, Match: associative(attr.One)},
		{Name: Includes, Precedence: 1, Match: associative(attr.Many)},
	}
}

func matchEquality(ctx *Context, raw any) (Node, bool) {
	if raw == nil {
		return Node{}, !ctx.Attr.IsRequired()
	}
	return Node{}, attr.MatchesType(ctx.Attr, raw)
}

// single returns the only entry of a one-key object.
func single(raw any) (string, any, bool) {
	m, ok := value.AsMap(raw)
	if !ok || len(m) != 1 {
		return "", nil, false
	}
	for k, v := range m {
		return k, v, true
	}
	return "", nil, false
}

func matchInequality(ctx *Context, raw any) (Node, bool) {
	op, inner, ok := single(raw)
	if !ok || op != OpNot || !attr.MatchesType(ctx.Attr, inner) {
		return Node{}, false
	}
	return Node{Operator: op, Operand: inner}, true
}

func matchComparison(ctx *Context, raw any) (Node, bool) {
	op, inner, ok := single(raw)
	if !ok || ctx.Attr.ValueType() != attr.ValueNumber {
		return Node{}, false
	}
	switch op {
	case OpLT, OpGT, OpLTE, OpGTE:
	default:
		return Node{}, false
	}
	if value.TypeOf(inner) != value.TypeNumber {
		return Node{}, false
	}
	return Node{Operator: op, Operand: inner}, true
}

func matchIn(ctx *Context, raw any) (Node, bool) {
	items, ok := value.AsArray(raw)
	if !ok {
		return Node{}, false
	}
	for _, it := range items {
		if !attr.MatchesType(ctx.Attr, it) {
			return Node{}, false
		}
	}
	return Node{Operand: items}, true
}

func matchLogical(ctx *Context, raw any) (Node, bool) {
	op, inner, ok := single(raw)
	if !ok || (op != OpAnd && op != OpOr) {
		return Node{}, false
	}
	branches, ok := value.AsArray(inner)
	if !ok {
		return Node{}, false
	}
	children := make([]Node, 0, len(branches))
	for _, b := range branches {
		child, ok := ctx.Validate(b, ctx.Attr)
		if !ok {
			return Node{}, false
		}
		children = append(children, child)
	}
	return Node{Operator: op, Children: children}, true
}

func matchRegex(ctx *Context, raw any) (Node, bool) {
	if ctx.Attr.ValueType() != attr.ValueString || !value.IsRegexp(raw) {
		return Node{}, false
	}
	return Node{Operand: raw}, true
}

// associative accepts objects whose keys each validate against the schema
// of the related entity, for attributes whose association is card.
func associative(card attr.Cardinality) MatchFunc {
	return func(ctx *Context, raw any) (Node, bool) {
		assoc, ok := ctx.Attr.(attr.Associative)
		if !ok {
			return Node{}, false
		}
		related, got := assoc.Association()
		if got != card || related == nil {
			return Node{}, false
		}
		m, ok := value.AsMap(raw)
		if !ok || len(m) == 0 {
			return Node{}, false
		}
		fields := make(map[string]Node, len(m))
		for key, sub := range m {
			subAttr, ok := related.Attribute(key)
			if !ok {
				return Node{}, false
			}
			n, ok := ctx.Validate(sub, subAttr)
			if !ok {
				return Node{}, false
			}
			fields[key] = n
		}
		return Node{Fields: fields, Related: related}, true
	}
}
