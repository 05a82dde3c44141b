// Package expr is the filter expression grammar.
//
// A Grammar is an ordered list of named Expressions. Validating a raw filter
// value against an attribute tries each expression in order and the first
// one that accepts the value produces the typed Node. Order is by
// Precedence (higher first) and then registration order; has and includes
// carry precedence 1 so they win over equality for object-valued nested
// attributes, every other builtin carries 0.
//
// The builtin expressions, in registration order:
//
//	equality     "Geoff", 7, true, nil (when not required)
//	inequality   {"!": v}
//	comparison   {"<": n} {">": n} {"<=": n} {">=": n}   (number attributes)
//	in           ["a", "b"]
//	logical      {"and": [...]} {"or": [...]}
//	regex        *regexp.Regexp                          (string attributes)
//	has          {"field": expr, ...}                    (associative one)
//	includes     {"field": expr, ...}                    (associative many)
//
// Logical nodes validate every branch; a single invalid branch rejects the
// whole node.
package expr
