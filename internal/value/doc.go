// Package value classifies loosely-typed Go values and renders them
// deterministically.
//
// Filters and attribute values arrive as plain Go values decoded from JSON,
// YAML or CUE: strings, the numeric kinds, bools, nil, []any and
// map[string]any, plus a few object-like values (time.Time, *regexp.Regexp,
// backend object ids). Everything that decides whether a filter value matches
// an attribute's value type goes through TypeOf, so there is exactly one
// definition of "runtime type" for the grammar, the attributes and the
// backends.
//
// This package imports nothing internal.
package value
