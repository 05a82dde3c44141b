// Package trait composes attribute kinds out of reusable capability bundles.
//
// A Trait contributes configuration-time hooks (self validation and option
// resolution) to a base kind. Compose applies traits in order: each trait's
// hook wraps the hooks composed so far, so a later trait runs around the
// earlier ones and may override them by not calling next. The names of the
// applied traits are recorded as a flat Set on the composed kind for
// capability checks; those checks are about what a kind can do, not which
// concrete kind it is.
//
// Composition happens once, when kinds are registered. Composed values are
// read-only afterwards and safe to share.
package trait

import (
	"fmt"
	"slices"
)

// Capability names a bundle of behavior a kind can carry.
type Capability string

const (
	// Relation validates that a named target model exists and resolves it.
	Relation Capability = "relation"

	// Polymorphic validates and resolves a list of allowed cluster types.
	Polymorphic Capability = "polymorphic"

	// Nesting validates and resolves one embedded cluster type.
	Nesting Capability = "nesting"

	// Associative exposes what a kind is related to and whether it is one
	// or many.
	Associative Capability = "associative"
)

// Set is the ordered list of capabilities applied to a kind.
type Set []Capability

// Has reports whether c was applied.
func (s Set) Has(c Capability) bool {
	return slices.Contains(s, c)
}

// Hook is a configuration-time step run against a target.
type Hook[T any] func(target T) error

// Middleware wraps the hook composed so far.
type Middleware[T any] func(next Hook[T]) Hook[T]

// Trait is a named capability module.
type Trait[T any] struct {
	// Name is recorded on every kind the trait is applied to.
	Name Capability

	// ValidateSelf wraps self validation (nil leaves it unchanged).
	ValidateSelf Middleware[T]

	// ProcessOptions wraps option resolution (nil leaves it unchanged).
	ProcessOptions Middleware[T]
}

// Base is the behavior of a kind before any trait is applied.
type Base[T any] struct {
	ValidateSelf   Hook[T]
	ProcessOptions Hook[T]
}

// Composed is a base kind with traits applied.
type Composed[T any] struct {
	Name           string
	Capabilities   Set
	ValidateSelf   Hook[T]
	ProcessOptions Hook[T]
}

// noop is the identity hook.
func noop[T any](T) error { return nil }

// Compose applies traits to base in order. Applying the same capability
// twice is a programming error and panics, as composition only happens while
// kinds are registered at init.
func Compose[T any](name string, base Base[T], traits ...Trait[T]) *Composed[T] {
	c := &Composed[T]{
		Name:           name,
		Capabilities:   make(Set, 0, len(traits)),
		ValidateSelf:   base.ValidateSelf,
		ProcessOptions: base.ProcessOptions,
	}
	if c.ValidateSelf == nil {
		c.ValidateSelf = noop[T]
	}
	if c.ProcessOptions == nil {
		c.ProcessOptions = noop[T]
	}

	for _, t := range traits {
		if c.Capabilities.Has(t.Name) {
			panic(fmt.Sprintf("trait: capability %q applied twice to %s", t.Name, name))
		}
		c.Capabilities = append(c.Capabilities, t.Name)
		if t.ValidateSelf != nil {
			c.ValidateSelf = t.ValidateSelf(c.ValidateSelf)
		}
		if t.ProcessOptions != nil {
			c.ProcessOptions = t.ProcessOptions(c.ProcessOptions)
		}
	}
	return c
}

// Before returns a middleware that runs step, then the composed chain.
// Most traits only add checks; Before keeps them from forgetting next.
func Before[T any](step Hook[T]) Middleware[T] {
	return func(next Hook[T]) Hook[T] {
		return func(target T) error {
			if err := step(target); err != nil {
				return err
			}
			return next(target)
		}
	}
}
