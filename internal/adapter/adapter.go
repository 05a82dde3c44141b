// Package adapter defines the backend processor contract.
//
// An adapter declares which attributes it can store and keeps a per
// instance name→function registry of processors, one per expression type.
// A typed node whose expression type has no registered processor fails with
// adapter.unsupportedExpr; it is never skipped.
//
// Backends register a factory in init:
//
//	func init() {
//		adapter.Register("memory", func(l *slog.Logger) adapter.Adapter { return New(l) })
//	}
package adapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/query"
	"github.com/roach88/odm/internal/schema"
)

// Adapter is a backend.
type Adapter interface {
	Name() string
	Supports(a attr.Attribute) bool
}

// Store is an adapter that persists and finds records.
type Store interface {
	Adapter
	Insert(ctx context.Context, e *attr.Entity, values map[string]any) (any, error)
	Find(ctx context.Context, q *query.Query) ([]map[string]any, error)
	Close() error
}

// Explainer is an adapter that renders the backend form of a query.
type Explainer interface {
	Adapter
	Explain(q *query.Query) (any, error)
}

// CheckSchema reports every attribute of reg that a cannot store.
func CheckSchema(a Adapter, reg *schema.Registry) error {
	return reg.CheckSupport(a)
}

// Processors is a name→function registry of expression processors.
type Processors[F any] struct {
	adapter string
	mu      sync.RWMutex
	fns     map[string]F
}

// NewProcessors returns an empty registry for the named adapter.
func NewProcessors[F any](adapter string) *Processors[F] {
	return &Processors[F]{adapter: adapter, fns: make(map[string]F)}
}

// Register sets the processor for an expression type, replacing any
// earlier one.
func (p *Processors[F]) Register(expression string, fn F) *Processors[F] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fns[expression] = fn
	return p
}

// Lookup returns the processor for an expression type.
func (p *Processors[F]) Lookup(expression string) (F, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn, ok := p.fns[expression]
	if !ok {
		var zero F
		return zero, odmerr.New(odmerr.CodeUnsupportedExpr,
			"adapter %s has no processor for %q expressions", p.adapter, expression).
			With("adapter", p.adapter).With("expression", expression)
	}
	return fn, nil
}

// Names returns the registered expression types, sorted.
func (p *Processors[F]) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.fns))
	for n := range p.fns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Factory creates an adapter. A nil logger discards output.
type Factory func(logger *slog.Logger) Adapter

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds an adapter factory. Called by backends in init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get returns the factory registered under name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// New creates the named adapter.
func New(name string, logger *slog.Logger) (Adapter, error) {
	factory, ok := Get(name)
	if !ok {
		return nil, &UnknownAdapterError{Name: name, Available: List()}
	}
	return factory(Logger(logger)), nil
}

// List returns the registered adapter names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownAdapterError is returned for names with no registered factory.
type UnknownAdapterError struct {
	Name      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("%s: unknown adapter %q, available: %s", odmerr.CodeUnknownAdapter, e.Name, strings.Join(e.Available, ", "))
}

// Code classifies the error for odmerr.HasCode style checks.
func (e *UnknownAdapterError) Code() odmerr.Code { return odmerr.CodeUnknownAdapter }

// Logger returns l, or a logger that discards output when l is nil.
func Logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
