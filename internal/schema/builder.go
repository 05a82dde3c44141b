package schema

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/odmerr"
)

// Supporter reports whether a backend can store an attribute.
type Supporter interface {
	Name() string
	Supports(a attr.Attribute) bool
}

// Builder builds registries from declarations.
type Builder struct {
	kinds      *attr.Registry
	logger     *slog.Logger
	support    Supporter
	primaryKey string
}

// Option configures a Builder.
type Option func(*Builder)

// WithKinds sets the kind registry. The default is attr.Builtins().
func WithKinds(r *attr.Registry) Option {
	return func(b *Builder) { b.kinds = r }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithAdapter checks every attribute against s after resolution.
func WithAdapter(s Supporter) Option {
	return func(b *Builder) { b.support = s }
}

// WithPrimaryKey sets the primary key used when a declaration names none.
func WithPrimaryKey(name string) Option {
	return func(b *Builder) {
		if name != "" {
			b.primaryKey = name
		}
	}
}

// NewBuilder returns a builder using the built-in kinds.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		kinds:      attr.Builtins(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		primaryKey: attr.DefaultPrimaryKey,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Kinds returns the kind registry the builder resolves declarations with.
func (b *Builder) Kinds() *attr.Registry {
	return b.kinds
}

// Build constructs, validates and resolves decls. On any failure it returns
// no registry and an odmerr.Composite describing every failure of the first
// failing stage.
func (b *Builder) Build(decls ...EntityDecl) (*Registry, error) {
	reg := &Registry{entities: make(map[string]*attr.Entity, len(decls))}

	var errs odmerr.Collector
	for _, d := range decls {
		if _, dup := reg.entities[d.Name]; dup {
			errs.Add(odmerr.New(odmerr.CodeDuplicateEntity, "entity %q declared twice", d.Name).On(d.Name, "").
				With("source", d.Source))
			continue
		}
		e, err := b.construct(d)
		errs.Add(err)
		reg.entities[d.Name] = e
		reg.order = append(reg.order, d.Name)
	}
	if err := errs.Err("schema declarations are invalid"); err != nil {
		return nil, err
	}

	for _, e := range reg.Entities() {
		for _, name := range e.Schema.Names() {
			errs.Add(e.Schema[name].ValidateSelf(reg))
		}
	}
	if err := errs.Err("schema attributes are invalid"); err != nil {
		return nil, err
	}

	for _, e := range reg.Entities() {
		for _, name := range e.Schema.Names() {
			a := e.Schema[name]
			errs.Add(a.ProcessOptions(reg))
			b.logger.Debug("attribute resolved",
				"entity", e.Name,
				"attribute", name,
				"kind", a.Kind().String())
		}
	}
	if err := errs.Err("schema references could not be resolved"); err != nil {
		return nil, err
	}

	if b.support != nil {
		errs.Add(reg.CheckSupport(b.support))
		if err := errs.Err(fmt.Sprintf("schema is not supported by adapter %s", b.support.Name())); err != nil {
			return nil, err
		}
	}

	b.logger.Info("schema built",
		"models", len(reg.Models()),
		"clusters", len(reg.Clusters()))
	return reg, nil
}

func (b *Builder) construct(d EntityDecl) (*attr.Entity, error) {
	e := &attr.Entity{
		Name:       d.Name,
		Cluster:    d.Cluster,
		PrimaryKey: d.PrimaryKey,
		Schema:     make(attr.Schema, len(d.Attributes)+1),
	}
	if e.PrimaryKey == "" {
		e.PrimaryKey = b.primaryKey
	}

	names := make([]string, 0, len(d.Attributes))
	for name := range d.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		kind, opts, err := Resolve(b.kinds, d.Attributes[name])
		if err != nil {
			errs = append(errs, onAttribute(err, d.Name, name))
			continue
		}
		e.Schema[name] = kind.New(d.Name, name, opts)
	}

	if _, ok := e.Schema[e.PrimaryKey]; !ok {
		kind, err := b.kinds.Lookup(attr.KindString)
		if err != nil {
			errs = append(errs, err)
		} else {
			e.Schema[e.PrimaryKey] = kind.New(d.Name, e.PrimaryKey, attr.Options{"required": false})
		}
	}
	return e, odmerr.Join(fmt.Sprintf("entity %s", d.Name), errs...)
}

// onAttribute fills in the location of an error raised without one.
func onAttribute(err error, model, name string) error {
	if e, ok := err.(*odmerr.Error); ok && e.Model == "" {
		return e.On(model, name)
	}
	return err
}
