// Package record provides per-record storage over a flattened backing map
// with the typed properties an entity schema defines.
//
// A Record never copies nested values: NestOne, NestMany and polymorphic
// reads return Record views over the maps held by the parent, so writes
// through a view land in the parent's backing map.
package record

import (
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/odmerr"
)

// Record is one instance of an entity.
type Record struct {
	entity *attr.Entity
	bag    attr.Bag
	props  *attr.Installer
}

// Option configures a record.
type Option func(*config)

type config struct {
	strict bool
}

// Lenient makes wrongly shaped assignments to nesting attributes no-ops
// instead of errors.
func Lenient() Option {
	return func(c *config) { c.strict = false }
}

// Strict sets whether wrongly shaped assignments fail.
func Strict(strict bool) Option {
	return func(c *config) { c.strict = strict }
}

type tableKey struct {
	entity *attr.Entity
	strict bool
}

// tables caches accessor tables; entities are immutable once built.
var tables sync.Map

func table(e *attr.Entity, strict bool) *attr.Installer {
	key := tableKey{entity: e, strict: strict}
	if in, ok := tables.Load(key); ok {
		return in.(*attr.Installer)
	}
	in := attr.NewInstaller(func(ne *attr.Entity, bag attr.Bag) any {
		return wrap(ne, bag, strict)
	}, strict)
	in.InstallSchema(e)
	actual, _ := tables.LoadOrStore(key, in)
	return actual.(*attr.Installer)
}

// New returns a record of e holding a shallow copy of values.
func New(e *attr.Entity, values map[string]any, opts ...Option) *Record {
	bag := make(attr.Bag, len(values))
	for k, v := range values {
		bag[k] = v
	}
	return Wrap(e, bag, opts...)
}

// Wrap returns a record of e backed by bag itself.
func Wrap(e *attr.Entity, bag attr.Bag, opts ...Option) *Record {
	c := config{strict: true}
	for _, opt := range opts {
		opt(&c)
	}
	if bag == nil {
		bag = make(attr.Bag)
	}
	return wrap(e, bag, c.strict)
}

func wrap(e *attr.Entity, bag attr.Bag, strict bool) *Record {
	return &Record{entity: e, bag: bag, props: table(e, strict)}
}

// Entity returns the record's entity.
func (r *Record) Entity() *attr.Entity { return r.entity }

// EntityName returns the entity name.
func (r *Record) EntityName() string { return r.entity.Name }

// Bag returns the backing map. It is the same map Values returns.
func (r *Record) Bag() attr.Bag { return r.bag }

// Values returns the flattened backing map.
func (r *Record) Values() map[string]any { return r.bag }

// ID returns the primary key value.
func (r *Record) ID() any {
	return r.bag[r.primaryKey()]
}

// EnsureID fills a missing primary key and returns the key. Object id keys
// get a fresh object id, everything else a random UUID.
func (r *Record) EnsureID() any {
	pk := r.primaryKey()
	if r.bag[pk] == nil {
		if a, ok := r.entity.Attribute(pk); ok && a.Kind() == attr.KindObjectID {
			r.bag[pk] = attr.NewObjectID()
		} else {
			r.bag[pk] = uuid.NewString()
		}
	}
	return r.bag[pk]
}

func (r *Record) primaryKey() string {
	if r.entity.PrimaryKey != "" {
		return r.entity.PrimaryKey
	}
	return attr.DefaultPrimaryKey
}

// Names returns the property names the record exposes.
func (r *Record) Names() []string {
	return r.props.Names()
}

func (r *Record) accessor(name string) (attr.Accessor, error) {
	acc, ok := r.props.Lookup(name)
	if !ok {
		return attr.Accessor{}, odmerr.New(odmerr.CodeUnknownProperty, "%s has no property %q", r.entity.Name, name).
			On(r.entity.Name, name)
	}
	return acc, nil
}

// Get reads a property.
func (r *Record) Get(name string) (any, error) {
	acc, err := r.accessor(name)
	if err != nil {
		return nil, err
	}
	return acc.Get(r.bag)
}

// Set writes a property.
func (r *Record) Set(name string, v any) error {
	acc, err := r.accessor(name)
	if err != nil {
		return err
	}
	if acc.Set == nil {
		return odmerr.New(odmerr.CodeReadOnly, "property %q is read-only", name).On(r.entity.Name, name)
	}
	return acc.Set(r.bag, v)
}

// Related returns the deferred lookup for a HasOne or HasMany property.
func (r *Record) Related(name string) (attr.Ref, error) {
	v, err := r.Get(name)
	if err != nil {
		return attr.Ref{}, err
	}
	ref, ok := v.(attr.Ref)
	if !ok {
		return attr.Ref{}, odmerr.New(odmerr.CodeUnknownProperty, "%q is not a relation", name).On(r.entity.Name, name)
	}
	return ref, nil
}

// Nested returns the view for a NestOne or single polymorphic property, or
// nil when unset.
func (r *Record) Nested(name string) (*Record, error) {
	v, err := r.Get(name)
	if err != nil || v == nil {
		return nil, err
	}
	nested, ok := v.(*Record)
	if !ok {
		return nil, odmerr.New(odmerr.CodeUnknownProperty, "%q is not a nested record", name).On(r.entity.Name, name)
	}
	return nested, nil
}

// NestedList returns the views for a NestMany or PolyMany property.
func (r *Record) NestedList(name string) ([]*Record, error) {
	v, err := r.Get(name)
	if err != nil || v == nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, odmerr.New(odmerr.CodeUnknownProperty, "%q is not a nested list", name).On(r.entity.Name, name)
	}
	out := make([]*Record, 0, len(items))
	for _, it := range items {
		if rec, ok := it.(*Record); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

type appender interface {
	Append(b attr.Bag, v any) error
}

// Push appends one element to a NestMany or PolyMany property.
func (r *Record) Push(name string, v any) error {
	a, ok := r.entity.Attribute(name)
	if !ok {
		return odmerr.New(odmerr.CodeUnknownProperty, "%s has no attribute %q", r.entity.Name, name).On(r.entity.Name, name)
	}
	app, ok := a.(appender)
	if !ok {
		return odmerr.New(odmerr.CodeValidationNotArray, "%q does not hold an array", name).On(r.entity.Name, name)
	}
	return app.Append(r.bag, v)
}

// Validate checks every attribute value, aggregating failures.
func (r *Record) Validate() error {
	return attr.ValidateRecord(r.entity, r.bag)
}
