package attr

import (
	"fmt"
	"sort"

	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/trait"
	"github.com/roach88/odm/internal/value"
)

// ValueType is the closed set of value types an attribute can hold.
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueObject  ValueType = "object"
	ValueNone    ValueType = "none"
)

// Cardinality is the relation category exposed by Associative attributes.
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// DefaultTagKey is the discriminant key of polymorphic values.
const DefaultTagKey = "_type"

// DefaultPrimaryKey names the identity attribute of an entity.
const DefaultPrimaryKey = "id"

// Attribute is a typed field descriptor.
type Attribute interface {
	Name() string
	Model() string
	Kind() KindID
	ValueType() ValueType
	IsRequired() bool
	IsProtected() bool
	EnumOptions() []any
	Options() Options
	Capabilities() trait.Set

	// ValidateSelf rejects invalid configuration. Called once per schema
	// finalization.
	ValidateSelf(cat Catalog) error

	// ProcessOptions resolves symbolic references against cat. Calling it
	// again is a no-op.
	ProcessOptions(cat Catalog) error

	// Install defines the record properties this attribute exposes.
	Install(in *Installer)

	// ValidateModelValue checks a candidate record value.
	ValidateModelValue(v any) error
}

// Relational attributes point at another model.
type Relational interface {
	Attribute
	Target() string
	TargetEntity() *Entity
}

// Polymorphic attributes hold values tagged with one of several clusters.
type Polymorphic interface {
	Attribute
	Types() []string
	TagKey() string
	TypeEntity(tag string) (*Entity, bool)
	Multiple() bool
}

// Nesting attributes embed records of one cluster.
type Nesting interface {
	Attribute
	Cluster() string
	ClusterEntity() *Entity
	Multiple() bool
}

// Associative attributes expose what they relate to and whether the
// relation is to one record or many.
type Associative interface {
	Attribute
	Association() (*Entity, Cardinality)
}

// TypeMatcher is implemented by kinds whose runtime type rule differs from
// the plain ValueType comparison.
type TypeMatcher interface {
	MatchesType(v any) bool
}

// NativeConverter is implemented by kinds that coerce filter values to a
// backend-native type at query time.
type NativeConverter interface {
	ToNative(v any) (any, error)
}

// Defaulter is implemented by attributes that fill absent record values.
type Defaulter interface {
	Default() (any, bool)
}

// MatchesType reports whether v's runtime type matches a's value type.
func MatchesType(a Attribute, v any) bool {
	if m, ok := a.(TypeMatcher); ok {
		return m.MatchesType(v)
	}
	return matchesValueType(a.ValueType(), v)
}

func matchesValueType(vt ValueType, v any) bool {
	switch vt {
	case ValueNone:
		return false
	case ValueString:
		return value.TypeOf(v) == value.TypeString
	case ValueNumber:
		return value.TypeOf(v) == value.TypeNumber
	case ValueBoolean:
		return value.TypeOf(v) == value.TypeBoolean
	case ValueObject:
		return value.TypeOf(v) == value.TypeObject
	}
	return false
}

// Has reports whether a carries capability c.
func Has(a Attribute, c trait.Capability) bool {
	return a.Capabilities().Has(c)
}

// Options is the opaque configuration of an attribute. It is copied on
// construction and never mutated afterwards.
type Options map[string]any

// Clone returns a shallow copy.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// String returns the string option key, or "".
func (o Options) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Bool returns the boolean option key, or def when absent or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if b, ok := o[key].(bool); ok {
		return b
	}
	return def
}

// Entity is a schema-bearing type: a model is persisted directly by an
// adapter, a cluster only exists embedded in other records.
type Entity struct {
	Name       string
	Cluster    bool
	PrimaryKey string
	Schema     Schema
}

// Kind describes the entity kind for messages.
func (e *Entity) Kind() string {
	if e.Cluster {
		return "cluster"
	}
	return "model"
}

// Attribute returns the named attribute.
func (e *Entity) Attribute(name string) (Attribute, bool) {
	a, ok := e.Schema[name]
	return a, ok
}

// Schema maps attribute names to attributes.
type Schema map[string]Attribute

// Names returns the attribute names in sorted order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Catalog resolves entity names during schema finalization and query
// validation.
type Catalog interface {
	Entity(name string) (*Entity, bool)
}

// Validator is a user validation hook. It is invoked with the attribute as
// its bound context.
type Validator func(a Attribute, v any) error

// Base carries the state shared by every kind.
type Base struct {
	self      Attribute
	kind      *Kind
	name      string
	model     string
	opts      Options
	required  bool
	protected bool
	enum      []any
	validator Validator
	def       any
	hasDef    bool

	processed bool
	owner     *Entity
	resolved  []*Entity
}

func (b *Base) Name() string            { return b.name }
func (b *Base) Model() string           { return b.model }
func (b *Base) Kind() KindID            { return b.kind.ID }
func (b *Base) ValueType() ValueType    { return b.kind.ValueType }
func (b *Base) IsRequired() bool        { return b.required }
func (b *Base) IsProtected() bool       { return b.protected }
func (b *Base) EnumOptions() []any      { return b.enum }
func (b *Base) Options() Options        { return b.opts }
func (b *Base) Capabilities() trait.Set { return b.kind.composed.Capabilities }

// Owner returns the entity that owns the attribute, once processed.
func (b *Base) Owner() *Entity { return b.owner }

// Processed reports whether ProcessOptions has completed.
func (b *Base) Processed() bool { return b.processed }

// Default returns the configured default. Function defaults are invoked.
func (b *Base) Default() (any, bool) {
	if !b.hasDef {
		return nil, false
	}
	if fn, ok := b.def.(func() any); ok {
		return fn(), true
	}
	return b.def, true
}

func (b *Base) String() string {
	return fmt.Sprintf("%s.%s(%s)", b.model, b.name, b.kind.Name)
}

// ValidateSelf runs the composed self-validation chain of the kind.
func (b *Base) ValidateSelf(cat Catalog) error {
	return b.kind.composed.ValidateSelf(&Setup{Attr: b.self, Base: b, Catalog: cat})
}

// ProcessOptions runs the composed resolution chain of the kind once.
func (b *Base) ProcessOptions(cat Catalog) error {
	if b.processed {
		return nil
	}
	if owner, ok := cat.Entity(b.model); ok {
		b.owner = owner
	}
	if err := b.kind.composed.ProcessOptions(&Setup{Attr: b.self, Base: b, Catalog: cat}); err != nil {
		return err
	}
	b.processed = true
	return nil
}

// Install defines a passthrough property with default handling.
func (b *Base) Install(in *Installer) {
	in.Define(b.name, passthrough(b.name, b.self))
}

// ValidateModelValue checks required-ness, value type, enum membership and
// the user validator, aggregating every failure.
func (b *Base) ValidateModelValue(v any) error {
	return b.validateScalar(v)
}

func (b *Base) validateScalar(v any) error {
	if v == nil {
		if b.required {
			return b.fail(odmerr.CodeValidationRequired, "value is required")
		}
		return nil
	}

	var typeErr error
	if b.kind.ValueType != ValueNone && !MatchesType(b.self, v) {
		typeErr = b.fail(odmerr.CodeValidationType, "expected %s, got %s", b.kind.ValueType, value.TypeOf(v)).
			With("value", value.Render(v))
	}
	return odmerr.Join(b.String(), typeErr, b.checkEnum(v), b.runValidator(v))
}

func (b *Base) checkEnum(v any) error {
	if len(b.enum) == 0 {
		return nil
	}
	for _, opt := range b.enum {
		if value.Equal(opt, v) {
			return nil
		}
	}
	return b.fail(odmerr.CodeValidationEnum, "%s is not one of the allowed values", value.Render(v)).
		With("enum", b.enum)
}

func (b *Base) runValidator(v any) error {
	if b.validator == nil {
		return nil
	}
	if err := b.validator(b.self, v); err != nil {
		return odmerr.Wrap(odmerr.CodeValidationValidator, err, "validator rejected %s", value.Render(v)).
			On(b.model, b.name)
	}
	return nil
}

func (b *Base) fail(code odmerr.Code, format string, args ...any) *odmerr.Error {
	return odmerr.New(code, format, args...).On(b.model, b.name)
}
