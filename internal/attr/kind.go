package attr

import (
	"sort"
	"strings"
	"sync"

	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/trait"
	"github.com/roach88/odm/internal/value"
)

// KindID identifies a concrete attribute kind.
type KindID int

const (
	KindString KindID = iota + 1
	KindNumber
	KindBoolean
	KindDate
	KindObjectID
	KindHasOne
	KindHasMany
	KindNestOne
	KindNestMany
	KindPolyOne
	KindPolyMany
	KindPolymorphic
)

var kindNames = map[KindID]string{
	KindString:      "String",
	KindNumber:      "Number",
	KindBoolean:     "Boolean",
	KindDate:        "Date",
	KindObjectID:    "ObjectId",
	KindHasOne:      "HasOne",
	KindHasMany:     "HasMany",
	KindNestOne:     "NestOne",
	KindNestMany:    "NestMany",
	KindPolyOne:     "PolyOne",
	KindPolyMany:    "PolyMany",
	KindPolymorphic: "Polymorphic",
}

func (id KindID) String() string {
	if n, ok := kindNames[id]; ok {
		return n
	}
	return "Kind(?)"
}

// Setup is the target of configuration-time hooks.
type Setup struct {
	Attr    Attribute
	Base    *Base
	Catalog Catalog
}

// Kind is a registered attribute kind.
type Kind struct {
	ID        KindID
	Name      string
	ValueType ValueType

	// Aliases maps custom declaration names (hasOne, nestMany, ...) to the
	// option key the shorthand value is stored under.
	Aliases map[string]string

	composed  *trait.Composed[*Setup]
	construct func(b *Base) Attribute
}

// NewKind composes a kind from its base hooks and traits.
func NewKind(id KindID, vt ValueType, base trait.Base[*Setup], construct func(*Base) Attribute, traits ...trait.Trait[*Setup]) *Kind {
	return &Kind{
		ID:        id,
		Name:      id.String(),
		ValueType: vt,
		composed:  trait.Compose(id.String(), base, traits...),
		construct: construct,
	}
}

// WithAliases sets the custom declaration names of k and returns it.
func (k *Kind) WithAliases(aliases map[string]string) *Kind {
	k.Aliases = aliases
	return k
}

// Capabilities returns the traits applied to k.
func (k *Kind) Capabilities() trait.Set {
	return k.composed.Capabilities
}

// New constructs an attribute. Options are parsed leniently here; invalid
// configuration is reported by ValidateSelf.
func (k *Kind) New(model, name string, opts Options) Attribute {
	opts = opts.Clone()
	b := &Base{
		kind:      k,
		name:      name,
		model:     model,
		opts:      opts,
		required:  opts.Bool("required", true),
		protected: opts.Bool("protected", true),
	}
	if list, ok := value.AsArray(opts["enum"]); ok {
		b.enum = list
	}
	if v, ok := asValidator(opts["validator"]); ok {
		b.validator = v
	}
	if raw, ok := opts["default"]; ok {
		b.def = raw
		b.hasDef = true
	}

	attr := k.construct(b)
	b.self = attr
	return attr
}

func asValidator(raw any) (Validator, bool) {
	switch fn := raw.(type) {
	case Validator:
		return fn, true
	case func(Attribute, any) error:
		return fn, true
	case func(any) error:
		return func(_ Attribute, v any) error { return fn(v) }, true
	case func(any) bool:
		return func(a Attribute, v any) error {
			if fn(v) {
				return nil
			}
			return odmerr.New(odmerr.CodeValidationValidator, "validation failed").On(a.Model(), a.Name())
		}, true
	}
	return nil, false
}

// Registry maps kind ids, names and aliases to kinds.
type Registry struct {
	mu      sync.RWMutex
	byID    map[KindID]*Kind
	byName  map[string]*Kind
	byAlias map[string]*Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[KindID]*Kind),
		byName:  make(map[string]*Kind),
		byAlias: make(map[string]*Kind),
	}
}

// Register adds k. Duplicate ids, names or aliases are rejected.
func (r *Registry) Register(k *Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[k.ID]; ok {
		return odmerr.New(odmerr.CodeDuplicateKind, "kind %s already registered", k.Name)
	}
	name := strings.ToLower(k.Name)
	if _, ok := r.byName[name]; ok {
		return odmerr.New(odmerr.CodeDuplicateKind, "kind name %q already registered", k.Name)
	}
	for alias := range k.Aliases {
		if _, ok := r.byAlias[alias]; ok {
			return odmerr.New(odmerr.CodeDuplicateKind, "kind alias %q already registered", alias)
		}
	}

	r.byID[k.ID] = k
	r.byName[name] = k
	for alias := range k.Aliases {
		r.byAlias[alias] = k
	}
	return nil
}

// Lookup returns the kind registered under id.
func (r *Registry) Lookup(id KindID) (*Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k, ok := r.byID[id]; ok {
		return k, nil
	}
	return nil, odmerr.New(odmerr.CodeUnknownKind, "unknown kind %d", int(id))
}

// ByName resolves a kind name case-insensitively.
func (r *Registry) ByName(name string) (*Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k, ok := r.byName[strings.ToLower(name)]; ok {
		return k, nil
	}
	return nil, odmerr.New(odmerr.CodeUnknownKind, "unknown kind %q", name)
}

// ByAlias resolves a custom declaration name and returns the option key the
// shorthand value belongs under.
func (r *Registry) ByAlias(alias string) (*Kind, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byAlias[alias]
	if !ok {
		return nil, "", false
	}
	return k, k.Aliases[alias], true
}

// Aliases returns every registered alias, sorted.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byAlias))
	for a := range r.byAlias {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Kinds returns the registered kinds ordered by id.
func (r *Registry) Kinds() []*Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Kind, 0, len(r.byID))
	for _, k := range r.byID {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Builtins returns a registry holding every built-in kind. The registry is
// shared; callers needing custom kinds should start from NewRegistry and
// RegisterBuiltins.
var Builtins = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		panic(err)
	}
	return r
})

// RegisterBuiltins adds the built-in kinds to r.
func RegisterBuiltins(r *Registry) error {
	for _, k := range builtinKinds() {
		if err := r.Register(k); err != nil {
			return err
		}
	}
	return nil
}

func builtinKinds() []*Kind {
	common := trait.Base[*Setup]{ValidateSelf: validateCommon}
	return []*Kind{
		NewKind(KindString, ValueString, common, newPrimitive),
		NewKind(KindNumber, ValueNumber, common, newPrimitive),
		NewKind(KindBoolean, ValueBoolean, common, newPrimitive),
		NewKind(KindDate, ValueObject, common, newDate),
		NewKind(KindObjectID, ValueString, common, newObjectID),

		NewKind(KindHasOne, ValueString, common, newHasOne,
			relationTrait, associativeTrait).
			WithAliases(map[string]string{"hasOne": "model"}),
		NewKind(KindHasMany, ValueNone, trait.Base[*Setup]{ValidateSelf: validateVia}, newHasMany,
			relationTrait, associativeTrait).
			WithAliases(map[string]string{"hasMany": "model"}),

		NewKind(KindNestOne, ValueObject, common, newNestOne,
			nestingTrait, associativeTrait).
			WithAliases(map[string]string{"nestOne": "cluster"}),
		NewKind(KindNestMany, ValueObject, common, newNestMany,
			nestingTrait, associativeTrait).
			WithAliases(map[string]string{"nestMany": "cluster"}),

		NewKind(KindPolyOne, ValueObject, common, newPolyOne,
			polymorphicTrait).
			WithAliases(map[string]string{"poly": "types", "polyOne": "types"}),
		NewKind(KindPolyMany, ValueObject, common, newPolyMany,
			polymorphicTrait).
			WithAliases(map[string]string{"polyMany": "types"}),
		NewKind(KindPolymorphic, ValueObject, common, newPolyOne,
			polymorphicTrait).
			WithAliases(map[string]string{"polymorphic": "types"}),
	}
}
