package attr

import (
	"github.com/roach88/odm/internal/odmerr"
)

// Bag is the flattened backing storage of one record. Nested values are
// stored as map[string]any (one) or []any of maps (many).
type Bag = map[string]any

// Holder is implemented by record views. Writing a Holder into a nesting
// attribute stores its backing Bag, so the view and the parent share state.
type Holder interface {
	Bag() Bag
	EntityName() string
}

// Accessor reads and writes one record property over a Bag.
type Accessor struct {
	Get func(b Bag) (any, error)

	// Set is nil for read-only properties.
	Set func(b Bag, v any) error
}

// Ref is the lazy result of reading a relation: it describes the lookup
// without performing it.
type Ref struct {
	// Model is the target model.
	Model string

	// Field is the target attribute matched against Value.
	Field string

	// Value is the key to match. A nil Value refers to nothing.
	Value any

	// Many is true for HasMany lookups.
	Many bool
}

// Empty reports whether the reference points at nothing.
func (r Ref) Empty() bool { return r.Value == nil }

// Filter returns the equality filter selecting the referenced records.
func (r Ref) Filter() map[string]any {
	return map[string]any{r.Field: r.Value}
}

// Installer collects the properties attributes contribute to a record type.
type Installer struct {
	// Nest builds a record view of entity e over bag. Views returned for
	// nested attributes wrap the backing maps, never copies.
	Nest func(e *Entity, bag Bag) any

	// Strict makes assignments of the wrong shape to nesting attributes
	// fail. When false they are ignored.
	Strict bool

	props map[string]Accessor
	order []string
}

// NewInstaller returns an installer using nest to build nested views.
func NewInstaller(nest func(*Entity, Bag) any, strict bool) *Installer {
	return &Installer{Nest: nest, Strict: strict, props: make(map[string]Accessor)}
}

// Define registers a property. Redefining a name replaces the accessor but
// keeps its original position.
func (in *Installer) Define(name string, a Accessor) {
	if in.props == nil {
		in.props = make(map[string]Accessor)
	}
	if _, ok := in.props[name]; !ok {
		in.order = append(in.order, name)
	}
	in.props[name] = a
}

// Lookup returns the accessor defined for name.
func (in *Installer) Lookup(name string) (Accessor, bool) {
	a, ok := in.props[name]
	return a, ok
}

// Names returns property names in definition order.
func (in *Installer) Names() []string {
	return in.order
}

// InstallSchema installs every attribute of e in sorted name order.
func (in *Installer) InstallSchema(e *Entity) {
	for _, name := range e.Schema.Names() {
		e.Schema[name].Install(in)
	}
}

func (in *Installer) nest(e *Entity, bag Bag) any {
	if in.Nest == nil {
		return bag
	}
	return in.Nest(e, bag)
}

// reject reports a bad assignment, or drops it when not strict.
func (in *Installer) reject(err *odmerr.Error) error {
	if in.Strict {
		return err
	}
	return nil
}

// passthrough stores values under name and fills absent values from the
// attribute default the first time they are read.
func passthrough(name string, a Attribute) Accessor {
	return Accessor{
		Get: func(b Bag) (any, error) {
			v, ok := b[name]
			if !ok {
				if d, isDef := a.(Defaulter); isDef {
					if dv, has := d.Default(); has {
						b[name] = dv
						return dv, nil
					}
				}
			}
			return v, nil
		},
		Set: func(b Bag, v any) error {
			b[name] = v
			return nil
		},
	}
}

func readOnly(model, name string) func(Bag, any) error {
	return func(Bag, any) error {
		return odmerr.New(odmerr.CodeReadOnly, "property %q is read-only", name).On(model, name)
	}
}
