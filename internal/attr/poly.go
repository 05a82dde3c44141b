package attr

import (
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/value"
)

// Poly embeds values tagged with one of several clusters. PolyOne and
// Polymorphic hold one value, PolyMany an array.
type Poly struct {
	*Base
	many bool
}

func newPolyOne(b *Base) Attribute  { return &Poly{Base: b} }
func newPolyMany(b *Base) Attribute { return &Poly{Base: b, many: true} }

func (p *Poly) Multiple() bool { return p.many }

func (p *Poly) Types() []string {
	types, _ := polyTypes(p.opts)
	return types
}

// TagKey is the discriminant key, "_type" unless configured.
func (p *Poly) TagKey() string {
	if tag := p.opts.String("tag"); tag != "" {
		return tag
	}
	return DefaultTagKey
}

// TypeEntity returns the resolved cluster for tag.
func (p *Poly) TypeEntity(tag string) (*Entity, bool) {
	for _, e := range p.resolved {
		if e != nil && e.Name == tag {
			return e, true
		}
	}
	return nil, false
}

// Install defines a property reading views typed by each value's tag.
func (p *Poly) Install(in *Installer) {
	name := p.name
	in.Define(name, Accessor{
		Get: func(b Bag) (any, error) {
			cur := p.current(b)
			if !p.many {
				m, ok := cur.(map[string]any)
				if !ok {
					return nil, nil
				}
				return p.view(in, m)
			}
			arr, ok := cur.([]any)
			if !ok {
				return nil, nil
			}
			views := make([]any, len(arr))
			for i, el := range arr {
				m, ok := el.(map[string]any)
				if !ok {
					views[i] = el
					continue
				}
				v, err := p.view(in, m)
				if err != nil {
					return nil, err
				}
				views[i] = v
			}
			return views, nil
		},
		Set: func(b Bag, v any) error {
			if v == nil {
				b[name] = nil
				return nil
			}
			if !p.many {
				m, err := p.tagged(v)
				if err != nil {
					return in.reject(err)
				}
				b[name] = m
				return nil
			}
			arr, ok := value.AsArray(v)
			if !ok {
				return in.reject(p.fail(odmerr.CodeValidationNotArray, "expected an array, got %s", value.TypeOf(v)))
			}
			out := make([]any, len(arr))
			for i, el := range arr {
				m, err := p.tagged(el)
				if err != nil {
					return in.reject(err)
				}
				out[i] = m
			}
			b[name] = out
			return nil
		},
	})
}

func (p *Poly) view(in *Installer, m map[string]any) (any, error) {
	tag, _ := m[p.TagKey()].(string)
	e, ok := p.TypeEntity(tag)
	if !ok {
		return nil, p.fail(odmerr.CodePolyInvalidType, "unknown type tag %q", tag).With("types", p.Types())
	}
	return in.nest(e, m), nil
}

// tagged returns the map form of v with a valid tag. Record views are
// tagged with their entity name.
func (p *Poly) tagged(v any) (map[string]any, *odmerr.Error) {
	if h, ok := v.(Holder); ok {
		if _, known := p.TypeEntity(h.EntityName()); !known {
			return nil, p.fail(odmerr.CodePolyInvalidType, "%s is not one of %v", h.EntityName(), p.Types())
		}
		bag := h.Bag()
		bag[p.TagKey()] = h.EntityName()
		return bag, nil
	}
	m, ok := value.AsMap(v)
	if !ok {
		return nil, p.fail(odmerr.CodeValidationType, "expected an object, got %s", value.TypeOf(v))
	}
	if _, err := p.entityFor(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Poly) entityFor(m map[string]any) (*Entity, *odmerr.Error) {
	raw, ok := m[p.TagKey()]
	if !ok {
		return nil, p.fail(odmerr.CodePolyMissingTag, "value has no %q tag", p.TagKey())
	}
	tag, _ := raw.(string)
	e, ok := p.TypeEntity(tag)
	if !ok {
		return nil, p.fail(odmerr.CodePolyInvalidType, "unknown type tag %s", value.Render(raw)).With("types", p.Types())
	}
	return e, nil
}

// ValidateModelValue validates each value against the cluster its tag
// names.
func (p *Poly) ValidateModelValue(v any) error {
	if v == nil {
		return p.validateScalar(v)
	}
	one := func(el any) error {
		m, ok := bagOf(el)
		if !ok {
			return p.fail(odmerr.CodeValidationType, "expected an object, got %s", value.TypeOf(el))
		}
		e, err := p.entityFor(m)
		if err != nil {
			return err
		}
		return validateEntityValue(e, m)
	}
	if !p.many {
		return odmerr.Join(p.String(), one(v), p.runValidator(v))
	}
	arr, ok := value.AsArray(v)
	if !ok {
		return p.fail(odmerr.CodeValidationNotArray, "expected an array, got %s", value.TypeOf(v))
	}
	errs := make([]error, 0, len(arr)+1)
	for _, el := range arr {
		errs = append(errs, one(el))
	}
	errs = append(errs, p.runValidator(v))
	return odmerr.Join(p.String(), errs...)
}

// Append adds one tagged value to a PolyMany array in b.
func (p *Poly) Append(b Bag, v any) error {
	if !p.many {
		return p.fail(odmerr.CodeValidationNotArray, "%s holds a single value", p.kind.Name)
	}
	m, err := p.tagged(v)
	if err != nil {
		return err
	}
	arr, _ := p.current(b).([]any)
	b[p.name] = append(arr, m)
	return nil
}
