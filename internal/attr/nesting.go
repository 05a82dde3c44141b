package attr

import (
	"fmt"

	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/value"
)

// NestOne embeds a single record of a cluster.
type NestOne struct {
	*Base
}

func newNestOne(b *Base) Attribute { return &NestOne{Base: b} }

func (n *NestOne) Cluster() string                     { return n.opts.String("cluster") }
func (n *NestOne) ClusterEntity() *Entity              { return n.first() }
func (n *NestOne) Multiple() bool                      { return false }
func (n *NestOne) Association() (*Entity, Cardinality) { return n.first(), One }

// Install defines a property reading a view over the embedded map.
func (n *NestOne) Install(in *Installer) {
	name := n.name
	in.Define(name, Accessor{
		Get: func(b Bag) (any, error) {
			m, ok := n.current(b).(map[string]any)
			if !ok {
				return nil, nil
			}
			return in.nest(n.first(), m), nil
		},
		Set: func(b Bag, v any) error {
			if v == nil {
				b[name] = nil
				return nil
			}
			m, ok := bagOf(v)
			if !ok {
				return in.reject(n.fail(odmerr.CodeValidationType, "expected an object, got %s", value.TypeOf(v)))
			}
			b[name] = m
			return nil
		},
	})
}

// ValidateModelValue validates the embedded value against the cluster
// schema.
func (n *NestOne) ValidateModelValue(v any) error {
	if v == nil {
		return n.validateScalar(v)
	}
	m, ok := bagOf(v)
	if !ok {
		return n.fail(odmerr.CodeValidationType, "expected an object, got %s", value.TypeOf(v))
	}
	return odmerr.Join(n.String(), validateEntityValue(n.first(), m), n.runValidator(v))
}

// NestMany embeds an array of records of a cluster.
type NestMany struct {
	*Base
}

func newNestMany(b *Base) Attribute { return &NestMany{Base: b} }

func (n *NestMany) Cluster() string                     { return n.opts.String("cluster") }
func (n *NestMany) ClusterEntity() *Entity              { return n.first() }
func (n *NestMany) Multiple() bool                      { return true }
func (n *NestMany) Association() (*Entity, Cardinality) { return n.first(), Many }

// Install defines a property reading views over each embedded map.
// Assigning anything but an array fails with attr.validation.notArray in
// strict mode and leaves the stored array untouched otherwise.
func (n *NestMany) Install(in *Installer) {
	name := n.name
	in.Define(name, Accessor{
		Get: func(b Bag) (any, error) {
			arr, ok := n.current(b).([]any)
			if !ok {
				return nil, nil
			}
			views := make([]any, len(arr))
			for i, el := range arr {
				if m, ok := el.(map[string]any); ok {
					views[i] = in.nest(n.first(), m)
				} else {
					views[i] = el
				}
			}
			return views, nil
		},
		Set: func(b Bag, v any) error {
			if v == nil {
				b[name] = nil
				return nil
			}
			arr, ok := value.AsArray(v)
			if !ok {
				return in.reject(n.fail(odmerr.CodeValidationNotArray, "expected an array, got %s", value.TypeOf(v)))
			}
			out := make([]any, len(arr))
			for i, el := range arr {
				m, ok := bagOf(el)
				if !ok {
					return in.reject(n.fail(odmerr.CodeValidationType, "element %d: expected an object, got %s", i, value.TypeOf(el)))
				}
				out[i] = m
			}
			b[name] = out
			return nil
		},
	})
}

// Append adds one element to the embedded array in b.
func (n *NestMany) Append(b Bag, v any) error {
	m, ok := bagOf(v)
	if !ok {
		return n.fail(odmerr.CodeValidationType, "expected an object, got %s", value.TypeOf(v))
	}
	arr, _ := n.current(b).([]any)
	b[n.name] = append(arr, m)
	return nil
}

// ValidateModelValue validates each element against the cluster schema.
func (n *NestMany) ValidateModelValue(v any) error {
	if v == nil {
		return n.validateScalar(v)
	}
	arr, ok := value.AsArray(v)
	if !ok {
		return n.fail(odmerr.CodeValidationNotArray, "expected an array, got %s", value.TypeOf(v))
	}
	var errs []error
	for i, el := range arr {
		m, ok := bagOf(el)
		if !ok {
			errs = append(errs, n.fail(odmerr.CodeValidationType, "element %d: expected an object, got %s", i, value.TypeOf(el)))
			continue
		}
		errs = append(errs, validateEntityValue(n.first(), m))
	}
	errs = append(errs, n.runValidator(v))
	return odmerr.Join(n.String(), errs...)
}

// current returns the stored value, applying the default when absent.
func (b *Base) current(bag Bag) any {
	v, ok := bag[b.name]
	if ok {
		return v
	}
	if dv, has := b.Default(); has {
		if arr, isArr := value.AsArray(dv); isArr {
			dv = arr
		}
		bag[b.name] = dv
		return dv
	}
	return nil
}

// bagOf returns the map form of an embedded value. Record views yield their
// backing bag itself.
func bagOf(v any) (map[string]any, bool) {
	if h, ok := v.(Holder); ok {
		return h.Bag(), true
	}
	return value.AsMap(v)
}

// validateEntityValue validates m against every attribute of e.
func validateEntityValue(e *Entity, m map[string]any) error {
	if e == nil {
		return nil
	}
	var errs []error
	for _, name := range e.Schema.Names() {
		errs = append(errs, e.Schema[name].ValidateModelValue(m[name]))
	}
	return odmerr.Join(fmt.Sprintf("%s value", e.Name), errs...)
}

// ValidateRecord validates bag against every attribute of e, aggregating
// failures into a composite.
func ValidateRecord(e *Entity, bag Bag) error {
	var c odmerr.Collector
	for _, name := range e.Schema.Names() {
		c.Add(e.Schema[name].ValidateModelValue(bag[name]))
	}
	return c.Err(fmt.Sprintf("invalid %s", e.Name))
}
