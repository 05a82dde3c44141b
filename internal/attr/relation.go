package attr

import (
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/value"
)

// HasOne stores the primary key of one target record under its own name.
//
// Reading the attribute yields a Ref; reading "<name>_id" yields the raw
// foreign key.
type HasOne struct {
	*Base
}

func newHasOne(b *Base) Attribute { return &HasOne{Base: b} }

func (h *HasOne) Target() string { return h.opts.String("model") }

func (h *HasOne) TargetEntity() *Entity { return h.first() }

func (h *HasOne) Association() (*Entity, Cardinality) { return h.first(), One }

// Install defines the lazy relation property and the raw key property.
func (h *HasOne) Install(in *Installer) {
	name := h.name
	in.Define(name, Accessor{
		Get: func(b Bag) (any, error) {
			return Ref{Model: h.Target(), Field: h.targetKey(), Value: b[name]}, nil
		},
		Set: func(b Bag, v any) error {
			if holder, ok := v.(Holder); ok {
				v = holder.Bag()[h.targetKey()]
			}
			b[name] = v
			return nil
		},
	})
	in.Define(name+"_id", passthrough(name, h))
}

func (h *HasOne) targetKey() string {
	if e := h.first(); e != nil && e.PrimaryKey != "" {
		return e.PrimaryKey
	}
	return DefaultPrimaryKey
}

// HasMany is the inverse of a HasOne on the target model. It stores
// nothing; reading it yields a Ref matching target.via against the owner's
// primary key.
type HasMany struct {
	*Base
}

func newHasMany(b *Base) Attribute { return &HasMany{Base: b} }

func (h *HasMany) Target() string { return h.opts.String("model") }

func (h *HasMany) TargetEntity() *Entity { return h.first() }

func (h *HasMany) Association() (*Entity, Cardinality) { return h.first(), Many }

// Via names the back-referencing HasOne on the target.
func (h *HasMany) Via() string { return h.opts.String("via") }

// Install defines the read-only lazy relation property.
func (h *HasMany) Install(in *Installer) {
	ownerKey := DefaultPrimaryKey
	if h.owner != nil && h.owner.PrimaryKey != "" {
		ownerKey = h.owner.PrimaryKey
	}
	in.Define(h.name, Accessor{
		Get: func(b Bag) (any, error) {
			return Ref{Model: h.Target(), Field: h.Via(), Value: b[ownerKey], Many: true}, nil
		},
		Set: readOnly(h.model, h.name),
	})
}

// ValidateModelValue accepts nothing but absence; HasMany has no value.
func (h *HasMany) ValidateModelValue(v any) error {
	if v == nil {
		return nil
	}
	return h.fail(odmerr.CodeValidationType, "HasMany holds no value, got %s", value.TypeOf(v))
}

func (b *Base) first() *Entity {
	if len(b.resolved) == 0 {
		return nil
	}
	return b.resolved[0]
}
