package attr

import (
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/trait"
	"github.com/roach88/odm/internal/value"
)

var relationTrait = trait.Trait[*Setup]{
	Name:           trait.Relation,
	ValidateSelf:   trait.Before(validateRelation),
	ProcessOptions: trait.Before(resolveRelation),
}

var nestingTrait = trait.Trait[*Setup]{
	Name:           trait.Nesting,
	ValidateSelf:   trait.Before(validateNesting),
	ProcessOptions: trait.Before(resolveNesting),
}

var polymorphicTrait = trait.Trait[*Setup]{
	Name:           trait.Polymorphic,
	ValidateSelf:   trait.Before(validatePolymorphic),
	ProcessOptions: trait.Before(resolvePolymorphic),
}

// associativeTrait contributes no hooks; the capability itself is what the
// query grammar checks for.
var associativeTrait = trait.Trait[*Setup]{
	Name: trait.Associative,
}

// validateCommon checks the options every kind accepts.
func validateCommon(s *Setup) error {
	b := s.Base
	var errs []error

	if raw, ok := b.opts["enum"]; ok && raw != nil {
		list, ok := value.AsArray(raw)
		if !ok {
			errs = append(errs, b.fail(odmerr.CodeEnumNotArray, "enum must be an array, got %s", value.TypeOf(raw)))
		}
		for i, opt := range list {
			if !MatchesType(s.Attr, opt) {
				errs = append(errs, b.fail(odmerr.CodeEnumInvalidType, "enum[%d] %s is not a %s", i, value.Render(opt), b.kind.ValueType))
			}
		}
	}

	if raw, ok := b.opts["validator"]; ok && raw != nil {
		if _, ok := asValidator(raw); !ok {
			errs = append(errs, b.fail(odmerr.CodeValidatorInvalid, "validator must be a function, got %T", raw))
		}
	}

	if b.hasDef && b.def != nil {
		if _, isFn := b.def.(func() any); !isFn && b.kind.ValueType != ValueNone && !MatchesType(s.Attr, b.def) {
			errs = append(errs, b.fail(odmerr.CodeDefaultInvalid, "default %s is not a %s", value.Render(b.def), b.kind.ValueType))
		}
	}

	return odmerr.Join(b.String()+" options", errs...)
}

// rejectEnum is the base self validation for kinds that do not take enums.
func rejectEnum(s *Setup) error {
	if raw, ok := s.Base.opts["enum"]; ok && raw != nil {
		return s.Base.fail(odmerr.CodeEnumDisabled, "%s does not accept enum", s.Base.kind.Name)
	}
	return nil
}

func validateRelation(s *Setup) error {
	b := s.Base
	target := b.opts.String("model")
	if target == "" {
		return b.fail(odmerr.CodeRelationMissingModel, "%s requires a target model", b.kind.Name)
	}
	e, ok := s.Catalog.Entity(target)
	if !ok {
		return b.fail(odmerr.CodeRelationInvalidModel, "model %q does not exist", target).With("model", target)
	}
	if e.Cluster {
		return b.fail(odmerr.CodeRelationInvalidModel, "%q is a cluster, relations must target a model", target).With("model", target)
	}
	return nil
}

func resolveRelation(s *Setup) error {
	e, _ := s.Catalog.Entity(s.Base.opts.String("model"))
	s.Base.resolved = append(s.Base.resolved[:0], e)
	return nil
}

// validateVia checks the back reference of a HasMany: via must name a
// HasOne on the target that points back at the owning model. It runs after
// the relation trait, so the target is known to exist.
func validateVia(s *Setup) error {
	b := s.Base
	via := b.opts.String("via")
	if via == "" {
		return b.fail(odmerr.CodeRelationMissingVia, "HasMany requires via")
	}
	target, _ := s.Catalog.Entity(b.opts.String("model"))
	back, ok := target.Attribute(via)
	if !ok {
		return b.fail(odmerr.CodeRelationInvalidVia, "%s has no attribute %q", target.Name, via).With("via", via)
	}
	rel, ok := back.(Relational)
	if !ok || back.Kind() != KindHasOne || rel.Options().String("model") != b.model {
		return b.fail(odmerr.CodeRelationInvalidVia, "%s.%s must be a HasOne pointing at %s", target.Name, via, b.model).With("via", via)
	}
	return validateCommon(s)
}

func validateNesting(s *Setup) error {
	b := s.Base
	if err := rejectEnum(s); err != nil {
		return err
	}
	cluster := b.opts.String("cluster")
	if cluster == "" {
		return b.fail(odmerr.CodeNestingMissingCluster, "%s requires a cluster", b.kind.Name)
	}
	e, ok := s.Catalog.Entity(cluster)
	if !ok || !e.Cluster {
		return b.fail(odmerr.CodeNestingInvalidCluster, "cluster %q does not exist", cluster).With("cluster", cluster)
	}
	return nil
}

func resolveNesting(s *Setup) error {
	e, _ := s.Catalog.Entity(s.Base.opts.String("cluster"))
	s.Base.resolved = append(s.Base.resolved[:0], e)
	return nil
}

func polyTypes(o Options) ([]string, bool) {
	raw, ok := value.AsArray(o["types"])
	if !ok || len(raw) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		s, ok := t.(string)
		if !ok || s == "" {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func validatePolymorphic(s *Setup) error {
	b := s.Base
	if err := rejectEnum(s); err != nil {
		return err
	}
	types, ok := polyTypes(b.opts)
	if !ok {
		return b.fail(odmerr.CodePolyMissingTypes, "%s requires a non-empty list of cluster names", b.kind.Name)
	}
	if raw, ok := b.opts["tag"]; ok {
		if tag, _ := raw.(string); tag == "" {
			return b.fail(odmerr.CodePolyMissingTag, "tag must be a non-empty string")
		}
	}
	var errs []error
	for _, t := range types {
		e, ok := s.Catalog.Entity(t)
		if !ok || !e.Cluster {
			errs = append(errs, b.fail(odmerr.CodePolyInvalidType, "cluster %q does not exist", t).With("type", t))
		}
	}
	return odmerr.Join(b.String()+" types", errs...)
}

func resolvePolymorphic(s *Setup) error {
	types, _ := polyTypes(s.Base.opts)
	resolved := make([]*Entity, 0, len(types))
	for _, t := range types {
		e, _ := s.Catalog.Entity(t)
		resolved = append(resolved, e)
	}
	s.Base.resolved = resolved
	return nil
}
