package schema

import (
	"sort"

	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/value"
)

// EntityDecl is the raw declaration of one model or cluster.
type EntityDecl struct {
	Name       string
	Cluster    bool
	PrimaryKey string

	// Attributes maps attribute names to declaration shorthands.
	Attributes map[string]any

	// Source is the file the declaration came from, if any.
	Source string
}

// Model declares a model.
func Model(name string, attributes map[string]any) EntityDecl {
	return EntityDecl{Name: name, Attributes: attributes}
}

// Cluster declares a cluster.
func Cluster(name string, attributes map[string]any) EntityDecl {
	return EntityDecl{Name: name, Cluster: true, Attributes: attributes}
}

// Resolve maps one declaration shorthand to its kind and options.
func Resolve(kinds *attr.Registry, decl any) (*attr.Kind, attr.Options, error) {
	switch d := decl.(type) {
	case attr.KindID:
		k, err := kinds.Lookup(d)
		return k, attr.Options{}, err
	case *attr.Kind:
		return d, attr.Options{}, nil
	case string:
		k, err := kinds.ByName(d)
		return k, attr.Options{}, err
	}

	m, ok := value.AsMap(decl)
	if !ok {
		return nil, nil, odmerr.New(odmerr.CodeInvalidDeclaration, "unrecognized declaration %s", value.Render(decl)).
			With("declaration", value.Render(decl))
	}

	if ref, ok := m["type"]; ok {
		if _, nested := value.AsMap(ref); nested {
			return nil, nil, odmerr.New(odmerr.CodeInvalidDeclaration, "type must be a kind reference or name")
		}
		k, _, err := Resolve(kinds, ref)
		if err != nil {
			return nil, nil, err
		}
		opts := make(attr.Options, len(m))
		for key, v := range m {
			if key != "type" {
				opts[key] = v
			}
		}
		return k, opts, nil
	}

	var aliases []string
	for key := range m {
		if _, _, ok := kinds.ByAlias(key); ok {
			aliases = append(aliases, key)
		}
	}
	if len(aliases) != 1 {
		sort.Strings(aliases)
		return nil, nil, odmerr.New(odmerr.CodeInvalidDeclaration,
			"declaration needs a type or exactly one kind alias, found %d", len(aliases)).
			With("aliases", aliases)
	}

	k, optionKey, _ := kinds.ByAlias(aliases[0])
	opts := make(attr.Options, len(m))
	for key, v := range m {
		if key != aliases[0] {
			opts[key] = v
		}
	}
	opts[optionKey] = m[aliases[0]]
	return k, opts, nil
}
