package schema

import (
	"sort"

	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/value"
)

// Registry holds the built entities. It is read-only after Build and safe
// for concurrent use.
type Registry struct {
	entities map[string]*attr.Entity
	order    []string
}

// Entity implements attr.Catalog.
func (r *Registry) Entity(name string) (*attr.Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Model returns the named model, failing with query.unknownModel for
// unknown names and clusters.
func (r *Registry) Model(name string) (*attr.Entity, error) {
	e, ok := r.entities[name]
	if !ok || e.Cluster {
		return nil, odmerr.New(odmerr.CodeUnknownModel, "unknown model %q", name).On(name, "")
	}
	return e, nil
}

// Names returns entity names in sorted order.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Entities returns every entity in name order.
func (r *Registry) Entities() []*attr.Entity {
	out := make([]*attr.Entity, 0, len(r.entities))
	for _, n := range r.Names() {
		out = append(out, r.entities[n])
	}
	return out
}

// Models returns the models in name order.
func (r *Registry) Models() []*attr.Entity {
	return r.filter(false)
}

// Clusters returns the clusters in name order.
func (r *Registry) Clusters() []*attr.Entity {
	return r.filter(true)
}

func (r *Registry) filter(cluster bool) []*attr.Entity {
	var out []*attr.Entity
	for _, e := range r.Entities() {
		if e.Cluster == cluster {
			out = append(out, e)
		}
	}
	return out
}

// CheckSupport reports every attribute s cannot store. Only attributes of
// models and of clusters reachable from them are checked.
func (r *Registry) CheckSupport(s Supporter) error {
	var errs []error
	for _, e := range r.Entities() {
		for _, name := range e.Schema.Names() {
			a := e.Schema[name]
			if !s.Supports(a) {
				errs = append(errs, odmerr.New(odmerr.CodeUnsupportedAttribute,
					"adapter %s does not support %s attributes", s.Name(), a.Kind()).On(e.Name, name))
			}
		}
	}
	return odmerr.Join("unsupported attributes", errs...)
}

// AttributeSummary describes one attribute.
type AttributeSummary struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	ValueType string   `json:"valueType"`
	Required  bool     `json:"required"`
	Protected bool     `json:"protected"`
	Target    string   `json:"target,omitempty"`
	Types     []string `json:"types,omitempty"`
	Enum      []any    `json:"enum,omitempty"`
}

// EntitySummary describes one entity.
type EntitySummary struct {
	Name       string             `json:"name"`
	Cluster    bool               `json:"cluster"`
	PrimaryKey string             `json:"primaryKey"`
	Attributes []AttributeSummary `json:"attributes"`
}

// Describe summarizes the registry in name order.
func (r *Registry) Describe() []EntitySummary {
	out := make([]EntitySummary, 0, len(r.entities))
	for _, e := range r.Entities() {
		es := EntitySummary{Name: e.Name, Cluster: e.Cluster, PrimaryKey: e.PrimaryKey}
		for _, name := range e.Schema.Names() {
			a := e.Schema[name]
			as := AttributeSummary{
				Name:      name,
				Kind:      a.Kind().String(),
				ValueType: string(a.ValueType()),
				Required:  a.IsRequired(),
				Protected: a.IsProtected(),
				Enum:      a.EnumOptions(),
			}
			switch x := a.(type) {
			case attr.Relational:
				as.Target = x.Target()
			case attr.Nesting:
				as.Target = x.Cluster()
			case attr.Polymorphic:
				as.Types = x.Types()
			}
			es.Attributes = append(es.Attributes, as)
		}
		out = append(out, es)
	}
	return out
}

// Fingerprint is a stable digest of the registry's structure. Validators and
// function defaults are not part of it.
func (r *Registry) Fingerprint() (string, error) {
	desc := make([]any, 0, len(r.entities))
	for _, es := range r.Describe() {
		attrs := make([]any, 0, len(es.Attributes))
		for _, as := range es.Attributes {
			types := make([]any, len(as.Types))
			for i, t := range as.Types {
				types[i] = t
			}
			attrs = append(attrs, map[string]any{
				"name":      as.Name,
				"kind":      as.Kind,
				"valueType": as.ValueType,
				"required":  as.Required,
				"protected": as.Protected,
				"target":    as.Target,
				"types":     types,
				"enum":      as.Enum,
			})
		}
		desc = append(desc, map[string]any{
			"name":       es.Name,
			"cluster":    es.Cluster,
			"primaryKey": es.PrimaryKey,
			"attributes": attrs,
		})
	}
	return value.Fingerprint(value.DomainSchema, desc)
}
