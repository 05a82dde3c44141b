// Package query normalizes raw filter shorthands into a canonical
// where/sort/limit/pluck query and validates it against a schema.
//
// Raw shorthands, by precedence:
//
//	"u1", 7                     identity equality on the primary key
//	[]string{"u1", "u2"}        identity in-list on the primary key
//	{"name": "Geoff"}           where filter as-is
//	{"where": {...}, "limit": 5, "sort": ..., "pluck": [...]}
//
// A Query is single-owner: chain methods must not run concurrently with
// Process. Process runs exactly once.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/expr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/value"
)

// SortField is one normalized sort key.
type SortField struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Options are the query options given apart from the filter.
type Options struct {
	// Sort is a field name ("-name" or "name desc" for descending), a list
	// of those, or a map of field to 1/-1/"asc"/"desc".
	Sort any

	// Limit caps the number of results. Zero means no limit.
	Limit int

	// Pluck selects the fields returned.
	Pluck []string
}

type idShorthand int

const (
	noID idShorthand = iota
	singleID
	idList
)

// Query is a filter over one model.
type Query struct {
	model string
	where map[string]any
	sort  []SortField
	limit int
	pluck []string

	idMode idShorthand
	id     any

	err       error
	done      bool
	entity    *attr.Entity
	processed map[string]expr.Node
}

var reservedKeys = map[string]bool{"where": true, "sort": true, "limit": true, "pluck": true}

// New normalizes raw into a query over model. Only the first opts value is
// used.
func New(model string, raw any, opts ...Options) (*Query, error) {
	q := &Query{model: model, where: map[string]any{}}
	if len(opts) > 0 {
		q.applyOptions(opts[0])
	}

	switch v := raw.(type) {
	case nil:
	case string:
		q.idMode, q.id = singleID, v
	default:
		switch {
		case value.TypeOf(v) == value.TypeNumber:
			q.idMode, q.id = singleID, v
		case value.IsArray(v):
			ids, err := idStrings(model, v)
			if err != nil {
				return nil, err
			}
			q.idMode, q.id = idList, ids
		case value.IsPlainObject(v):
			m, _ := value.AsMap(v)
			if isFullObject(m) {
				if err := q.applyFull(m); err != nil {
					return nil, err
				}
			} else {
				q.merge(m)
			}
		default:
			return nil, odmerr.New(odmerr.CodeInvalidShorthand, "unsupported query shorthand %s", value.Render(v)).On(model, "")
		}
	}

	if q.err != nil {
		return nil, q.err
	}
	return q, nil
}

// MustNew is New for tests and static queries.
func MustNew(model string, raw any, opts ...Options) *Query {
	q, err := New(model, raw, opts...)
	if err != nil {
		panic(err)
	}
	return q
}

// FromRef returns the query a relation reference stands for.
func FromRef(ref attr.Ref) *Query {
	q := &Query{model: ref.Model, where: ref.Filter()}
	if !ref.Many {
		q.limit = 1
	}
	return q
}

func idStrings(model string, v any) ([]any, error) {
	items, _ := value.AsArray(v)
	for i, it := range items {
		if _, ok := it.(string); !ok {
			return nil, odmerr.New(odmerr.CodeInvalidIDList, "id list element %d is %s, not a string", i, value.TypeOf(it)).
				On(model, "").With("value", value.Render(it))
		}
	}
	return items, nil
}

func isFullObject(m map[string]any) bool {
	w, ok := m["where"]
	if !ok || !value.IsPlainObject(w) {
		return false
	}
	for k := range m {
		if !reservedKeys[k] {
			return false
		}
	}
	return true
}

func (q *Query) applyFull(m map[string]any) error {
	w, _ := value.AsMap(m["where"])
	q.merge(w)
	opts := Options{Sort: m["sort"]}
	if raw, ok := m["limit"]; ok {
		n, ok := toInt(raw)
		if !ok {
			return odmerr.New(odmerr.CodeInvalidOption, "limit must be an integer, got %s", value.Render(raw)).On(q.model, "")
		}
		opts.Limit = n
	}
	if raw, ok := m["pluck"]; ok {
		fields, ok := stringList(raw)
		if !ok {
			return odmerr.New(odmerr.CodeInvalidOption, "pluck must be a list of field names").On(q.model, "")
		}
		opts.Pluck = fields
	}
	q.applyOptions(opts)
	return q.err
}

func (q *Query) applyOptions(o Options) {
	if o.Sort != nil {
		q.Sort(o.Sort)
	}
	if o.Limit != 0 {
		q.Limit(o.Limit)
	}
	if len(o.Pluck) > 0 {
		q.Pluck(o.Pluck...)
	}
}

func (q *Query) merge(m map[string]any) {
	for k, v := range m {
		q.where[k] = v
	}
}

func (q *Query) mutable() bool {
	if q.done {
		if q.err == nil {
			q.err = odmerr.New(odmerr.CodeAlreadyProcessed, "query on %s was already processed", q.model).On(q.model, "")
		}
		return false
	}
	return true
}

// Where merges filter into the where clause.
func (q *Query) Where(filter map[string]any) *Query {
	if q.mutable() {
		q.merge(filter)
	}
	return q
}

// Limit caps the number of results.
func (q *Query) Limit(n int) *Query {
	if !q.mutable() {
		return q
	}
	if n < 0 {
		q.err = odmerr.New(odmerr.CodeInvalidOption, "limit must not be negative, got %d", n).On(q.model, "")
		return q
	}
	q.limit = n
	return q
}

// Sort replaces the sort order.
func (q *Query) Sort(spec any) *Query {
	if !q.mutable() {
		return q
	}
	fields, err := parseSort(spec)
	if err != nil {
		q.err = err.On(q.model, "")
		return q
	}
	q.sort = fields
	return q
}

// Pluck selects the returned fields.
func (q *Query) Pluck(fields ...string) *Query {
	if q.mutable() {
		q.pluck = append([]string(nil), fields...)
	}
	return q
}

func parseSort(spec any) ([]SortField, *odmerr.Error) {
	switch s := spec.(type) {
	case nil:
		return nil, nil
	case string:
		return parseSortList(strings.Split(s, ","))
	case []SortField:
		return append([]SortField(nil), s...), nil
	}
	if list, ok := stringList(spec); ok {
		return parseSortList(list)
	}
	m, ok := value.AsMap(spec)
	if !ok {
		return nil, odmerr.New(odmerr.CodeInvalidOption, "unsupported sort %s", value.Render(spec))
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]SortField, 0, len(keys))
	for _, k := range keys {
		desc, ok := direction(m[k])
		if !ok {
			return nil, odmerr.New(odmerr.CodeInvalidOption, "unsupported sort direction %s for %s", value.Render(m[k]), k)
		}
		out = append(out, SortField{Field: k, Desc: desc})
	}
	return out, nil
}

func parseSortList(items []string) ([]SortField, *odmerr.Error) {
	out := make([]SortField, 0, len(items))
	for _, it := range items {
		parts := strings.Fields(it)
		switch len(parts) {
		case 0:
			continue
		case 1:
			f := parts[0]
			if strings.HasPrefix(f, "-") {
				out = append(out, SortField{Field: f[1:], Desc: true})
			} else {
				out = append(out, SortField{Field: strings.TrimPrefix(f, "+")})
			}
		case 2:
			desc, ok := direction(parts[1])
			if !ok {
				return nil, odmerr.New(odmerr.CodeInvalidOption, "unsupported sort direction %q", parts[1])
			}
			out = append(out, SortField{Field: parts[0], Desc: desc})
		default:
			return nil, odmerr.New(odmerr.CodeInvalidOption, "unsupported sort %q", it)
		}
	}
	return out, nil
}

func direction(v any) (desc bool, ok bool) {
	if s, isStr := v.(string); isStr {
		switch strings.ToLower(s) {
		case "asc", "ascending", "1":
			return false, true
		case "desc", "descending", "-1":
			return true, true
		}
		return false, false
	}
	if n, isNum := value.ToFloat(v); isNum {
		switch n {
		case 1:
			return false, true
		case -1:
			return true, true
		}
	}
	return false, false
}

func stringList(v any) ([]string, bool) {
	if s, ok := v.([]string); ok {
		return s, true
	}
	items, ok := value.AsArray(v)
	if !ok {
		return nil, false
	}
	out := make([]string, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func toInt(v any) (int, bool) {
	f, ok := value.ToFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// Process validates the query against cat using g. It runs exactly once;
// a second call fails with query.alreadyProcessed. Every invalid where key
// is reported, aggregated into a composite when there are several.
func (q *Query) Process(cat attr.Catalog, g *expr.Grammar) error {
	if q.done {
		return odmerr.New(odmerr.CodeAlreadyProcessed, "query on %s was already processed", q.model).On(q.model, "")
	}
	q.done = true
	if q.err != nil {
		return q.err
	}

	e, ok := cat.Entity(q.model)
	if !ok || e.Cluster {
		return odmerr.New(odmerr.CodeUnknownModel, "unknown model %q", q.model).On(q.model, "")
	}
	q.entity = e

	switch q.idMode {
	case singleID, idList:
		pk := primaryKey(e)
		if _, clash := q.where[pk]; clash {
			return odmerr.New(odmerr.CodeInvalidOption,
				"query on %s selects by id and also filters %q", e.Name, pk).On(e.Name, pk)
		}
		q.where[pk] = q.id
	}

	processed := make(map[string]expr.Node, len(q.where))
	var errs []error
	for _, key := range value.SortedKeys(q.where) {
		raw := q.where[key]
		a, ok := e.Attribute(key)
		if !ok {
			errs = append(errs, odmerr.New(odmerr.CodeUnknownAttribute, "%s has no attribute %q", e.Name, key).On(e.Name, key))
			continue
		}
		node, ok := g.Validate(raw, a, cat)
		if !ok {
			errs = append(errs, odmerr.New(odmerr.CodeUnrecognizedExpr,
				"unrecognized expression for %s.%s: %s", e.Name, key, value.Render(raw)).
				On(e.Name, key).With("value", value.Render(raw)))
			continue
		}
		processed[key] = node
	}

	for _, s := range q.sort {
		if _, ok := e.Attribute(s.Field); !ok {
			errs = append(errs, odmerr.New(odmerr.CodeUnknownAttribute, "cannot sort by unknown attribute %q", s.Field).On(e.Name, s.Field))
		}
	}
	for _, f := range q.pluck {
		if _, ok := e.Attribute(f); !ok {
			errs = append(errs, odmerr.New(odmerr.CodeUnknownAttribute, "cannot pluck unknown attribute %q", f).On(e.Name, f))
		}
	}

	if err := odmerr.Join(fmt.Sprintf("invalid query on %s", e.Name), errs...); err != nil {
		return err
	}
	q.processed = processed
	return nil
}

func primaryKey(e *attr.Entity) string {
	if e.PrimaryKey != "" {
		return e.PrimaryKey
	}
	return attr.DefaultPrimaryKey
}

// Model returns the model name.
func (q *Query) Model() string { return q.model }

// Entity returns the resolved model, once processed.
func (q *Query) Entity() *attr.Entity { return q.entity }

// Filter returns the raw where clause.
func (q *Query) Filter() map[string]any { return q.where }

// Err returns the first error recorded by a chain method.
func (q *Query) Err() error { return q.err }

// Done reports whether Process has run.
func (q *Query) Done() bool { return q.done }

// Processed returns the typed node per where key, or nil when the query has
// not been processed successfully.
func (q *Query) Processed() map[string]expr.Node { return q.processed }

// Nodes returns the processed nodes in key order, failing with
// query.notProcessed before a successful Process.
func (q *Query) Nodes() ([]string, map[string]expr.Node, error) {
	if q.processed == nil {
		return nil, nil, odmerr.New(odmerr.CodeNotProcessed, "query on %s has not been processed", q.model).On(q.model, "")
	}
	return value.SortedKeys(q.processed), q.processed, nil
}

// SortFields returns the normalized sort order.
func (q *Query) SortFields() []SortField { return q.sort }

// LimitValue returns the limit, zero for none.
func (q *Query) LimitValue() int { return q.limit }

// PluckFields returns the selected fields.
func (q *Query) PluckFields() []string { return q.pluck }

// Fingerprint is a stable digest of the normalized query. Queries differing
// only in map key order or numeric representation share a fingerprint.
func (q *Query) Fingerprint() (string, error) {
	sortList := make([]any, len(q.sort))
	for i, s := range q.sort {
		sortList[i] = map[string]any{"field": s.Field, "desc": s.Desc}
	}
	pluck := make([]any, len(q.pluck))
	for i, p := range q.pluck {
		pluck[i] = p
	}
	where := make(map[string]any, len(q.where)+1)
	for k, v := range q.where {
		where[k] = v
	}
	if q.idMode != noID && q.entity == nil {
		where["$id"] = q.id
	}
	return value.Fingerprint(value.DomainQuery, map[string]any{
		"model": q.model,
		"where": where,
		"sort":  sortList,
		"limit": q.limit,
		"pluck": pluck,
	})
}
