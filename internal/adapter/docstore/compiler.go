// Package docstore compiles typed filter trees into document-store filter
// documents (bson) with find options for the mongo driver.
//
// Nested clusters are addressed with dotted paths and arrays of clusters
// with $elemMatch. Relations to other models need a join and are reported
// as unsupported expressions.
package docstore

import (
	"log/slog"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/odm/internal/adapter"
	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/expr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/query"
	"github.com/roach88/odm/internal/value"
)

// Name is the registered adapter name.
const Name = "docstore"

func init() {
	adapter.Register(Name, func(l *slog.Logger) adapter.Adapter { return New(l) })
}

// Func compiles the node validated against a into a filter fragment over
// the document path key.
type Func func(c *Compiler, key string, a attr.Attribute, n expr.Node) (bson.M, error)

// Compiler turns processed queries into filter documents.
type Compiler struct {
	procs  *adapter.Processors[Func]
	logger *slog.Logger
}

var _ adapter.Explainer = (*Compiler)(nil)

// New returns a compiler with processors for every builtin expression.
func New(logger *slog.Logger) *Compiler {
	procs := adapter.NewProcessors[Func](Name).
		Register(expr.Equality, compileEquality).
		Register(expr.Inequality, compileInequality).
		Register(expr.Comparison, compileComparison).
		Register(expr.In, compileIn).
		Register(expr.Logical, compileLogical).
		Register(expr.Regex, compileRegex).
		Register(expr.Has, compileHas).
		Register(expr.Includes, compileIncludes)
	return &Compiler{procs: procs, logger: adapter.Logger(logger)}
}

// Name implements adapter.Adapter.
func (c *Compiler) Name() string { return Name }

// Supports implements adapter.Adapter. Documents store every kind.
func (c *Compiler) Supports(attr.Attribute) bool { return true }

// Processors returns the compiler's registry.
func (c *Compiler) Processors() *adapter.Processors[Func] { return c.procs }

// EvaluateExpr compiles n against the path key.
func (c *Compiler) EvaluateExpr(key string, a attr.Attribute, n expr.Node) (bson.M, error) {
	fn, err := c.procs.Lookup(n.Type)
	if err != nil {
		return nil, err
	}
	return fn(c, key, a, n)
}

// Compiled is the find request for one query.
type Compiled struct {
	Collection string
	Filter     bson.M
	Sort       bson.D
	Limit      int64
	Projection bson.M
}

// Compile translates a processed query.
func (c *Compiler) Compile(q *query.Query) (*Compiled, error) {
	keys, nodes, err := q.Nodes()
	if err != nil {
		return nil, err
	}
	frags := make([]bson.M, 0, len(keys))
	for _, key := range keys {
		n := nodes[key]
		frag, err := c.EvaluateExpr(key, n.Attr, n)
		if err != nil {
			return nil, err
		}
		frags = append(frags, frag)
	}

	out := &Compiled{
		Collection: q.Model(),
		Filter:     conjoin(frags),
		Limit:      int64(q.LimitValue()),
	}
	for _, f := range q.SortFields() {
		dir := 1
		if f.Desc {
			dir = -1
		}
		out.Sort = append(out.Sort, bson.E{Key: f.Field, Value: dir})
	}
	if fields := q.PluckFields(); len(fields) > 0 {
		out.Projection = bson.M{}
		for _, f := range fields {
			out.Projection[f] = 1
		}
	}
	c.logger.Debug("compiled", "model", q.Model(), "keys", len(keys))
	return out, nil
}

// Explain implements adapter.Explainer.
func (c *Compiler) Explain(q *query.Query) (any, error) {
	compiled, err := c.Compile(q)
	if err != nil {
		return nil, err
	}
	return compiled.Document(), nil
}

// FindOptions returns the driver options for the compiled request.
func (cq *Compiled) FindOptions() *options.FindOptions {
	opts := options.Find()
	if len(cq.Sort) > 0 {
		opts.SetSort(cq.Sort)
	}
	if cq.Limit > 0 {
		opts.SetLimit(cq.Limit)
	}
	if cq.Projection != nil {
		opts.SetProjection(cq.Projection)
	}
	return opts
}

// Document renders the request as plain maps and lists suitable for
// canonical JSON. Regular expressions render as {"$regex", "$options"}
// and object ids as {"$oid"}.
func (cq *Compiled) Document() map[string]any {
	doc := map[string]any{
		"collection": cq.Collection,
		"filter":     plain(cq.Filter),
	}
	if len(cq.Sort) > 0 {
		doc["sort"] = plain(cq.Sort)
	}
	if cq.Limit > 0 {
		doc["limit"] = cq.Limit
	}
	if cq.Projection != nil {
		doc["projection"] = plain(cq.Projection)
	}
	return doc
}

func plain(v any) any {
	switch x := v.(type) {
	case bson.M:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	case bson.D:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = map[string]any{e.Key: plain(e.Value)}
		}
		return out
	case bson.A:
		return plain([]any(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case primitive.Regex:
		return map[string]any{"$regex": x.Pattern, "$options": x.Options}
	case primitive.ObjectID:
		return map[string]any{"$oid": x.Hex()}
	}
	return v
}

// conjoin merges fragments into one document, falling back to $and when
// two fragments share a key.
func conjoin(frags []bson.M) bson.M {
	out := bson.M{}
	for _, f := range frags {
		for k := range f {
			if _, dup := out[k]; dup {
				return bson.M{"$and": toA(frags)}
			}
		}
		for k, v := range f {
			out[k] = v
		}
	}
	return out
}

func toA(frags []bson.M) bson.A {
	out := make(bson.A, len(frags))
	for i, f := range frags {
		out[i] = f
	}
	return out
}

func native(a attr.Attribute, v any) (any, error) {
	if conv, ok := a.(attr.NativeConverter); ok {
		return conv.ToNative(v)
	}
	return v, nil
}

func compileEquality(_ *Compiler, key string, a attr.Attribute, n expr.Node) (bson.M, error) {
	v, err := native(a, n.Expr)
	if err != nil {
		return nil, err
	}
	return bson.M{key: v}, nil
}

func compileInequality(_ *Compiler, key string, a attr.Attribute, n expr.Node) (bson.M, error) {
	v, err := native(a, n.Operand)
	if err != nil {
		return nil, err
	}
	return bson.M{key: bson.M{"$ne": v}}, nil
}

var comparisonOps = map[string]string{
	expr.OpLT:  "$lt",
	expr.OpGT:  "$gt",
	expr.OpLTE: "$lte",
	expr.OpGTE: "$gte",
}

func compileComparison(_ *Compiler, key string, a attr.Attribute, n expr.Node) (bson.M, error) {
	op, ok := comparisonOps[n.Operator]
	if !ok {
		return nil, odmerr.New(odmerr.CodeUnsupportedExpr, "%s: unknown comparison %q", Name, n.Operator).On(a.Model(), a.Name())
	}
	v, err := native(a, n.Operand)
	if err != nil {
		return nil, err
	}
	return bson.M{key: bson.M{op: v}}, nil
}

func compileIn(_ *Compiler, key string, a attr.Attribute, n expr.Node) (bson.M, error) {
	items, _ := value.AsArray(n.Operand)
	list := make(bson.A, len(items))
	for i, it := range items {
		v, err := native(a, it)
		if err != nil {
			return nil, err
		}
		list[i] = v
	}
	return bson.M{key: bson.M{"$in": list}}, nil
}

func compileLogical(c *Compiler, key string, a attr.Attribute, n expr.Node) (bson.M, error) {
	branches := make(bson.A, len(n.Children))
	for i, child := range n.Children {
		frag, err := c.EvaluateExpr(key, a, child)
		if err != nil {
			return nil, err
		}
		branches[i] = frag
	}
	return bson.M{"$" + n.Operator: branches}, nil
}

func compileRegex(_ *Compiler, key string, _ attr.Attribute, n expr.Node) (bson.M, error) {
	re := n.Operand.(*regexp.Regexp)
	pattern, flags := splitFlags(re.String())
	return bson.M{key: bson.M{"$regex": primitive.Regex{Pattern: pattern, Options: flags}}}, nil
}

// splitFlags moves a leading (?flags) group into regex options.
func splitFlags(src string) (string, string) {
	if !strings.HasPrefix(src, "(?") {
		return src, ""
	}
	end := strings.IndexByte(src, ')')
	if end < 0 {
		return src, ""
	}
	flags := src[2:end]
	if flags == "" || strings.Trim(flags, "ims") != "" {
		return src, ""
	}
	return src[end+1:], flags
}

// compileHas expands the sub-fields of an embedded object into dotted
// paths. A relation to another model is not embedded and cannot be
// matched without a join.
func compileHas(c *Compiler, key string, a attr.Attribute, n expr.Node) (bson.M, error) {
	if _, ok := a.(attr.Relational); ok {
		return nil, joinRequired(a, n)
	}
	frags := make([]bson.M, 0, len(n.Fields))
	for _, f := range n.FieldNames() {
		sub := n.Fields[f]
		frag, err := c.EvaluateExpr(key+"."+f, sub.Attr, sub)
		if err != nil {
			return nil, err
		}
		frags = append(frags, frag)
	}
	return conjoin(frags), nil
}

// compileIncludes matches an array of embedded objects with $elemMatch.
func compileIncludes(c *Compiler, key string, a attr.Attribute, n expr.Node) (bson.M, error) {
	if _, ok := a.(attr.Relational); ok {
		return nil, joinRequired(a, n)
	}
	frags := make([]bson.M, 0, len(n.Fields))
	for _, f := range n.FieldNames() {
		sub := n.Fields[f]
		frag, err := c.EvaluateExpr(f, sub.Attr, sub)
		if err != nil {
			return nil, err
		}
		frags = append(frags, frag)
	}
	return bson.M{key: bson.M{"$elemMatch": conjoin(frags)}}, nil
}

func joinRequired(a attr.Attribute, n expr.Node) error {
	return odmerr.New(odmerr.CodeUnsupportedExpr, "%s cannot evaluate %s on relation %s (requires a join)", Name, n.Type, a).
		On(a.Model(), a.Name()).
		With("adapter", Name)
}
