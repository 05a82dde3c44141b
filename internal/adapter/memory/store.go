package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/odm/internal/adapter"
	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/query"
	"github.com/roach88/odm/internal/record"
	"github.com/roach88/odm/internal/value"
)

func init() {
	adapter.Register(Name, func(l *slog.Logger) adapter.Adapter { return New(l) })
}

// Store keeps records per model in insertion order.
type Store struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	ev          *Evaluator
	collections map[string][]map[string]any
}

var (
	_ adapter.Store = (*Store)(nil)
	_ Resolver      = (*Store)(nil)
)

// New returns an empty store.
func New(logger *slog.Logger) *Store {
	return &Store{
		logger:      adapter.Logger(logger),
		ev:          NewEvaluator(nil),
		collections: make(map[string][]map[string]any),
	}
}

// Name implements adapter.Adapter.
func (s *Store) Name() string { return Name }

// Supports implements adapter.Adapter. Every kind is supported.
func (s *Store) Supports(attr.Attribute) bool { return true }

// Evaluator returns the store's evaluator.
func (s *Store) Evaluator() *Evaluator { return s.ev }

// Insert validates values against e and stores a copy. A missing primary
// key is filled by record.EnsureID. It returns the primary key.
func (s *Store) Insert(ctx context.Context, e *attr.Entity, values map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := record.New(e, values)
	pk := primaryKey(e)
	rec.EnsureID()
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.collections[e.Name] {
		if value.Equal(have[pk], rec.Values()[pk]) {
			return nil, odmerr.New(odmerr.CodeStore, "%s %v already exists", e.Name, rec.ID()).On(e.Name, pk)
		}
	}
	s.collections[e.Name] = append(s.collections[e.Name], rec.Values())
	s.logger.Debug("record inserted", "model", e.Name, "id", rec.ID())
	return rec.ID(), nil
}

// Find returns copies of the records matching q, sorted, limited and
// plucked. q must be processed.
func (s *Store) Find(ctx context.Context, q *query.Query) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, _, err := q.Nodes(); err != nil {
		return nil, err
	}

	snap := s.snapshot()
	ev := s.ev.WithResolver(snap)

	var out []map[string]any
	for _, rec := range snap[q.Model()] {
		ok, err := ev.Match(q, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}

	sortRecords(out, q.SortFields())
	if n := q.LimitValue(); n > 0 && len(out) > n {
		out = out[:n]
	}
	results := make([]map[string]any, len(out))
	for i, rec := range out {
		results[i] = project(rec, q.PluckFields())
	}
	s.logger.Debug("find", "model", q.Model(), "matched", len(results))
	return results, nil
}

// Resolve implements Resolver over the current contents.
func (s *Store) Resolve(ref attr.Ref) ([]map[string]any, error) {
	return s.snapshot().Resolve(ref)
}

// Load returns the records ref points at as record views of e.
func (s *Store) Load(ctx context.Context, e *attr.Entity, ref attr.Ref) ([]*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record, len(recs))
	for i, r := range recs {
		out[i] = record.New(e, r)
	}
	return out, nil
}

// Len returns the number of records stored for model.
func (s *Store) Len(model string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[model])
}

// Close implements adapter.Store.
func (s *Store) Close() error { return nil }

// snapshot is a point-in-time view of the collections.
type snapshot map[string][]map[string]any

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(snapshot, len(s.collections))
	for model, recs := range s.collections {
		snap[model] = append([]map[string]any(nil), recs...)
	}
	return snap
}

func (snap snapshot) Resolve(ref attr.Ref) ([]map[string]any, error) {
	if ref.Empty() {
		return nil, nil
	}
	var out []map[string]any
	for _, rec := range snap[ref.Model] {
		if value.Equal(rec[ref.Field], ref.Value) {
			out = append(out, rec)
			if !ref.Many {
				break
			}
		}
	}
	return out, nil
}

func sortRecords(recs []map[string]any, fields []query.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, f := range fields {
			c := compareNullsFirst(recs[i][f.Field], recs[j][f.Field])
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareNullsFirst(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := value.Compare(a, b)
	return c
}

func project(rec map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		out := make(map[string]any, len(rec))
		for k, v := range rec {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}
