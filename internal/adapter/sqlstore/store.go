// Package sqlstore keeps records as JSON documents in SQLite and compiles
// typed filter trees to json_extract predicates.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/odm/internal/adapter"
	"github.com/roach88/odm/internal/attr"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/query"
	"github.com/roach88/odm/internal/record"
	"github.com/roach88/odm/internal/value"
)

// Name is the registered adapter name.
const Name = "sqlite"

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - documents table keyed by (model, id)
const currentSchemaVersion = 1

func init() {
	adapter.Register(Name, func(l *slog.Logger) adapter.Adapter { return New(":memory:", l) })
}

// Store is a SQLite-backed adapter.Store. The database is opened on first
// use.
type Store struct {
	path     string
	logger   *slog.Logger
	compiler *SQLCompiler

	once sync.Once
	db   *sql.DB
	err  error
}

var (
	_ adapter.Store     = (*Store)(nil)
	_ adapter.Explainer = (*Store)(nil)
)

// New returns a store for the database at path. ":memory:" keeps the data
// in process.
func New(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: adapter.Logger(logger), compiler: NewSQLCompiler()}
}

// Open returns a store with its database opened and migrated.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := New(path, logger)
	if _, err := s.conn(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) conn() (*sql.DB, error) {
	s.once.Do(func() {
		s.db, s.err = open(s.path)
		if s.err == nil {
			s.logger.Debug("sqlite opened", "path", s.path)
		}
	})
	return s.db, s.err
}

// open applies the pragmas and schema. Safe to call on an existing
// database.
func open(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has one writer; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Name implements adapter.Adapter.
func (s *Store) Name() string { return Name }

// Supports implements adapter.Adapter.
func (s *Store) Supports(a attr.Attribute) bool { return supported(a) }

// Compiler returns the store's SQL compiler.
func (s *Store) Compiler() *SQLCompiler { return s.compiler }

// Insert validates values and stores them as one document.
func (s *Store) Insert(ctx context.Context, e *attr.Entity, values map[string]any) (any, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rec := record.New(e, values)
	id := rec.EnsureID()
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	doc, err := value.MarshalCanonical(rec.Values())
	if err != nil {
		return nil, odmerr.Wrap(odmerr.CodeStore, err, "encode %s %v", e.Name, id)
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO documents (model, id, doc) VALUES (?, ?, ?)",
		e.Name, idText(id), string(doc))
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return nil, odmerr.New(odmerr.CodeStore, "%s %v already exists", e.Name, id).On(e.Name, e.PrimaryKey)
	}
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", e.Name, err)
	}
	s.logger.Debug("record inserted", "model", e.Name, "id", id)
	return id, nil
}

// Find runs q and decodes the matching documents, applying pluck.
func (s *Store) Find(ctx context.Context, q *query.Query) ([]map[string]any, error) {
	sqlText, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, err
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Model(), err)
	}
	defer rows.Close()

	var out []map[string]any
	fields := q.PluckFields()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Model(), err)
		}
		var doc map[string]any
		if err := gojson.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", q.Model(), err)
		}
		if len(fields) > 0 {
			doc = pluck(doc, fields)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Model(), err)
	}
	s.logger.Debug("find", "model", q.Model(), "matched", len(out))
	return out, nil
}

// Explain implements adapter.Explainer.
func (s *Store) Explain(q *query.Query) (any, error) {
	sqlText, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sql": sqlText, "params": params}, nil
}

// Close closes the database if it was opened.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func idText(id any) string {
	if s, ok := id.(string); ok {
		return s
	}
	return value.Render(id)
}

func pluck(doc map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}
