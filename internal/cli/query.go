package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/odm/internal/adapter"
	"github.com/roach88/odm/internal/adapter/sqlstore"
	"github.com/roach88/odm/internal/expr"
	"github.com/roach88/odm/internal/query"
	"github.com/roach88/odm/internal/value"
)

// QueryOptions holds the flags of the query command.
type QueryOptions struct {
	Model   string
	Filter  string
	Sort    string
	Limit   int
	Pluck   string
	Adapter string
	Data    string
}

// QueryResult is the JSON payload of a successful query.
type QueryResult struct {
	Model       string           `json:"model"`
	Adapter     string           `json:"adapter"`
	Fingerprint string           `json:"fingerprint"`
	Nodes       map[string]any   `json:"nodes"`
	Explain     any              `json:"explain,omitempty"`
	Matched     *int             `json:"matched,omitempty"`
	Records     []map[string]any `json:"records,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	qo := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [specs-dir]",
		Short: "Validate a query and compile or run it",
		Long: `Validate a JSON filter against a model and show the typed expression
tree. Backends that compile (docstore, sqlite) print what they would run;
with --data, records are loaded into the backend and the matches printed.

Strings of the form "/pattern/flags" in the filter are regular expressions.`,
		Example: `  odm query models --model User --filter '{"age": {"and": [{">": 5}, {"<": 10}]}}'
  odm query models --model User --filter '{"name": "/^ge/i"}' --adapter docstore
  odm query models --model Post --filter '{"author": {"name": "Geoff"}}' --data fixtures.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.ensure(cmd); err != nil {
				return err
			}
			if !cmd.Flags().Changed("adapter") {
				qo.Adapter = rootOpts.Config.Adapter
			}
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			return runQuery(cmd.Context(), rootOpts, qo, rootOpts.Config.ResolveSpecsDir(dir), cmd)
		},
	}

	cmd.Flags().StringVarP(&qo.Model, "model", "m", "", "model to query (required)")
	cmd.Flags().StringVarP(&qo.Filter, "filter", "f", "", "filter as JSON: a where object, an id, or a list of ids")
	cmd.Flags().StringVar(&qo.Sort, "sort", "", `sort fields, e.g. "name,-age"`)
	cmd.Flags().IntVar(&qo.Limit, "limit", 0, "maximum number of records")
	cmd.Flags().StringVar(&qo.Pluck, "pluck", "", "comma-separated fields to return")
	cmd.Flags().StringVar(&qo.Adapter, "adapter", "", "backend: memory, docstore or sqlite (default from config)")
	cmd.Flags().StringVar(&qo.Data, "data", "", "YAML or JSON file of records to load before running")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func runQuery(ctx context.Context, opts *RootOptions, qo *QueryOptions, specsDir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	backend, err := openAdapter(opts, qo.Adapter)
	if err != nil {
		return formatter.Fail(ExitCommandError, "unknown adapter", err)
	}
	if store, ok := backend.(adapter.Store); ok {
		defer store.Close()
	}

	// The backend must be able to store every attribute before any query
	// or data reaches it.
	reg, err := LoadRegistry(specsDir, opts.Config.PrimaryKey, backend, opts.Logger)
	if err != nil {
		if isLoadError(err) {
			return formatter.Fail(ExitCommandError, "cannot load declarations", err)
		}
		return formatter.Fail(ExitFailure, "invalid declarations", err)
	}

	raw, err := parseFilter(qo.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid --filter", err)
	}
	q, err := query.New(qo.Model, raw, query.Options{Sort: sortSpec(qo.Sort), Limit: qo.Limit, Pluck: splitList(qo.Pluck)})
	if err != nil {
		return formatter.Fail(ExitFailure, "invalid query", err)
	}
	if err := q.Process(reg, expr.Default()); err != nil {
		return formatter.Fail(ExitFailure, "invalid query", err)
	}
	formatter.VerboseLog("Processed query on %s with %d key(s)", q.Model(), len(q.Processed()))

	fp, err := q.Fingerprint()
	if err != nil {
		return formatter.Fail(ExitFailure, "cannot fingerprint query", err)
	}
	result := QueryResult{Model: q.Model(), Adapter: backend.Name(), Fingerprint: fp, Nodes: describeNodes(q)}

	store, isStore := backend.(adapter.Store)
	switch {
	case qo.Data != "" && isStore:
		n, err := LoadData(ctx, store, reg, qo.Data, opts.Config.StrictAssign)
		if err != nil {
			return formatter.Fail(ExitFailure, "cannot load data", err)
		}
		formatter.VerboseLog("Loaded %d record(s) from %s", n, qo.Data)
		recs, err := store.Find(ctx, q)
		if err != nil {
			return formatter.Fail(ExitFailure, "query failed", err)
		}
		matched := len(recs)
		result.Matched, result.Records = &matched, recs
	case qo.Data != "":
		return formatter.Fail(ExitCommandError, "--data needs a backend that stores records",
			fmt.Errorf("adapter %s only compiles queries", backend.Name()))
	default:
		if ex, ok := backend.(adapter.Explainer); ok {
			out, err := ex.Explain(q)
			if err != nil {
				return formatter.Fail(ExitFailure, "cannot compile query", err)
			}
			result.Explain = out
		}
	}

	return formatter.Success(result, queryText(result))
}

// openAdapter creates the named backend. A configured sqlite_path takes
// the place of the in-memory database.
func openAdapter(opts *RootOptions, name string) (adapter.Adapter, error) {
	if name == sqlstore.Name && opts.Config.SQLitePath != "" && opts.Config.SQLitePath != ":memory:" {
		return sqlstore.New(opts.Config.SQLitePath, opts.Logger), nil
	}
	return adapter.New(name, opts.Logger)
}

func parseFilter(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	return decodeFilterValue(raw)
}

func sortSpec(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// describeNodes renders the typed tree of q as plain maps.
func describeNodes(q *query.Query) map[string]any {
	keys, nodes, err := q.Nodes()
	if err != nil {
		return nil
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = describeNode(nodes[k])
	}
	return out
}

func describeNode(n expr.Node) map[string]any {
	d := map[string]any{"type": n.Type}
	if n.Operator != "" {
		d["operator"] = n.Operator
	}
	if len(n.Children) > 0 {
		children := make([]any, len(n.Children))
		for i, c := range n.Children {
			children[i] = describeNode(c)
		}
		d["children"] = children
	}
	if len(n.Fields) > 0 {
		fields := make(map[string]any, len(n.Fields))
		for _, f := range n.FieldNames() {
			fields[f] = describeNode(n.Fields[f])
		}
		d["fields"] = fields
	}
	return d
}

func queryText(r QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s via %s (%s)\n", r.Model, r.Adapter, r.Fingerprint[:12])
	fmt.Fprintf(&b, "nodes: %s\n", value.Render(r.Nodes))
	if r.Explain != nil {
		fmt.Fprintf(&b, "explain: %s\n", value.Render(r.Explain))
	}
	if r.Matched != nil {
		fmt.Fprintf(&b, "%d record(s)\n", *r.Matched)
		for _, rec := range r.Records {
			fmt.Fprintf(&b, "  %s\n", value.Render(rec))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
