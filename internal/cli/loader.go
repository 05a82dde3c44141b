package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/odm/internal/adapter"
	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/record"
	"github.com/roach88/odm/internal/schema"
)

// LoadRegistry reads the declarations in dir and builds them. support may
// be nil; when set, attributes it cannot store fail the build.
func LoadRegistry(dir, primaryKey string, support schema.Supporter, logger *slog.Logger) (*schema.Registry, error) {
	decls, err := schema.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	opts := []schema.Option{schema.WithLogger(logger), schema.WithPrimaryKey(primaryKey)}
	if support != nil {
		opts = append(opts, schema.WithAdapter(support))
	}
	return schema.NewBuilder(opts...).Build(decls...)
}

// isLoadError reports whether err happened before building, meaning the
// directory or a file could not be read.
func isLoadError(err error) bool {
	return odmerr.CodeOf(err) == odmerr.CodeLoad
}

// LoadData inserts the records of a data file into s. The file maps model
// names to lists of records, in YAML or JSON. Fields are assigned through
// record accessors, so relation values may be given as nested records and
// strict controls whether ill-typed assignments fail.
func LoadData(ctx context.Context, s adapter.Store, reg *schema.Registry, path string, strict bool) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read data file: %w", err)
	}
	var doc map[string][]map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse data file %s: %w", path, err)
	}

	models := make([]string, 0, len(doc))
	for m := range doc {
		models = append(models, m)
	}
	sort.Strings(models)

	n := 0
	for _, model := range models {
		e, err := reg.Model(model)
		if err != nil {
			return n, err
		}
		for _, values := range doc[model] {
			rec := record.New(e, nil, record.Strict(strict))
			for _, field := range sortedKeys(values) {
				if err := rec.Set(field, values[field]); err != nil {
					return n, err
				}
			}
			if _, err := s.Insert(ctx, e, rec.Values()); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// delimitedRegexp matches "/pattern/flags" filter strings.
var delimitedRegexp = regexp.MustCompile(`^/(.*)/([imsU]*)$`)

// decodeFilterValue turns "/pattern/flags" strings into compiled regular
// expressions, recursing into objects and arrays. JSON has no regex
// literal, so this is how filters on the command line express one.
func decodeFilterValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		m := delimitedRegexp.FindStringSubmatch(x)
		if m == nil {
			return x, nil
		}
		src := m[1]
		if m[2] != "" {
			src = "(?" + m[2] + ")" + src
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("invalid regular expression %s: %w", x, err)
		}
		return re, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			d, err := decodeFilterValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			d, err := decodeFilterValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
