package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/value"
)

// SourceError locates a load failure in a declaration file.
type SourceError struct {
	File    string
	Pos     token.Pos
	Message string
}

func (e *SourceError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

func loadError(file string, pos token.Pos, format string, args ...any) error {
	src := &SourceError{File: file, Pos: pos, Message: fmt.Sprintf(format, args...)}
	return odmerr.Wrap(odmerr.CodeLoad, src, "cannot load declarations")
}

// fromCUEError keeps the position of the first CUE error.
func fromCUEError(file string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return loadError(file, token.NoPos, "%v", err)
	}
	first := errs[0]
	var pos token.Pos
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		pos = positions[0]
	}
	return loadError(file, pos, "%v", first)
}

// document is the top-level shape of a declaration file.
type document struct {
	Models   map[string]any `yaml:"models" json:"models"`
	Clusters map[string]any `yaml:"clusters" json:"clusters"`
}

// LoadYAML parses a YAML declaration document.
func LoadYAML(data []byte, source string) ([]EntityDecl, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, loadError(source, token.NoPos, "parse yaml: %v", err)
	}
	return doc.decls(source)
}

// LoadCUE extracts declarations from a built CUE value.
func LoadCUE(v cue.Value, source string) ([]EntityDecl, error) {
	if err := v.Err(); err != nil {
		return nil, fromCUEError(source, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUEError(source, err)
	}
	var doc document
	for _, part := range []struct {
		path string
		dst  *map[string]any
	}{
		{"models", &doc.Models},
		{"clusters", &doc.Clusters},
	} {
		sub := v.LookupPath(cue.ParsePath(part.path))
		if !sub.Exists() {
			continue
		}
		if err := sub.Decode(part.dst); err != nil {
			return nil, fromCUEError(source, err)
		}
	}
	return doc.decls(source)
}

// LoadCUEString compiles CUE source text and extracts its declarations.
func LoadCUEString(src, source string) ([]EntityDecl, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(source))
	return LoadCUE(v, source)
}

// LoadDir reads every *.yaml and *.yml file in dir, plus the CUE package in
// dir when it has *.cue files. Entity names must be unique across files.
func LoadDir(dir string) ([]EntityDecl, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, loadError(dir, token.NoPos, "declarations directory: %v", err)
	}
	if !info.IsDir() {
		return nil, loadError(dir, token.NoPos, "not a directory")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, loadError(dir, token.NoPos, "scan: %v", err)
	}

	var decls []EntityDecl
	hasCUE := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".yaml", ".yml":
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, loadError(path, token.NoPos, "read: %v", err)
			}
			ds, err := LoadYAML(data, path)
			if err != nil {
				return nil, err
			}
			decls = append(decls, ds...)
		case ".cue":
			hasCUE = true
		}
	}

	if hasCUE {
		ds, err := loadCUEDir(dir)
		if err != nil {
			return nil, err
		}
		decls = append(decls, ds...)
	}

	if len(decls) == 0 {
		return nil, loadError(dir, token.NoPos, "no declaration files found")
	}
	return decls, nil
}

func loadCUEDir(dir string) ([]EntityDecl, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, loadError(dir, token.NoPos, "no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fromCUEError(dir, inst.Err)
	}
	v := cuecontext.New().BuildInstance(inst)
	return LoadCUE(v, dir)
}

func (d document) decls(source string) ([]EntityDecl, error) {
	var out []EntityDecl
	var errs []error
	for _, group := range []struct {
		cluster bool
		m       map[string]any
	}{
		{false, d.Models},
		{true, d.Clusters},
	} {
		names := make([]string, 0, len(group.m))
		for n := range group.m {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			decl, err := entityDecl(n, group.cluster, group.m[n], source)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, decl)
		}
	}
	if err := odmerr.Join("invalid declaration file "+source, errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func entityDecl(name string, cluster bool, raw any, source string) (EntityDecl, error) {
	decl := EntityDecl{Name: name, Cluster: cluster, Source: source}
	if raw == nil {
		decl.Attributes = map[string]any{}
		return decl, nil
	}
	m, ok := value.AsMap(raw)
	if !ok {
		return decl, odmerr.New(odmerr.CodeInvalidDeclaration, "%s must be a mapping of attributes", name).
			On(name, "").With("source", source)
	}

	if structured, ok := m["attributes"]; ok {
		attrs, ok := value.AsMap(structured)
		if !ok {
			return decl, odmerr.New(odmerr.CodeInvalidDeclaration, "%s.attributes must be a mapping", name).
				On(name, "").With("source", source)
		}
		decl.Attributes = attrs
		if pk, ok := m["primaryKey"].(string); ok {
			decl.PrimaryKey = pk
		}
		return decl, nil
	}
	decl.Attributes = m
	return decl, nil
}
