package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/odm/internal/odmerr"
)

func issueCodes(resp CLIResponse) []string {
	var out []string
	for _, is := range resp.Error.Issues {
		out = append(out, is.Code)
	}
	return out
}

func TestValidateValidSpecs(t *testing.T) {
	dir := specsDir(t, map[string]string{"blog.yaml": blogYAML})

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 2 model(s), 1 cluster(s) valid")
	assert.Contains(t, out, "author")
	assert.Contains(t, out, "HasOne -> User")
}

func TestValidateValidSpecsJSON(t *testing.T) {
	dir := specsDir(t, map[string]string{"blog.yaml": blogYAML})

	out, err := execute(t, "validate", dir, "--format", "json")
	require.NoError(t, err)
	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["valid"])
	assert.Len(t, data["fingerprint"], 64)
	assert.Len(t, data["entities"], 3)
}

func TestValidateCUESpecs(t *testing.T) {
	dir := specsDir(t, map[string]string{"blog.cue": `package models

models: User: name: "String"
`})
	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 model(s)")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	dir := specsDir(t, map[string]string{"bad.yaml": `
models:
  Post:
    author: {hasOne: Writer}
    status: {type: String, enum: draft}
`})

	out, err := execute(t, "validate", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.ElementsMatch(t, []string{
		string(odmerr.CodeRelationInvalidModel),
		string(odmerr.CodeEnumNotArray),
	}, issueCodes(resp))
	for _, is := range resp.Error.Issues {
		assert.Equal(t, "Post", is.Model)
	}
}

func TestValidateAdapterSupport(t *testing.T) {
	dir := specsDir(t, map[string]string{"blog.yaml": blogYAML})

	_, err := execute(t, "validate", dir, "--adapter", "memory")
	require.NoError(t, err)

	out, err := execute(t, "validate", dir, "--adapter", "sqlite")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "User.posts")
	assert.Contains(t, out, string(odmerr.CodeUnsupportedAttribute))
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := execute(t, "validate", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, string(odmerr.CodeLoad))
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "no declaration files")
}

func TestValidateUnknownAdapter(t *testing.T) {
	dir := specsDir(t, map[string]string{"blog.yaml": blogYAML})
	out, err := execute(t, "validate", dir, "--adapter", "oracle", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, string(odmerr.CodeUnknownAdapter), decode(t, out).Error.Code)
}
