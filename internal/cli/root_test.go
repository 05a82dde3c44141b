package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogYAML = `
models:
  User:
    name: String
    age: {type: Number, required: false}
    posts: {hasMany: Post, via: author}
    address: {nestOne: Address, required: false}
  Post:
    title: String
    author: {hasOne: User}
clusters:
  Address:
    city: String
`

const blogData = `
User:
  - {id: u1, name: Geoff, age: 7, address: {city: Oslo}}
  - {id: u2, name: Ada, age: 11}
Post:
  - {id: p1, title: Hello, author: u1}
  - {id: p2, title: Notes, author: u2}
`

// specsDir writes files into a fresh directory and returns it.
func specsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "odm", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, cmdName := range []string{"validate", "query", "kinds"} {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "kinds", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFileSetsDefaults(t *testing.T) {
	dir := specsDir(t, map[string]string{"blog.yaml": blogYAML})
	cfg := filepath.Join(t.TempDir(), "odm.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("specs_dir: "+dir+"\nformat: json\n"), 0o644))

	out, err := execute(t, "validate", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "ok", decode(t, out).Status)
}

func TestKinds(t *testing.T) {
	out, err := execute(t, "kinds")
	require.NoError(t, err)
	assert.Contains(t, out, "HasOne")
	assert.Contains(t, out, "hasOne->model")

	out, err = execute(t, "kinds", "--format", "json")
	require.NoError(t, err)
	resp := decode(t, out)
	kinds := resp.Data.([]any)
	require.NotEmpty(t, kinds)
	assert.Equal(t, "String", kinds[0].(map[string]any)["name"])
}
