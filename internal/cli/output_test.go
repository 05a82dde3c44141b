package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/odm/internal/adapter"
	"github.com/roach88/odm/internal/odmerr"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"}, "ignored")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(nil, "✓ done"))
	assert.Equal(t, "✓ done\n", buf.String())
}

func TestOutputFormatter_JSONFail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := odmerr.Join("schema attributes are invalid",
		odmerr.New(odmerr.CodeEnumNotArray, "enum must be an array").On("Post", "status"),
		odmerr.New(odmerr.CodeRelationMissingModel, "HasOne requires a target model").On("Post", "author"),
	)
	err := formatter.Fail(ExitFailure, "validation failed with 2 error(s)", cause)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(odmerr.CodeComposite), resp.Error.Code)
	assert.Equal(t, "validation failed with 2 error(s)", resp.Error.Message)
	require.Len(t, resp.Error.Issues, 2)
	assert.Equal(t, Issue{
		Code:      string(odmerr.CodeEnumNotArray),
		Model:     "Post",
		Attribute: "status",
		Message:   "enum must be an array",
	}, resp.Error.Issues[0])
}

func TestOutputFormatter_TextFail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	cause := odmerr.New(odmerr.CodeUnknownAttribute, "User has no attribute %q", "nope").On("User", "nope")
	err := formatter.Fail(ExitFailure, "invalid query", cause)
	require.Error(t, err)

	assert.Equal(t,
		"✗ invalid query\n  User.nope [query.unknownAttribute]: User has no attribute \"nope\"\n",
		buf.String())
}

func TestOutputFormatter_FailPlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail(ExitCommandError, "boom", errors.New("disk on fire"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "", resp.Error.Issues[0].Code)
	assert.Equal(t, "error", resp.Error.Code)
}

func TestIssuesUsesCodeMethod(t *testing.T) {
	issues := Issues(&adapter.UnknownAdapterError{Name: "oracle", Available: []string{"memory"}})
	require.Len(t, issues, 1)
	assert.Equal(t, string(odmerr.CodeUnknownAdapter), issues[0].Code)
	assert.Contains(t, issues[0].Message, "oracle")
}

func TestIssuesIncludesCause(t *testing.T) {
	cause := odmerr.Wrap(odmerr.CodeLoad, errors.New("no such file"), "cannot load declarations")
	issues := Issues(cause)
	require.Len(t, issues, 1)
	assert.Equal(t, "cannot load declarations: no such file", issues[0].Message)
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	t.Run("verbose enabled", func(t *testing.T) {
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

		formatter.VerboseLog("Loading %s", "models")
		assert.Empty(t, out.String())
		assert.Equal(t, "Loading models\n", errOut.String())
	})

	t.Run("verbose disabled", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}

		formatter.VerboseLog("Loading %s", "models")
		assert.Empty(t, buf.String())
	})

	t.Run("falls back to writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Writer: buf, Verbose: true}
		formatter.VerboseLog("hi")
		assert.Equal(t, "hi\n", buf.String())
	})
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := WrapExitError(ExitFailure, "rejected", errors.New("cause"))
	assert.Equal(t, "rejected: cause", wrapped.Error())
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}
