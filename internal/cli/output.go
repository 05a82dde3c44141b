package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/odm/internal/odmerr"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Declarations or query rejected
	ExitCommandError = 2 // Command error (missing paths, bad flags, unknown adapter)
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // failure details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Issues  []Issue `json:"issues,omitempty"`
}

// Issue is one located problem from an aggregated error.
type Issue struct {
	Code      string `json:"code"`
	Model     string `json:"model,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Message   string `json:"message"`
}

// Issues flattens err into located issues.
func Issues(err error) []Issue {
	var out []Issue
	for _, e := range odmerr.Flatten(err) {
		var oe *odmerr.Error
		if errors.As(e, &oe) {
			msg := oe.Message
			if oe.Cause != nil {
				msg = fmt.Sprintf("%s: %v", msg, oe.Cause)
			}
			out = append(out, Issue{Code: string(oe.Code), Model: oe.Model, Attribute: oe.Attribute, Message: msg})
			continue
		}
		code := odmerr.CodeOf(e)
		var coded interface{ Code() odmerr.Code }
		if errors.As(e, &coded) {
			code = coded.Code()
		}
		out = append(out, Issue{Code: string(code), Message: e.Error()})
	}
	return out
}

// Success outputs a successful result in the configured format. text is
// what text mode prints.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(exitCode int, summary string, err error) error {
	issues := Issues(err)
	code := string(odmerr.CodeOf(err))
	if code == "" && len(issues) > 0 {
		code = issues[0].Code
	}
	if code == "" {
		code = "error"
	}
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: summary, Issues: issues},
		}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(f.Writer, "✗ %s\n", summary)
		for _, is := range issues {
			loc := is.Model
			if is.Attribute != "" {
				loc += "." + is.Attribute
			}
			if loc != "" {
				fmt.Fprintf(f.Writer, "  %s [%s]: %s\n", loc, is.Code, is.Message)
			} else {
				fmt.Fprintf(f.Writer, "  [%s]: %s\n", is.Code, is.Message)
			}
		}
	}
	return WrapExitError(exitCode, summary, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// JSON output stays clean because the message goes to ErrWriter.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
