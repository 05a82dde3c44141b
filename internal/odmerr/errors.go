// Package odmerr defines the error taxonomy shared by schema building, query
// validation and backend compilation.
//
// Every failure carries a dot-notation Code so callers can branch on the
// kind of failure without parsing messages. Decomposable validations (enum
// checks, nested and polymorphic sub-records, whole-schema builds) aggregate
// into a Composite so a single report shows every problem.
package odmerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies a failure kind in dot notation.
type Code string

// Configuration-time codes (schema build).
const (
	CodeRelationMissingModel  Code = "attr.relation.missingModel"
	CodeRelationInvalidModel  Code = "attr.relation.invalidModel"
	CodeRelationMissingVia    Code = "attr.relation.missingVia"
	CodeRelationInvalidVia    Code = "attr.relation.invalidVia"
	CodeNestingMissingCluster Code = "attr.nesting.missingCluster"
	CodeNestingInvalidCluster Code = "attr.nesting.invalidCluster"
	CodePolyMissingTypes      Code = "attr.poly.missingTypes"
	CodePolyInvalidType       Code = "attr.poly.invalidType"
	CodePolyMissingTag        Code = "attr.poly.missingTag"
	CodeEnumNotArray          Code = "attr.enum.notArray"
	CodeEnumInvalidType       Code = "attr.enum.invalidType"
	CodeEnumDisabled          Code = "attr.enum.disabled"
	CodeValidatorInvalid      Code = "attr.validator.invalid"
	CodeDefaultInvalid        Code = "attr.default.invalid"

	CodeUnknownKind        Code = "schema.unknownKind"
	CodeDuplicateKind      Code = "schema.duplicateKind"
	CodeDuplicateEntity    Code = "schema.duplicateEntity"
	CodeInvalidDeclaration Code = "schema.invalidDeclaration"
	CodeLoad               Code = "schema.load"
)

// Value validation codes.
const (
	CodeValidationType      Code = "attr.validation.type"
	CodeValidationRequired  Code = "attr.validation.required"
	CodeValidationEnum      Code = "attr.validation.enum"
	CodeValidationValidator Code = "attr.validation.validator"
	CodeValidationNotArray  Code = "attr.validation.notArray"
	CodeValidationDate      Code = "attr.validation.date"
	CodeValidationObjectID  Code = "attr.validation.objectId"
)

// Record access codes.
const (
	CodeUnknownProperty Code = "record.unknownProperty"
	CodeReadOnly        Code = "record.readOnly"
	CodeStore           Code = "record.store"
)

// Query-time codes (pre-execution).
const (
	CodeUnknownModel      Code = "query.unknownModel"
	CodeUnknownAttribute  Code = "query.unknownAttribute"
	CodeUnrecognizedExpr  Code = "query.unrecognizedExpr"
	CodeInvalidIDList     Code = "query.invalidIdList"
	CodeInvalidShorthand  Code = "query.invalidShorthand"
	CodeInvalidOption     Code = "query.invalidOption"
	CodeAlreadyProcessed  Code = "query.alreadyProcessed"
	CodeNotProcessed      Code = "query.notProcessed"
	CodeDuplicateGrammar  Code = "query.duplicateExpression"
)

// Compile-time codes (per backend).
const (
	CodeUnsupportedExpr      Code = "adapter.unsupportedExpr"
	CodeUnsupportedAttribute Code = "adapter.unsupportedAttribute"
	CodeUnknownAdapter       Code = "adapter.unknown"
)

// CodeComposite marks an aggregate of several errors.
const CodeComposite Code = "composite"

// Error is a single classified failure.
type Error struct {
	// Code identifies the failure kind.
	Code Code

	// Message is a human-readable description.
	Message string

	// Model names the owning model or cluster, when known.
	Model string

	// Attribute names the attribute, when known.
	Attribute string

	// Details contains additional structured context.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	switch {
	case e.Model != "" && e.Attribute != "":
		fmt.Fprintf(&b, " (model=%s, attribute=%s)", e.Model, e.Attribute)
	case e.Model != "":
		fmt.Fprintf(&b, " (model=%s)", e.Model)
	case e.Attribute != "":
		fmt.Fprintf(&b, " (attribute=%s)", e.Attribute)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that carries cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// On sets the model and attribute and returns e.
func (e *Error) On(model, attribute string) *Error {
	e.Model = model
	e.Attribute = attribute
	return e
}

// With adds a detail entry and returns e.
func (e *Error) With(key string, v any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = v
	return e
}

// Composite aggregates several errors into one payload.
type Composite struct {
	// Message summarizes what was being validated.
	Message string

	// Errors are the collected sub-errors, in discovery order.
	Errors []error
}

// Error summarizes the first few sub-errors.
func (c *Composite) Error() string {
	const maxShown = 3
	var b strings.Builder
	b.WriteString(string(CodeComposite))
	b.WriteString(": ")
	if c.Message != "" {
		b.WriteString(c.Message)
		b.WriteString(": ")
	}
	for i, err := range c.Errors {
		if i == maxShown {
			fmt.Fprintf(&b, "; ... (total %d)", len(c.Errors))
			break
		}
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the sub-errors to errors.Is and errors.As.
func (c *Composite) Unwrap() []error {
	return c.Errors
}

// Codes returns the codes of every leaf error, sorted and de-duplicated.
func (c *Composite) Codes() []Code {
	seen := make(map[Code]struct{})
	for _, err := range Flatten(c) {
		seen[CodeOf(err)] = struct{}{}
	}
	codes := make([]Code, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Join returns nil for no errors, the error itself for one, and a Composite
// otherwise. Nil entries are skipped.
func Join(message string, errs ...error) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Composite{Message: message, Errors: kept}
}

// Collector accumulates errors without failing fast.
type Collector struct {
	errs []error
}

// Add records err if it is non-nil.
func (c *Collector) Add(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Len returns the number of collected errors.
func (c *Collector) Len() int {
	return len(c.errs)
}

// Err returns the collected errors as a Composite, or nil. Unlike Join, a
// single error is still wrapped so callers always see CodeComposite when at
// least one error was collected.
func (c *Collector) Err(message string) error {
	if len(c.errs) == 0 {
		return nil
	}
	return &Composite{Message: message, Errors: c.errs}
}

// Flatten returns every leaf error in err, descending into composites. An
// *Error found before any Composite in the wrap chain is a leaf.
func Flatten(err error) []error {
	if err == nil {
		return nil
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		switch x := cur.(type) {
		case *Composite:
			var out []error
			for _, sub := range x.Errors {
				out = append(out, Flatten(sub)...)
			}
			return out
		case *Error:
			return []error{err}
		}
	}
	return []error{err}
}

// CodeOf returns the code of err: the Code of the outermost *Error,
// CodeComposite for a Composite, or "" for anything else.
func CodeOf(err error) Code {
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		switch x := cur.(type) {
		case *Composite:
			return CodeComposite
		case *Error:
			return x.Code
		}
	}
	return ""
}

// HasCode reports whether err or any error it aggregates carries code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	if code == CodeComposite {
		var comp *Composite
		return errors.As(err, &comp)
	}
	for _, leaf := range Flatten(err) {
		var e *Error
		if errors.As(leaf, &e) {
			if e.Code == code {
				return true
			}
			if e.Cause != nil && HasCode(e.Cause, code) {
				return true
			}
		}
	}
	return false
}
