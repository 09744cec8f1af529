// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// render turns markdown into styled terminal text.
var render = glamour.Render

type (
	// ActionableError is an error with context for user-facing messages.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("load profile").
	//		WithResource("~/resources/profiles/default.json").
	//		WithSuggestion("Run 'bbgum profile validate' to see parse errors").
	//		Wrap(cause).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase such as "load profile" or "bind listener".
		Operation string
		// Resource identifies the file or address involved (optional).
		Resource string
		// Suggestions are hints for fixing the problem (optional).
		Suggestions []string
		// Cause is the underlying error (optional).
		Cause error
	}

	// ErrorContext is a builder for ActionableError.
	ErrorContext struct {
		operation   string
		resource    string
		suggestions []string
		cause       error
	}
)

// NewErrorContext creates a new ErrorContext builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Error returns the concise one-line form.
func (e *ActionableError) Error() string {
	var msg strings.Builder
	msg.WriteString("failed to ")
	msg.WriteString(e.Operation)
	if e.Resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Resource)
	}
	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}
	return msg.String()
}

// Unwrap returns the cause for errors.Is/As.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format renders the error with suggestions, and with the full error chain
// when verbose is set.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder
	msg.WriteString(e.Error())

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n")
		for _, s := range e.Suggestions {
			msg.WriteString("\n  • ")
			msg.WriteString(s)
		}
	}

	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		depth := 1
		for err := e.Cause; err != nil; err = errors.Unwrap(err) {
			fmt.Fprintf(&msg, "\n  %d. %s", depth, err.Error())
			depth++
		}
	}

	return msg.String()
}

// WithOperation sets the operation being performed.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.operation = op
	return c
}

// WithResource sets the resource involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.resource = res
	return c
}

// WithSuggestion appends a suggestion.
func (c *ErrorContext) WithSuggestion(s string) *ErrorContext {
	c.suggestions = append(c.suggestions, s)
	return c
}

// Wrap sets the cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.cause = err
	return c
}

// Build returns the ActionableError, or nil when no operation was set.
func (c *ErrorContext) Build() *ActionableError {
	if c.operation == "" {
		return nil
	}
	return &ActionableError{
		Operation:   c.operation,
		Resource:    c.resource,
		Suggestions: c.suggestions,
		Cause:       c.cause,
	}
}

// BuildError is Build returned as an error; nil stays an untyped nil.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}

// Markdown returns the error as a markdown document: the failed operation
// as a heading, the resource and cause as code spans, the suggestions as a
// list and, when verbose is set, the numbered error chain.
func (e *ActionableError) Markdown(verbose bool) string {
	var md strings.Builder
	md.WriteString("## Failed to ")
	md.WriteString(e.Operation)
	md.WriteString("\n")
	if e.Resource != "" {
		fmt.Fprintf(&md, "\n%s\n", codeSpan(e.Resource))
	}
	if e.Cause != nil {
		fmt.Fprintf(&md, "\n%s\n", codeSpan(e.Cause.Error()))
	}

	if len(e.Suggestions) > 0 {
		md.WriteString("\n### Things you can try\n\n")
		for _, s := range e.Suggestions {
			md.WriteString("- ")
			md.WriteString(s)
			md.WriteString("\n")
		}
	}

	if verbose && e.Cause != nil {
		md.WriteString("\n### Error chain\n\n")
		depth := 1
		for err := e.Cause; err != nil; err = errors.Unwrap(err) {
			fmt.Fprintf(&md, "%d. %s\n", depth, codeSpan(err.Error()))
			depth++
		}
	}
	return md.String()
}

// codeSpan wraps s in a code span long enough to hold any backticks in s.
func codeSpan(s string) string {
	fence := "`"
	for strings.Contains(s, fence) {
		fence += "`"
	}
	return fence + " " + s + " " + fence
}

// Render formats any error for display. An ActionableError found anywhere
// in the chain is rendered from markdown with the glamour style at
// stylePath ("auto", "dark", "notty" or a JSON style file); if rendering
// fails its plain Format is used.
func Render(err error, verbose bool, stylePath string) string {
	if err == nil {
		return ""
	}
	var ae *ActionableError
	if !errors.As(err, &ae) {
		return err.Error()
	}
	out, rerr := render(ae.Markdown(verbose), stylePath)
	if rerr != nil {
		return ae.Format(verbose)
	}
	return out
}
