// Package diag is the error model shared by every layer of the toolkit:
// image, volume, filesystem and hash database.
//
// An *Error names the subsystem that failed (Category), why (a
// category-local code with a static description), what the detecting
// function saw (Message) and why the failure mattered to an outer caller
// (Context). It renders to a single diagnostic line:
//
//	Error reading image file (reading 2 bytes at offset 4096) (decoding name of inode 17)
//
// State holds the last reported error for callers that poll rather than
// propagate; it is cleared as it is read.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a categorized toolkit error.
type Error struct {
	// Category is the subsystem that detected the failure
	Category Category

	// Local is the category-local code, an index into the category's table
	Local uint32

	// Message is set by the function that detected the failure
	Message string

	// Context is set by an outer caller to explain why the failure matters
	Context string

	// Cause is the underlying error, if any
	Cause error
}

// New creates an error for code with a formatted primary message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Category: code.Category(),
		Local:    code.Local() & LocalMask,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Wrap is New with an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Cause = cause
	return e
}

// Flat returns the combined category and local code.
func (e *Error) Flat() uint32 {
	return uint32(e.Category) | e.Local
}

// Text returns the static description for the error's code.
func (e *Error) Text() string {
	return Text(e.Category, e.Local)
}

// Render produces the one-line diagnostic without a trailing newline.
func (e *Error) Render() string {
	var b strings.Builder
	b.WriteString(e.Text())
	if e.Message != "" {
		b.WriteString(" (")
		b.WriteString(e.Message)
		b.WriteString(")")
	}
	if e.Context != "" {
		b.WriteString(" (")
		b.WriteString(e.Context)
		b.WriteString(")")
	}
	return b.String()
}

// Error is Render followed by the cause, if any.
func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Render()
	}
	return e.Render() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same category and code,
// so sentinel values such as Sentinel(FSRead) work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Category == e.Category && t.Local == e.Local
}

// WithContext returns a copy of e with the secondary message replaced.
func (e *Error) WithContext(format string, args ...any) *Error {
	c := *e
	c.Context = fmt.Sprintf(format, args...)
	return &c
}

// Sentinel returns a message-less error usable as an errors.Is target.
func Sentinel(code Code) *Error {
	return &Error{Category: code.Category(), Local: code.Local() & LocalMask}
}

// CodeOf returns the category and local code of err if it is (or wraps) an
// *Error.
func CodeOf(err error) (Category, uint32, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, 0, false
	}
	return e.Category, e.Local, true
}
