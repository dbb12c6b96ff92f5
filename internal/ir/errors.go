package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes failures reported by the registry, world, gateway
// and engine. Every code names a kind a caller can branch on.
type ErrorCode string

const (
	// CodeSchema indicates a definition or value that violates a schema.
	CodeSchema ErrorCode = "SchemaError"

	// CodeDuplicateName indicates a component or system name already in use.
	CodeDuplicateName ErrorCode = "DuplicateNameError"

	// CodeMissingDependency indicates a system requiring unregistered components.
	CodeMissingDependency ErrorCode = "MissingDependencyError"

	// CodeInUse indicates a component still required by a system.
	CodeInUse ErrorCode = "InUseError"

	// CodeAccess indicates a read or write of a component the entity lacks,
	// or of a dead entity.
	CodeAccess ErrorCode = "AccessError"

	// CodeRuntimeFault indicates a fault raised while running system logic.
	CodeRuntimeFault ErrorCode = "RuntimeFault"

	// CodeSynthesisTimeout indicates the synthesis collaborator did not answer in time.
	CodeSynthesisTimeout ErrorCode = "SynthesisTimeoutError"

	// CodeNotFound indicates an unknown component, system or entity.
	CodeNotFound ErrorCode = "NotFoundError"
)

// ErrAbsent is the explicit absence signal: reading a component that was
// never attached to an entity returns an AccessError wrapping ErrAbsent.
var ErrAbsent = errors.New("component not attached")

// Error is the structured error shared across simloom layers.
type Error struct {
	// Code identifies the error kind.
	Code ErrorCode

	// Subject names the offending component, system or entity.
	Subject string

	// Message is a human-readable cause.
	Message string

	// Missing lists unresolved dependencies (MissingDependencyError) or the
	// systems holding a component (InUseError).
	Missing []string

	// Err is an optional underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Subject != "" {
		b.WriteString(": ")
		b.WriteString(e.Subject)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode returns true if err carries the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// SchemaErrorf creates a SchemaError for subject.
func SchemaErrorf(subject, format string, args ...any) *Error {
	return &Error{Code: CodeSchema, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// DuplicateName creates a DuplicateNameError.
func DuplicateName(kind, name string) *Error {
	return &Error{
		Code:    CodeDuplicateName,
		Subject: name,
		Message: fmt.Sprintf("%s %q is already registered", kind, name),
	}
}

// MissingDependency creates a MissingDependencyError naming every gap.
func MissingDependency(system string, missing []string) *Error {
	return &Error{
		Code:    CodeMissingDependency,
		Subject: system,
		Message: "required components are not registered",
		Missing: missing,
	}
}

// InUse creates an InUseError listing the systems that still require component.
func InUse(component string, systems []string) *Error {
	return &Error{
		Code:    CodeInUse,
		Subject: component,
		Message: "component is required by registered systems",
		Missing: systems,
	}
}

// Absent creates the AccessError returned for an unattached component.
func Absent(entity uint64, component string) *Error {
	return &Error{
		Code:    CodeAccess,
		Subject: component,
		Message: fmt.Sprintf("entity %d does not hold component", entity),
		Err:     ErrAbsent,
	}
}

// NotFound creates a NotFoundError.
func NotFound(kind, name string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Subject: name,
		Message: fmt.Sprintf("%s not found", kind),
	}
}

// Fault creates the RuntimeFault reported for a failed tick.
func Fault(system string, rec *ErrorRecord) *Error {
	msg := rec.Message
	if rec.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", rec.Line, rec.Message)
	}
	return &Error{Code: CodeRuntimeFault, Subject: system, Message: msg}
}

// SynthesisTimeout creates a SynthesisTimeoutError wrapping the context error.
func SynthesisTimeout(subject string, err error) *Error {
	return &Error{
		Code:    CodeSynthesisTimeout,
		Subject: subject,
		Message: "synthesis collaborator did not respond in time",
		Err:     err,
	}
}
