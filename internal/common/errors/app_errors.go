// Package errors provides a unified error handling system for the host and the aggregator
package errors

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"
)

// ErrorDomain represents the domain/component where an error originated
type ErrorDomain string

// Define error domains for different components of the application
const (
	// ErrorDomainConfig represents errors from the configuration system
	ErrorDomainConfig ErrorDomain = "config"

	// ErrorDomainTool represents errors from the tool registry and tool handlers
	ErrorDomainTool ErrorDomain = "tool"

	// ErrorDomainResource represents errors from the resource router and resource handlers
	ErrorDomainResource ErrorDomain = "resource"

	// ErrorDomainSession represents errors from the request/response protocol layer
	ErrorDomainSession ErrorDomain = "session"

	// ErrorDomainTransport represents errors from transport channels
	ErrorDomainTransport ErrorDomain = "transport"

	// ErrorDomainAggregator represents errors from catalog merging and dispatch
	ErrorDomainAggregator ErrorDomain = "aggregator"

	// ErrorDomainHTTP represents errors from HTTP operations
	ErrorDomainHTTP ErrorDomain = "http"

	// ErrorDomainInternal represents internal application errors
	ErrorDomainInternal ErrorDomain = "internal"
)

// Kind is the closed set of failure kinds a caller can switch on.
// A DomainError whose Code is one of these constants is a typed error.
type Kind string

const (
	KindUnknown           Kind = ""
	KindUnknownTool       Kind = "unknown_tool"
	KindInvalidArguments  Kind = "invalid_arguments"
	KindToolExecution     Kind = "tool_execution_error"
	KindUnknownResource   Kind = "unknown_resource"
	KindAccessDenied      Kind = "access_denied"
	KindNotFound          Kind = "not_found"
	KindUpstream          Kind = "upstream_error"
	KindTransportClosed   Kind = "transport_closed"
	KindDuplicateTool     Kind = "duplicate_tool"
	KindCancelled         Kind = "cancelled"
	KindInvalidConfig     Kind = "invalid_config"
	KindProtocolViolation Kind = "protocol_violation"
)

var knownKinds = map[Kind]bool{
	KindUnknownTool:       true,
	KindInvalidArguments:  true,
	KindToolExecution:     true,
	KindUnknownResource:   true,
	KindAccessDenied:      true,
	KindNotFound:          true,
	KindUpstream:          true,
	KindTransportClosed:   true,
	KindDuplicateTool:     true,
	KindCancelled:         true,
	KindInvalidConfig:     true,
	KindProtocolViolation: true,
}

// DomainError is the central error type for the application,
// providing structured information about the error context
type DomainError struct {
	// Domain is the component where the error originated
	Domain ErrorDomain

	// Code is a machine-readable identifier for the error type
	Code string

	// Message is a human-readable description of the error
	Message string

	// Cause is the underlying error that led to this error
	Cause error

	// Stack contains the stack trace at the point of error creation
	Stack string

	// Data contains additional contextual data about the error
	Data map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Domain, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Domain, e.Code, e.Message)
}

// Unwrap returns the underlying cause, implementing the unwrap interface
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Kind returns the failure kind carried in Code
func (e *DomainError) Kind() Kind {
	k := Kind(e.Code)
	if knownKinds[k] {
		return k
	}
	return KindUnknown
}

// WithData adds contextual data to the error
func (e *DomainError) WithData(key string, value interface{}) *DomainError {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// NewDomainError creates a new DomainError with the given domain, code, and message
func NewDomainError(domain ErrorDomain, code, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Code:    code,
		Message: message,
		Stack:   captureStack(2),
	}
}

// WrapWithDomain creates a new DomainError that wraps an existing error
func WrapWithDomain(err error, domain ErrorDomain, code, message string) *DomainError {
	if err == nil {
		return nil
	}
	return &DomainError{
		Domain:  domain,
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// NewDomainErrorf creates a new DomainError with formatted message
func NewDomainErrorf(domain ErrorDomain, code string, format string, args ...interface{}) *DomainError {
	return NewDomainError(domain, code, fmt.Sprintf(format, args...))
}

// IsDomainError checks if an error is a DomainError
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomain extracts the domain from an error if it's a DomainError
func GetDomain(err error) (ErrorDomain, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Domain, true
	}
	return "", false
}

// GetErrorCode extracts the code from an error if it's a DomainError
func GetErrorCode(err error) (string, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code, true
	}
	return "", false
}

// GetErrorData extracts data from an error if it's a DomainError
func GetErrorData(err error, key string) (interface{}, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Data != nil {
		val, ok := domainErr.Data[key]
		return val, ok
	}
	return nil, false
}

// KindOf returns the kind of the outermost typed DomainError in err's chain.
func KindOf(err error) Kind {
	for err != nil {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			return KindUnknown
		}
		if k := domainErr.Kind(); k != KindUnknown {
			return k
		}
		err = domainErr.Cause
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var wireTag = regexp.MustCompile(`\[([a-z_]+):([a-z_]+)\] `)

// Parse recovers a typed error from the text produced by DomainError.Error, as it
// arrives from a remote host. The returned error has no Cause and no Stack.
func Parse(text string) (*DomainError, bool) {
	loc := wireTag.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, false
	}
	code := text[loc[4]:loc[5]]
	if !knownKinds[Kind(code)] {
		return nil, false
	}
	return &DomainError{
		Domain:  ErrorDomain(text[loc[2]:loc[3]]),
		Code:    code,
		Message: strings.TrimSpace(text[loc[1]:]),
	}, true
}

// captureStack captures the current goroutine's stack trace
func captureStack(skip int) string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}

// Convenience functions for creating domain-specific errors

// NewConfigError creates a new error in the config domain
func NewConfigError(code, message string) *DomainError {
	return NewDomainError(ErrorDomainConfig, code, message)
}

// NewConfigErrorf creates a new formatted error in the config domain
func NewConfigErrorf(code string, format string, args ...interface{}) *DomainError {
	return NewDomainErrorf(ErrorDomainConfig, code, format, args...)
}

// WrapConfigError wraps an error in the config domain
func WrapConfigError(err error, code, message string) *DomainError {
	return WrapWithDomain(err, ErrorDomainConfig, code, message)
}

// NewToolError creates a new error in the tool domain
func NewToolError(kind Kind, message string) *DomainError {
	return NewDomainError(ErrorDomainTool, string(kind), message)
}

// NewToolErrorf creates a new formatted error in the tool domain
func NewToolErrorf(kind Kind, format string, args ...interface{}) *DomainError {
	return NewDomainErrorf(ErrorDomainTool, string(kind), format, args...)
}

// WrapToolError wraps an error in the tool domain
func WrapToolError(err error, kind Kind, message string) *DomainError {
	return WrapWithDomain(err, ErrorDomainTool, string(kind), message)
}

// NewResourceError creates a new error in the resource domain
func NewResourceError(kind Kind, message string) *DomainError {
	return NewDomainError(ErrorDomainResource, string(kind), message)
}

// NewResourceErrorf creates a new formatted error in the resource domain
func NewResourceErrorf(kind Kind, format string, args ...interface{}) *DomainError {
	return NewDomainErrorf(ErrorDomainResource, string(kind), format, args...)
}

// WrapResourceError wraps an error in the resource domain
func WrapResourceError(err error, kind Kind, message string) *DomainError {
	return WrapWithDomain(err, ErrorDomainResource, string(kind), message)
}

// NewSessionError creates a new error in the session domain
func NewSessionError(kind Kind, message string) *DomainError {
	return NewDomainError(ErrorDomainSession, string(kind), message)
}

// WrapSessionError wraps an error in the session domain
func WrapSessionError(err error, kind Kind, message string) *DomainError {
	return WrapWithDomain(err, ErrorDomainSession, string(kind), message)
}

// NewTransportError creates a new error in the transport domain
func NewTransportError(kind Kind, message string) *DomainError {
	return NewDomainError(ErrorDomainTransport, string(kind), message)
}

// WrapTransportError wraps an error in the transport domain
func WrapTransportError(err error, kind Kind, message string) *DomainError {
	return WrapWithDomain(err, ErrorDomainTransport, string(kind), message)
}

// NewAggregatorError creates a new error in the aggregator domain
func NewAggregatorError(kind Kind, message string) *DomainError {
	return NewDomainError(ErrorDomainAggregator, string(kind), message)
}

// NewAggregatorErrorf creates a new formatted error in the aggregator domain
func NewAggregatorErrorf(kind Kind, format string, args ...interface{}) *DomainError {
	return NewDomainErrorf(ErrorDomainAggregator, string(kind), format, args...)
}

// WrapAggregatorError wraps an error in the aggregator domain
func WrapAggregatorError(err error, kind Kind, message string) *DomainError {
	return WrapWithDomain(err, ErrorDomainAggregator, string(kind), message)
}

// NewHTTPError creates a new error in the HTTP domain
func NewHTTPError(code, message string) *DomainError {
	return NewDomainError(ErrorDomainHTTP, code, message)
}

// WrapHTTPError wraps an error in the HTTP domain
func WrapHTTPError(err error, code, message string) *DomainError {
	return WrapWithDomain(err, ErrorDomainHTTP, code, message)
}

// NewInternalError creates a new error in the internal domain
func NewInternalError(code, message string) *DomainError {
	return NewDomainError(ErrorDomainInternal, code, message)
}
