package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard errors that can be compared directly
var (
	// ErrNotFound indicates that a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized indicates that the request lacks valid authentication
	ErrUnauthorized = errors.New("unauthorized request")

	// ErrForbidden indicates that the request is not allowed
	ErrForbidden = errors.New("access forbidden")

	// ErrBadRequest indicates that the request was invalid
	ErrBadRequest = errors.New("bad request")

	// ErrTimeout indicates that the operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrTooManyRequests indicates rate limiting
	ErrTooManyRequests = errors.New("too many requests")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal server error")

	// ErrUnavailable indicates that the service is currently unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// StatusCodeToError maps HTTP status codes to appropriate errors
func StatusCodeToError(statusCode int) error {
	switch statusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrTimeout
	case http.StatusTooManyRequests:
		return ErrTooManyRequests
	case http.StatusInternalServerError:
		return ErrInternal
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return ErrUnavailable
	default:
		if statusCode >= 400 && statusCode < 500 {
			return fmt.Errorf("client error: status code %d", statusCode)
		}
		if statusCode >= 500 {
			return fmt.Errorf("server error: status code %d", statusCode)
		}
		return nil
	}
}

// ServiceError represents an error from a specific upstream service
type ServiceError struct {
	Service    string
	Message    string
	Code       string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s service error: %s (code: %s): %v",
			e.Service, e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s service error: %s (code: %s)",
		e.Service, e.Message, e.Code)
}

// Unwrap implements the errors.Unwrap interface
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return errors.Is(e.Cause, target)
	}

	return (t.Service == "" || t.Service == e.Service) &&
		(t.Code == "" || t.Code == e.Code)
}

// NewServiceStatusError creates a ServiceError for a non-success HTTP status.
// Rate limiting and 5xx statuses are retryable; everything else is not.
func NewServiceStatusError(service string, statusCode int, message string) *ServiceError {
	return &ServiceError{
		Service:    service,
		Message:    message,
		Code:       fmt.Sprintf("status_%d", statusCode),
		StatusCode: statusCode,
		Retryable:  statusCode == http.StatusTooManyRequests || statusCode >= 500,
		Cause:      StatusCodeToError(statusCode),
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapIf wraps an error with additional context if a condition is met
func WrapIf(condition bool, err error, message string) error {
	if !condition || err == nil {
		return err
	}
	return Wrap(err, message)
}

// As is a convenience function that wraps errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a convenience function that wraps errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}
