package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeTransport     ErrorType = "transport"
	ErrorTypeRemoteCommand ErrorType = "remote_command"
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeUpload        ErrorType = "upload"
	ErrorTypeAborted       ErrorType = "aborted"
	ErrorTypeIO            ErrorType = "io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func TransportError(message string, err error) *DomainError {
	return NewError(ErrorTypeTransport, message, err)
}

func RemoteCommandError(message string, err error) *DomainError {
	return NewError(ErrorTypeRemoteCommand, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func UploadError(message string, err error) *DomainError {
	return NewError(ErrorTypeUpload, message, err)
}

func AbortedError(message string, err error) *DomainError {
	return NewError(ErrorTypeAborted, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

// TypeOf returns the type of the first DomainError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsType reports whether err carries a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}
