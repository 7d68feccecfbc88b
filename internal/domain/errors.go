package domain

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCategory int

const (
	CategoryValidation ErrorCategory = iota
	CategoryIllegalState
	CategoryNotFound
	CategoryDecoding
	CategoryStorage
	CategoryConfiguration
	CategoryReplication
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryIllegalState:
		return "illegal_state"
	case CategoryNotFound:
		return "not_found"
	case CategoryDecoding:
		return "decoding"
	case CategoryStorage:
		return "storage"
	case CategoryConfiguration:
		return "configuration"
	case CategoryReplication:
		return "replication"
	default:
		return "unknown"
	}
}

const (
	CodeEmptyID                = "EMPTY_ID"
	CodeEmptySource            = "EMPTY_SOURCE"
	CodeNegativeSequenceNumber = "NEGATIVE_SEQUENCE_NUMBER"
	CodeNegativeTimestamp      = "NEGATIVE_TIMESTAMP"
	CodeNonPositivePrimaryTerm = "NON_POSITIVE_PRIMARY_TERM"
	CodeNegativeVersion        = "NEGATIVE_VERSION"
	CodeDuplicateLeaseID       = "DUPLICATE_LEASE_ID"
	CodeUnknownLeaseID         = "UNKNOWN_LEASE_ID"
	CodeVersionOverflow        = "VERSION_OVERFLOW"
	CodeMalformed              = "MALFORMED"
	CodeStaleLeases            = "STALE_LEASES"
	CodeManagerStarted         = "MANAGER_STARTED"
)

type ErrorContext struct {
	Component string
	Operation string
	Details   map[string]interface{}
}

// DomainError is the single error type surfaced by the registry and its adapters.
type DomainError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
	Context  ErrorContext
}

type ErrorOption func(*DomainError)

func WithComponent(component string) ErrorOption {
	return func(e *DomainError) {
		e.Context.Component = component
	}
}

func WithOperation(operation string) ErrorOption {
	return func(e *DomainError) {
		e.Context.Operation = operation
	}
}

func WithContextDetail(key string, value interface{}) ErrorOption {
	return func(e *DomainError) {
		if e.Context.Details == nil {
			e.Context.Details = make(map[string]interface{})
		}
		e.Context.Details[key] = value
	}
}

func WithCause(cause error) ErrorOption {
	return func(e *DomainError) {
		e.Cause = cause
	}
}

func WithCode(code string) ErrorOption {
	return func(e *DomainError) {
		e.Code = code
	}
}

func newDomainError(category ErrorCategory, defaultCode, message string, cause error, opts ...ErrorOption) *DomainError {
	err := &DomainError{
		Category: category,
		Code:     defaultCode,
		Message:  message,
		Cause:    cause,
	}
	for _, opt := range opts {
		opt(err)
	}
	return err
}

func (e *DomainError) Error() string {
	var b strings.Builder
	if e.Context.Component != "" {
		b.WriteString(e.Context.Component)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches the category sentinels so callers can use errors.Is(err, ErrNotFound).
func (e *DomainError) Is(target error) bool {
	var sentinel categorySentinel
	if errors.As(target, &sentinel) {
		return sentinel.category == e.Category
	}
	return false
}

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	WithContextDetail(key, value)(e)
	return e
}

type categorySentinel struct {
	category ErrorCategory
}

func (s categorySentinel) Error() string {
	return s.category.String()
}

var (
	ErrValidation    error = categorySentinel{CategoryValidation}
	ErrIllegalState  error = categorySentinel{CategoryIllegalState}
	ErrNotFound      error = categorySentinel{CategoryNotFound}
	ErrDecoding      error = categorySentinel{CategoryDecoding}
	ErrStorage       error = categorySentinel{CategoryStorage}
	ErrConfiguration error = categorySentinel{CategoryConfiguration}
	ErrReplication   error = categorySentinel{CategoryReplication}
)

var (
	ErrNotLeader   = errors.New("node is not the raft leader")
	ErrClosed      = errors.New("already closed")
	ErrNotStarted  = errors.New("not started")
	ErrStaleLeases = errors.New("retention leases are superseded by the current state")
)

func NewValidationError(code, message string, opts ...ErrorOption) *DomainError {
	return newDomainError(CategoryValidation, code, message, nil, opts...)
}

func NewIllegalStateError(code, message string, opts ...ErrorOption) *DomainError {
	return newDomainError(CategoryIllegalState, code, message, nil, opts...)
}

func NewNotFoundError(code, message string, opts ...ErrorOption) *DomainError {
	return newDomainError(CategoryNotFound, code, message, nil, opts...)
}

func NewDecodingError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newDomainError(CategoryDecoding, CodeMalformed, message, cause, opts...)
}

func NewStorageError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newDomainError(CategoryStorage, "STORAGE_FAILURE", message, cause, opts...)
}

func NewConfigurationError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newDomainError(CategoryConfiguration, "CONFIGURATION_INVALID", message, cause, opts...)
}

func NewReplicationError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newDomainError(CategoryReplication, "REPLICATION_FAILURE", message, cause, opts...)
}

func unknownLeaseError(id string) *DomainError {
	return NewNotFoundError(CodeUnknownLeaseID,
		fmt.Sprintf("retention lease with ID [%s] not found", id),
		WithContextDetail("id", id))
}

func ErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsIllegalState(err error) bool {
	return errors.Is(err, ErrIllegalState)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDecoding(err error) bool {
	return errors.Is(err, ErrDecoding)
}

func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsNotLeader(err error) bool {
	return errors.Is(err, ErrNotLeader)
}

func IsStale(err error) bool {
	return errors.Is(err, ErrStaleLeases)
}
