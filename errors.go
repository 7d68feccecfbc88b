package retention

import "github.com/eleven-am/retention/internal/domain"

type DomainError = domain.DomainError

type ErrorCategory = domain.ErrorCategory

var (
	ErrValidation    = domain.ErrValidation
	ErrIllegalState  = domain.ErrIllegalState
	ErrNotFound      = domain.ErrNotFound
	ErrDecoding      = domain.ErrDecoding
	ErrStorage       = domain.ErrStorage
	ErrConfiguration = domain.ErrConfiguration
	ErrReplication   = domain.ErrReplication

	ErrNotLeader   = domain.ErrNotLeader
	ErrClosed      = domain.ErrClosed
	ErrNotStarted  = domain.ErrNotStarted
	ErrStaleLeases = domain.ErrStaleLeases
)

const (
	CodeEmptyID                = domain.CodeEmptyID
	CodeEmptySource            = domain.CodeEmptySource
	CodeNegativeSequenceNumber = domain.CodeNegativeSequenceNumber
	CodeNegativeTimestamp      = domain.CodeNegativeTimestamp
	CodeNonPositivePrimaryTerm = domain.CodeNonPositivePrimaryTerm
	CodeNegativeVersion        = domain.CodeNegativeVersion
	CodeDuplicateLeaseID       = domain.CodeDuplicateLeaseID
	CodeUnknownLeaseID         = domain.CodeUnknownLeaseID
	CodeVersionOverflow        = domain.CodeVersionOverflow
	CodeMalformed              = domain.CodeMalformed
	CodeStaleLeases            = domain.CodeStaleLeases
	CodeManagerStarted         = domain.CodeManagerStarted
)

// ErrorCode returns the code of the first DomainError in err's chain.
func ErrorCode(err error) string {
	return domain.ErrorCode(err)
}

func IsValidation(err error) bool   { return domain.IsValidation(err) }
func IsIllegalState(err error) bool { return domain.IsIllegalState(err) }
func IsNotFound(err error) bool     { return domain.IsNotFound(err) }
func IsDecoding(err error) bool     { return domain.IsDecoding(err) }
func IsStale(err error) bool        { return domain.IsStale(err) }
func IsNotLeader(err error) bool    { return domain.IsNotLeader(err) }
