package domain

import "fmt"

// RetentionLease pins the operations at or above RetainingSequenceNumber in the
// replicated log. Values are immutable and comparable with ==.
type RetentionLease struct {
	id                      string
	retainingSequenceNumber int64
	timestamp               int64
	source                  string
}

// NewRetentionLease validates and builds a lease. The timestamp unit is agreed
// with whoever evaluates expiry; the registry never interprets it.
func NewRetentionLease(id string, retainingSequenceNumber, timestamp int64, source string) (RetentionLease, error) {
	if id == "" {
		return RetentionLease{}, NewValidationError(CodeEmptyID, "retention lease ID can not be empty",
			WithContextDetail("id", id))
	}
	if err := validateRetention(id, retainingSequenceNumber, timestamp); err != nil {
		return RetentionLease{}, err
	}
	if source == "" {
		return RetentionLease{}, NewValidationError(CodeEmptySource, "retention lease source can not be empty",
			WithContextDetail("id", id))
	}
	return RetentionLease{
		id:                      id,
		retainingSequenceNumber: retainingSequenceNumber,
		timestamp:               timestamp,
		source:                  source,
	}, nil
}

func validateRetention(id string, retainingSequenceNumber, timestamp int64) error {
	if retainingSequenceNumber < 0 {
		return NewValidationError(CodeNegativeSequenceNumber,
			fmt.Sprintf("retention lease retaining sequence number [%d] out of range", retainingSequenceNumber),
			WithContextDetail("id", id),
			WithContextDetail("retaining_sequence_number", retainingSequenceNumber))
	}
	if timestamp < 0 {
		return NewValidationError(CodeNegativeTimestamp,
			fmt.Sprintf("retention lease timestamp [%d] out of range", timestamp),
			WithContextDetail("id", id),
			WithContextDetail("timestamp", timestamp))
	}
	return nil
}

func (l RetentionLease) ID() string {
	return l.id
}

func (l RetentionLease) RetainingSequenceNumber() int64 {
	return l.retainingSequenceNumber
}

func (l RetentionLease) Timestamp() int64 {
	return l.timestamp
}

func (l RetentionLease) Source() string {
	return l.source
}

func (l RetentionLease) Equal(other RetentionLease) bool {
	return l == other
}

func (l RetentionLease) String() string {
	return fmt.Sprintf("RetentionLease{id=%s, retainingSequenceNumber=%d, timestamp=%d, source=%s}",
		l.id, l.retainingSequenceNumber, l.timestamp, l.source)
}
