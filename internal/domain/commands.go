package domain

import (
	"fmt"
	"time"

	"github.com/eleven-am/retention/internal/xjson"
)

type CommandType uint8

const (
	CommandAddLease CommandType = iota
	CommandRenewLease
	CommandRemoveLease
)

func (t CommandType) String() string {
	switch t {
	case CommandAddLease:
		return "add_lease"
	case CommandRenewLease:
		return "renew_lease"
	case CommandRemoveLease:
		return "remove_lease"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// LeaseCommand is the raft log entry for one lease mutation. The primary term
// is not carried: it is the term of the raft log entry itself.
type LeaseCommand struct {
	Type                    CommandType `json:"type"`
	ID                      string      `json:"id"`
	RetainingSequenceNumber int64       `json:"retaining_seq_no,omitempty"`
	Timestamp               int64       `json:"timestamp,omitempty"`
	Source                  string      `json:"source,omitempty"`
	IssuedAt                time.Time   `json:"issued_at"`
}

type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Version int64  `json:"version"`
	Err     error  `json:"-"`
}

func NewAddLeaseCommand(lease RetentionLease) *LeaseCommand {
	return &LeaseCommand{
		Type:                    CommandAddLease,
		ID:                      lease.ID(),
		RetainingSequenceNumber: lease.RetainingSequenceNumber(),
		Timestamp:               lease.Timestamp(),
		Source:                  lease.Source(),
		IssuedAt:                time.Now(),
	}
}

func NewRenewLeaseCommand(id string, retainingSequenceNumber, timestamp int64) *LeaseCommand {
	return &LeaseCommand{
		Type:                    CommandRenewLease,
		ID:                      id,
		RetainingSequenceNumber: retainingSequenceNumber,
		Timestamp:               timestamp,
		IssuedAt:                time.Now(),
	}
}

func NewRemoveLeaseCommand(id string) *LeaseCommand {
	return &LeaseCommand{
		Type:     CommandRemoveLease,
		ID:       id,
		IssuedAt: time.Now(),
	}
}

func (c *LeaseCommand) Marshal() ([]byte, error) {
	return xjson.Marshal(c)
}

func UnmarshalLeaseCommand(data []byte) (*LeaseCommand, error) {
	var cmd LeaseCommand
	if err := xjson.Unmarshal(data, &cmd); err != nil {
		return nil, NewDecodingError("failed to unmarshal lease command", err)
	}
	return &cmd, nil
}

// ApplyTo runs the command against the given lease set and returns the successor.
func (c *LeaseCommand) ApplyTo(leases *RetentionLeases) (*RetentionLeases, error) {
	switch c.Type {
	case CommandAddLease:
		lease, err := NewRetentionLease(c.ID, c.RetainingSequenceNumber, c.Timestamp, c.Source)
		if err != nil {
			return nil, err
		}
		return leases.WithAdded(lease)
	case CommandRenewLease:
		return leases.WithRenewed(c.ID, c.RetainingSequenceNumber, c.Timestamp)
	case CommandRemoveLease:
		return leases.WithRemoved(c.ID)
	default:
		return nil, NewValidationError("UNKNOWN_COMMAND", fmt.Sprintf("unknown lease command type [%s]", c.Type))
	}
}
