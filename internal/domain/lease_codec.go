package domain

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire layout, protobuf compatible:
//
//	message RetentionLeases { uint64 version = 1; repeated RetentionLease leases = 2; uint64 lease_count = 3; }
//	message RetentionLease  { string id = 1; uint64 retaining_seq_no = 2; uint64 timestamp = 3; string source = 4; }
//
// The lease count is written last, so a payload cut at any point is missing
// it or disagrees with it. The primary term travels in the framing of whoever
// carries the payload.
const (
	fieldVersion protowire.Number = 1
	fieldLeases  protowire.Number = 2
	fieldCount   protowire.Number = 3

	fieldLeaseID             protowire.Number = 1
	fieldLeaseRetainingSeqNo protowire.Number = 2
	fieldLeaseTimestamp      protowire.Number = 3
	fieldLeaseSource         protowire.Number = 4
)

// EncodeRetentionLeases writes the version and the leases sorted by ID, so
// equal sets always produce identical bytes.
func EncodeRetentionLeases(leases *RetentionLeases) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(leases.version))
	for _, lease := range leases.sortedLeases() {
		b = protowire.AppendTag(b, fieldLeases, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeRetentionLease(lease))
	}
	b = protowire.AppendTag(b, fieldCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(leases.leases)))
	return b
}

func encodeRetentionLease(lease RetentionLease) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldLeaseID, protowire.BytesType)
	b = protowire.AppendString(b, lease.id)
	b = protowire.AppendTag(b, fieldLeaseRetainingSeqNo, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(lease.retainingSequenceNumber))
	b = protowire.AppendTag(b, fieldLeaseTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(lease.timestamp))
	b = protowire.AppendTag(b, fieldLeaseSource, protowire.BytesType)
	b = protowire.AppendString(b, lease.source)
	return b
}

// DecodeRetentionLeases rebuilds a lease set, attaching the primary term
// supplied by the caller's context.
func DecodeRetentionLeases(data []byte, primaryTerm int64) (*RetentionLeases, error) {
	version, leases, err := DecodeRetentionLeasesPayload(data)
	if err != nil {
		return nil, err
	}
	return NewRetentionLeases(primaryTerm, version, leases)
}

func DecodeRetentionLeasesPayload(data []byte) (int64, []RetentionLease, error) {
	var (
		version    int64
		hasVersion bool
		count      uint64
		hasCount   bool
		leases     []RetentionLease
		seen       = make(map[string]struct{})
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, nil, NewDecodingError("malformed retention leases tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, nil, NewDecodingError("malformed retention leases version", protowire.ParseError(n))
			}
			if v > math.MaxInt64 {
				return 0, nil, NewDecodingError(fmt.Sprintf("retention leases version [%d] out of range", v), nil)
			}
			version, hasVersion = int64(v), true
			data = data[n:]
		case num == fieldCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, nil, NewDecodingError("malformed retention leases count", protowire.ParseError(n))
			}
			count, hasCount = v, true
			data = data[n:]
		case num == fieldLeases && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return 0, nil, NewDecodingError("malformed retention lease", protowire.ParseError(n))
			}
			lease, err := decodeRetentionLease(raw)
			if err != nil {
				return 0, nil, err
			}
			if _, dup := seen[lease.id]; dup {
				return 0, nil, NewDecodingError(fmt.Sprintf("duplicate retention lease ID [%s]", lease.id), nil)
			}
			seen[lease.id] = struct{}{}
			leases = append(leases, lease)
			data = data[n:]
		case num == fieldVersion || num == fieldLeases || num == fieldCount:
			return 0, nil, NewDecodingError(fmt.Sprintf("unexpected wire type %d for field %d", typ, num), nil)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return 0, nil, NewDecodingError("malformed unknown field", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if !hasVersion {
		return 0, nil, NewDecodingError("retention leases version missing", nil)
	}
	if !hasCount {
		return 0, nil, NewDecodingError("retention leases count missing", nil)
	}
	if count != uint64(len(leases)) {
		return 0, nil, NewDecodingError(
			fmt.Sprintf("retention leases count [%d] does not match [%d] decoded leases", count, len(leases)), nil)
	}
	if leases == nil {
		leases = []RetentionLease{}
	}
	return version, leases, nil
}

func decodeRetentionLease(data []byte) (RetentionLease, error) {
	var (
		id, source        string
		seqNo, timestamp  uint64
		hasSeq, hasTstamp bool
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return RetentionLease{}, NewDecodingError("malformed retention lease tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case (num == fieldLeaseID || num == fieldLeaseSource) && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return RetentionLease{}, NewDecodingError("malformed retention lease string", protowire.ParseError(n))
			}
			if num == fieldLeaseID {
				id = s
			} else {
				source = s
			}
			data = data[n:]
		case (num == fieldLeaseRetainingSeqNo || num == fieldLeaseTimestamp) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return RetentionLease{}, NewDecodingError("malformed retention lease number", protowire.ParseError(n))
			}
			if num == fieldLeaseRetainingSeqNo {
				seqNo, hasSeq = v, true
			} else {
				timestamp, hasTstamp = v, true
			}
			data = data[n:]
		case num >= fieldLeaseID && num <= fieldLeaseSource:
			return RetentionLease{}, NewDecodingError(fmt.Sprintf("unexpected wire type %d for lease field %d", typ, num), nil)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return RetentionLease{}, NewDecodingError("malformed unknown lease field", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if !hasSeq || !hasTstamp {
		return RetentionLease{}, NewDecodingError(fmt.Sprintf("retention lease [%s] is missing numeric fields", id), nil)
	}
	if seqNo > math.MaxInt64 || timestamp > math.MaxInt64 {
		return RetentionLease{}, NewDecodingError(fmt.Sprintf("retention lease [%s] numeric field out of range", id), nil)
	}
	lease, err := NewRetentionLease(id, int64(seqNo), int64(timestamp), source)
	if err != nil {
		return RetentionLease{}, NewDecodingError("invalid retention lease", err)
	}
	return lease, nil
}
