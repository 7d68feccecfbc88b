package transport

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	codecName = "leasesync"

	responseFieldAccepted    protowire.Number = 1
	responseFieldPrimaryTerm protowire.Number = 2
	responseFieldVersion     protowire.Number = 3
)

// publishRequest carries an already encoded lease set; the primary term
// travels in the x-primary-term header.
type publishRequest struct {
	payload []byte
}

// publishResponse reports the replica's set after the publish was handled.
type publishResponse struct {
	accepted    bool
	primaryTerm int64
	version     int64
}

// leaseSyncCodec moves the lease set payload without a generated message type.
type leaseSyncCodec struct{}

func (leaseSyncCodec) Name() string {
	return codecName
}

func (leaseSyncCodec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case *publishRequest:
		return m.payload, nil
	case *publishResponse:
		var b []byte
		if m.accepted {
			b = protowire.AppendTag(b, responseFieldAccepted, protowire.VarintType)
			b = protowire.AppendVarint(b, 1)
		}
		b = protowire.AppendTag(b, responseFieldPrimaryTerm, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.primaryTerm))
		b = protowire.AppendTag(b, responseFieldVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.version))
		return b, nil
	default:
		return nil, fmt.Errorf("leasesync codec: cannot marshal %T", v)
	}
}

func (leaseSyncCodec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case *publishRequest:
		m.payload = append([]byte(nil), data...)
		return nil
	case *publishResponse:
		return m.unmarshal(data)
	default:
		return fmt.Errorf("leasesync codec: cannot unmarshal into %T", v)
	}
}

func (m *publishResponse) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case responseFieldAccepted:
			m.accepted = v != 0
		case responseFieldPrimaryTerm:
			m.primaryTerm = int64(v)
		case responseFieldVersion:
			m.version = int64(v)
		}
	}
	return nil
}
