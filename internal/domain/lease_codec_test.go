package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestRetentionLeasesEncoding(t *testing.T) {
	for length := 0; length <= 8; length++ {
		primaryTerm := randomBetween(1, 1<<40)
		version := randomNonNegative()
		leases := make([]RetentionLease, 0, length)
		for i := 0; i < length; i++ {
			leases = append(leases, mustLease(t, randomAlpha(8), randomNonNegative(), randomNonNegative(), randomAlpha(8)))
		}
		original := mustLeases(t, primaryTerm, version, leases...)

		decoded, err := DecodeRetentionLeases(EncodeRetentionLeases(original), primaryTerm)
		require.NoError(t, err)
		assert.Equal(t, version, decoded.Version())
		assert.Equal(t, primaryTerm, decoded.PrimaryTerm())
		if length == 0 {
			assert.Empty(t, decoded.Leases())
			assert.NotNil(t, decoded.Leases())
		} else {
			assert.ElementsMatch(t, leases, decoded.Leases())
		}
		assert.True(t, original.Equal(decoded))
	}
}

func TestRetentionLeasesEncoding_IndependentOfInputOrder(t *testing.T) {
	leases := []RetentionLease{
		mustLease(t, "c", 3, 30, "s3"),
		mustLease(t, "a", 1, 10, "s1"),
		mustLease(t, "b", 2, 20, "s2"),
	}
	shuffled := append([]RetentionLease(nil), leases...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	first := EncodeRetentionLeases(mustLeases(t, 1, 9, leases...))
	second := EncodeRetentionLeases(mustLeases(t, 1, 9, shuffled...))
	assert.Equal(t, first, second)
}

func TestRetentionLeasesEncoding_EmptyPayload(t *testing.T) {
	version, leases, err := DecodeRetentionLeasesPayload(EncodeRetentionLeases(mustLeases(t, 1, 0)))
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	assert.NotNil(t, leases)
	assert.Empty(t, leases)
}

func TestRetentionLeasesDecoding_Truncated(t *testing.T) {
	encoded := EncodeRetentionLeases(mustLeases(t, 1, 300,
		mustLease(t, "lease-a", 1<<20, 1<<30, "source-a"),
		mustLease(t, "lease-b", 7, 8, "source-b")))

	for cut := 0; cut < len(encoded); cut++ {
		_, _, err := DecodeRetentionLeasesPayload(encoded[:cut])
		require.Error(t, err, "cut at %d decoded", cut)
		assert.True(t, IsDecoding(err), "cut at %d: %v", cut, err)
		assert.Equal(t, CodeMalformed, ErrorCode(err))
	}
}

func TestRetentionLeasesDecoding_TruncatedAtLeaseBoundary(t *testing.T) {
	a := mustLease(t, "a", 1, 1, "s")
	encoded := EncodeRetentionLeases(mustLeases(t, 3, 7, a, mustLease(t, "b", 2, 2, "s")))

	versionOnly := protowire.AppendVarint(protowire.AppendTag(nil, fieldVersion, protowire.VarintType), 7)
	withFirst := protowire.AppendTag(append([]byte(nil), versionOnly...), fieldLeases, protowire.BytesType)
	withFirst = protowire.AppendBytes(withFirst, encodeRetentionLease(a))
	require.Equal(t, versionOnly, encoded[:len(versionOnly)])
	require.Equal(t, withFirst, encoded[:len(withFirst)])

	for _, prefix := range [][]byte{versionOnly, withFirst} {
		_, err := DecodeRetentionLeases(prefix, 3)
		require.Error(t, err)
		assert.True(t, IsDecoding(err))
	}
}

func TestRetentionLeasesDecoding_CountMismatch(t *testing.T) {
	encoded := EncodeRetentionLeases(mustLeases(t, 1, 2, mustLease(t, "a", 1, 1, "s")))
	encoded = protowire.AppendVarint(protowire.AppendTag(encoded, fieldCount, protowire.VarintType), 2)

	_, _, err := DecodeRetentionLeasesPayload(encoded)
	require.Error(t, err)
	assert.True(t, IsDecoding(err))
}

func TestRetentionLeasesDecoding_Corrupt(t *testing.T) {
	lease := func(fields ...[]byte) []byte {
		var b []byte
		for _, f := range fields {
			b = append(b, f...)
		}
		return b
	}
	str := func(num protowire.Number, s string) []byte {
		return protowire.AppendString(protowire.AppendTag(nil, num, protowire.BytesType), s)
	}
	varint := func(num protowire.Number, v uint64) []byte {
		return protowire.AppendVarint(protowire.AppendTag(nil, num, protowire.VarintType), v)
	}
	withLeases := func(bodies ...[]byte) []byte {
		b := varint(fieldVersion, 1)
		for _, body := range bodies {
			b = protowire.AppendTag(b, fieldLeases, protowire.BytesType)
			b = protowire.AppendBytes(b, body)
		}
		return append(b, varint(fieldCount, uint64(len(bodies)))...)
	}
	valid := lease(str(1, "a"), varint(2, 1), varint(3, 1), str(4, "s"))

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte{0xff, 0xff, 0xff}},
		{"missing version", withLeases(valid)[2:]},
		{"missing count", withLeases(valid)[:len(withLeases(valid))-2]},
		{"count as bytes", append(withLeases()[:2], str(fieldCount, "x")...)},
		{"version as bytes", str(fieldVersion, "x")},
		{"version out of range", varint(fieldVersion, 1<<63)},
		{"empty lease id", withLeases(lease(str(1, ""), varint(2, 1), varint(3, 1), str(4, "s")))},
		{"empty source", withLeases(lease(str(1, "a"), varint(2, 1), varint(3, 1)))},
		{"missing sequence number", withLeases(lease(str(1, "a"), varint(3, 1), str(4, "s")))},
		{"negative sequence number", withLeases(lease(str(1, "a"), varint(2, 1<<63), varint(3, 1), str(4, "s")))},
		{"id as varint", withLeases(lease(varint(1, 5), varint(2, 1), varint(3, 1), str(4, "s")))},
		{"duplicate ids", withLeases(valid, valid)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeRetentionLeasesPayload(tt.data)
			require.Error(t, err)
			assert.True(t, IsDecoding(err))
		})
	}
}

func TestRetentionLeasesDecoding_SkipsUnknownFields(t *testing.T) {
	encoded := EncodeRetentionLeases(mustLeases(t, 1, 4, mustLease(t, "a", 1, 2, "s")))
	encoded = protowire.AppendString(protowire.AppendTag(encoded, 9, protowire.BytesType), "future")
	encoded = protowire.AppendVarint(protowire.AppendTag(encoded, 10, protowire.VarintType), 42)

	decoded, err := DecodeRetentionLeases(encoded, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), decoded.Version())
	assert.Equal(t, 1, decoded.Len())
}

func TestRetentionLeasesDecoding_RejectsInvalidPrimaryTerm(t *testing.T) {
	encoded := EncodeRetentionLeases(mustLeases(t, 1, 0))
	_, err := DecodeRetentionLeases(encoded, 0)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}
