package chunk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/format"
)

// Wire-format building helpers for test records.

func fVarint(num protowire.Number, v uint64) []byte {
	return protowire.AppendVarint(protowire.AppendTag(nil, num, protowire.VarintType), v)
}

func fFixed32(num protowire.Number, v uint32) []byte {
	return protowire.AppendFixed32(protowire.AppendTag(nil, num, protowire.Fixed32Type), v)
}

func fFixed64(num protowire.Number, v uint64) []byte {
	return protowire.AppendFixed64(protowire.AppendTag(nil, num, protowire.Fixed64Type), v)
}

func fBytes(num protowire.Number, data []byte) []byte {
	return protowire.AppendBytes(protowire.AppendTag(nil, num, protowire.BytesType), data)
}

func fGroup(num protowire.Number, body []byte) []byte {
	b := protowire.AppendTag(nil, num, protowire.StartGroupType)
	b = append(b, body...)

	return protowire.AppendTag(b, num, protowire.EndGroupType)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}

func encodeTransposed(t *testing.T, records [][]byte, opts ...EncoderOption) *Chunk {
	t.Helper()
	enc := NewTransposeEncoder(opts...)
	for _, rec := range records {
		require.NoError(t, enc.AddRecord(rec))
	}
	c, err := enc.Encode()
	require.NoError(t, err)
	require.Equal(t, format.ChunkTransposed, c.Header.ChunkType)

	return c
}

func transposedRoundTrip(t *testing.T, records [][]byte, opts ...EncoderOption) {
	t.Helper()
	c := encodeTransposed(t, records, opts...)

	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c), dec.Message())
	require.Equal(t, uint64(len(records)), dec.NumRecords())
	got := decodeAll(t, dec)
	for i, rec := range records {
		want := append([]byte{}, rec...)
		require.Equal(t, want, got[i], "record %d", i)
	}
}

func TestTranspose_RoundTripFlatRecords(t *testing.T) {
	records := [][]byte{
		cat(fVarint(1, 7), fBytes(2, []byte("hello")), fVarint(3, 300)),
		cat(fVarint(1, 8), fBytes(2, []byte("")), fVarint(3, 0)),
		cat(fVarint(1, 9), fBytes(2, []byte("world!")), fVarint(3, 1<<40)),
	}

	for _, kind := range allCompressionKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			transposedRoundTrip(t, records, WithCompression(kind))
		})
	}
}

func TestTranspose_RoundTripVaryingShapes(t *testing.T) {
	// Diverging record heads force the synthetic start node and computed
	// transitions.
	records := [][]byte{
		cat(fVarint(1, 1)),
		cat(fBytes(2, []byte("only field two"))),
		cat(fVarint(1, 2), fBytes(2, []byte("both"))),
		nil,
		cat(fBytes(2, []byte("two again"))),
	}
	transposedRoundTrip(t, records)
}

func TestTranspose_RoundTripRepeatedFields(t *testing.T) {
	records := [][]byte{
		cat(fVarint(1, 1), fVarint(1, 2), fVarint(1, 3)),
		cat(fVarint(1, 4)),
		cat(fBytes(2, []byte("x")), fBytes(2, []byte("y"))),
	}
	transposedRoundTrip(t, records)
}

func TestTranspose_RoundTripNestedMessages(t *testing.T) {
	inner := cat(fVarint(3, 42), fBytes(4, []byte("nested")))
	deep := cat(fBytes(2, inner), fVarint(5, 1))
	records := [][]byte{
		cat(fVarint(1, 10), fBytes(2, inner)),
		cat(fVarint(1, 11), fBytes(2, deep)),
	}
	transposedRoundTrip(t, records)
}

func TestTranspose_RoundTripGroups(t *testing.T) {
	records := [][]byte{
		cat(fVarint(1, 1), fGroup(2, cat(fVarint(3, 5), fBytes(4, []byte("g"))))),
		cat(fVarint(1, 2), fGroup(2, cat(fVarint(3, 6)))),
	}
	transposedRoundTrip(t, records)
}

func TestTranspose_RoundTripScalarKinds(t *testing.T) {
	// Single-byte variants of every scalar wire type survive the round
	// trip.
	records := [][]byte{
		cat(
			fVarint(1, 0),
			fVarint(2, 127),
			fFixed32(3, 0xDEADBEEF),
			fFixed64(4, 0xFEEDFACECAFEBEEF),
			fBytes(5, []byte{0x00}),
		),
		cat(
			fVarint(1, 1),
			fVarint(2, 128),
			fFixed32(3, 0),
			fFixed64(4, 0),
			fBytes(5, nil),
		),
	}
	transposedRoundTrip(t, records)
}

func TestTranspose_EmptyChunk(t *testing.T) {
	for _, kind := range allCompressionKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			c := encodeTransposed(t, nil, WithCompression(kind))
			require.Zero(t, c.Header.NumRecords)
			require.Zero(t, c.Header.DecodedDataSize)

			dec := NewDecoder()
			require.True(t, dec.ResetChunk(c), dec.Message())
			require.Zero(t, dec.NumRecords())

			var rec RawRecord
			require.False(t, dec.ReadRecord(&rec))
			require.True(t, dec.Healthy())
		})
	}
}

func TestTranspose_AllRecordsEmpty(t *testing.T) {
	transposedRoundTrip(t, [][]byte{nil, nil, nil})
}

func TestTranspose_FramingSoundness(t *testing.T) {
	records := [][]byte{
		cat(fVarint(1, 1), fBytes(2, []byte("abc"))),
		nil,
		cat(fVarint(1, 2)),
	}
	c := encodeTransposed(t, records)

	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c), dec.Message())
	require.Equal(t, uint64(len(records)), dec.NumRecords())

	// Walk the records and rebuild the limits from the observed lengths;
	// with full projection they must sum to the decoded data size.
	var rec RawRecord
	var total uint64
	for dec.ReadRecord(&rec) {
		total += uint64(len(rec))
	}
	require.True(t, dec.Healthy())
	require.Equal(t, c.Header.DecodedDataSize, total)
}

func TestTranspose_ProjectionTopLevel(t *testing.T) {
	// Records with fields {1: int, 2: string, 3: int}; projection {1}
	// yields records carrying only field 1, and the emitted total is
	// strictly less than the decoded data size.
	records := [][]byte{
		cat(fVarint(1, 100), fBytes(2, []byte("drop me")), fVarint(3, 1)),
		cat(fVarint(1, 200), fBytes(2, []byte("and me")), fVarint(3, 2)),
	}
	c := encodeTransposed(t, records)

	dec := NewDecoder(WithProjection(NewFieldProjection(FieldPath{1})))
	require.True(t, dec.ResetChunk(c), dec.Message())

	got := decodeAll(t, dec)
	require.Equal(t, [][]byte{fVarint(1, 100), fVarint(1, 200)}, got)

	var total uint64
	for _, rec := range got {
		total += uint64(len(rec))
	}
	require.Less(t, total, c.Header.DecodedDataSize)
}

func TestTranspose_ProjectionNested(t *testing.T) {
	// Projection {2,3} keeps the submessage framing of field 2 but only
	// its field 3; the submessage length prefix is recomputed.
	inner := cat(fVarint(3, 9), fBytes(4, []byte("gone")))
	records := [][]byte{
		cat(fVarint(1, 5), fBytes(2, inner)),
	}
	c := encodeTransposed(t, records)

	dec := NewDecoder(WithProjection(NewFieldProjection(FieldPath{2, 3})))
	require.True(t, dec.ResetChunk(c), dec.Message())

	got := decodeAll(t, dec)
	want := fBytes(2, fVarint(3, 9))
	require.Equal(t, [][]byte{want}, got)
}

func TestTranspose_ProjectionMonotonicity(t *testing.T) {
	inner := cat(fVarint(3, 7), fBytes(4, []byte("four")))
	records := [][]byte{
		cat(fVarint(1, 1), fBytes(2, inner), fFixed64(5, 99)),
		cat(fVarint(1, 2), fBytes(2, inner), fFixed64(5, 100)),
	}
	c := encodeTransposed(t, records)

	narrow := NewDecoder(WithProjection(NewFieldProjection(FieldPath{2, 3})))
	require.True(t, narrow.ResetChunk(c), narrow.Message())
	narrowRecs := decodeAll(t, narrow)

	wide := NewDecoder(WithProjection(NewFieldProjection(FieldPath{2, 3}, FieldPath{5})))
	require.True(t, wide.ResetChunk(c), wide.Message())
	wideRecs := decodeAll(t, wide)

	for i := range narrowRecs {
		require.Equal(t, cat(fBytes(2, fVarint(3, 7))), narrowRecs[i])
		require.Equal(t, cat(fBytes(2, fVarint(3, 7)), fFixed64(5, 99+uint64(i))), wideRecs[i])
		// The wider projection emits a superset of each record.
		require.True(t, bytes.HasPrefix(wideRecs[i], narrowRecs[i]))
	}
}

func TestTranspose_ProjectionFullMatchesUnprojected(t *testing.T) {
	records := [][]byte{
		cat(fVarint(1, 1), fBytes(2, []byte("keep"))),
	}
	c := encodeTransposed(t, records)

	dec := NewDecoder(WithProjection(NewFieldProjection(FieldPath{1}, FieldPath{2})))
	require.True(t, dec.ResetChunk(c), dec.Message())
	require.Equal(t, records, decodeAll(t, dec))
}

func TestTranspose_TrailingBytesRejected(t *testing.T) {
	c := encodeTransposed(t, [][]byte{fVarint(1, 1)})

	var data chain.Chain
	data.Append(c.Data)
	data.AppendBytes([]byte{0x00})
	bad := &Chunk{Header: c.Header, Data: data}
	bad.Header.DataSize++

	dec := NewDecoder()
	require.False(t, dec.ResetChunk(bad))
	require.ErrorIs(t, dec.Err(), errs.ErrTrailingData)
}

func TestTranspose_CorruptedPayload(t *testing.T) {
	records := [][]byte{
		cat(fVarint(1, 1), fBytes(2, bytes.Repeat([]byte("abc"), 50))),
		cat(fVarint(1, 2), fBytes(2, bytes.Repeat([]byte("def"), 50))),
	}
	c := encodeTransposed(t, records, WithCompression(format.CompressionZstd))

	payload := append([]byte(nil), c.Data.Bytes()...)
	// Flip bytes in the back half of the payload (bucket bodies).
	for i := len(payload) / 2; i < len(payload); i++ {
		payload[i] ^= 0x5A
	}
	bad := &Chunk{Header: c.Header, Data: chain.FromBytes(payload)}

	dec := NewDecoder()
	require.False(t, dec.ResetChunk(bad))
	require.False(t, dec.Healthy())
	require.False(t, dec.Recover(), "structural failures are not recoverable")
}

func TestTranspose_EncoderRejectsNonWireRecords(t *testing.T) {
	enc := NewTransposeEncoder()
	err := enc.AddRecord([]byte{0x07}) // wire type 7 does not exist
	require.Error(t, err)
}

func TestTranspose_EncoderReset(t *testing.T) {
	enc := NewTransposeEncoder()
	require.NoError(t, enc.AddRecord(fVarint(1, 1)))
	_, err := enc.Encode()
	require.NoError(t, err)

	enc.Reset()
	require.Zero(t, enc.NumRecords())
	require.NoError(t, enc.AddRecord(fVarint(2, 2)))
	c, err := enc.Encode()
	require.NoError(t, err)

	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c), dec.Message())
	require.Equal(t, [][]byte{fVarint(2, 2)}, decodeAll(t, dec))
}

func TestTranspose_LargerMixedChunk(t *testing.T) {
	// A bigger chunk with many shapes exercising bucketing and computed
	// transitions together.
	var records [][]byte
	for i := 0; i < 100; i++ {
		switch i % 4 {
		case 0:
			records = append(records, cat(fVarint(1, uint64(i)), fBytes(2, bytes.Repeat([]byte{byte(i)}, i%17))))
		case 1:
			records = append(records, cat(fBytes(2, []byte("fixed")), fFixed32(3, uint32(i))))
		case 2:
			records = append(records, nil)
		case 3:
			records = append(records, cat(fVarint(1, uint64(i)), fVarint(1, uint64(i+1)), fFixed64(4, uint64(i))))
		}
	}

	for _, kind := range allCompressionKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			transposedRoundTrip(t, records, WithCompression(kind), WithBucketTargetSize(64))
		})
	}
}
