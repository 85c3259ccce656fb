package chunk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/format"
)

// pickyRecord rejects one specific payload, standing in for an injected
// structured-message parser.
type pickyRecord struct {
	reject string
	data   []byte
}

func (p *pickyRecord) UnmarshalRecord(b []byte) error {
	if string(b) == p.reject {
		return errors.New("rejected payload")
	}
	p.data = b

	return nil
}

func simpleChunk(t *testing.T, records ...[]byte) *Chunk {
	t.Helper()
	enc := NewSimpleEncoder()
	defer enc.Close()
	for _, rec := range records {
		enc.AddRecord(rec)
	}
	c, err := enc.Encode()
	require.NoError(t, err)

	return c
}

func TestDecoder_FreshState(t *testing.T) {
	dec := NewDecoder()
	require.True(t, dec.Healthy())
	require.Zero(t, dec.NumRecords())
	require.Zero(t, dec.Index())
	require.Empty(t, dec.Message())

	var rec RawRecord
	require.False(t, dec.ReadRecord(&rec))
	require.True(t, dec.Healthy())
	require.False(t, dec.Recover())
}

func TestDecoder_FileSignature(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		c := &Chunk{Header: Header{ChunkType: format.ChunkFileSignature}}
		dec := NewDecoder()
		require.True(t, dec.ResetChunk(c))
		require.Zero(t, dec.NumRecords())
	})

	t.Run("nonzero data size", func(t *testing.T) {
		c := &Chunk{
			Header: Header{ChunkType: format.ChunkFileSignature, DataSize: 1},
			Data:   chain.FromBytes([]byte{0}),
		}
		dec := NewDecoder()
		require.False(t, dec.ResetChunk(c))
		require.ErrorIs(t, dec.Err(), errs.ErrStructural)
	})

	t.Run("nonzero records", func(t *testing.T) {
		c := &Chunk{Header: Header{ChunkType: format.ChunkFileSignature, NumRecords: 1}}
		dec := NewDecoder()
		require.False(t, dec.ResetChunk(c))
	})
}

func TestDecoder_FileMetadata(t *testing.T) {
	payload := []byte("container metadata payload")
	c := &Chunk{
		Header: Header{
			ChunkType:       format.ChunkFileMetadata,
			DecodedDataSize: 100,
			DataSize:        uint64(len(payload)),
		},
		Data: chain.FromBytes(payload),
	}

	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c), dec.Message())
	require.Zero(t, dec.NumRecords())

	bad := &Chunk{Header: Header{ChunkType: format.ChunkFileMetadata, NumRecords: 2}}
	require.False(t, dec.ResetChunk(bad))
}

func TestDecoder_Padding(t *testing.T) {
	// Header {Padding, num=0, decoded=0, data_size=128}, 128 arbitrary
	// payload bytes.
	payload := make([]byte, 128)
	for i := range payload {
		payload[i] = byte(i * 31)
	}
	c := &Chunk{
		Header: Header{ChunkType: format.ChunkPadding, DataSize: 128},
		Data:   chain.FromBytes(payload),
	}

	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c), dec.Message())
	require.Zero(t, dec.NumRecords())

	t.Run("nonzero decoded size", func(t *testing.T) {
		bad := &Chunk{
			Header: Header{ChunkType: format.ChunkPadding, DecodedDataSize: 1, DataSize: 128},
			Data:   chain.FromBytes(payload),
		}
		require.False(t, dec.ResetChunk(bad))
	})
}

func TestDecoder_UnknownChunkType(t *testing.T) {
	t.Run("no records is ignored", func(t *testing.T) {
		c := &Chunk{
			Header: Header{ChunkType: format.ChunkType(0x7a), DecodedDataSize: 5, DataSize: 3},
			Data:   chain.FromBytes([]byte{1, 2, 3}),
		}
		dec := NewDecoder()
		require.True(t, dec.ResetChunk(c), dec.Message())
		require.Zero(t, dec.NumRecords())
	})

	t.Run("with records is rejected", func(t *testing.T) {
		c := &Chunk{
			Header: Header{ChunkType: format.ChunkType(0x7a), NumRecords: 1, DataSize: 3},
			Data:   chain.FromBytes([]byte{1, 2, 3}),
		}
		dec := NewDecoder()
		require.False(t, dec.ResetChunk(c))
		require.ErrorIs(t, dec.Err(), errs.ErrUnknownChunkType)
	})
}

func TestDecoder_RecoverSkipsBadRecord(t *testing.T) {
	// Records "", "a", "bc" where the injected parser rejects "a".
	c := simpleChunk(t, []byte(""), []byte("a"), []byte("bc"))

	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c))

	rec := &pickyRecord{reject: "a"}
	require.True(t, dec.ReadRecord(rec))
	require.Empty(t, rec.data)

	require.False(t, dec.ReadRecord(rec))
	require.False(t, dec.Healthy())
	require.ErrorIs(t, dec.Err(), errs.ErrRecordParse)
	require.Equal(t, uint64(1), dec.Index())

	require.True(t, dec.Recover())
	require.True(t, dec.Healthy())
	require.Equal(t, uint64(2), dec.Index())

	require.True(t, dec.ReadRecord(rec))
	require.Equal(t, []byte("bc"), rec.data)

	require.False(t, dec.ReadRecord(rec))
	require.True(t, dec.Healthy())
	require.Equal(t, dec.NumRecords(), dec.Index())
}

func TestDecoder_RecoverOnlyAfterRecordFailure(t *testing.T) {
	c := simpleChunk(t, []byte("x"))
	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c))

	// Healthy decoder: nothing to recover.
	require.False(t, dec.Recover())

	var rec RawRecord
	require.True(t, dec.ReadRecord(&rec))
	require.False(t, dec.Recover())
}

func TestDecoder_ResetIdempotence(t *testing.T) {
	// reset(); reset(chunk); read all; reset() leaves state equal to a
	// freshly constructed decoder.
	c := simpleChunk(t, []byte("a"), []byte("b"))

	dec := NewDecoder()
	dec.Reset()
	require.True(t, dec.ResetChunk(c))
	var rec RawRecord
	for dec.ReadRecord(&rec) {
	}
	dec.Reset()

	fresh := NewDecoder()
	require.Equal(t, fresh.NumRecords(), dec.NumRecords())
	require.Equal(t, fresh.Index(), dec.Index())
	require.Equal(t, fresh.Healthy(), dec.Healthy())
	require.False(t, dec.ReadRecord(&rec))

	// The decoder is fully usable again after the bare reset.
	require.True(t, dec.ResetChunk(c))
	require.Equal(t, uint64(2), dec.NumRecords())
}

func TestDecoder_SetIndex(t *testing.T) {
	c := simpleChunk(t, []byte("r0"), []byte("r1"), []byte("r2"))
	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c))

	var rec RawRecord
	require.True(t, dec.ReadRecord(&rec))
	require.True(t, dec.ReadRecord(&rec))
	require.Equal(t, []byte("r1"), []byte(rec))

	// Revisit record 1.
	dec.SetIndex(1)
	require.Equal(t, uint64(1), dec.Index())
	require.True(t, dec.ReadRecord(&rec))
	require.Equal(t, []byte("r1"), []byte(rec))

	// Clamp beyond the end.
	dec.SetIndex(100)
	require.Equal(t, uint64(3), dec.Index())
	require.False(t, dec.ReadRecord(&rec))
	require.True(t, dec.Healthy())

	// Rewind to the start.
	dec.SetIndex(0)
	require.True(t, dec.ReadRecord(&rec))
	require.Equal(t, []byte("r0"), []byte(rec))
}

func TestDecoder_SetIndexClearsRecordFailure(t *testing.T) {
	c := simpleChunk(t, []byte("bad"), []byte("ok"))
	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c))

	rec := &pickyRecord{reject: "bad"}
	require.False(t, dec.ReadRecord(rec))
	require.False(t, dec.Healthy())

	dec.SetIndex(1)
	require.True(t, dec.Healthy())
	require.True(t, dec.ReadRecord(rec))
	require.Equal(t, []byte("ok"), rec.data)
}

func TestDecoder_BoundViolations(t *testing.T) {
	t.Run("too many records", func(t *testing.T) {
		c := &Chunk{Header: Header{ChunkType: format.ChunkSimple, NumRecords: MaxRecords + 1}}
		dec := NewDecoder()
		require.False(t, dec.ResetChunk(c))
		require.ErrorIs(t, dec.Err(), errs.ErrTooManyRecords)
		require.False(t, dec.Recover())
	})

	t.Run("too large chunk", func(t *testing.T) {
		c := &Chunk{Header: Header{ChunkType: format.ChunkSimple, DecodedDataSize: MaxPayload + 1}}
		dec := NewDecoder()
		require.False(t, dec.ResetChunk(c))
		require.ErrorIs(t, dec.Err(), errs.ErrChunkTooLarge)
	})

	t.Run("data size mismatch", func(t *testing.T) {
		c := &Chunk{
			Header: Header{ChunkType: format.ChunkSimple, DataSize: 10},
			Data:   chain.FromBytes([]byte{0}),
		}
		dec := NewDecoder()
		require.False(t, dec.ResetChunk(c))
		require.ErrorIs(t, dec.Err(), errs.ErrSizeMismatch)
	})
}

func TestDecoder_PoisonedUntilReset(t *testing.T) {
	bad := &Chunk{Header: Header{ChunkType: format.ChunkSimple, NumRecords: MaxRecords + 1}}
	good := simpleChunk(t, []byte("fine"))

	dec := NewDecoder()
	require.False(t, dec.ResetChunk(bad))
	require.False(t, dec.Healthy())
	require.NotEmpty(t, dec.Message())

	var rec RawRecord
	require.False(t, dec.ReadRecord(&rec))
	require.False(t, dec.Recover())

	// A fresh reset clears the poison.
	require.True(t, dec.ResetChunk(good))
	require.True(t, dec.ReadRecord(&rec))
	require.Equal(t, []byte("fine"), []byte(rec))
}

func TestDecoder_ProtoRecords(t *testing.T) {
	// Protobuf messages as records, decoded through the proto adapter.
	msgs := []*wrapperspb.StringValue{
		wrapperspb.String("first"),
		wrapperspb.String("second"),
	}
	enc := NewSimpleEncoder()
	defer enc.Close()
	for _, m := range msgs {
		data, err := proto.Marshal(m)
		require.NoError(t, err)
		enc.AddRecord(data)
	}
	c, err := enc.Encode()
	require.NoError(t, err)

	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c))

	for _, want := range msgs {
		got := &wrapperspb.StringValue{}
		require.True(t, dec.ReadRecord(ProtoRecord{Message: got}))
		require.Equal(t, want.Value, got.Value)
	}
}

func TestDecoder_ProtoRecordFailureIsRecoverable(t *testing.T) {
	enc := NewSimpleEncoder()
	defer enc.Close()
	enc.AddRecord([]byte{0xFF, 0xFF, 0xFF}) // not a valid message
	valid, err := proto.Marshal(wrapperspb.String("ok"))
	require.NoError(t, err)
	enc.AddRecord(valid)
	c, err := enc.Encode()
	require.NoError(t, err)

	dec := NewDecoder()
	require.True(t, dec.ResetChunk(c))

	got := &wrapperspb.StringValue{}
	require.False(t, dec.ReadRecord(ProtoRecord{Message: got}))
	require.ErrorIs(t, dec.Err(), errs.ErrRecordParse)
	require.True(t, dec.Recover())
	require.True(t, dec.ReadRecord(ProtoRecord{Message: got}))
	require.Equal(t, "ok", got.Value)
}
