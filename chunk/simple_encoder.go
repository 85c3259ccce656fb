package chunk

import (
	"fmt"

	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/compress"
	"github.com/strataio/strata/encoding"
	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/format"
	"github.com/strataio/strata/internal/pool"
)

// SimpleEncoder builds a simple chunk: length-prefixed records stored as a
// run of record-size varints followed by the concatenated value blob,
// optionally compressed as one block.
//
// A SimpleEncoder is reusable: Reset clears it for the next chunk. The
// encoder borrows a pooled assembly buffer; Close returns it when the
// encoder is no longer needed.
type SimpleEncoder struct {
	opts   encoderOptions
	sizes  []uint64
	values *pool.ByteBuffer
}

// NewSimpleEncoder creates a SimpleEncoder.
func NewSimpleEncoder(opts ...EncoderOption) *SimpleEncoder {
	e := &SimpleEncoder{
		opts:   defaultEncoderOptions(),
		values: pool.GetChunkBuffer(),
	}
	for _, opt := range opts {
		opt(&e.opts)
	}

	return e
}

// AddRecord appends one record. Empty records are permitted.
func (e *SimpleEncoder) AddRecord(rec []byte) {
	e.sizes = append(e.sizes, uint64(len(rec)))
	e.values.MustWrite(rec)
}

// NumRecords returns the number of records added so far.
func (e *SimpleEncoder) NumRecords() uint64 {
	return uint64(len(e.sizes))
}

// Encode assembles the chunk. The encoder keeps its contents; call Reset
// to start the next chunk.
func (e *SimpleEncoder) Encode() (*Chunk, error) {
	if uint64(len(e.sizes)) > MaxRecords {
		return nil, errs.ErrTooManyRecords
	}
	decoded := uint64(e.values.Len())
	if decoded > MaxPayload {
		return nil, errs.ErrChunkTooLarge
	}

	inner := make([]byte, 0, len(e.sizes)*2+e.values.Len())
	for _, s := range e.sizes {
		inner = encoding.AppendUvarint(inner, s)
	}
	inner = append(inner, e.values.Bytes()...)

	payload := []byte{byte(e.opts.compression)}
	if e.opts.compression == format.CompressionNone {
		payload = append(payload, inner...)
	} else {
		block, err := compress.Compress(e.opts.compression, inner)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrDecompression, err)
		}
		payload = encoding.AppendUvarint(payload, uint64(len(inner)))
		payload = append(payload, block...)
	}

	return &Chunk{
		Header: Header{
			ChunkType:       format.ChunkSimple,
			NumRecords:      uint64(len(e.sizes)),
			DecodedDataSize: decoded,
			DataSize:        uint64(len(payload)),
		},
		Data: chain.FromBytes(payload),
	}, nil
}

// Reset clears the encoder for the next chunk.
func (e *SimpleEncoder) Reset() {
	e.sizes = e.sizes[:0]
	e.values.Reset()
}

// Close returns the encoder's pooled buffer. The encoder must not be used
// after Close; chunks returned by Encode stay valid. Close is idempotent.
func (e *SimpleEncoder) Close() {
	pool.PutChunkBuffer(e.values)
	e.values = nil
	e.sizes = nil
}
