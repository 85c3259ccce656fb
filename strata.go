// Package strata provides a record-oriented binary container chunk codec.
//
// A chunk holds a sequence of variable-length records (opaque byte strings,
// typically serialized structured messages). Chunks are stored compactly
// ("simple") or in a transposed form that groups field values column-wise
// for better compression and selective field projection on decode.
//
// # Basic Usage
//
// Encoding records into a chunk:
//
//	import "github.com/strataio/strata"
//
//	c, _ := strata.EncodeSimpleChunk([][]byte{rec1, rec2, rec3},
//	    chunk.WithCompression(format.CompressionZstd),
//	)
//
// Decoding all records of a chunk:
//
//	records, err := strata.DecodeRecords(c)
//	if err != nil {
//	    return err
//	}
//
// Decoding a transposed chunk with projection, keeping only field 1:
//
//	dec := strata.NewChunkDecoder(
//	    chunk.WithProjection(chunk.NewFieldProjection(chunk.FieldPath{1})),
//	)
//	if !dec.ResetChunk(c) {
//	    return dec.Err()
//	}
//	var rec chunk.RawRecord
//	for dec.ReadRecord(&rec) {
//	    handle(rec)
//	}
//
// # Package Structure
//
// This package provides convenient top-level wrappers around the chunk
// package, simplifying the most common use cases. For fine-grained control
// (per-record iteration, recovery from bad records, projection) use the
// chunk package directly.
package strata

import (
	"github.com/strataio/strata/chunk"
)

// NewChunkDecoder creates a chunk decoder. See chunk.NewDecoder.
func NewChunkDecoder(opts ...chunk.DecoderOption) *chunk.Decoder {
	return chunk.NewDecoder(opts...)
}

// EncodeSimpleChunk encodes records as a simple (length-prefixed) chunk.
func EncodeSimpleChunk(records [][]byte, opts ...chunk.EncoderOption) (*chunk.Chunk, error) {
	enc := chunk.NewSimpleEncoder(opts...)
	defer enc.Close()
	for _, rec := range records {
		enc.AddRecord(rec)
	}

	return enc.Encode()
}

// EncodeTransposedChunk encodes records as a transposed chunk. Every
// record must parse as protobuf wire format.
func EncodeTransposedChunk(records [][]byte, opts ...chunk.EncoderOption) (*chunk.Chunk, error) {
	enc := chunk.NewTransposeEncoder(opts...)
	for _, rec := range records {
		if err := enc.AddRecord(rec); err != nil {
			return nil, err
		}
	}

	return enc.Encode()
}

// DecodeRecords decodes all records of a chunk. The returned slices are
// copies and stay valid indefinitely.
func DecodeRecords(c *chunk.Chunk, opts ...chunk.DecoderOption) ([][]byte, error) {
	dec := chunk.NewDecoder(opts...)
	if !dec.ResetChunk(c) {
		return nil, dec.Err()
	}

	records := make([][]byte, 0, dec.NumRecords())
	var rec chunk.RawRecord
	for dec.ReadRecord(&rec) {
		records = append(records, append([]byte(nil), rec...))
	}
	if !dec.Healthy() {
		return nil, dec.Err()
	}

	return records, nil
}
