// Package chunk implements the chunk codec of the strata container format.
//
// A chunk holds a sequence of variable-length records, either as
// length-prefixed byte strings ("simple" chunks) or transposed by protobuf
// wire field into per-column value streams ("transposed" chunks, which
// compress better and support selective field projection on decode).
//
// # Decoding
//
// The Decoder is the package's main entry point. It dispatches on the
// chunk-type tag, drives the simple or transposed decoder, and exposes
// record-indexed access to the decoded value stream:
//
//	dec := chunk.NewDecoder()
//	if !dec.ResetChunk(&c) {
//	    return dec.Err()
//	}
//	var rec chunk.RawRecord
//	for dec.ReadRecord(&rec) {
//	    handle(rec)
//	}
//	if !dec.Healthy() {
//	    if dec.Recover() {
//	        // the offending record was skipped, reading may continue
//	    }
//	}
//
// A per-record parse failure leaves the decoder in a recoverable state:
// Recover skips the bad record and reading continues. Structural failures
// (malformed payload, decompression errors, bound violations) poison the
// decoder until the next reset.
//
// # Projection
//
// Transposed chunks can be decoded with a FieldProjection retaining only
// selected field paths; buckets holding only columns that no retained field
// needs are never decompressed.
//
// # Encoding
//
// SimpleEncoder and TransposeEncoder produce chunks in the two layouts,
// with a configurable per-chunk compression kind.
//
// Decoder, the encoders, and their readers are not safe for concurrent
// use; independent instances may run on separate goroutines.
package chunk
