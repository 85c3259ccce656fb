//go:build !cgo

package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstd encoders and decoders are expensive to construct and allocation-free
// once warm, so both directions keep instances in a sync.Pool and reuse
// them across chunks. Concurrency is pinned to 1: chunk sections are small
// enough that framing overhead would eat any parallel gain, and a
// single-threaded codec keeps per-decode memory flat.
var zstdDecoderPool = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("zstd decoder options rejected: %v", err))
		}
		return d
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		e, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			panic(fmt.Sprintf("zstd encoder options rejected: %v", err))
		}
		return e
	},
}

// Compress compresses data as a single Zstandard frame.
func (c ZstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(enc)

	// EncodeAll leaves no state behind in the encoder, so pooled reuse is
	// safe even across goroutines.
	return enc.EncodeAll(data, nil), nil
}

// Decompress decompresses a Zstandard frame, rejecting corrupted or
// foreign input.
func (c ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(dec)

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}

	return out, nil
}
