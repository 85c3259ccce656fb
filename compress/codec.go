package compress

import (
	"fmt"

	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/format"
)

// Compressor compresses chunk payload sections.
//
// Memory management:
//   - Returned slice is owned by the caller; a pass-through codec may
//     return the input slice itself
//   - Input slice is not modified
//   - Internal buffers may be reused for efficiency
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor decompresses chunk payload sections.
//
// The input data should be previously compressed using the same compression
// algorithm. The decompressor validates the data format and returns an error
// if the data is corrupted or uses an incompatible format.
//
// Thread safety: Decompressor implementations must be safe for concurrent
// use; independent chunk decoders may run on separate goroutines.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both compression and decompression capabilities.
type Codec interface {
	Compressor
	Decompressor
}

// CreateCodec is a factory function that creates a Codec based on the specified compression kind.
//
// Parameters:
//   - kind: On-wire compression kind (None, Brotli, Zstd, or Snappy)
//   - target: Description of target usage (for error messages)
//
// Returns:
//   - Codec: Codec instance for the specified kind
//   - error: Invalid compression kind error
func CreateCodec(kind format.CompressionKind, target string) (Codec, error) {
	switch kind {
	case format.CompressionNone:
		return NewNoOpCompressor(), nil
	case format.CompressionBrotli:
		return NewBrotliCompressor(), nil
	case format.CompressionZstd:
		return NewZstdCompressor(), nil
	case format.CompressionSnappy:
		return NewSnappyCompressor(), nil
	default:
		return nil, fmt.Errorf("%w: invalid %s compression: 0x%02x", errs.ErrUnknownCompression, target, uint8(kind))
	}
}

var builtinCodecs = map[format.CompressionKind]Codec{
	format.CompressionNone:   NewNoOpCompressor(),
	format.CompressionBrotli: NewBrotliCompressor(),
	format.CompressionZstd:   NewZstdCompressor(),
	format.CompressionSnappy: NewSnappyCompressor(),
}

// GetCodec retrieves a built-in Codec for the specified compression kind.
func GetCodec(kind format.CompressionKind) (Codec, error) {
	if codec, ok := builtinCodecs[kind]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("%w: 0x%02x", errs.ErrUnknownCompression, uint8(kind))
}

// Compress compresses data with the codec of the given kind.
func Compress(kind format.CompressionKind, data []byte) ([]byte, error) {
	codec, err := GetCodec(kind)
	if err != nil {
		return nil, err
	}

	return codec.Compress(data)
}

// Decompress decompresses data with the codec of the given kind and
// validates the result against the expected uncompressed size carried in
// the chunk payload.
func Decompress(kind format.CompressionKind, data []byte, uncompressedSize uint64) ([]byte, error) {
	codec, err := GetCodec(kind)
	if err != nil {
		return nil, err
	}
	out, err := codec.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrDecompression, kind, err)
	}
	if uint64(len(out)) != uncompressedSize {
		return nil, fmt.Errorf("%w: %s produced %d bytes, expected %d",
			errs.ErrDecompression, kind, len(out), uncompressedSize)
	}

	return out, nil
}
