package compress

// ZstdCompressor backs the CompressionZstd kind.
//
// Zstd is the balanced choice of the supported kinds: good ratios on
// transposed column buffers with decompression fast enough for hot read
// paths.
//
// Two implementations are provided, selected at build time:
//   - pure Go (klauspost/compress/zstd) when built without cgo
//   - libzstd (valyala/gozstd) when built with cgo
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
