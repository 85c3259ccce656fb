// Package compress provides the compression codecs behind the container's
// per-chunk compression kinds.
//
// Each kind maps to a Codec implementation:
//
//   - CompressionNone: pass-through (NoOpCompressor)
//   - CompressionBrotli: andybalholm/brotli
//   - CompressionZstd: klauspost/compress/zstd (pure Go) or valyala/gozstd
//     (libzstd, cgo builds)
//   - CompressionSnappy: klauspost/compress/snappy
//
// The package-level Decompress helper is the decompressor collaborator of
// the chunk decoders: it selects the codec from the on-wire kind byte and
// validates the output against the uncompressed size recorded in the chunk
// payload, so corrupted or truncated sections fail deterministically
// instead of producing short value streams.
//
// All codecs are safe for concurrent use. The pure-Go zstd codec keeps
// warmed encoder/decoder instances in sync.Pools; the cgo zstd codec and
// the other codecs are stateless.
//
// # Choosing a kind
//
// Snappy decodes fastest, Brotli compresses densest, Zstd sits between.
// Writers pick a kind per chunk; readers accept any recognized kind, so
// containers may mix kinds freely.
package compress
