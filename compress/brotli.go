package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// BrotliCompressor backs the CompressionBrotli kind.
//
// Brotli achieves the best ratios of the supported kinds at the cost of
// compression speed; decompression remains fast enough for read-heavy
// containers.
type BrotliCompressor struct{}

var _ Codec = (*BrotliCompressor)(nil)

// NewBrotliCompressor creates a new Brotli compressor with default settings.
func NewBrotliCompressor() BrotliCompressor {
	return BrotliCompressor{}
}

// Compress compresses the input data using Brotli.
func (c BrotliCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("brotli compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli compression failed: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress decompresses Brotli-compressed data.
//
// This method validates the input data format and returns an error if the
// data is corrupted or was not compressed with Brotli.
func (c BrotliCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("brotli decompression failed: %w", err)
	}

	return out, nil
}
