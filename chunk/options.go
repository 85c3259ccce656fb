package chunk

import "github.com/strataio/strata/format"

// DefaultBucketTargetSize is the uncompressed size the transpose encoder
// aims for when grouping column buffers into compressed buckets.
const DefaultBucketTargetSize = 64 * 1024

type encoderOptions struct {
	compression      format.CompressionKind
	bucketTargetSize int
}

func defaultEncoderOptions() encoderOptions {
	return encoderOptions{
		compression:      format.CompressionNone,
		bucketTargetSize: DefaultBucketTargetSize,
	}
}

// EncoderOption configures SimpleEncoder and TransposeEncoder.
type EncoderOption func(*encoderOptions)

// WithCompression selects the per-chunk compression kind.
func WithCompression(kind format.CompressionKind) EncoderOption {
	return func(o *encoderOptions) {
		o.compression = kind
	}
}

// WithBucketTargetSize sets the uncompressed size the transpose encoder
// aims for per bucket. Larger buckets compress better; smaller buckets
// keep projected decoding from touching unrelated columns.
func WithBucketTargetSize(n int) EncoderOption {
	return func(o *encoderOptions) {
		if n > 0 {
			o.bucketTargetSize = n
		}
	}
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithProjection sets the field projection applied when decoding
// transposed chunks. Simple chunks ignore the projection.
func WithProjection(p FieldProjection) DecoderOption {
	return func(d *Decoder) {
		d.projection = p
	}
}
