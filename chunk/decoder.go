package chunk

import (
	"fmt"

	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/format"
	"github.com/strataio/strata/stream"
)

// Decoder reconstructs the records of one chunk at a time.
//
// A Decoder is created empty and healthy with zero records; ResetChunk
// replaces its contents. ReadRecord observes records in ascending index
// order; SetIndex is the only way to revisit.
//
// Errors are sticky. A per-record parse failure is recoverable: Recover
// skips the offending record. Structural failures poison the decoder until
// the next reset.
//
// A Decoder is not safe for concurrent use; independent decoders share no
// mutable state and may run in parallel.
type Decoder struct {
	projection FieldProjection

	limits       []uint64
	valuesReader stream.ChainReader
	index        uint64
	recoverable  bool
	err          error
}

// NewDecoder creates an empty, healthy Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Reset drops all state: the decoder becomes healthy with zero records.
func (d *Decoder) Reset() {
	d.limits = d.limits[:0]
	d.valuesReader.Reset(chain.Chain{})
	d.index = 0
	d.recoverable = false
	d.err = nil
}

func (d *Decoder) fail(err error) bool {
	if d.err == nil {
		d.err = err
	}

	return false
}

// ResetChunk parses a chunk according to its chunk-type tag. On success
// the decoder is healthy with index 0. On failure the decoder is poisoned
// and holds no records, so index() == numRecords() == 0 and iteration
// stops immediately.
func (d *Decoder) ResetChunk(c *Chunk) bool {
	d.Reset()
	h := c.Header
	if h.NumRecords > MaxRecords {
		return d.fail(fmt.Errorf("%w: %d records", errs.ErrTooManyRecords, h.NumRecords))
	}
	if h.DecodedDataSize > MaxPayload {
		return d.fail(fmt.Errorf("%w: decoded data size %d", errs.ErrChunkTooLarge, h.DecodedDataSize))
	}
	if h.DataSize != uint64(c.Data.Len()) {
		return d.fail(fmt.Errorf("%w: header data size %d, payload holds %d bytes",
			errs.ErrSizeMismatch, h.DataSize, c.Data.Len()))
	}

	limits, values, err := d.parse(&h, c.Data)
	if err != nil {
		d.limits = d.limits[:0] // ensure index() == numRecords()
		return d.fail(err)
	}

	// Defend the framing invariants before exposing record access.
	if uint64(len(limits)) != h.NumRecords {
		d.limits = d.limits[:0]
		return d.fail(fmt.Errorf("%w: %d record end positions for %d records",
			errs.ErrSizeMismatch, len(limits), h.NumRecords))
	}
	last := uint64(0)
	if len(limits) > 0 {
		last = limits[len(limits)-1]
	}
	if last != uint64(values.Len()) {
		d.limits = d.limits[:0]
		return d.fail(fmt.Errorf("%w: last record ends at %d, values hold %d bytes",
			errs.ErrSizeMismatch, last, values.Len()))
	}

	d.limits = limits
	d.valuesReader.Reset(values)

	return true
}

// parse dispatches on the chunk-type tag. Unknown nonzero tags with no
// records are ignored as forward-compatible padding.
func (d *Decoder) parse(h *Header, data chain.Chain) ([]uint64, chain.Chain, error) {
	switch h.ChunkType {
	case format.ChunkFileSignature:
		if h.DataSize != 0 {
			return nil, chain.Chain{}, fmt.Errorf("%w: invalid file signature chunk: data size is not zero: %d",
				errs.ErrStructural, h.DataSize)
		}
		if h.NumRecords != 0 {
			return nil, chain.Chain{}, fmt.Errorf("%w: invalid file signature chunk: number of records is not zero: %d",
				errs.ErrStructural, h.NumRecords)
		}
		if h.DecodedDataSize != 0 {
			return nil, chain.Chain{}, fmt.Errorf("%w: invalid file signature chunk: decoded data size is not zero: %d",
				errs.ErrStructural, h.DecodedDataSize)
		}

		return nil, chain.Chain{}, nil

	case format.ChunkFileMetadata:
		if h.NumRecords != 0 {
			return nil, chain.Chain{}, fmt.Errorf("%w: invalid file metadata chunk: number of records is not zero: %d",
				errs.ErrStructural, h.NumRecords)
		}

		return nil, chain.Chain{}, nil

	case format.ChunkPadding:
		if h.NumRecords != 0 {
			return nil, chain.Chain{}, fmt.Errorf("%w: invalid padding chunk: number of records is not zero: %d",
				errs.ErrStructural, h.NumRecords)
		}
		if h.DecodedDataSize != 0 {
			return nil, chain.Chain{}, fmt.Errorf("%w: invalid padding chunk: decoded data size is not zero: %d",
				errs.ErrStructural, h.DecodedDataSize)
		}

		return nil, chain.Chain{}, nil

	case format.ChunkSimple:
		src := stream.NewChainReader(data)
		limits, values, err := decodeSimple(src, *h)
		if err != nil {
			return nil, chain.Chain{}, fmt.Errorf("invalid simple chunk: %w", err)
		}
		if !src.VerifyEndAndClose() {
			return nil, chain.Chain{}, fmt.Errorf("invalid simple chunk: %w", src.Err())
		}

		return limits, values, nil

	case format.ChunkTransposed:
		src := stream.NewChainReader(data)
		limits, values, err := decodeTransposed(src, *h, d.projection)
		if err != nil {
			return nil, chain.Chain{}, fmt.Errorf("invalid transposed chunk: %w", err)
		}
		if !src.VerifyEndAndClose() {
			return nil, chain.Chain{}, fmt.Errorf("invalid transposed chunk: %w", src.Err())
		}

		return limits, values, nil

	default:
		if h.NumRecords == 0 {
			// Ignore chunks with no records, even if the type is unknown.
			return nil, chain.Chain{}, nil
		}

		return nil, chain.Chain{}, fmt.Errorf("%w: 0x%02x", errs.ErrUnknownChunkType, uint8(h.ChunkType))
	}
}

// NumRecords returns the number of records in the current chunk.
func (d *Decoder) NumRecords() uint64 {
	return uint64(len(d.limits))
}

// Index returns the next record index, in [0, NumRecords()].
func (d *Decoder) Index() uint64 {
	return d.index
}

// SetIndex repositions the decoder at record i (clamped to NumRecords).
// A pending recoverable record failure is cleared; a poisoned decoder
// stays poisoned.
func (d *Decoder) SetIndex(i uint64) {
	if d.recoverable {
		d.recoverable = false
		d.err = nil
	}
	if i > d.NumRecords() {
		i = d.NumRecords()
	}
	d.index = i
	pos := uint64(0)
	if i > 0 {
		pos = d.limits[i-1]
	}
	d.valuesReader.Seek(pos)
}

// ReadRecord hands the next record's bytes to rec and advances the index.
// It returns false at the end of the chunk (decoder stays healthy) or on
// failure; Healthy distinguishes the two.
//
// A rec parse failure leaves the decoder in a recoverable state with the
// value stream positioned at the record's end, so Recover is cheap.
func (d *Decoder) ReadRecord(rec RecordUnmarshaler) bool {
	if d.index == d.NumRecords() || d.err != nil {
		return false
	}
	start := d.valuesReader.Pos()
	limit := d.limits[d.index]
	if start > limit {
		return d.fail(fmt.Errorf("%w: record end positions not sorted", errs.ErrStructural))
	}

	lr := stream.NewLimitingReader(&d.valuesReader, limit)
	recData, ok := lr.ReadChain(int(limit - start))
	if !ok {
		return d.fail(fmt.Errorf("%w: %w", errs.ErrReader, lr.Err()))
	}
	if err := rec.UnmarshalRecord(recData.Bytes()); err != nil {
		// Reposition at the record's end so recovery is cheap.
		d.valuesReader.Seek(limit)
		d.recoverable = true

		return d.fail(fmt.Errorf("%w: %w", errs.ErrRecordParse, err))
	}
	d.index++

	return true
}

// Recover clears a recoverable record failure and advances past the bad
// record. It returns false if the decoder is healthy or the failure is
// structural.
func (d *Decoder) Recover() bool {
	if !d.recoverable {
		return false
	}
	d.recoverable = false
	d.err = nil
	d.index++

	return true
}

// Healthy reports whether the decoder has no pending error.
func (d *Decoder) Healthy() bool {
	return d.err == nil
}

// Err returns the pending diagnostic, or nil.
func (d *Decoder) Err() error {
	return d.err
}

// Message returns the pending diagnostic text, or "".
func (d *Decoder) Message() string {
	if d.err == nil {
		return ""
	}

	return d.err.Error()
}
