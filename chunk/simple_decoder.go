package chunk

import (
	"fmt"

	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/compress"
	"github.com/strataio/strata/encoding"
	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/format"
	"github.com/strataio/strata/stream"
)

// decodeSimple reads a simple chunk payload: a compression header, one
// record-size varint per record, and the concatenated value blob.
//
// The record sizes are converted into sorted end offsets with overflow
// checking; their sum must equal the header's decoded data size. The value
// blob is sliced zero-copy from the (decompressed) payload.
//
// When the payload is uncompressed the caller's reader is consumed
// directly, and the façade's end-of-payload verification covers trailing
// bytes; a compressed inner stream is verified here.
func decodeSimple(src stream.Reader, h Header) ([]uint64, chain.Chain, error) {
	if !src.Pull(1) {
		return nil, chain.Chain{}, fmt.Errorf("%w: %w", errs.ErrReader, src.Err())
	}
	w := src.Available()
	if len(w) == 0 {
		return nil, chain.Chain{}, fmt.Errorf("%w: missing compression header", errs.ErrShortRead)
	}
	kind := format.CompressionKind(w[0])
	if !src.Skip(1) {
		return nil, chain.Chain{}, fmt.Errorf("%w: %w", errs.ErrReader, src.Err())
	}

	inner := src
	innerLen := h.DataSize - src.Pos()
	compressed := kind != format.CompressionNone
	if compressed {
		uncompressedSize, err := encoding.ReadUvarint(src)
		if err != nil {
			return nil, chain.Chain{}, err
		}
		if uncompressedSize > MaxPayload {
			return nil, chain.Chain{}, fmt.Errorf("%w: uncompressed size %d", errs.ErrChunkTooLarge, uncompressedSize)
		}
		block, ok := src.ReadChain(int(h.DataSize - src.Pos()))
		if !ok {
			return nil, chain.Chain{}, fmt.Errorf("%w: %w", errs.ErrReader, src.Err())
		}
		out, err := compress.Decompress(kind, block.Bytes(), uncompressedSize)
		if err != nil {
			return nil, chain.Chain{}, err
		}
		inner = stream.NewChainReader(chain.FromBytes(out))
		innerLen = uncompressedSize
	}

	// Each record size takes at least one byte, so more records than inner
	// bytes cannot be well-formed. This rejects allocation-bomb headers
	// before the limit list is sized.
	if h.NumRecords > innerLen {
		return nil, chain.Chain{}, fmt.Errorf("%w: %d records in %d payload bytes",
			errs.ErrTooManyRecords, h.NumRecords, innerLen)
	}

	limitb := encoding.NewLimitBuilder(int(h.NumRecords))
	defer limitb.Close()
	for i := uint64(0); i < h.NumRecords; i++ {
		size, err := encoding.ReadUvarint(inner)
		if err != nil {
			return nil, chain.Chain{}, fmt.Errorf("record size %d: %w", i, err)
		}
		if err := limitb.Add(size); err != nil {
			return nil, chain.Chain{}, err
		}
	}
	if err := limitb.Verify(h.DecodedDataSize); err != nil {
		return nil, chain.Chain{}, err
	}

	values, ok := inner.ReadChain(int(h.DecodedDataSize))
	if !ok {
		return nil, chain.Chain{}, fmt.Errorf("record values: %w", inner.Err())
	}
	if compressed && !inner.VerifyEndAndClose() {
		return nil, chain.Chain{}, inner.Err()
	}

	return limitb.Take(), values, nil
}
