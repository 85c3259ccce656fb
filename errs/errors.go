// Package errs defines the sentinel errors shared across strata packages.
//
// Errors are grouped under five category sentinels matching the failure
// classes of the chunk codec. Specific errors wrap their category, so both
// errors.Is(err, errs.ErrStructural) and errors.Is(err, errs.ErrTrailingData)
// hold for a trailing-data failure.
package errs

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	// ErrStructural reports a chunk-structural inconsistency. It poisons the
	// decoder; recovery requires a fresh reset.
	ErrStructural = errors.New("structural error")

	// ErrDecompression reports a failure surfaced from a compression codec.
	ErrDecompression = errors.New("decompression error")

	// ErrRecordParse reports that an individual record failed the injected
	// record parser. It is the only recoverable error class.
	ErrRecordParse = errors.New("record parse error")

	// ErrOverflow reports an arithmetic bound violation while accumulating
	// sizes or offsets.
	ErrOverflow = fmt.Errorf("%w: arithmetic overflow", ErrStructural)

	// ErrReader reports a failure from an underlying byte reader.
	ErrReader = errors.New("reader error")
)

// Specific errors.
var (
	ErrTooManyRecords      = fmt.Errorf("%w: too many records", ErrStructural)
	ErrChunkTooLarge       = fmt.Errorf("%w: chunk too large", ErrStructural)
	ErrUnknownChunkType    = fmt.Errorf("%w: unknown chunk type", ErrStructural)
	ErrUnknownCompression  = fmt.Errorf("%w: unknown compression kind", ErrStructural)
	ErrTrailingData        = fmt.Errorf("%w: trailing data", ErrStructural)
	ErrShortRead           = fmt.Errorf("%w: unexpected end of data", ErrStructural)
	ErrInvalidVarint       = fmt.Errorf("%w: invalid varint", ErrStructural)
	ErrSizeMismatch        = fmt.Errorf("%w: decoded data size mismatch", ErrStructural)
	ErrInvalidNodeTable    = fmt.Errorf("%w: invalid state machine node table", ErrStructural)
	ErrInvalidBufferRef    = fmt.Errorf("%w: buffer index out of range", ErrStructural)
	ErrInvalidNodeRef      = fmt.Errorf("%w: node index out of range", ErrStructural)
	ErrUnbalancedBrackets  = fmt.Errorf("%w: unbalanced submessage or group brackets", ErrStructural)
	ErrRunawayStateMachine = fmt.Errorf("%w: state machine does not terminate", ErrStructural)
	ErrClosedReader        = fmt.Errorf("%w: reader already closed", ErrReader)
	ErrSeekOutOfRange      = fmt.Errorf("%w: seek position out of range", ErrReader)
)
