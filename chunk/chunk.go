package chunk

import (
	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/format"
)

// Resource bounds enforced when a chunk is reset into a decoder. Both are
// far above the sizes any writer produces; they exist to reject hostile
// headers before any allocation is sized from them.
const (
	// MaxRecords is the maximum number of records in one chunk.
	MaxRecords uint64 = 1 << 48
	// MaxPayload is the maximum decoded data size of one chunk.
	MaxPayload uint64 = 1 << 48
)

// Header is the fixed chunk header. It is trusted only after the
// container-level checksum has been verified by the surrounding reader.
type Header struct {
	// ChunkType is the one-byte chunk-type tag.
	ChunkType format.ChunkType
	// NumRecords is the number of records in the chunk.
	NumRecords uint64
	// DecodedDataSize is the total size of the decoded value stream.
	DecodedDataSize uint64
	// DataSize is the size of the chunk payload in Data.
	DataSize uint64
}

// Chunk is a self-contained framed unit of records within the container.
type Chunk struct {
	Header Header
	Data   chain.Chain
}
