// Package format defines the on-wire constants of the strata container:
// chunk-type tags, compression kinds, and the node subtypes of the
// transposed chunk state machine.
//
// The byte values are container-format constants and must match the
// bit-exact on-disk assignment used by existing containers.
package format

type (
	ChunkType       uint8
	CompressionKind uint8
	Subtype         uint8
)

const (
	// ChunkFileSignature marks the start of a container. Its header carries
	// no payload: data size, record count and decoded size are all zero.
	ChunkFileSignature ChunkType = 0x73 // 's'
	// ChunkFileMetadata holds container-scoped metadata with no records.
	ChunkFileMetadata ChunkType = 0x6d // 'm'
	// ChunkPadding is alignment filler with no records and no decoded data.
	ChunkPadding ChunkType = 0x70 // 'p'
	// ChunkSimple holds length-prefixed records.
	ChunkSimple ChunkType = 0x72 // 'r'
	// ChunkTransposed holds field-transposed records.
	ChunkTransposed ChunkType = 0x74 // 't'
)

const (
	CompressionNone   CompressionKind = 0x00
	CompressionBrotli CompressionKind = 0x62 // 'b'
	CompressionZstd   CompressionKind = 0x7a // 'z'
	CompressionSnappy CompressionKind = 0x73 // 's'
)

// Node subtypes of the transposed chunk state machine. The subtype
// determines how bytes are consumed from the node's buffer and emitted
// into the output record.
const (
	SubtypeVarint          Subtype = 0x00 // copy one varint from the buffer
	SubtypeFixed32         Subtype = 0x01 // copy 4 bytes
	SubtypeFixed64         Subtype = 0x02 // copy 8 bytes
	SubtypeLengthDelimited Subtype = 0x03 // varint length then that many bytes
	SubtypeStartGroup      Subtype = 0x04 // emit only the wire tag
	SubtypeEndGroup        Subtype = 0x05 // emit only the wire tag
	SubtypeMessageStart    Subtype = 0x06 // emit tag plus computed body length
	SubtypeMessageEnd      Subtype = 0x07 // framing mark, emits nothing
	SubtypeSkip            Subtype = 0x08 // no emission, no consumption
)

func (t ChunkType) String() string {
	switch t {
	case ChunkFileSignature:
		return "FileSignature"
	case ChunkFileMetadata:
		return "FileMetadata"
	case ChunkPadding:
		return "Padding"
	case ChunkSimple:
		return "Simple"
	case ChunkTransposed:
		return "Transposed"
	default:
		return "Unknown"
	}
}

func (c CompressionKind) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionBrotli:
		return "Brotli"
	case CompressionZstd:
		return "Zstd"
	case CompressionSnappy:
		return "Snappy"
	default:
		return "Unknown"
	}
}

func (s Subtype) String() string {
	switch s {
	case SubtypeVarint:
		return "Varint"
	case SubtypeFixed32:
		return "Fixed32"
	case SubtypeFixed64:
		return "Fixed64"
	case SubtypeLengthDelimited:
		return "LengthDelimited"
	case SubtypeStartGroup:
		return "StartGroup"
	case SubtypeEndGroup:
		return "EndGroup"
	case SubtypeMessageStart:
		return "MessageStart"
	case SubtypeMessageEnd:
		return "MessageEnd"
	case SubtypeSkip:
		return "Skip"
	default:
		return "Unknown"
	}
}

// IsValid reports whether s is a recognized node subtype.
func (s Subtype) IsValid() bool {
	return s <= SubtypeSkip
}
