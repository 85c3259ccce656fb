package pool

import "sync"

// Buffer tiers used by the chunk codec: small scratch buffers for per-field
// and per-record assembly, and large buffers for whole-chunk output. Put
// discards buffers that grew past the tier threshold so one oversized chunk
// cannot pin memory in the pool.
const (
	RecordBufferDefaultSize  = 1024 * 16       // 16KiB
	RecordBufferMaxThreshold = 1024 * 128      // 128KiB
	ChunkBufferDefaultSize   = 1024 * 1024     // 1MiB
	ChunkBufferMaxThreshold  = 1024 * 1024 * 8 // 8MiB
)

// ByteBuffer is an appendable byte buffer whose backing array survives
// Reset, so pooled buffers stop allocating once warm.
type ByteBuffer struct {
	// B is the underlying byte slice, exposed so callers can use
	// append-style helpers directly.
	B []byte
}

// NewByteBuffer creates a ByteBuffer with the given initial capacity.
func NewByteBuffer(capacity int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, capacity)}
}

// Bytes returns the buffer contents.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Reset empties the buffer, keeping its backing array.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Len returns the number of bytes in the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Cap returns the buffer's capacity.
func (bb *ByteBuffer) Cap() int {
	return cap(bb.B)
}

// MustWrite appends data, growing the buffer as needed.
func (bb *ByteBuffer) MustWrite(data []byte) {
	bb.B = append(bb.B, data...)
}

// Slice returns the buffer bytes in [start, end). Panics when the range is
// out of bounds.
func (bb *ByteBuffer) Slice(start, end int) []byte {
	if start < 0 || end < start || end > cap(bb.B) {
		panic("Slice: invalid indices")
	}

	return bb.B[start:end]
}

// Extend lengthens the buffer by n bytes when capacity allows, reporting
// whether it did.
func (bb *ByteBuffer) Extend(n int) bool {
	if cap(bb.B)-len(bb.B) < n {
		return false
	}
	bb.B = bb.B[:len(bb.B)+n]

	return true
}

// ExtendOrGrow lengthens the buffer by n bytes, growing it first if
// capacity is short. The added bytes are uninitialized scratch for the
// caller to fill.
func (bb *ByteBuffer) ExtendOrGrow(n int) {
	if bb.Extend(n) {
		return
	}
	start := len(bb.B)
	bb.Grow(n)
	bb.B = bb.B[:start+n]
}

// Grow ensures capacity for at least n more bytes. Small buffers jump
// straight to the record tier; larger ones grow by a quarter of their
// capacity, so repeated chunk assembly neither reallocates per write nor
// doubles memory at every step.
func (bb *ByteBuffer) Grow(n int) {
	if cap(bb.B)-len(bb.B) >= n {
		return
	}
	growBy := cap(bb.B) / 4
	if growBy < RecordBufferDefaultSize {
		growBy = RecordBufferDefaultSize
	}
	if growBy < n {
		growBy = n
	}
	buf := make([]byte, len(bb.B), len(bb.B)+growBy)
	copy(buf, bb.B)
	bb.B = buf
}

// ByteBufferPool recycles ByteBuffers through a sync.Pool, discarding
// buffers whose capacity outgrew maxThreshold.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a pool handing out buffers of defaultSize
// capacity and retaining returned buffers up to maxThreshold.
func NewByteBufferPool(defaultSize int, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool: sync.Pool{
			New: func() any {
				return NewByteBuffer(defaultSize)
			},
		},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves an empty ByteBuffer from the pool.
func (bbp *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := bbp.pool.Get().(*ByteBuffer)
	return bb
}

// Put returns a ByteBuffer for reuse. Nil buffers and buffers past the
// threshold are dropped.
func (bbp *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}
	if bbp.maxThreshold > 0 && cap(bb.B) > bbp.maxThreshold {
		return
	}
	bb.Reset()
	bbp.pool.Put(bb)
}

var (
	recordDefaultPool = NewByteBufferPool(RecordBufferDefaultSize, RecordBufferMaxThreshold)
	chunkDefaultPool  = NewByteBufferPool(ChunkBufferDefaultSize, ChunkBufferMaxThreshold)
)

// GetRecordBuffer retrieves a ByteBuffer sized for per-record scratch work.
func GetRecordBuffer() *ByteBuffer {
	return recordDefaultPool.Get()
}

// PutRecordBuffer returns a ByteBuffer to the record pool.
func PutRecordBuffer(bb *ByteBuffer) {
	recordDefaultPool.Put(bb)
}

// GetChunkBuffer retrieves a ByteBuffer sized for whole-chunk assembly.
func GetChunkBuffer() *ByteBuffer {
	return chunkDefaultPool.Get()
}

// PutChunkBuffer returns a ByteBuffer to the chunk pool.
func PutChunkBuffer(bb *ByteBuffer) {
	chunkDefaultPool.Put(bb)
}
