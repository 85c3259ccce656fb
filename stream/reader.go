// Package stream provides the pull-based byte reader contract consumed by
// the chunk decoders, a zero-copy reader over a chain.Chain, a limiting
// wrapper for per-record framing, and the backward writer used for
// tail-first record assembly.
package stream

import (
	"fmt"

	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/errs"
)

// Reader is the pull-based byte reader the chunk decoders operate on.
//
// Errors are sticky: once an operation fails, the first diagnostic is
// retained and every later operation fails. End-of-stream is not an error;
// Pull returns true with a short window and callers inspect Available.
type Reader interface {
	// Pull ensures at least min bytes (or all remaining bytes, if fewer)
	// are visible through Available. It returns false only on error.
	Pull(min int) bool

	// Available borrows the current readable window without consuming it.
	// The window is valid until the next operation on the reader.
	Available() []byte

	// ReadInto consumes exactly len(dst) bytes into dst.
	ReadInto(dst []byte) bool

	// ReadChain consumes exactly n bytes, aliasing source storage where
	// possible.
	ReadChain(n int) (chain.Chain, bool)

	// Skip consumes exactly n bytes.
	Skip(n int) bool

	// Pos returns the number of bytes consumed so far.
	Pos() uint64

	// Healthy reports whether no operation has failed.
	Healthy() bool

	// Err returns the first failure diagnostic, or nil.
	Err() error

	// VerifyEndAndClose succeeds iff no bytes remain and no prior
	// operation failed. The reader is unusable afterwards.
	VerifyEndAndClose() bool
}

// ChainReader is a seekable Reader over a chain.Chain.
//
// Reads that stay within one block are zero-copy; a Pull spanning blocks
// coalesces the requested window into an internal scratch buffer.
// ChainReader is not safe for concurrent use.
type ChainReader struct {
	src chain.Chain

	blockIdx int
	blockOff int
	pos      uint64

	// scratch holds a coalesced window spanning block boundaries. The
	// underlying block cursor already sits past the copied bytes; pos is
	// the single source of truth for the logical position.
	scratch    []byte
	scratchOff int

	err    error
	closed bool
}

var _ Reader = (*ChainReader)(nil)

// NewChainReader creates a ChainReader positioned at the start of src.
func NewChainReader(src chain.Chain) *ChainReader {
	return &ChainReader{src: src}
}

// Reset repositions the reader at the start of src, clearing any error.
func (r *ChainReader) Reset(src chain.Chain) {
	*r = ChainReader{src: src, scratch: r.scratch[:0]}
}

func (r *ChainReader) fail(err error) bool {
	if r.err == nil {
		r.err = err
	}

	return false
}

// Len returns the total length of the underlying chain.
func (r *ChainReader) Len() uint64 {
	return uint64(r.src.Len())
}

// Remaining returns the number of unconsumed bytes.
func (r *ChainReader) Remaining() uint64 {
	return uint64(r.src.Len()) - r.pos
}

// normalize advances the block cursor past exhausted blocks.
func (r *ChainReader) normalize() {
	for r.blockIdx < r.src.NumBlocks() && r.blockOff == len(r.src.BlockData(r.blockIdx)) {
		r.blockIdx++
		r.blockOff = 0
	}
}

func (r *ChainReader) window() []byte {
	if r.scratchOff < len(r.scratch) {
		return r.scratch[r.scratchOff:]
	}
	r.normalize()
	if r.blockIdx >= r.src.NumBlocks() {
		return nil
	}

	return r.src.BlockData(r.blockIdx)[r.blockOff:]
}

// Pull implements Reader.
func (r *ChainReader) Pull(min int) bool {
	if r.err != nil || r.closed {
		return r.fail(errs.ErrClosedReader)
	}
	w := r.window()
	if len(w) >= min {
		return true
	}

	// Coalesce the window across block boundaries into scratch.
	buf := append(r.scratch[:0:0], w...)
	if r.scratchOff < len(r.scratch) {
		// The block cursor already sits past scratch bytes; nothing to
		// advance for the retained prefix.
		r.scratch = r.scratch[:0]
		r.scratchOff = 0
	} else {
		r.blockOff += len(w)
	}
	for len(buf) < min {
		r.normalize()
		if r.blockIdx >= r.src.NumBlocks() {
			break // end of stream, short window is not an error
		}
		b := r.src.BlockData(r.blockIdx)[r.blockOff:]
		take := min - len(buf)
		if take > len(b) {
			take = len(b)
		}
		buf = append(buf, b[:take]...)
		r.blockOff += take
	}
	r.scratch = buf
	r.scratchOff = 0

	return true
}

// Available implements Reader.
func (r *ChainReader) Available() []byte {
	if r.err != nil || r.closed {
		return nil
	}

	return r.window()
}

// Pos implements Reader.
func (r *ChainReader) Pos() uint64 {
	return r.pos
}

// consume advances the logical position by n bytes already visible in the
// current window.
func (r *ChainReader) consume(n int) {
	r.pos += uint64(n)
	if r.scratchOff < len(r.scratch) {
		r.scratchOff += n
		if r.scratchOff >= len(r.scratch) {
			r.scratch = r.scratch[:0]
			r.scratchOff = 0
		}

		return
	}
	r.blockOff += n
}

// ReadInto implements Reader.
func (r *ChainReader) ReadInto(dst []byte) bool {
	if r.err != nil || r.closed {
		return r.fail(errs.ErrClosedReader)
	}
	if uint64(len(dst)) > r.Remaining() {
		return r.fail(fmt.Errorf("%w: need %d bytes, have %d", errs.ErrShortRead, len(dst), r.Remaining()))
	}
	n := 0
	for n < len(dst) {
		w := r.window()
		c := copy(dst[n:], w)
		r.consume(c)
		n += c
	}

	return true
}

// ReadChain implements Reader. The returned chain aliases the source.
func (r *ChainReader) ReadChain(n int) (chain.Chain, bool) {
	if r.err != nil || r.closed {
		r.fail(errs.ErrClosedReader)
		return chain.Chain{}, false
	}
	if n < 0 || uint64(n) > r.Remaining() {
		r.fail(fmt.Errorf("%w: need %d bytes, have %d", errs.ErrShortRead, n, r.Remaining()))
		return chain.Chain{}, false
	}
	c := r.src.Slice(int(r.pos), int(r.pos)+n)
	r.seekTo(r.pos + uint64(n))

	return c, true
}

// Skip implements Reader.
func (r *ChainReader) Skip(n int) bool {
	if r.err != nil || r.closed {
		return r.fail(errs.ErrClosedReader)
	}
	if n < 0 || uint64(n) > r.Remaining() {
		return r.fail(fmt.Errorf("%w: cannot skip %d bytes, have %d", errs.ErrShortRead, n, r.Remaining()))
	}
	r.seekTo(r.pos + uint64(n))

	return true
}

// Seek repositions the reader at absolute position pos.
func (r *ChainReader) Seek(pos uint64) bool {
	if r.err != nil || r.closed {
		return r.fail(errs.ErrClosedReader)
	}
	if pos > uint64(r.src.Len()) {
		return r.fail(fmt.Errorf("%w: %d beyond length %d", errs.ErrSeekOutOfRange, pos, r.src.Len()))
	}
	r.seekTo(pos)

	return true
}

// seekTo repositions the block cursor at the absolute position p, dropping
// any coalesced scratch window.
func (r *ChainReader) seekTo(p uint64) {
	r.scratch = r.scratch[:0]
	r.scratchOff = 0
	r.pos = p
	r.blockIdx = 0
	r.blockOff = 0
	left := int(p)
	for r.blockIdx < r.src.NumBlocks() {
		b := r.src.BlockData(r.blockIdx)
		if left <= len(b) {
			r.blockOff = left
			return
		}
		left -= len(b)
		r.blockIdx++
	}
}

// Healthy implements Reader.
func (r *ChainReader) Healthy() bool {
	return r.err == nil
}

// Err implements Reader.
func (r *ChainReader) Err() error {
	return r.err
}

// VerifyEndAndClose implements Reader.
func (r *ChainReader) VerifyEndAndClose() bool {
	if r.closed {
		return r.err == nil
	}
	r.closed = true
	if r.err != nil {
		return false
	}
	if r.pos != uint64(r.src.Len()) {
		r.err = fmt.Errorf("%w: %d bytes remain", errs.ErrTrailingData, uint64(r.src.Len())-r.pos)
		return false
	}

	return true
}
