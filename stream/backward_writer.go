package stream

import (
	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/internal/pool"
)

// BackwardWriter assembles a byte sequence tail-first: pushed slices are
// logically prepended, so the final sequence is the reverse of the push
// order with each push's own bytes kept in order.
//
// The transposed chunk decoder writes through a BackwardWriter because the
// prefix length of a nested length-delimited field is only known after its
// body has been laid out.
//
// Pushed bytes are copied into an internal arena; Close flips the pieces
// once into a contiguous block.
type BackwardWriter struct {
	arena  *pool.ByteBuffer
	pieces [][2]int // [start, end) offsets into the arena, in push order
	total  uint64
	result chain.Chain
	err    error
	closed bool
}

// NewBackwardWriter creates a BackwardWriter. sizeHint, if nonzero,
// pre-sizes the arena for the expected total output.
func NewBackwardWriter(sizeHint int) *BackwardWriter {
	w := &BackwardWriter{arena: pool.GetChunkBuffer()}
	if sizeHint > 0 {
		w.arena.Grow(sizeHint)
	}

	return w
}

// Push logically prepends p to the output.
func (w *BackwardWriter) Push(p []byte) {
	if w.err != nil || w.closed || len(p) == 0 {
		return
	}
	start := w.arena.Len()
	w.arena.MustWrite(p)
	w.pieces = append(w.pieces, [2]int{start, w.arena.Len()})
	w.total += uint64(len(p))
}

// PushByte logically prepends a single byte.
func (w *BackwardWriter) PushByte(c byte) {
	w.Push([]byte{c})
}

// Grow hints that about n more bytes will be pushed.
func (w *BackwardWriter) Grow(n int) {
	if w.err == nil && !w.closed && n > 0 {
		w.arena.Grow(n)
	}
}

// Pos returns the number of bytes pushed so far. The transposed decoder
// uses position deltas as framing marks for submessage lengths.
func (w *BackwardWriter) Pos() uint64 {
	return w.total
}

// Healthy reports whether the writer has not failed.
func (w *BackwardWriter) Healthy() bool {
	return w.err == nil
}

// Err returns the first failure diagnostic, or nil.
func (w *BackwardWriter) Err() error {
	return w.err
}

// Close flips the pushed pieces into the final chain and releases the
// arena. It returns false if the writer had failed; closing an already
// closed writer reports the same result again.
func (w *BackwardWriter) Close() bool {
	if w.closed {
		return w.err == nil
	}
	w.closed = true
	if w.err != nil {
		return false
	}

	out := make([]byte, 0, w.total)
	for i := len(w.pieces) - 1; i >= 0; i-- {
		out = append(out, w.arena.Slice(w.pieces[i][0], w.pieces[i][1])...)
	}
	w.result = chain.FromBytes(out)

	pool.PutChunkBuffer(w.arena)
	w.arena = nil
	w.pieces = nil

	return true
}

// Chain returns the assembled output. It is only valid after a successful
// Close; before that it fails the writer and returns an empty chain.
func (w *BackwardWriter) Chain() chain.Chain {
	if !w.closed {
		if w.err == nil {
			w.err = errs.ErrClosedReader
		}

		return chain.Chain{}
	}

	return w.result
}
