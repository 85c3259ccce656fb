package stream

import (
	"fmt"

	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/errs"
)

// LimitingReader caps a parent reader at an absolute position. It is used
// to frame individual records within the decoded value stream: the parent
// keeps its position when the limit is reached, so the next record can be
// read without repositioning.
//
// Positions reported by the LimitingReader are the parent's absolute
// positions.
type LimitingReader struct {
	r     Reader
	limit uint64

	err    error
	closed bool
}

var _ Reader = (*LimitingReader)(nil)

// NewLimitingReader creates a reader over r capped at absolute position
// limit. The limit must not precede the parent's current position.
func NewLimitingReader(r Reader, limit uint64) *LimitingReader {
	lr := &LimitingReader{r: r, limit: limit}
	if limit < r.Pos() {
		lr.err = fmt.Errorf("%w: limit %d before position %d", errs.ErrSeekOutOfRange, limit, r.Pos())
	}

	return lr
}

func (l *LimitingReader) fail(err error) bool {
	if l.err == nil {
		l.err = err
	}

	return false
}

// Remaining returns the bytes left before the limit.
func (l *LimitingReader) Remaining() uint64 {
	if l.r.Pos() >= l.limit {
		return 0
	}

	return l.limit - l.r.Pos()
}

// Pull implements Reader.
func (l *LimitingReader) Pull(min int) bool {
	if l.err != nil || l.closed {
		return l.fail(errs.ErrClosedReader)
	}
	rem := l.Remaining()
	if uint64(min) > rem {
		min = int(rem)
	}
	if !l.r.Pull(min) {
		return l.fail(l.r.Err())
	}

	return true
}

// Available implements Reader, capping the parent window at the limit.
func (l *LimitingReader) Available() []byte {
	if l.err != nil || l.closed {
		return nil
	}
	w := l.r.Available()
	if rem := l.Remaining(); uint64(len(w)) > rem {
		w = w[:rem]
	}

	return w
}

// ReadInto implements Reader.
func (l *LimitingReader) ReadInto(dst []byte) bool {
	if l.err != nil || l.closed {
		return l.fail(errs.ErrClosedReader)
	}
	if uint64(len(dst)) > l.Remaining() {
		return l.fail(fmt.Errorf("%w: need %d bytes, have %d", errs.ErrShortRead, len(dst), l.Remaining()))
	}
	if !l.r.ReadInto(dst) {
		return l.fail(l.r.Err())
	}

	return true
}

// ReadChain implements Reader.
func (l *LimitingReader) ReadChain(n int) (chain.Chain, bool) {
	if l.err != nil || l.closed {
		l.fail(errs.ErrClosedReader)
		return chain.Chain{}, false
	}
	if n < 0 || uint64(n) > l.Remaining() {
		l.fail(fmt.Errorf("%w: need %d bytes, have %d", errs.ErrShortRead, n, l.Remaining()))
		return chain.Chain{}, false
	}
	c, ok := l.r.ReadChain(n)
	if !ok {
		l.fail(l.r.Err())
		return chain.Chain{}, false
	}

	return c, true
}

// Skip implements Reader.
func (l *LimitingReader) Skip(n int) bool {
	if l.err != nil || l.closed {
		return l.fail(errs.ErrClosedReader)
	}
	if n < 0 || uint64(n) > l.Remaining() {
		return l.fail(fmt.Errorf("%w: cannot skip %d bytes, have %d", errs.ErrShortRead, n, l.Remaining()))
	}
	if !l.r.Skip(n) {
		return l.fail(l.r.Err())
	}

	return true
}

// Pos implements Reader.
func (l *LimitingReader) Pos() uint64 {
	return l.r.Pos()
}

// Healthy implements Reader.
func (l *LimitingReader) Healthy() bool {
	return l.err == nil
}

// Err implements Reader.
func (l *LimitingReader) Err() error {
	return l.err
}

// VerifyEndAndClose implements Reader. It succeeds iff the parent sits
// exactly at the limit; the parent itself stays open.
func (l *LimitingReader) VerifyEndAndClose() bool {
	if l.closed {
		return l.err == nil
	}
	l.closed = true
	if l.err != nil {
		return false
	}
	if l.r.Pos() != l.limit {
		l.err = fmt.Errorf("%w: %d bytes remain before limit", errs.ErrTrailingData, l.limit-l.r.Pos())
		return false
	}

	return true
}
