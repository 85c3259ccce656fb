package encoding

import (
	"fmt"
	"math"

	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/internal/pool"
)

// LimitBuilder accumulates record sizes into a sorted sequence of end
// offsets (the "limits" of a decoded chunk). Every addition is checked for
// uint64 overflow, and the final sum can be validated against an expected
// decoded data size.
//
// Accumulation happens in pooled storage: Take detaches an exactly-sized
// copy for the caller to keep, and Close returns the accumulation storage
// to the pool.
type LimitBuilder struct {
	limits  []uint64
	sum     uint64
	release func()
}

// NewLimitBuilder creates a LimitBuilder pre-sized for n records. Call
// Close when done with the builder.
func NewLimitBuilder(n int) *LimitBuilder {
	buf, release := pool.GetUint64Slice(n)

	return &LimitBuilder{limits: buf[:0], release: release}
}

// Add appends one record of the given size, extending the limit list with
// the running sum.
func (b *LimitBuilder) Add(size uint64) error {
	if size > math.MaxUint64-b.sum {
		return fmt.Errorf("%w: record sizes exceed uint64", errs.ErrOverflow)
	}
	b.sum += size
	b.limits = append(b.limits, b.sum)

	return nil
}

// Len returns the number of records accumulated.
func (b *LimitBuilder) Len() int {
	return len(b.limits)
}

// Sum returns the running total of all record sizes.
func (b *LimitBuilder) Sum() uint64 {
	return b.sum
}

// Limits returns the accumulated end offsets. The slice is backed by
// pooled storage owned by the builder; it is only valid until Close.
func (b *LimitBuilder) Limits() []uint64 {
	return b.limits
}

// Take returns an exactly-sized copy of the accumulated end offsets,
// detached from the builder's pooled storage.
func (b *LimitBuilder) Take() []uint64 {
	if len(b.limits) == 0 {
		return nil
	}
	out := make([]uint64, len(b.limits))
	copy(out, b.limits)

	return out
}

// Close returns the accumulation storage to the pool. The builder must not
// be used afterwards. Close is idempotent.
func (b *LimitBuilder) Close() {
	if b.release != nil {
		b.release()
		b.release = nil
	}
	b.limits = nil
}

// Verify checks that the accumulated sum equals the expected decoded data
// size.
func (b *LimitBuilder) Verify(expected uint64) error {
	if b.sum != expected {
		return fmt.Errorf("%w: record sizes sum to %d, expected %d", errs.ErrSizeMismatch, b.sum, expected)
	}

	return nil
}
