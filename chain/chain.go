// Package chain provides a rope-like sequence of byte blocks used as the
// in-memory payload container for chunk data.
//
// A Chain is immutable once shared: Slice and Append share underlying blocks
// without copying, so a Chain handed to another component must not be
// mutated afterwards. Blocks backed by external resources (for example a
// memory map) carry a reference-counted handle whose release hook runs when
// the last Chain referencing the block is released; the chunk codec never
// releases such resources directly.
package chain

import "sync/atomic"

// Chain is a sequence of byte blocks with cheap slicing and concatenation.
//
// The zero value is an empty Chain ready for use.
type Chain struct {
	blocks []block
	size   int
}

type block struct {
	data []byte
	ref  *ExternalRef
}

// ExternalRef is the reference-counted handle of an externally owned block.
// Its release hook runs exactly once, when the last referencing Chain is
// released.
type ExternalRef struct {
	refs    atomic.Int32
	release func()
}

func (r *ExternalRef) acquire() {
	if r != nil {
		r.refs.Add(1)
	}
}

func (r *ExternalRef) releaseRef() {
	if r == nil {
		return
	}
	if r.refs.Add(-1) == 0 && r.release != nil {
		r.release()
	}
}

// FromBytes creates a single-block Chain over b without copying.
func FromBytes(b []byte) Chain {
	if len(b) == 0 {
		return Chain{}
	}

	return Chain{blocks: []block{{data: b}}, size: len(b)}
}

// External creates a single-block Chain over externally owned bytes.
// The release hook runs when the last Chain referencing the block is
// released via Release.
func External(data []byte, release func()) Chain {
	if len(data) == 0 {
		if release != nil {
			release()
		}

		return Chain{}
	}

	ref := &ExternalRef{release: release}
	ref.refs.Store(1)

	return Chain{blocks: []block{{data: data, ref: ref}}, size: len(data)}
}

// Len returns the total number of bytes in the chain.
func (c Chain) Len() int {
	return c.size
}

// Empty reports whether the chain holds no bytes.
func (c Chain) Empty() bool {
	return c.size == 0
}

// NumBlocks returns the number of blocks in the chain.
func (c Chain) NumBlocks() int {
	return len(c.blocks)
}

// BlockData returns the bytes of block i. The returned slice aliases the
// chain's storage and must not be modified.
func (c Chain) BlockData(i int) []byte {
	return c.blocks[i].data
}

// Append appends all blocks of other to c, sharing storage.
func (c *Chain) Append(other Chain) {
	for _, b := range other.blocks {
		b.ref.acquire()
		c.blocks = append(c.blocks, b)
	}
	c.size += other.size
}

// AppendBytes appends b as a new block without copying.
func (c *Chain) AppendBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	c.blocks = append(c.blocks, block{data: b})
	c.size += len(b)
}

// AppendExternal appends externally owned bytes with a release hook, as in
// External.
func (c *Chain) AppendExternal(data []byte, release func()) {
	ext := External(data, release)
	c.blocks = append(c.blocks, ext.blocks...)
	c.size += ext.size
}

// Slice returns the sub-chain [lo, hi), sharing blocks with c.
// Panics if the range is out of bounds; callers validate hostile offsets
// before slicing.
func (c Chain) Slice(lo, hi int) Chain {
	if lo < 0 || hi < lo || hi > c.size {
		panic("chain: slice out of range")
	}
	if lo == hi {
		return Chain{}
	}

	var out Chain
	off := 0
	for _, b := range c.blocks {
		end := off + len(b.data)
		if end <= lo {
			off = end
			continue
		}
		if off >= hi {
			break
		}
		start, stop := 0, len(b.data)
		if lo > off {
			start = lo - off
		}
		if hi < end {
			stop = hi - off
		}
		b.ref.acquire()
		out.blocks = append(out.blocks, block{data: b.data[start:stop], ref: b.ref})
		out.size += stop - start
		off = end
	}

	return out
}

// Bytes returns the chain's contents as a contiguous slice. For a
// single-block chain the block is returned without copying; otherwise the
// blocks are flattened into a fresh slice.
func (c Chain) Bytes() []byte {
	switch len(c.blocks) {
	case 0:
		return nil
	case 1:
		return c.blocks[0].data
	default:
		out := make([]byte, 0, c.size)
		for _, b := range c.blocks {
			out = append(out, b.data...)
		}

		return out
	}
}

// CopyTo copies up to len(dst) bytes of the chain into dst and returns the
// number of bytes copied.
func (c Chain) CopyTo(dst []byte) int {
	n := 0
	for _, b := range c.blocks {
		if n == len(dst) {
			break
		}
		n += copy(dst[n:], b.data)
	}

	return n
}

// Release drops c's references to externally owned blocks, running release
// hooks for blocks no longer referenced by any Chain. The chain must not be
// used afterwards. Chains without external blocks need no Release; garbage
// collection reclaims them.
func (c *Chain) Release() {
	for i := range c.blocks {
		c.blocks[i].ref.releaseRef()
	}
	c.blocks = nil
	c.size = 0
}
