// Package encoding provides the low-level primitives shared by the chunk
// codecs: unsigned varints, length-prefixed byte strings, and sorted
// prefix-sum limit lists with overflow checking.
//
// Varint and wire-tag handling delegates to protowire so the byte-level
// format stays identical to protocol buffer wire encoding.
package encoding

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/internal/pool"
	"github.com/strataio/strata/stream"
)

// MaxVarintLen is the maximum encoded length of a 64-bit unsigned varint.
const MaxVarintLen = 10

// AppendUvarint appends the varint encoding of v to b.
func AppendUvarint(b []byte, v uint64) []byte {
	return protowire.AppendVarint(b, v)
}

// UvarintLen returns the encoded length of v.
func UvarintLen(v uint64) int {
	return protowire.SizeVarint(v)
}

// ReadUvarint consumes one unsigned varint from r.
func ReadUvarint(r stream.Reader) (uint64, error) {
	if !r.Pull(MaxVarintLen) {
		return 0, fmt.Errorf("%w: %w", errs.ErrReader, r.Err())
	}
	buf := r.Available()
	if len(buf) == 0 {
		return 0, errs.ErrShortRead
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, errs.ErrInvalidVarint
	}
	if !r.Skip(n) {
		return 0, fmt.Errorf("%w: %w", errs.ErrReader, r.Err())
	}

	return v, nil
}

// CopyUvarint consumes one varint from r and appends its raw encoded bytes
// to dst, returning the decoded value. Non-minimal encodings are preserved
// byte for byte.
func CopyUvarint(r stream.Reader, dst *pool.ByteBuffer) (uint64, error) {
	if !r.Pull(MaxVarintLen) {
		return 0, fmt.Errorf("%w: %w", errs.ErrReader, r.Err())
	}
	buf := r.Available()
	if len(buf) == 0 {
		return 0, errs.ErrShortRead
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, errs.ErrInvalidVarint
	}
	dst.MustWrite(buf[:n])
	if !r.Skip(n) {
		return 0, fmt.Errorf("%w: %w", errs.ErrReader, r.Err())
	}

	return v, nil
}

// ReadLengthPrefixed consumes a varint length followed by that many bytes,
// returning them as a chain aliasing the source where possible. Lengths
// above maxLen are rejected.
func ReadLengthPrefixed(r stream.Reader, maxLen uint64) (chain.Chain, error) {
	n, err := ReadUvarint(r)
	if err != nil {
		return chain.Chain{}, err
	}
	if n > maxLen {
		return chain.Chain{}, fmt.Errorf("%w: length %d exceeds %d", errs.ErrChunkTooLarge, n, maxLen)
	}
	c, ok := r.ReadChain(int(n))
	if !ok {
		return chain.Chain{}, fmt.Errorf("%w: %w", errs.ErrReader, r.Err())
	}

	return c, nil
}

// AppendLengthPrefixed appends a varint length prefix and the bytes of p.
func AppendLengthPrefixed(b []byte, p []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(p)))

	return append(b, p...)
}
