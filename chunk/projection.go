package chunk

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// FieldPath identifies a nested field as the ordered sequence of field
// numbers from the record root.
type FieldPath []uint32

// FieldProjection is a declarative filter retaining only selected field
// paths during transposed decoding. The zero value is the "include all"
// sentinel, which skips projection filtering entirely.
//
// A retained path keeps the named field and its whole subtree; ancestors of
// a retained path are kept as framing so the nested field stays reachable.
//
// Paths are indexed by their 64-bit xxHash with full-path verification, so
// lookups stay O(1) per prefix even for wide projections.
type FieldProjection struct {
	// paths maps hash -> projection paths; nil means include all.
	paths map[uint64][]FieldPath
	// ancestors holds every proper prefix of every projection path.
	ancestors map[uint64][]FieldPath
}

// IncludeAll returns the projection that retains every field.
func IncludeAll() FieldProjection {
	return FieldProjection{}
}

// NewFieldProjection creates a projection retaining exactly the given
// paths. Empty paths are ignored. With no (non-empty) paths the projection
// retains nothing.
func NewFieldProjection(paths ...FieldPath) FieldProjection {
	p := FieldProjection{
		paths:     make(map[uint64][]FieldPath),
		ancestors: make(map[uint64][]FieldPath),
	}
	for _, fp := range paths {
		if len(fp) == 0 {
			continue
		}
		cp := append(FieldPath(nil), fp...)
		addPath(p.paths, cp)
		for i := 1; i < len(cp); i++ {
			addPath(p.ancestors, cp[:i])
		}
	}

	return p
}

// IncludesAll reports whether the projection is the include-all sentinel.
func (p FieldProjection) IncludesAll() bool {
	return p.paths == nil
}

// Includes reports whether a field at the given path is retained, either
// because a projection path covers it (a projection path is a prefix of
// path) or because it frames a retained nested field (path is a proper
// prefix of a projection path).
func (p FieldProjection) Includes(path FieldPath) bool {
	if p.paths == nil {
		return true
	}
	for i := 1; i <= len(path); i++ {
		if containsPath(p.paths, path[:i]) {
			return true
		}
	}

	return containsPath(p.ancestors, path)
}

func pathHash(fp FieldPath) uint64 {
	var d xxhash.Digest
	d.Reset()
	var buf [4]byte
	for _, tag := range fp {
		binary.LittleEndian.PutUint32(buf[:], tag)
		_, _ = d.Write(buf[:])
	}

	return d.Sum64()
}

func addPath(m map[uint64][]FieldPath, fp FieldPath) {
	h := pathHash(fp)
	for _, existing := range m[h] {
		if pathsEqual(existing, fp) {
			return
		}
	}
	m[h] = append(m[h], fp)
}

func containsPath(m map[uint64][]FieldPath, fp FieldPath) bool {
	for _, candidate := range m[pathHash(fp)] {
		if pathsEqual(candidate, fp) {
			return true
		}
	}

	return false
}

func pathsEqual(a, b FieldPath) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
