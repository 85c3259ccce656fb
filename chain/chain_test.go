package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBytes(t *testing.T) {
	c := FromBytes([]byte("hello"))
	require.Equal(t, 5, c.Len())
	require.False(t, c.Empty())
	require.Equal(t, []byte("hello"), c.Bytes())

	empty := FromBytes(nil)
	require.True(t, empty.Empty())
	require.Zero(t, empty.NumBlocks())
}

func TestZeroValue(t *testing.T) {
	var c Chain
	require.True(t, c.Empty())
	require.Nil(t, c.Bytes())

	c.AppendBytes([]byte("abc"))
	require.Equal(t, 3, c.Len())
}

func TestAppend(t *testing.T) {
	var c Chain
	c.AppendBytes([]byte("abc"))

	other := FromBytes([]byte("def"))
	c.Append(other)

	require.Equal(t, 6, c.Len())
	require.Equal(t, 2, c.NumBlocks())
	require.Equal(t, []byte("abcdef"), c.Bytes())
}

func TestSlice(t *testing.T) {
	var c Chain
	c.AppendBytes([]byte("abc"))
	c.AppendBytes([]byte("defg"))
	c.AppendBytes([]byte("hi"))

	tests := []struct {
		name   string
		lo, hi int
		want   string
	}{
		{"within first block", 0, 2, "ab"},
		{"across blocks", 2, 8, "cdefgh"},
		{"exact block", 3, 7, "defg"},
		{"full range", 0, 9, "abcdefghi"},
		{"empty", 4, 4, ""},
		{"tail", 8, 9, "i"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := c.Slice(tt.lo, tt.hi)
			require.Equal(t, tt.want, string(s.Bytes()))
			require.Equal(t, len(tt.want), s.Len())
		})
	}
}

func TestSlice_OutOfRange(t *testing.T) {
	c := FromBytes([]byte("abc"))
	require.Panics(t, func() { c.Slice(0, 4) })
	require.Panics(t, func() { c.Slice(-1, 2) })
	require.Panics(t, func() { c.Slice(2, 1) })
}

func TestSlice_ZeroCopy(t *testing.T) {
	backing := []byte("abcdef")
	c := FromBytes(backing)
	s := c.Slice(1, 4)

	// The slice aliases the original backing array.
	backing[1] = 'X'
	require.Equal(t, []byte("Xcd"), s.Bytes())
}

func TestCopyTo(t *testing.T) {
	var c Chain
	c.AppendBytes([]byte("ab"))
	c.AppendBytes([]byte("cd"))

	dst := make([]byte, 3)
	n := c.CopyTo(dst)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("abc"), dst)
}

func TestExternalRelease(t *testing.T) {
	released := 0
	c := External([]byte("mapped"), func() { released++ })

	s := c.Slice(0, 3)
	c.Release()
	require.Zero(t, released, "slice still references the block")

	s.Release()
	require.Equal(t, 1, released)
}

func TestExternal_EmptyReleasesImmediately(t *testing.T) {
	released := 0
	c := External(nil, func() { released++ })
	require.True(t, c.Empty())
	require.Equal(t, 1, released)
}

func TestAppendExternal(t *testing.T) {
	released := 0
	var c Chain
	c.AppendBytes([]byte("head"))
	c.AppendExternal([]byte("tail"), func() { released++ })

	require.Equal(t, []byte("headtail"), c.Bytes())

	c.Release()
	require.Equal(t, 1, released)
}
