package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackwardWriter_ReversesPushOrder(t *testing.T) {
	w := NewBackwardWriter(0)
	w.Push([]byte("world"))
	w.Push([]byte(" "))
	w.Push([]byte("hello"))

	require.Equal(t, uint64(11), w.Pos())
	require.True(t, w.Close())
	require.Equal(t, []byte("hello world"), w.Chain().Bytes())
}

func TestBackwardWriter_PieceBytesKeepOrder(t *testing.T) {
	w := NewBackwardWriter(16)
	w.Push([]byte("cd"))
	w.Push([]byte("ab"))

	require.True(t, w.Close())
	require.Equal(t, []byte("abcd"), w.Chain().Bytes())
}

func TestBackwardWriter_PosTracksMarks(t *testing.T) {
	w := NewBackwardWriter(0)
	mark := w.Pos()
	w.Push([]byte("body"))
	require.Equal(t, uint64(4), w.Pos()-mark)

	w.PushByte(0x0A)
	require.Equal(t, uint64(5), w.Pos())

	require.True(t, w.Close())
	require.Equal(t, []byte{0x0A, 'b', 'o', 'd', 'y'}, w.Chain().Bytes())
}

func TestBackwardWriter_Empty(t *testing.T) {
	w := NewBackwardWriter(0)
	require.True(t, w.Close())
	require.True(t, w.Chain().Empty())
}

func TestBackwardWriter_ChainBeforeClose(t *testing.T) {
	w := NewBackwardWriter(0)
	w.Push([]byte("x"))

	require.True(t, w.Chain().Empty())
	require.False(t, w.Healthy())
	require.False(t, w.Close())
}

func TestBackwardWriter_EmptyPushIgnored(t *testing.T) {
	w := NewBackwardWriter(0)
	w.Push(nil)
	w.Push([]byte{})
	require.Equal(t, uint64(0), w.Pos())
	require.True(t, w.Close())
	require.True(t, w.Chain().Empty())
}
