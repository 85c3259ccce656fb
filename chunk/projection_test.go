package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldProjection_IncludeAll(t *testing.T) {
	var zero FieldProjection
	require.True(t, zero.IncludesAll())
	require.True(t, zero.Includes(FieldPath{1, 2, 3}))

	all := IncludeAll()
	require.True(t, all.IncludesAll())
}

func TestFieldProjection_Includes(t *testing.T) {
	p := NewFieldProjection(FieldPath{1}, FieldPath{2, 3})
	require.False(t, p.IncludesAll())

	tests := []struct {
		name string
		path FieldPath
		want bool
	}{
		{"retained top-level field", FieldPath{1}, true},
		{"descendant of retained field", FieldPath{1, 5}, true},
		{"deep descendant", FieldPath{1, 5, 9}, true},
		{"retained nested field", FieldPath{2, 3}, true},
		{"ancestor framing a retained field", FieldPath{2}, true},
		{"sibling of retained nested field", FieldPath{2, 4}, false},
		{"unrelated field", FieldPath{3}, false},
		{"unrelated nested", FieldPath{3, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, p.Includes(tt.path))
		})
	}
}

func TestFieldProjection_EmptyRetainsNothing(t *testing.T) {
	p := NewFieldProjection()
	require.False(t, p.IncludesAll())
	require.False(t, p.Includes(FieldPath{1}))
}

func TestFieldProjection_EmptyPathIgnored(t *testing.T) {
	p := NewFieldProjection(FieldPath{}, FieldPath{7})
	require.False(t, p.IncludesAll())
	require.True(t, p.Includes(FieldPath{7}))
	require.False(t, p.Includes(FieldPath{1}))
}

func TestFieldProjection_DuplicatePaths(t *testing.T) {
	p := NewFieldProjection(FieldPath{4, 2}, FieldPath{4, 2})
	require.True(t, p.Includes(FieldPath{4, 2}))
	require.True(t, p.Includes(FieldPath{4}))
	require.False(t, p.Includes(FieldPath{2}))
}

func TestFieldProjection_CallerMutationIsolated(t *testing.T) {
	path := FieldPath{6, 1}
	p := NewFieldProjection(path)
	path[0] = 99

	require.True(t, p.Includes(FieldPath{6, 1}))
	require.False(t, p.Includes(FieldPath{99, 1}))
}
