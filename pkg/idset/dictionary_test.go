package idset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDictionary(t *testing.T) {
	d := NewDictionary()
	a := d.ID("17850")
	b := d.ID("13047")
	require.Equal(t, a, d.ID("17850"))
	require.NotEqual(t, a, b)
	require.Equal(t, 2, d.Len())
	require.Equal(t, "13047", d.Key(b))

	id, ok := d.Lookup("13047")
	require.True(t, ok)
	require.Equal(t, b, id)
	_, ok = d.Lookup("missing")
	require.False(t, ok)
}

func TestSet(t *testing.T) {
	var s Set
	require.Zero(t, s.Len())
	require.Nil(t, s.Bitmap())

	s.Add(3)
	s.Add(3)
	s.Add(7)
	require.Equal(t, 2, s.Len())
	require.True(t, s.Bitmap().Contains(7))
}
