package VM

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinHashTableProbe(t *testing.T) {
	ht := NewJoinHashTable(1, 2)
	require.NoError(t, ht.Insert([]Value{Int(1)}, []Value{Int(1), Str("a")}))
	require.NoError(t, ht.Insert([]Value{Int(2)}, []Value{Int(2), Str("b")}))
	require.NoError(t, ht.Insert([]Value{Int(1)}, []Value{Int(1), Str("c")}))
	ht.Build()

	require.Error(t, ht.Insert([]Value{Int(3)}, []Value{Int(3), Str("d")}))
	require.Equal(t, 3, ht.Len())

	p := ht.probe([]Value{Int(1)})
	var got []string
	for p.next() {
		got = append(got, p.col(1).Str())
	}
	require.Equal(t, []string{"a", "c"}, got)

	require.False(t, ht.probe([]Value{Int(9)}).next())
}

func TestJoinHashTableNullKeysNeverMatch(t *testing.T) {
	ht := NewJoinHashTable(1, 1)
	require.NoError(t, ht.Insert([]Value{Null()}, []Value{Str("n")}))
	require.NoError(t, ht.Insert([]Value{Int(1)}, []Value{Str("x")}))
	ht.Build()

	// NULL probe key matches nothing, and a NULL build key is never matched.
	require.False(t, ht.probe([]Value{Null()}).next())
	p := ht.probe([]Value{Int(1)})
	require.True(t, p.next())
	require.Equal(t, "x", p.col(0).Str())
	require.False(t, p.next())
}

func TestJoinHashTableCompositeKeys(t *testing.T) {
	ht := NewJoinHashTable(2, 1)
	require.NoError(t, ht.Insert([]Value{Int(1), Str("a")}, []Value{Int(10)}))
	require.NoError(t, ht.Insert([]Value{Int(1), Str("b")}, []Value{Int(20)}))
	ht.Build()

	p := ht.probe([]Value{Int(1), Str("b")})
	require.True(t, p.next())
	require.Equal(t, Int(20), p.col(0))
	require.False(t, p.next())
}
