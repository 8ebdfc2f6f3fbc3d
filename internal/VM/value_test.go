package VM

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestSqlArithNullPropagation(t *testing.T) {
	require.True(t, SqlAdd(Null(), Int(1)).IsNull())
	require.True(t, SqlSub(Int(1), Null()).IsNull())
	require.True(t, SqlMul(Null(), Null()).IsNull())

	v, err := SqlDiv(Null(), Int(2))
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestSqlArithMixedTypes(t *testing.T) {
	require.Equal(t, Int(5), SqlAdd(Int(2), Int(3)))
	require.Equal(t, Float(5.5), SqlAdd(Int(2), Float(3.5)))
	require.Equal(t, Float(1.5), SqlMul(Float(0.5), Int(3)))
}

func TestSqlDivByZero(t *testing.T) {
	_, err := SqlDiv(Int(1), Int(0))
	require.True(t, errors.Is(err, errDivByZero))

	_, err = SqlDiv(Float(1), Float(0))
	require.True(t, errors.Is(err, errDivByZero))

	_, err = SqlRem(Int(7), Int(0))
	require.True(t, errors.Is(err, errDivByZero))

	v, err := SqlRem(Int(7), Int(3))
	require.NoError(t, err)
	require.Equal(t, Int(1), v)
}

func TestSqlConcat(t *testing.T) {
	require.Equal(t, Str("ab1"), SqlConcat(Str("ab"), Int(1)))
	require.True(t, SqlConcat(Str("ab"), Null()).IsNull())
}

func TestCompareNullSortsFirst(t *testing.T) {
	require.Equal(t, -1, Compare(Null(), Int(-100)))
	require.Equal(t, 1, Compare(Str(""), Null()))
	require.Equal(t, 0, Compare(Null(), Null()))
}

func TestCompareNumericCoercion(t *testing.T) {
	require.Equal(t, 0, Compare(Int(2), Float(2.0)))
	require.Equal(t, -1, Compare(Int(2), Float(2.5)))
	require.Equal(t, 1, Compare(Float(3.1), Int(3)))
}

func TestSqlCmpThreeValued(t *testing.T) {
	eq := func(c int) bool { return c == 0 }
	require.Equal(t, Bool(true), SqlCmp(Int(1), Int(1), eq))
	require.Equal(t, Bool(false), SqlCmp(Int(1), Int(2), eq))
	require.True(t, SqlCmp(Null(), Int(1), eq).IsNull())
}

func TestTruthy(t *testing.T) {
	require.False(t, Null().Truthy())
	require.False(t, Int(0).Truthy())
	require.True(t, Int(-1).Truthy())
	require.False(t, Str("").Truthy())
	require.True(t, Str("x").Truthy())
}

func TestHashDistinguishesTags(t *testing.T) {
	// int 0 and NULL must not collide: grouping keys rely on it.
	require.NotEqual(t, Hash(Int(0)), Hash(Null()))
	require.NotEqual(t, Hash(Int(1)), Hash(Float(1)))
	require.Equal(t, Hash(Str("abc")), Hash(Str("abc")))
}

func TestValuesEqualGroupsNulls(t *testing.T) {
	require.True(t, ValuesEqual(Null(), Null()))
	require.False(t, ValuesEqual(Null(), Int(0)))
	require.True(t, ValuesEqual(Int(2), Float(2)))
}
