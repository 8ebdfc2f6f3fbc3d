package SB

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/querypipe/querypipe/internal/TM"
	"github.com/querypipe/querypipe/internal/VM"
)

func newTestStore(t *testing.T) (*Store, *TM.Txn) {
	t.Helper()
	s := NewStore()
	_, err := s.CreateTable(1, "orders", 2)
	require.NoError(t, err)
	return s, TM.NewManager().Begin()
}

func scanAll(t *testing.T, s *Store, tableID int32, part, parts int) [][]VM.Value {
	t.Helper()
	it, err := s.OpenScan(tableID, part, parts)
	require.NoError(t, err)
	defer it.Close()
	var out [][]VM.Value
	for {
		b, ok, err := it.Advance(nil)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, b.Rows...)
	}
}

func TestCreateTableDuplicate(t *testing.T) {
	s := NewStore()
	_, err := s.CreateTable(1, "t", 1)
	require.NoError(t, err)
	_, err = s.CreateTable(1, "t", 1)
	require.ErrorContains(t, err, "already exists")
}

func TestInsertAndScanOrder(t *testing.T) {
	s, txn := newTestStore(t)
	for i := int64(0); i < 5; i++ {
		_, err := s.Insert(txn, 1, []VM.Value{VM.Int(i), VM.Str("r")})
		require.NoError(t, err)
	}
	rows := scanAll(t, s, 1, 0, 1)
	require.Len(t, rows, 5)
	for i, row := range rows {
		require.Equal(t, VM.Int(int64(i)), row[0])
	}
}

func TestInsertRejectsWrongWidth(t *testing.T) {
	s, txn := newTestStore(t)
	_, err := s.Insert(txn, 1, []VM.Value{VM.Int(1)})
	require.ErrorContains(t, err, "columns")
}

func TestScanPartitionsAreDisjointAndComplete(t *testing.T) {
	s, txn := newTestStore(t)
	const n = 10
	for i := int64(0); i < n; i++ {
		_, err := s.Insert(txn, 1, []VM.Value{VM.Int(i), VM.Str("r")})
		require.NoError(t, err)
	}

	seen := map[int64]int{}
	for part := 0; part < 3; part++ {
		for _, row := range scanAll(t, s, 1, part, 3) {
			seen[row[0].Int()]++
		}
	}
	require.Len(t, seen, n)
	for k, c := range seen {
		require.Equalf(t, 1, c, "row %d scanned %d times", k, c)
	}
}

func TestScanPartitionValidation(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.OpenScan(1, 3, 3)
	require.Error(t, err)
	_, err = s.OpenScan(99, 0, 1)
	require.ErrorContains(t, err, "does not exist")
}

func TestScanSkipsRowsDeletedAfterSnapshot(t *testing.T) {
	s, txn := newTestStore(t)
	id, err := s.Insert(txn, 1, []VM.Value{VM.Int(1), VM.Str("a")})
	require.NoError(t, err)
	_, err = s.Insert(txn, 1, []VM.Value{VM.Int(2), VM.Str("b")})
	require.NoError(t, err)

	it, err := s.OpenScan(1, 0, 1)
	require.NoError(t, err)
	defer it.Close()

	ok, err := s.Delete(txn, 1, id)
	require.NoError(t, err)
	require.True(t, ok)

	b, ok, err := it.Advance(nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, b.Rows, 1)
	require.Equal(t, VM.Int(2), b.Rows[0][0])
}

func TestUpdateAndDelete(t *testing.T) {
	s, txn := newTestStore(t)
	id, err := s.Insert(txn, 1, []VM.Value{VM.Int(1), VM.Str("a")})
	require.NoError(t, err)

	ok, err := s.Update(txn, 1, id, []VM.Value{VM.Int(1), VM.Str("z")})
	require.NoError(t, err)
	require.True(t, ok)

	row, found, err := s.FetchRow(txn, 1, id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, VM.Str("z"), row[1])

	ok, err = s.Delete(txn, 1, id)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err = s.FetchRow(txn, 1, id)
	require.NoError(t, err)
	require.False(t, found)

	// Gone rows report ok=false, not an error.
	ok, err = s.Update(txn, 1, id, []VM.Value{VM.Int(9), VM.Str("x")})
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = s.Delete(txn, 1, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAbortUndoesMutations(t *testing.T) {
	s := NewStore()
	_, err := s.CreateTable(1, "t", 1)
	require.NoError(t, err)

	setup := TM.NewManager().Begin()
	keep, err := s.Insert(setup, 1, []VM.Value{VM.Int(1)})
	require.NoError(t, err)
	require.NoError(t, setup.Commit(nil))

	txn := TM.NewManager().Begin()
	_, err = s.Insert(txn, 1, []VM.Value{VM.Int(2)})
	require.NoError(t, err)
	ok, err := s.Update(txn, 1, keep, []VM.Value{VM.Int(99)})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Delete(txn, 1, keep)
	require.NoError(t, err)
	require.True(t, ok)

	txn.Abort()

	// Back to exactly the committed state.
	row, found, err := s.FetchRow(nil, 1, keep)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, VM.Int(1), row[0])
	require.Len(t, scanAll(t, s, 1, 0, 1), 1)
}

func TestFetchRowReturnsCopy(t *testing.T) {
	s, txn := newTestStore(t)
	id, err := s.Insert(txn, 1, []VM.Value{VM.Int(1), VM.Str("a")})
	require.NoError(t, err)

	row, _, err := s.FetchRow(txn, 1, id)
	require.NoError(t, err)
	row[0] = VM.Int(999)

	again, _, err := s.FetchRow(txn, 1, id)
	require.NoError(t, err)
	require.Equal(t, VM.Int(1), again[0])
}

func TestRowWidth(t *testing.T) {
	s, _ := newTestStore(t)
	w, err := s.RowWidth(1)
	require.NoError(t, err)
	require.Equal(t, 2, w)
	_, err = s.RowWidth(42)
	require.Error(t, err)
}
