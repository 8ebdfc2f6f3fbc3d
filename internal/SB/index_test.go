package SB

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/querypipe/querypipe/internal/TM"
	"github.com/querypipe/querypipe/internal/VM"
)

func newIndexedStore(t *testing.T) (*Store, *TM.Txn) {
	t.Helper()
	s := NewStore()
	_, err := s.CreateTable(1, "t", 2)
	require.NoError(t, err)
	require.NoError(t, s.CreateIndex(1, 10, 0))
	return s, TM.NewManager().Begin()
}

func indexScanIDs(t *testing.T, s *Store, scan func(it VM.IndexIterator) error) []int64 {
	t.Helper()
	it, err := s.OpenIndex(1, 10)
	require.NoError(t, err)
	defer it.Close()
	require.NoError(t, scan(it))
	var ids []int64
	for {
		id, ok := it.Next()
		if !ok {
			return ids
		}
		ids = append(ids, id)
	}
}

func TestCreateIndexValidation(t *testing.T) {
	s, _ := newIndexedStore(t)
	require.ErrorContains(t, s.CreateIndex(1, 10, 0), "already exists")
	require.ErrorContains(t, s.CreateIndex(1, 11, 5), "out of range")
	require.Error(t, s.CreateIndex(99, 12, 0))
}

func TestIndexScanKeyWithDuplicates(t *testing.T) {
	s, txn := newIndexedStore(t)
	a, _ := s.Insert(txn, 1, []VM.Value{VM.Int(5), VM.Str("a")})
	_, err := s.Insert(txn, 1, []VM.Value{VM.Int(7), VM.Str("b")})
	require.NoError(t, err)
	c, _ := s.Insert(txn, 1, []VM.Value{VM.Int(5), VM.Str("c")})

	ids := indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanKey(VM.Int(5))
	})
	require.Equal(t, []int64{a, c}, ids)

	require.Empty(t, indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanKey(VM.Int(6))
	}))
}

func TestIndexScanRangeAscDesc(t *testing.T) {
	s, txn := newIndexedStore(t)
	var byKey []int64
	for _, k := range []int64{30, 10, 20, 40} {
		id, err := s.Insert(txn, 1, []VM.Value{VM.Int(k), VM.Str("r")})
		require.NoError(t, err)
		byKey = append(byKey, id)
	}
	// byKey indexes: 0->30, 1->10, 2->20, 3->40

	asc := indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanRange(VM.Int(15), VM.Int(35), false, -1)
	})
	require.Equal(t, []int64{byKey[2], byKey[0]}, asc)

	desc := indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanRange(VM.Int(15), VM.Int(35), true, -1)
	})
	require.Equal(t, []int64{byKey[0], byKey[2]}, desc)
}

func TestIndexScanRangeOpenBounds(t *testing.T) {
	s, txn := newIndexedStore(t)
	var ids []int64
	for _, k := range []int64{1, 2, 3} {
		id, err := s.Insert(txn, 1, []VM.Value{VM.Int(k), VM.Str("r")})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all := indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanRange(VM.Null(), VM.Null(), false, -1)
	})
	require.Equal(t, ids, all)

	upTo2 := indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanRange(VM.Null(), VM.Int(2), false, -1)
	})
	require.Equal(t, ids[:2], upTo2)
}

func TestIndexScanRangeLimit(t *testing.T) {
	s, txn := newIndexedStore(t)
	for k := int64(1); k <= 5; k++ {
		_, err := s.Insert(txn, 1, []VM.Value{VM.Int(k), VM.Str("r")})
		require.NoError(t, err)
	}
	got := indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanRange(VM.Null(), VM.Null(), false, 2)
	})
	require.Len(t, got, 2)
}

func TestIndexTracksUpdatesAndDeletes(t *testing.T) {
	s, txn := newIndexedStore(t)
	id, err := s.Insert(txn, 1, []VM.Value{VM.Int(5), VM.Str("a")})
	require.NoError(t, err)

	ok, err := s.Update(txn, 1, id, []VM.Value{VM.Int(9), VM.Str("a")})
	require.NoError(t, err)
	require.True(t, ok)

	require.Empty(t, indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanKey(VM.Int(5))
	}))
	require.Equal(t, []int64{id}, indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanKey(VM.Int(9))
	}))

	ok, err = s.Delete(txn, 1, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanKey(VM.Int(9))
	}))
}

func TestCreateIndexBackfillsExistingRows(t *testing.T) {
	s := NewStore()
	_, err := s.CreateTable(1, "t", 2)
	require.NoError(t, err)
	txn := TM.NewManager().Begin()
	id, err := s.Insert(txn, 1, []VM.Value{VM.Int(3), VM.Str("x")})
	require.NoError(t, err)

	require.NoError(t, s.CreateIndex(1, 10, 0))
	require.Equal(t, []int64{id}, indexScanIDs(t, s, func(it VM.IndexIterator) error {
		return it.ScanKey(VM.Int(3))
	}))
}
