package VM

import (
	"github.com/cockroachdb/errors"

	"github.com/querypipe/querypipe/internal/TM"
)

// batchFilter is one installed vectorized predicate: column cmp constant,
// applied to every fetched batch to produce its selection vector.
type batchFilter struct {
	col int32
	op  OpCode // OpTableFilterEq..OpTableFilterGe
	val Value
}

func (f *batchFilter) match(row []Value) bool {
	c := row[f.col]
	if c.IsNull() || f.val.IsNull() {
		return false
	}
	cmp := Compare(c, f.val)
	switch f.op {
	case OpTableFilterEq:
		return cmp == 0
	case OpTableFilterNe:
		return cmp != 0
	case OpTableFilterLt:
		return cmp < 0
	case OpTableFilterLe:
		return cmp <= 0
	case OpTableFilterGt:
		return cmp > 0
	case OpTableFilterGe:
		return cmp >= 0
	}
	return false
}

// tableCursor drives a batch iterator row-at-a-time, applying installed
// batch filters at each batch boundary.
type tableCursor struct {
	iter    RowIterator
	filters []batchFilter
	batch   *Batch
	pos     int // index into batch.Sel (or batch.Rows when Sel is nil)
}

func (tc *tableCursor) installFilter(f batchFilter) {
	tc.filters = append(tc.filters, f)
}

func (tc *tableCursor) applyFilters(b *Batch) {
	if len(tc.filters) == 0 {
		return
	}
	sel := make([]int, 0, len(b.Rows))
	for i, row := range b.Rows {
		keep := true
		for j := range tc.filters {
			if !tc.filters[j].match(row) {
				keep = false
				break
			}
		}
		if keep {
			sel = append(sel, i)
		}
	}
	b.Sel = sel
}

// next advances to the next selected row, fetching batches as needed.
func (tc *tableCursor) next(txn *TM.Txn) (bool, error) {
	for {
		if tc.batch != nil {
			tc.pos++
			if tc.pos < tc.batch.Len() {
				return true, nil
			}
		}
		b, ok, err := tc.iter.Advance(txn)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		tc.applyFilters(b)
		tc.batch = b
		tc.pos = -1
	}
}

func (tc *tableCursor) rowIdx() int {
	if tc.batch.Sel != nil {
		return tc.batch.Sel[tc.pos]
	}
	return tc.pos
}

func (tc *tableCursor) col(i int32) Value {
	return tc.batch.Rows[tc.rowIdx()][i]
}

func (tc *tableCursor) rowID() int64 {
	return tc.batch.RowIDs[tc.rowIdx()]
}

func (tc *tableCursor) close() {
	if tc.iter != nil {
		tc.iter.Close()
		tc.iter = nil
	}
	tc.batch = nil
}

// indexCursor iterates an index scan, resolving each row id against the
// base table lazily on first column access.
type indexCursor struct {
	iter    IndexIterator
	tableID int32
	store   Storage
	limit   int64 // pending scan limit, -1 = unlimited
	rowID   int64
	row     []Value
}

func (ic *indexCursor) next() bool {
	ic.row = nil
	id, ok := ic.iter.Next()
	if !ok {
		return false
	}
	ic.rowID = id
	return true
}

func (ic *indexCursor) col(txn *TM.Txn, i int32) (Value, error) {
	if ic.row == nil {
		row, ok, err := ic.store.FetchRow(txn, ic.tableID, ic.rowID)
		if err != nil {
			return Null(), err
		}
		if !ok {
			return Null(), errors.Newf("index row id %d missing from table %d", ic.rowID, ic.tableID)
		}
		ic.row = row
	}
	return ic.row[i], nil
}

func (ic *indexCursor) close() {
	if ic.iter != nil {
		ic.iter.Close()
		ic.iter = nil
	}
}

// slotVal is the runtime value of one global-state slot. Runtime-allocated
// structures are owned by their slot: constructed in init (or at iterator
// open), released exactly once in teardown.
type slotVal struct {
	kind   SlotKind
	scalar Value
	obj    interface{}
}

func (s *slotVal) tableCursor() (*tableCursor, error) {
	tc, ok := s.obj.(*tableCursor)
	if !ok || tc == nil {
		return nil, errors.AssertionFailedf("state slot does not hold an open table cursor")
	}
	return tc, nil
}

func (s *slotVal) indexCursor() (*indexCursor, error) {
	ic, ok := s.obj.(*indexCursor)
	if !ok || ic == nil {
		return nil, errors.AssertionFailedf("state slot does not hold an open index cursor")
	}
	return ic, nil
}

func (s *slotVal) aggHT() (*AggHashTable, error) {
	ht, ok := s.obj.(*AggHashTable)
	if !ok || ht == nil {
		return nil, errors.AssertionFailedf("state slot does not hold an aggregation hash table")
	}
	return ht, nil
}

func (s *slotVal) aggHTIter() (*aggHTIter, error) {
	it, ok := s.obj.(*aggHTIter)
	if !ok || it == nil {
		return nil, errors.AssertionFailedf("state slot does not hold an aggregation iterator")
	}
	return it, nil
}

func (s *slotVal) aggregator() (*Aggregator, error) {
	ag, ok := s.obj.(*Aggregator)
	if !ok || ag == nil {
		return nil, errors.AssertionFailedf("state slot does not hold an aggregator")
	}
	return ag, nil
}

func (s *slotVal) joinHT() (*JoinHashTable, error) {
	ht, ok := s.obj.(*JoinHashTable)
	if !ok || ht == nil {
		return nil, errors.AssertionFailedf("state slot does not hold a join hash table")
	}
	return ht, nil
}

func (s *slotVal) joinProbe() (*joinProbe, error) {
	p, ok := s.obj.(*joinProbe)
	if !ok || p == nil {
		return nil, errors.AssertionFailedf("state slot does not hold a join probe")
	}
	return p, nil
}

func (s *slotVal) sorter() (*Sorter, error) {
	so, ok := s.obj.(*Sorter)
	if !ok || so == nil {
		return nil, errors.AssertionFailedf("state slot does not hold a sorter")
	}
	return so, nil
}

func (s *slotVal) sorterIter() (*sorterIter, error) {
	it, ok := s.obj.(*sorterIter)
	if !ok || it == nil {
		return nil, errors.AssertionFailedf("state slot does not hold a sorter iterator")
	}
	return it, nil
}

// release frees whatever the slot owns. Safe to call on empty slots; a
// second call is a no-op, which makes teardown idempotent.
func (s *slotVal) release() {
	switch o := s.obj.(type) {
	case *tableCursor:
		o.close()
	case *indexCursor:
		o.close()
	}
	s.obj = nil
	s.scalar = Value{}
}
