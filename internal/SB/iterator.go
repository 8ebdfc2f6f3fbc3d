package SB

import (
	"github.com/cockroachdb/errors"

	"github.com/querypipe/querypipe/internal/TM"
	"github.com/querypipe/querypipe/internal/VM"
)

// scanBatchSize is the number of rows per delivered batch.
const scanBatchSize = 256

// scanIterator walks the part-th of parts stripes of a table's rows in
// insertion order, skipping deleted rows. The row-id list is snapshotted
// at open; row contents are read per batch.
type scanIterator struct {
	table *Table
	ids   []int64
	pos   int
}

func newScanIterator(t *Table, part, parts int) *scanIterator {
	t.mu.RLock()
	ids := make([]int64, 0, len(t.order)/parts+1)
	for i, id := range t.order {
		if i%parts == part {
			ids = append(ids, id)
		}
	}
	t.mu.RUnlock()
	return &scanIterator{table: t, ids: ids}
}

func (it *scanIterator) Advance(txn *TM.Txn) (*VM.Batch, bool, error) {
	if it.table == nil {
		return nil, false, errors.AssertionFailedf("advance on closed scan iterator")
	}
	b := &VM.Batch{}
	it.table.mu.RLock()
	for it.pos < len(it.ids) && len(b.Rows) < scanBatchSize {
		id := it.ids[it.pos]
		it.pos++
		row, ok := it.table.rows[id]
		if !ok {
			continue // deleted since snapshot
		}
		b.Rows = append(b.Rows, append([]VM.Value(nil), row...))
		b.RowIDs = append(b.RowIDs, id)
	}
	it.table.mu.RUnlock()
	if len(b.Rows) == 0 {
		return nil, false, nil
	}
	return b, true, nil
}

func (it *scanIterator) Close() {
	it.table = nil
	it.ids = nil
}

// indexIterator materializes a matching row-id list at scan time and
// then steps through it.
type indexIterator struct {
	table *Table
	index *Index
	ids   []int64
	pos   int
}

func newIndexIterator(t *Table, ix *Index) *indexIterator {
	return &indexIterator{table: t, index: ix, pos: -1}
}

func (it *indexIterator) ScanKey(key VM.Value) error {
	if it.index == nil {
		return errors.AssertionFailedf("scan on closed index iterator")
	}
	it.ids = it.index.scanKey(key)
	it.pos = -1
	return nil
}

func (it *indexIterator) ScanRange(low, high VM.Value, desc bool, limit int64) error {
	if it.index == nil {
		return errors.AssertionFailedf("scan on closed index iterator")
	}
	it.ids = it.index.scanRange(low, high, desc, limit)
	it.pos = -1
	return nil
}

func (it *indexIterator) Next() (int64, bool) {
	it.pos++
	if it.pos >= len(it.ids) {
		return 0, false
	}
	return it.ids[it.pos], true
}

func (it *indexIterator) Close() {
	it.index = nil
	it.ids = nil
}
