// Package SB is the in-memory storage backend: tables of rows addressed
// by row id, secondary btree indexes, and batch scan iterators. It
// implements the narrow Storage surface the VM consumes.
package SB

import (
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/querypipe/querypipe/internal/TM"
	"github.com/querypipe/querypipe/internal/VM"
	"github.com/querypipe/querypipe/internal/log"
)

// Table holds one table's rows keyed by row id. Rows keep insertion
// order for scans; deletes leave holes that scans skip.
type Table struct {
	id    int32
	name  string
	width int

	mu      sync.RWMutex
	rows    map[int64][]VM.Value
	order   []int64
	nextRow int64
	indexes map[int32]*Index
}

// ID returns the table id.
func (t *Table) ID() int32 { return t.id }

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Width returns the column count.
func (t *Table) Width() int { return t.width }

// Len returns the live row count.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Store is a collection of tables. It satisfies VM.Storage.
type Store struct {
	mu     sync.RWMutex
	tables map[int32]*Table
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tables: make(map[int32]*Table)}
}

// CreateTable registers a new table.
func (s *Store) CreateTable(id int32, name string, width int) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[id]; ok {
		return nil, errors.Newf("table %d (%q) already exists", id, name)
	}
	t := &Table{
		id:      id,
		name:    name,
		width:   width,
		rows:    make(map[int64][]VM.Value),
		indexes: make(map[int32]*Index),
	}
	s.tables[id] = t
	log.Debug("table created", zap.Int32("table", id), zap.String("name", name), zap.Int("width", width))
	return t, nil
}

// CreateIndex builds a secondary index over keyCol of tableID, indexing
// any rows already present.
func (s *Store) CreateIndex(tableID, indexID int32, keyCol int) error {
	t, err := s.table(tableID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.indexes[indexID]; ok {
		return errors.Newf("index %d on table %d already exists", indexID, tableID)
	}
	if keyCol < 0 || keyCol >= t.width {
		return errors.Newf("index %d: key column %d out of range [0,%d)", indexID, keyCol, t.width)
	}
	idx := newIndex(indexID, keyCol)
	for id, row := range t.rows {
		idx.insert(row[keyCol], id)
	}
	t.indexes[indexID] = idx
	return nil
}

func (s *Store) table(id int32) (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[id]
	if !ok {
		return nil, errors.Newf("table %d does not exist", id)
	}
	return t, nil
}

// OpenScan opens a batch iterator over the part-th of parts disjoint
// slices of the table's rows.
func (s *Store) OpenScan(tableID int32, part, parts int) (VM.RowIterator, error) {
	t, err := s.table(tableID)
	if err != nil {
		return nil, err
	}
	if parts < 1 {
		parts = 1
	}
	if part < 0 || part >= parts {
		return nil, errors.Newf("scan partition %d out of range [0,%d)", part, parts)
	}
	return newScanIterator(t, part, parts), nil
}

// OpenIndex opens an iterator over indexID of tableID.
func (s *Store) OpenIndex(tableID, indexID int32) (VM.IndexIterator, error) {
	t, err := s.table(tableID)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	idx, ok := t.indexes[indexID]
	t.mu.RUnlock()
	if !ok {
		return nil, errors.Newf("index %d on table %d does not exist", indexID, tableID)
	}
	return newIndexIterator(t, idx), nil
}

// FetchRow resolves a row id to a copy of its column values.
func (s *Store) FetchRow(txn *TM.Txn, tableID int32, rowID int64) ([]VM.Value, bool, error) {
	t, err := s.table(tableID)
	if err != nil {
		return nil, false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[rowID]
	if !ok {
		return nil, false, nil
	}
	return append([]VM.Value(nil), row...), true, nil
}

// RowWidth returns the column count of tableID.
func (s *Store) RowWidth(tableID int32) (int, error) {
	t, err := s.table(tableID)
	if err != nil {
		return 0, err
	}
	return t.width, nil
}

// Insert adds a row and registers an undo that removes it if txn aborts.
func (s *Store) Insert(txn *TM.Txn, tableID int32, row []VM.Value) (int64, error) {
	t, err := s.table(tableID)
	if err != nil {
		return 0, err
	}
	if len(row) != t.width {
		return 0, errors.Newf("insert into table %d: row has %d columns, want %d", tableID, len(row), t.width)
	}
	cp := append([]VM.Value(nil), row...)

	t.mu.Lock()
	t.nextRow++
	id := t.nextRow
	t.rows[id] = cp
	t.order = append(t.order, id)
	for _, idx := range t.indexes {
		idx.insert(cp[idx.keyCol], id)
	}
	t.mu.Unlock()

	if txn != nil {
		if err := txn.OnUndo(func() { t.removeRow(id) }); err != nil {
			t.removeRow(id)
			return 0, err
		}
	}
	return id, nil
}

// Update replaces a row in place; ok=false when the row id is gone.
func (s *Store) Update(txn *TM.Txn, tableID int32, rowID int64, row []VM.Value) (bool, error) {
	t, err := s.table(tableID)
	if err != nil {
		return false, err
	}
	if len(row) != t.width {
		return false, errors.Newf("update table %d: row has %d columns, want %d", tableID, len(row), t.width)
	}
	cp := append([]VM.Value(nil), row...)

	t.mu.Lock()
	old, ok := t.rows[rowID]
	if !ok {
		t.mu.Unlock()
		return false, nil
	}
	for _, idx := range t.indexes {
		idx.remove(old[idx.keyCol], rowID)
		idx.insert(cp[idx.keyCol], rowID)
	}
	t.rows[rowID] = cp
	t.mu.Unlock()

	if txn != nil {
		if err := txn.OnUndo(func() { t.restoreRow(rowID, old) }); err != nil {
			t.restoreRow(rowID, old)
			return false, err
		}
	}
	return true, nil
}

// Delete removes a row; ok=false when the row id is gone.
func (s *Store) Delete(txn *TM.Txn, tableID int32, rowID int64) (bool, error) {
	t, err := s.table(tableID)
	if err != nil {
		return false, err
	}
	t.mu.Lock()
	old, ok := t.rows[rowID]
	if !ok {
		t.mu.Unlock()
		return false, nil
	}
	delete(t.rows, rowID)
	for _, idx := range t.indexes {
		idx.remove(old[idx.keyCol], rowID)
	}
	t.mu.Unlock()

	if txn != nil {
		if err := txn.OnUndo(func() { t.restoreRow(rowID, old) }); err != nil {
			t.restoreRow(rowID, old)
			return false, err
		}
	}
	return true, nil
}

func (t *Table) removeRow(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[id]
	if !ok {
		return
	}
	delete(t.rows, id)
	for _, idx := range t.indexes {
		idx.remove(row[idx.keyCol], id)
	}
}

// restoreRow reinstates a prior version; deletes leave order intact,
// so only the row map and indexes change.
func (t *Table) restoreRow(id int64, row []VM.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, exists := t.rows[id]
	if exists {
		for _, idx := range t.indexes {
			idx.remove(cur[idx.keyCol], id)
		}
	}
	t.rows[id] = row
	for _, idx := range t.indexes {
		idx.insert(row[idx.keyCol], id)
	}
}
