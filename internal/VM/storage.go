package VM

import "github.com/querypipe/querypipe/internal/TM"

// Batch is one unit of rows delivered by a scan iterator. Sel, when
// non-nil, is the selection vector of row indexes that survived the
// iterator's installed batch filters.
type Batch struct {
	Rows   [][]Value
	RowIDs []int64
	Sel    []int
}

// Len returns the number of selected rows.
func (b *Batch) Len() int {
	if b.Sel != nil {
		return len(b.Sel)
	}
	return len(b.Rows)
}

// RowIterator is the storage collaborator's batch-of-rows scan protocol:
// Advance returns the next batch, or ok=false at end of scan.
type RowIterator interface {
	Advance(txn *TM.Txn) (batch *Batch, ok bool, err error)
	Close()
}

// IndexIterator yields row ids from the index collaborator in key order.
type IndexIterator interface {
	ScanKey(key Value) error
	ScanRange(low, high Value, desc bool, limit int64) error
	Next() (rowID int64, ok bool)
	Close()
}

// Storage is the narrow surface the VM consumes from the storage engine.
// Everything behind it (tuple storage, versioning, the index structure)
// is an external collaborator.
type Storage interface {
	// OpenScan opens a full-table scan; part/parts select a disjoint
	// partition for parallel scans (0/1 scans everything).
	OpenScan(tableID int32, part, parts int) (RowIterator, error)
	// OpenIndex opens an index iterator that resolves row ids against
	// tableID.
	OpenIndex(tableID, indexID int32) (IndexIterator, error)
	// FetchRow resolves a row id to column values.
	FetchRow(txn *TM.Txn, tableID int32, rowID int64) ([]Value, bool, error)
	// RowWidth returns the column count of tableID's rows.
	RowWidth(tableID int32) (int, error)

	Insert(txn *TM.Txn, tableID int32, row []Value) (int64, error)
	Update(txn *TM.Txn, tableID int32, rowID int64, row []Value) (bool, error)
	Delete(txn *TM.Txn, tableID int32, rowID int64) (bool, error)
}

// RowSink receives result rows, one callback per row.
type RowSink func(row []Value) error

// Status summarizes one program execution.
type Status struct {
	RowsEmitted  int64
	RowsAffected int64
}

// ExecContext supplies a compiled program with its execution-time
// collaborators: the active transaction, storage, the output row sink,
// scratch allocation, and the parallel worker budget.
type ExecContext struct {
	Txn     *TM.Txn
	Store   Storage
	Sink    RowSink
	Arena   *Arena
	Workers int
}

// Arena is a bump allocator for the row copies handed to the result
// sink. Growth abandons the exhausted buffer rather than reallocating
// it, so slices handed out earlier stay valid; Reset recycles the space
// between runs only.
type Arena struct {
	buf []Value
	off int
}

// NewArena creates an arena with the given initial capacity.
func NewArena(capacity int) *Arena {
	return &Arena{buf: make([]Value, capacity)}
}

// Alloc returns a zeroed scratch slice of n values.
func (a *Arena) Alloc(n int) []Value {
	if a.off+n > len(a.buf) {
		a.buf = make([]Value, maxInt(len(a.buf)*2, a.off+n))
		a.off = 0
	}
	s := a.buf[a.off : a.off+n : a.off+n]
	a.off += n
	for i := range s {
		s[i] = Value{}
	}
	return s
}

// Reset recycles the arena; previously allocated slices must not be used
// afterwards.
func (a *Arena) Reset() { a.off = 0 }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
