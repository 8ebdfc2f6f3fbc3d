package VM

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

type sortKey struct {
	col  int32
	desc bool
}

// Sorter materializes rows, sorts them by its configured keys, and hands
// them out through a sorterIter. Insert is locked for parallel producers;
// Sort/SortTopK are the barrier that seals the rows.
type Sorter struct {
	mu       sync.Mutex
	rowWidth int
	keys     []sortKey
	rows     [][]Value
	sorted   bool
}

// NewSorter creates an empty sorter over rowWidth-column rows; keys are
// added with AddKey before the first Insert.
func NewSorter(rowWidth int) *Sorter { return &Sorter{rowWidth: rowWidth} }

// RowWidth returns the configured row width.
func (s *Sorter) RowWidth() int { return s.rowWidth }

// AddKey appends a sort key. Earlier keys order before later ones.
func (s *Sorter) AddKey(col int32, desc bool) {
	s.keys = append(s.keys, sortKey{col: col, desc: desc})
}

// Insert materializes one row.
func (s *Sorter) Insert(row []Value) error {
	cp := append([]Value(nil), row...)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sorted {
		return errors.AssertionFailedf("sorter mutated after sort")
	}
	s.rows = append(s.rows, cp)
	return nil
}

func (s *Sorter) less(a, b []Value) bool {
	for _, k := range s.keys {
		cmp := Compare(a[k.col], b[k.col])
		if cmp == 0 {
			continue
		}
		if k.desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

// Sort orders the materialized rows. The sort is stable so rows equal
// under every key keep their insertion order.
func (s *Sorter) Sort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sorted {
		return
	}
	sort.SliceStable(s.rows, func(i, j int) bool { return s.less(s.rows[i], s.rows[j]) })
	s.sorted = true
}

// SortTopK sorts and keeps only the first k rows.
func (s *Sorter) SortTopK(k int64) {
	s.Sort()
	s.mu.Lock()
	defer s.mu.Unlock()
	if k >= 0 && int64(len(s.rows)) > k {
		s.rows = s.rows[:k]
	}
}

// Len returns the number of retained rows.
func (s *Sorter) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// sorterIter walks sorted rows in order.
type sorterIter struct {
	s   *Sorter
	pos int
}

func newSorterIter(s *Sorter) *sorterIter {
	return &sorterIter{s: s, pos: -1}
}

func (it *sorterIter) next() bool {
	it.pos++
	return it.pos < len(it.s.rows)
}

func (it *sorterIter) col(i int32) Value {
	return it.s.rows[it.pos][i]
}
