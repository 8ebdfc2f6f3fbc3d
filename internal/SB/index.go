package SB

import (
	"math"
	"sync"

	"github.com/google/btree"

	"github.com/querypipe/querypipe/internal/VM"
)

// indexItem is one (key, rowID) pair; rowID breaks ties so duplicate
// keys coexist in the tree.
type indexItem struct {
	key   VM.Value
	rowID int64
}

func indexItemLess(a, b indexItem) bool {
	if c := VM.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.rowID < b.rowID
}

// Index is a secondary single-column btree index.
type Index struct {
	id     int32
	keyCol int

	mu   sync.RWMutex
	tree *btree.BTreeG[indexItem]
}

func newIndex(id int32, keyCol int) *Index {
	return &Index{id: id, keyCol: keyCol, tree: btree.NewG(16, indexItemLess)}
}

func (ix *Index) insert(key VM.Value, rowID int64) {
	ix.mu.Lock()
	ix.tree.ReplaceOrInsert(indexItem{key: key, rowID: rowID})
	ix.mu.Unlock()
}

func (ix *Index) remove(key VM.Value, rowID int64) {
	ix.mu.Lock()
	ix.tree.Delete(indexItem{key: key, rowID: rowID})
	ix.mu.Unlock()
}

// scanKey collects the row ids whose key equals key, in row-id order.
func (ix *Index) scanKey(key VM.Value) []int64 {
	var out []int64
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ix.tree.AscendGreaterOrEqual(indexItem{key: key, rowID: math.MinInt64}, func(it indexItem) bool {
		if VM.Compare(it.key, key) != 0 {
			return false
		}
		out = append(out, it.rowID)
		return true
	})
	return out
}

// scanRange collects row ids with low <= key <= high in key order. A
// NULL bound is open. desc reverses the order; limit >= 0 caps the
// result.
func (ix *Index) scanRange(low, high VM.Value, desc bool, limit int64) []int64 {
	var out []int64
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if desc {
		ix.tree.Descend(func(it indexItem) bool {
			if !high.IsNull() && VM.Compare(it.key, high) > 0 {
				return true // not yet in range
			}
			if !low.IsNull() && VM.Compare(it.key, low) < 0 {
				return false
			}
			out = append(out, it.rowID)
			return limit < 0 || int64(len(out)) < limit
		})
		return out
	}
	ix.tree.Ascend(func(it indexItem) bool {
		if !low.IsNull() && VM.Compare(it.key, low) < 0 {
			return true // not yet in range
		}
		if !high.IsNull() && VM.Compare(it.key, high) > 0 {
			return false
		}
		out = append(out, it.rowID)
		return limit < 0 || int64(len(out)) < limit
	})
	return out
}
