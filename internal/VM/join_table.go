package VM

import (
	"sync"

	"github.com/cockroachdb/errors"
)

type joinEntry struct {
	hash uint64
	keys []Value
	row  []Value
}

// JoinHashTable holds the materialized build side of a hash join. Insert
// is locked so a parallel build pipeline can feed it directly; Build is
// the barrier that freezes it before any probe runs.
type JoinHashTable struct {
	mu       sync.Mutex
	numKeys  int
	rowWidth int
	buckets  map[uint64][]int32
	entries  []*joinEntry
	built    bool
}

// NewJoinHashTable creates an empty build table for numKeys join columns
// and rowWidth materialized build columns per row.
func NewJoinHashTable(numKeys, rowWidth int) *JoinHashTable {
	return &JoinHashTable{numKeys: numKeys, rowWidth: rowWidth, buckets: make(map[uint64][]int32)}
}

// NumKeys returns the number of join key columns.
func (ht *JoinHashTable) NumKeys() int { return ht.numKeys }

// RowWidth returns the materialized build row width.
func (ht *JoinHashTable) RowWidth() int { return ht.rowWidth }

func joinHash(keys []Value) uint64 {
	h := uint64(fnvOffset64)
	for _, k := range keys {
		h = HashCombine(h, Hash(k))
	}
	return h
}

// Insert adds one build row under keys.
func (ht *JoinHashTable) Insert(keys, row []Value) error {
	h := joinHash(keys)
	e := &joinEntry{
		hash: h,
		keys: append([]Value(nil), keys...),
		row:  append([]Value(nil), row...),
	}
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if ht.built {
		return errors.AssertionFailedf("join table mutated after build")
	}
	idx := int32(len(ht.entries))
	ht.entries = append(ht.entries, e)
	ht.buckets[h] = append(ht.buckets[h], idx)
	return nil
}

// Build freezes the table for probing.
func (ht *JoinHashTable) Build() {
	ht.mu.Lock()
	ht.built = true
	ht.mu.Unlock()
}

// Len returns the number of build rows.
func (ht *JoinHashTable) Len() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return len(ht.entries)
}

// joinProbe iterates the build rows matching one probe key. A NULL in the
// probe key matches nothing.
type joinProbe struct {
	ht      *JoinHashTable
	keys    []Value
	matches []int32
	pos     int
}

func (ht *JoinHashTable) probe(keys []Value) *joinProbe {
	p := &joinProbe{ht: ht, keys: append([]Value(nil), keys...), pos: -1}
	for _, k := range keys {
		if k.IsNull() {
			return p
		}
	}
	h := joinHash(keys)
	for _, idx := range ht.buckets[h] {
		e := ht.entries[idx]
		if e.hash != h {
			continue
		}
		same := true
		for i := range keys {
			if e.keys[i].IsNull() || Compare(e.keys[i], keys[i]) != 0 {
				same = false
				break
			}
		}
		if same {
			p.matches = append(p.matches, idx)
		}
	}
	return p
}

func (p *joinProbe) next() bool {
	p.pos++
	return p.pos < len(p.matches)
}

func (p *joinProbe) col(i int32) Value {
	return p.ht.entries[p.matches[p.pos]].row[i]
}
