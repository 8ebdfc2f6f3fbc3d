package VM

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// AggKind selects the accumulator behavior of one aggregate.
type AggKind int32

const (
	AggCountStar AggKind = iota
	AggCount
	AggSum
	AggMin
	AggMax
	AggAvg
)

var aggKindNames = [...]string{"count(*)", "count", "sum", "min", "max", "avg"}

func (k AggKind) String() string {
	if int(k) < len(aggKindNames) {
		return aggKindNames[k]
	}
	return "agg?"
}

// Aggregator is one running accumulator. NULL inputs are skipped by every
// kind except count(*), which has no input at all.
type Aggregator struct {
	Kind  AggKind
	count int64
	sumI  int64
	sumF  float64
	float bool
	ext   Value // current min/max
	seen  bool
}

// NewAggregator returns a zeroed accumulator of the given kind.
func NewAggregator(kind AggKind) *Aggregator {
	return &Aggregator{Kind: kind}
}

// Step folds one input value into the accumulator.
func (a *Aggregator) Step(v Value) {
	if a.Kind == AggCountStar {
		a.count++
		return
	}
	if v.IsNull() {
		return
	}
	switch a.Kind {
	case AggCount:
		a.count++
	case AggSum, AggAvg:
		a.count++
		switch v.T {
		case TagFloat:
			a.float = true
			a.sumF += v.Float()
		default:
			a.sumI += v.Int()
		}
	case AggMin:
		if !a.seen || Compare(v, a.ext) < 0 {
			a.ext = v
		}
		a.seen = true
	case AggMax:
		if !a.seen || Compare(v, a.ext) > 0 {
			a.ext = v
		}
		a.seen = true
	}
}

// Merge folds a partially aggregated accumulator of the same kind into a.
func (a *Aggregator) Merge(b *Aggregator) {
	switch a.Kind {
	case AggCountStar, AggCount:
		a.count += b.count
	case AggSum, AggAvg:
		a.count += b.count
		a.sumI += b.sumI
		a.sumF += b.sumF
		a.float = a.float || b.float
	case AggMin:
		if b.seen && (!a.seen || Compare(b.ext, a.ext) < 0) {
			a.ext = b.ext
		}
		a.seen = a.seen || b.seen
	case AggMax:
		if b.seen && (!a.seen || Compare(b.ext, a.ext) > 0) {
			a.ext = b.ext
		}
		a.seen = a.seen || b.seen
	}
}

// Result finalizes the accumulator. Empty sum/min/max/avg yield NULL;
// empty counts yield 0.
func (a *Aggregator) Result() Value {
	switch a.Kind {
	case AggCountStar, AggCount:
		return Int(a.count)
	case AggSum:
		if a.count == 0 {
			return Null()
		}
		if a.float {
			return Float(a.sumF + float64(a.sumI))
		}
		return Int(a.sumI)
	case AggAvg:
		if a.count == 0 {
			return Null()
		}
		return Float((a.sumF + float64(a.sumI)) / float64(a.count))
	case AggMin, AggMax:
		if !a.seen {
			return Null()
		}
		return a.ext
	}
	return Null()
}

// Reset returns the accumulator to its initial state.
func (a *Aggregator) Reset() {
	kind := a.Kind
	*a = Aggregator{Kind: kind}
}

type aggEntry struct {
	hash uint64
	keys []Value
	aggs []Aggregator
}

// AggHashTable groups rows by key and holds one accumulator row per group.
// Upsert and Step take the table lock, so concurrent pipeline workers can
// feed a shared table directly; Transfer is the explicit barrier between
// the build phase and iteration.
type AggHashTable struct {
	mu      sync.Mutex
	numKeys int
	kinds   []AggKind
	buckets map[uint64][]int32
	entries []*aggEntry
	sealed  bool
}

// NewAggHashTable creates an empty table for numKeys group columns.
func NewAggHashTable(numKeys, numAggs int) *AggHashTable {
	return &AggHashTable{
		numKeys: numKeys,
		kinds:   make([]AggKind, numAggs),
		buckets: make(map[uint64][]int32),
	}
}

// SetAggKind configures the accumulator kind of aggregate column i.
func (ht *AggHashTable) SetAggKind(i int32, kind AggKind) {
	ht.kinds[i] = kind
}

// Upsert finds or creates the entry for keys and returns its index.
func (ht *AggHashTable) Upsert(keys []Value) (int32, error) {
	h := uint64(fnvOffset64)
	for _, k := range keys {
		h = HashCombine(h, Hash(k))
	}
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if ht.sealed {
		return 0, errors.AssertionFailedf("aggregation table mutated after transfer")
	}
	for _, idx := range ht.buckets[h] {
		e := ht.entries[idx]
		if e.hash != h {
			continue
		}
		same := true
		for i := range keys {
			if !ValuesEqual(e.keys[i], keys[i]) {
				same = false
				break
			}
		}
		if same {
			return idx, nil
		}
	}
	e := &aggEntry{hash: h, keys: append([]Value(nil), keys...), aggs: make([]Aggregator, len(ht.kinds))}
	for i, k := range ht.kinds {
		e.aggs[i].Kind = k
	}
	idx := int32(len(ht.entries))
	ht.entries = append(ht.entries, e)
	ht.buckets[h] = append(ht.buckets[h], idx)
	return idx, nil
}

// Step folds arg into aggregate column agg of entry.
func (ht *AggHashTable) Step(entry, agg int32, arg Value) error {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if entry < 0 || int(entry) >= len(ht.entries) {
		return errors.AssertionFailedf("aggregation entry %d out of range", entry)
	}
	ht.entries[entry].aggs[agg].Step(arg)
	return nil
}

// StepRow folds one arg per aggregate column into entry under a single
// lock acquisition; args[i] feeds aggregate column i.
func (ht *AggHashTable) StepRow(entry int32, args []Value) error {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if entry < 0 || int(entry) >= len(ht.entries) {
		return errors.AssertionFailedf("aggregation entry %d out of range", entry)
	}
	aggs := ht.entries[entry].aggs
	for i := range aggs {
		aggs[i].Step(args[i])
	}
	return nil
}

// NumKeys returns the number of group columns.
func (ht *AggHashTable) NumKeys() int { return ht.numKeys }

// NumAggs returns the number of aggregate columns.
func (ht *AggHashTable) NumAggs() int { return len(ht.kinds) }

// Transfer seals the table for iteration. It is the merge point after a
// parallel build: all workers have finished before the consumer pipeline
// runs, so sealing is the only remaining work.
func (ht *AggHashTable) Transfer() {
	ht.mu.Lock()
	ht.sealed = true
	ht.mu.Unlock()
}

// Len returns the number of groups.
func (ht *AggHashTable) Len() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return len(ht.entries)
}

// aggHTIter walks entries in insertion order.
type aggHTIter struct {
	ht  *AggHashTable
	pos int
}

func newAggHTIter(ht *AggHashTable) *aggHTIter {
	return &aggHTIter{ht: ht, pos: -1}
}

func (it *aggHTIter) next() bool {
	it.pos++
	return it.pos < len(it.ht.entries)
}

func (it *aggHTIter) key(i int32) Value {
	return it.ht.entries[it.pos].keys[i]
}

func (it *aggHTIter) result(i int32) Value {
	return it.ht.entries[it.pos].aggs[i].Result()
}
