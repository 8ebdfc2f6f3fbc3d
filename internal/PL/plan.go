package PL

import "fmt"

// NodeKind is the closed enumeration of physical plan operator kinds.
type NodeKind uint8

const (
	KindInvalid NodeKind = iota
	KindSeqScan
	KindIndexScan
	KindProjection
	KindAggregate
	KindOrderBy
	KindHashJoin
	KindNestLoopJoin
	KindLimit
	KindInsert
	KindUpdate
	KindDelete

	NumNodeKinds // sentinel
)

var kindNames = [NumNodeKinds]string{
	KindInvalid:      "Invalid",
	KindSeqScan:      "SeqScan",
	KindIndexScan:    "IndexScan",
	KindProjection:   "Projection",
	KindAggregate:    "Aggregate",
	KindOrderBy:      "OrderBy",
	KindHashJoin:     "HashJoin",
	KindNestLoopJoin: "NestLoopJoin",
	KindLimit:        "Limit",
	KindInsert:       "Insert",
	KindUpdate:       "Update",
	KindDelete:       "Delete",
}

func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", uint8(k))
}

// Node is one operator in a physical plan tree. Nodes are immutable during
// compilation and identified by pointer.
type Node interface {
	Kind() NodeKind
	Children() []Node
	// Schema is the operator's output row shape as seen by its parent.
	Schema() *Schema
}

// SeqScan reads every row of a table, optionally filtered.
type SeqScan struct {
	TableID     int32
	TableName   string
	TableSchema *Schema
	// Predicate, if set, is evaluated over the table schema.
	Predicate Expr
}

func (s *SeqScan) Kind() NodeKind   { return KindSeqScan }
func (s *SeqScan) Children() []Node { return nil }
func (s *SeqScan) Schema() *Schema  { return s.TableSchema }

// IndexScan reads rows in index order within [Low, High], or by exact key.
type IndexScan struct {
	TableID     int32
	IndexID     int32
	TableSchema *Schema
	// ExactKey selects scan_key semantics; otherwise a range scan.
	ExactKey *Datum
	Low      *Datum // nil means unbounded
	High     *Datum // nil means unbounded
	Desc     bool
	Limit    int64 // 0 means no limit
}

func (s *IndexScan) Kind() NodeKind   { return KindIndexScan }
func (s *IndexScan) Children() []Node { return nil }
func (s *IndexScan) Schema() *Schema  { return s.TableSchema }

// Projection computes one expression per output column.
type Projection struct {
	Input Node
	Exprs []Expr
	Names []string
	out   *Schema
}

func (p *Projection) Kind() NodeKind   { return KindProjection }
func (p *Projection) Children() []Node { return []Node{p.Input} }

func (p *Projection) Schema() *Schema {
	if p.out != nil {
		return p.out
	}
	cols := make([]Column, len(p.Exprs))
	for i, e := range p.Exprs {
		t, err := TypeOf(e, p.Input.Schema())
		if err != nil {
			t = TypeInvalid
		}
		name := ""
		if i < len(p.Names) {
			name = p.Names[i]
		}
		if name == "" {
			name = fmt.Sprintf("col%d", i)
		}
		cols[i] = Column{Name: name, Type: t}
	}
	p.out = &Schema{Cols: cols}
	return p.out
}

// AggKind enumerates aggregate functions.
type AggKind uint8

const (
	AggCountStar AggKind = iota
	AggCount
	AggSum
	AggMin
	AggMax
	AggAvg

	NumAggKinds // sentinel
)

var aggNames = [NumAggKinds]string{"count(*)", "count", "sum", "min", "max", "avg"}

func (k AggKind) String() string { return aggNames[k] }

// AggSpec is one aggregate over an argument expression (nil for count(*)).
type AggSpec struct {
	Kind AggKind
	Arg  Expr
}

// Aggregate groups its input by GroupBy and evaluates Aggs per group.
// With no GroupBy it is a plain (single-group) aggregation.
type Aggregate struct {
	Input   Node
	GroupBy []Expr
	Aggs    []AggSpec
	out     *Schema
}

func (a *Aggregate) Kind() NodeKind   { return KindAggregate }
func (a *Aggregate) Children() []Node { return []Node{a.Input} }

func (a *Aggregate) Schema() *Schema {
	if a.out != nil {
		return a.out
	}
	in := a.Input.Schema()
	cols := make([]Column, 0, len(a.GroupBy)+len(a.Aggs))
	for i, g := range a.GroupBy {
		t, err := TypeOf(g, in)
		if err != nil {
			t = TypeInvalid
		}
		cols = append(cols, Column{Name: fmt.Sprintf("group%d", i), Type: t})
	}
	for i, sp := range a.Aggs {
		cols = append(cols, Column{Name: fmt.Sprintf("agg%d", i), Type: aggResultType(sp, in)})
	}
	a.out = &Schema{Cols: cols}
	return a.out
}

func aggResultType(sp AggSpec, in *Schema) TypeID {
	switch sp.Kind {
	case AggCountStar, AggCount:
		return TypeInt
	case AggAvg:
		return TypeFloat
	default:
		t, err := TypeOf(sp.Arg, in)
		if err != nil {
			return TypeInvalid
		}
		return t
	}
}

// SortKey orders by one expression; Desc inverts the direction.
type SortKey struct {
	Expr Expr
	Desc bool
}

// OrderBy fully sorts its input by Keys; ties break on later keys and,
// finally, on the insertion order of equal rows (stable sort).
type OrderBy struct {
	Input Node
	Keys  []SortKey
}

func (o *OrderBy) Kind() NodeKind   { return KindOrderBy }
func (o *OrderBy) Children() []Node { return []Node{o.Input} }
func (o *OrderBy) Schema() *Schema  { return o.Input.Schema() }

// HashJoin equi-joins Build (child 0, materialized into a hash table)
// against Probe (child 1, streamed). Output is build columns then probe
// columns.
type HashJoin struct {
	Build     Node
	Probe     Node
	BuildKeys []Expr // over Build schema
	ProbeKeys []Expr // over Probe schema
	out       *Schema
}

func (j *HashJoin) Kind() NodeKind   { return KindHashJoin }
func (j *HashJoin) Children() []Node { return []Node{j.Build, j.Probe} }

func (j *HashJoin) Schema() *Schema {
	if j.out == nil {
		j.out = j.Build.Schema().Concat(j.Probe.Schema())
	}
	return j.out
}

// NestLoopJoin joins Outer (child 0) against Inner (child 1) without a
// materialization barrier; Predicate is evaluated over the concatenated
// schema.
type NestLoopJoin struct {
	Outer     Node
	Inner     Node
	Predicate Expr
	out       *Schema
}

func (j *NestLoopJoin) Kind() NodeKind   { return KindNestLoopJoin }
func (j *NestLoopJoin) Children() []Node { return []Node{j.Outer, j.Inner} }

func (j *NestLoopJoin) Schema() *Schema {
	if j.out == nil {
		j.out = j.Outer.Schema().Concat(j.Inner.Schema())
	}
	return j.out
}

// Limit passes through at most Count rows after skipping Offset rows.
type Limit struct {
	Input  Node
	Count  int64
	Offset int64
}

func (l *Limit) Kind() NodeKind   { return KindLimit }
func (l *Limit) Children() []Node { return []Node{l.Input} }
func (l *Limit) Schema() *Schema  { return l.Input.Schema() }

// Insert appends each input row into the target table.
type Insert struct {
	TableID int32
	Input   Node
}

func (m *Insert) Kind() NodeKind   { return KindInsert }
func (m *Insert) Children() []Node { return []Node{m.Input} }
func (m *Insert) Schema() *Schema  { return m.Input.Schema() }

// Update rewrites SetCols of each input row with SetExprs (evaluated over
// the input schema). The input must be a scan over the target table.
type Update struct {
	TableID  int32
	Input    Node
	SetCols  []int
	SetExprs []Expr
}

func (m *Update) Kind() NodeKind   { return KindUpdate }
func (m *Update) Children() []Node { return []Node{m.Input} }
func (m *Update) Schema() *Schema  { return m.Input.Schema() }

// Delete removes each input row from the target table. The input must be
// a scan over the target table.
type Delete struct {
	TableID int32
	Input   Node
}

func (m *Delete) Kind() NodeKind   { return KindDelete }
func (m *Delete) Children() []Node { return []Node{m.Input} }
func (m *Delete) Schema() *Schema  { return m.Input.Schema() }
