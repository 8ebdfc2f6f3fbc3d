package querypipe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/VM"
)

var ordersSchema = &PL.Schema{Cols: []PL.Column{
	{Name: "id", Type: PL.TypeInt},
	{Name: "cust", Type: PL.TypeInt},
	{Name: "amount", Type: PL.TypeInt},
	{Name: "status", Type: PL.TypeStr},
}}

var custSchema = &PL.Schema{Cols: []PL.Column{
	{Name: "cust", Type: PL.TypeInt},
	{Name: "name", Type: PL.TypeStr},
}}

func col(i int) PL.Expr { return &PL.ColumnRef{Idx: i} }

func ordersScan() *PL.SeqScan {
	return &PL.SeqScan{TableID: 1, TableName: "orders", TableSchema: ordersSchema}
}

// seededDB: 3 customers, 6 orders.
func seededDB(t *testing.T) *DB {
	t.Helper()
	db := New()
	require.NoError(t, db.CreateTable(1, "orders", 4))
	require.NoError(t, db.CreateTable(2, "customers", 2))
	require.NoError(t, db.CreateIndex(1, 10, 1))

	require.NoError(t, db.Load(2,
		[]Value{Int(1), Str("ada")},
		[]Value{Int(2), Str("grace")},
		[]Value{Int(3), Str("edsger")},
	))
	require.NoError(t, db.Load(1,
		[]Value{Int(1), Int(1), Int(100), Str("paid")},
		[]Value{Int(2), Int(2), Int(250), Str("open")},
		[]Value{Int(3), Int(1), Int(75), Str("paid")},
		[]Value{Int(4), Int(3), Int(500), Str("void")},
		[]Value{Int(5), Int(2), Int(125), Str("paid")},
		[]Value{Int(6), Int(1), Int(300), Str("open")},
	))
	return db
}

func exec(t *testing.T, db *DB, plan PL.Node, opts ...RunOption) *Result {
	t.Helper()
	res, err := db.Exec(context.Background(), plan, opts...)
	require.NoError(t, err)
	return res
}

func TestScanWithFilter(t *testing.T) {
	db := seededDB(t)
	scan := ordersScan()
	scan.Predicate = &PL.Logic{Op: PL.LogicAnd,
		L: &PL.Cmp{Op: PL.CmpEq, L: col(3), R: &PL.Const{Val: PL.StrDatum("paid")}},
		R: &PL.Cmp{Op: PL.CmpGt, L: col(2), R: &PL.Const{Val: PL.IntDatum(80)}},
	}

	res := exec(t, db, scan)
	require.Equal(t, []string{"id", "cust", "amount", "status"}, res.Cols)
	require.Len(t, res.Rows, 2)
	require.Equal(t, Int(1), res.Rows[0][0])
	require.Equal(t, Int(5), res.Rows[1][0])
	require.Equal(t, int64(2), res.Status.RowsEmitted)
}

func TestProjectionArithmetic(t *testing.T) {
	db := seededDB(t)
	plan := &PL.Projection{
		Input: ordersScan(),
		Exprs: []PL.Expr{col(0), &PL.Arith{Op: PL.ArithMul, L: col(2), R: &PL.Const{Val: PL.IntDatum(2)}}},
		Names: []string{"id", "double"},
	}
	res := exec(t, db, plan)
	require.Equal(t, Int(200), res.Rows[0][1])
	require.Equal(t, Int(600), res.Rows[5][1])
}

func TestGroupedAggregate(t *testing.T) {
	db := seededDB(t)
	plan := &PL.Aggregate{
		Input:   ordersScan(),
		GroupBy: []PL.Expr{col(1)},
		Aggs: []PL.AggSpec{
			{Kind: PL.AggCount},
			{Kind: PL.AggSum, Arg: col(2)},
		},
	}
	res := exec(t, db, plan)
	require.Len(t, res.Rows, 3)

	// Groups appear in first-seen order: cust 1, 2, 3.
	require.Equal(t, []Value{Int(1), Int(3), Int(475)}, res.Rows[0])
	require.Equal(t, []Value{Int(2), Int(2), Int(375)}, res.Rows[1])
	require.Equal(t, []Value{Int(3), Int(1), Int(500)}, res.Rows[2])
}

func TestPlainAggregateEmptyInputEmitsOneRow(t *testing.T) {
	db := New()
	require.NoError(t, db.CreateTable(1, "orders", 4))
	plan := &PL.Aggregate{
		Input: ordersScan(),
		Aggs:  []PL.AggSpec{{Kind: PL.AggCountStar}, {Kind: PL.AggSum, Arg: col(2)}},
	}
	res := exec(t, db, plan)
	require.Len(t, res.Rows, 1)
	require.Equal(t, Int(0), res.Rows[0][0])
	require.True(t, res.Rows[0][1].IsNull())
}

func TestAggregateSkipsNulls(t *testing.T) {
	db := New()
	require.NoError(t, db.CreateTable(1, "orders", 4))
	require.NoError(t, db.Load(1,
		[]Value{Int(1), Int(1), Int(10), Str("x")},
		[]Value{Int(2), Int(1), Null(), Str("x")},
		[]Value{Int(3), Int(1), Int(20), Str("x")},
	))
	plan := &PL.Aggregate{
		Input: ordersScan(),
		Aggs: []PL.AggSpec{
			{Kind: PL.AggCount, Arg: col(2)},
			{Kind: PL.AggAvg, Arg: col(2)},
		},
	}
	res := exec(t, db, plan)
	require.Equal(t, Int(2), res.Rows[0][0])
	require.Equal(t, Float(15), res.Rows[0][1])
}

func TestHashJoin(t *testing.T) {
	db := seededDB(t)
	plan := &PL.HashJoin{
		Build:     &PL.SeqScan{TableID: 2, TableName: "customers", TableSchema: custSchema},
		Probe:     ordersScan(),
		BuildKeys: []PL.Expr{col(0)},
		ProbeKeys: []PL.Expr{col(1)},
	}
	res := exec(t, db, plan)
	require.Len(t, res.Rows, 6)
	// Probe order drives output order; order 1 joins customer ada.
	require.Equal(t, Str("ada"), res.Rows[0][1])
	require.Equal(t, Int(1), res.Rows[0][2])
	require.Equal(t, Str("edsger"), res.Rows[3][1])
}

func TestHashJoinUnmatchedProbeRowsDropped(t *testing.T) {
	db := seededDB(t)
	// Only customer 1 in the build side.
	cscan := &PL.SeqScan{
		TableID: 2, TableName: "customers", TableSchema: custSchema,
		Predicate: &PL.Cmp{Op: PL.CmpEq, L: col(0), R: &PL.Const{Val: PL.IntDatum(1)}},
	}
	plan := &PL.HashJoin{
		Build:     cscan,
		Probe:     ordersScan(),
		BuildKeys: []PL.Expr{col(0)},
		ProbeKeys: []PL.Expr{col(1)},
	}
	res := exec(t, db, plan)
	require.Len(t, res.Rows, 3)
}

func TestNestLoopJoin(t *testing.T) {
	db := seededDB(t)
	plan := &PL.NestLoopJoin{
		Outer:     ordersScan(),
		Inner:     &PL.SeqScan{TableID: 2, TableName: "customers", TableSchema: custSchema},
		Predicate: &PL.Cmp{Op: PL.CmpEq, L: col(1), R: col(4)},
	}
	res := exec(t, db, plan)
	require.Len(t, res.Rows, 6)
	require.Equal(t, Str("ada"), res.Rows[0][5])
}

func TestNestLoopJoinAggregateInner(t *testing.T) {
	db := seededDB(t)
	plan := &PL.NestLoopJoin{
		Outer: &PL.SeqScan{TableID: 2, TableName: "customers", TableSchema: custSchema},
		Inner: &PL.Aggregate{
			Input:   ordersScan(),
			GroupBy: []PL.Expr{col(1)},
			Aggs:    []PL.AggSpec{{Kind: PL.AggCountStar}},
		},
		Predicate: &PL.Cmp{Op: PL.CmpEq, L: col(0), R: col(2)},
	}
	res := exec(t, db, plan)

	// One match per customer, carrying that customer's order count.
	require.Len(t, res.Rows, 3)
	require.Equal(t, []Value{Int(1), Str("ada"), Int(1), Int(3)}, res.Rows[0])
	require.Equal(t, []Value{Int(2), Str("grace"), Int(2), Int(2)}, res.Rows[1])
	require.Equal(t, []Value{Int(3), Str("edsger"), Int(3), Int(1)}, res.Rows[2])
}

func TestNestLoopJoinSortedInner(t *testing.T) {
	db := seededDB(t)
	plan := &PL.NestLoopJoin{
		Outer: &PL.SeqScan{TableID: 2, TableName: "customers", TableSchema: custSchema},
		Inner: &PL.OrderBy{
			Input: ordersScan(),
			Keys:  []PL.SortKey{{Expr: col(2), Desc: true}},
		},
		Predicate: &PL.Cmp{Op: PL.CmpEq, L: col(0), R: col(3)},
	}
	res := exec(t, db, plan)

	// Outer-major order; within each customer the inner sort order holds,
	// and the sorted rows survive being re-drained per outer row.
	require.Len(t, res.Rows, 6)
	var ids []Value
	for _, r := range res.Rows {
		ids = append(ids, r[2])
	}
	require.Equal(t, []Value{Int(6), Int(1), Int(3), Int(2), Int(5), Int(4)}, ids)
}

func TestOrderByMultiKey(t *testing.T) {
	db := seededDB(t)
	plan := &PL.OrderBy{
		Input: ordersScan(),
		Keys: []PL.SortKey{
			{Expr: col(3)},             // status asc
			{Expr: col(2), Desc: true}, // amount desc
		},
	}
	res := exec(t, db, plan)
	var got []Value
	for _, r := range res.Rows {
		got = append(got, r[0])
	}
	// open(300,250), paid(125,100,75), void(500)
	require.Equal(t, []Value{Int(6), Int(2), Int(5), Int(1), Int(3), Int(4)}, got)
}

func TestOrderByComputedKey(t *testing.T) {
	db := seededDB(t)
	plan := &PL.OrderBy{
		Input: ordersScan(),
		Keys: []PL.SortKey{{
			Expr: &PL.Arith{Op: PL.ArithRem, L: col(0), R: &PL.Const{Val: PL.IntDatum(3)}},
		}},
	}
	res := exec(t, db, plan)
	// Hidden key column does not leak into the output.
	require.Len(t, res.Rows[0], 4)
	require.Equal(t, Int(3), res.Rows[0][0]) // id 3: 3%3 = 0
}

func TestLimitAndOffset(t *testing.T) {
	db := seededDB(t)
	res := exec(t, db, &PL.Limit{Input: ordersScan(), Count: 2, Offset: 1})
	require.Len(t, res.Rows, 2)
	require.Equal(t, Int(2), res.Rows[0][0])
	require.Equal(t, Int(3), res.Rows[1][0])
}

func TestLimitOverOrderByTopK(t *testing.T) {
	db := seededDB(t)
	plan := &PL.Limit{
		Count:  2,
		Offset: 1,
		Input: &PL.OrderBy{
			Input: ordersScan(),
			Keys:  []PL.SortKey{{Expr: col(2), Desc: true}},
		},
	}
	res := exec(t, db, plan)
	// Sorted amounts: 500, 300, 250, ... -> skip 500, take 300 and 250.
	require.Len(t, res.Rows, 2)
	require.Equal(t, Int(300), res.Rows[0][2])
	require.Equal(t, Int(250), res.Rows[1][2])
}

func TestIndexScanExactKey(t *testing.T) {
	db := seededDB(t)
	key := PL.IntDatum(1)
	plan := &PL.IndexScan{TableID: 1, IndexID: 10, TableSchema: ordersSchema, ExactKey: &key}
	res := exec(t, db, plan)
	require.Len(t, res.Rows, 3)
	for _, r := range res.Rows {
		require.Equal(t, Int(1), r[1])
	}
}

func TestIndexScanRangeDescWithLimit(t *testing.T) {
	db := seededDB(t)
	low := PL.IntDatum(2)
	plan := &PL.IndexScan{
		TableID: 1, IndexID: 10, TableSchema: ordersSchema,
		Low: &low, Desc: true, Limit: 2,
	}
	res := exec(t, db, plan)
	require.Len(t, res.Rows, 2)
	require.Equal(t, Int(3), res.Rows[0][1])
}

func TestParallelWorkersSameResult(t *testing.T) {
	db := seededDB(t)
	plan := func() PL.Node {
		return &PL.Aggregate{
			Input:   ordersScan(),
			GroupBy: []PL.Expr{col(1)},
			Aggs:    []PL.AggSpec{{Kind: PL.AggSum, Arg: col(2)}},
		}
	}

	serial := exec(t, db, plan())
	parallel := exec(t, db, plan(), WithWorkers(4))
	require.ElementsMatch(t, serial.Rows, parallel.Rows)
}

func TestInsertFromQuery(t *testing.T) {
	db := seededDB(t)
	require.NoError(t, db.CreateTable(3, "archive", 4))

	scan := ordersScan()
	scan.Predicate = &PL.Cmp{Op: PL.CmpEq, L: col(3), R: &PL.Const{Val: PL.StrDatum("void")}}
	res := exec(t, db, &PL.Insert{TableID: 3, Input: scan})
	require.Equal(t, int64(1), res.Status.RowsAffected)
	require.Empty(t, res.Cols)

	archived := exec(t, db, &PL.SeqScan{TableID: 3, TableName: "archive", TableSchema: ordersSchema})
	require.Len(t, archived.Rows, 1)
	require.Equal(t, Int(4), archived.Rows[0][0])
}

func TestUpdateCommits(t *testing.T) {
	db := seededDB(t)
	scan := ordersScan()
	scan.Predicate = &PL.Cmp{Op: PL.CmpEq, L: col(3), R: &PL.Const{Val: PL.StrDatum("open")}}
	res := exec(t, db, &PL.Update{
		TableID:  1,
		Input:    scan,
		SetCols:  []int{3},
		SetExprs: []PL.Expr{&PL.Const{Val: PL.StrDatum("paid")}},
	})
	require.Equal(t, int64(2), res.Status.RowsAffected)

	check := ordersScan()
	check.Predicate = &PL.Cmp{Op: PL.CmpEq, L: col(3), R: &PL.Const{Val: PL.StrDatum("paid")}}
	require.Len(t, exec(t, db, check).Rows, 5)
}

func TestDeleteCommits(t *testing.T) {
	db := seededDB(t)
	scan := ordersScan()
	scan.Predicate = &PL.Cmp{Op: PL.CmpLt, L: col(2), R: &PL.Const{Val: PL.IntDatum(200)}}
	res := exec(t, db, &PL.Delete{TableID: 1, Input: scan})
	require.Equal(t, int64(3), res.Status.RowsAffected)
	require.Len(t, exec(t, db, ordersScan()).Rows, 3)
}

func TestRuntimeFaultAbortsTransaction(t *testing.T) {
	db := seededDB(t)
	// amount / (id - id) faults on the first row; the whole statement
	// rolls back.
	plan := &PL.Update{
		TableID: 1,
		Input:   ordersScan(),
		SetCols: []int{2},
		SetExprs: []PL.Expr{&PL.Arith{
			Op: PL.ArithDiv,
			L:  col(2),
			R:  &PL.Arith{Op: PL.ArithSub, L: col(0), R: col(0)},
		}},
	}
	_, err := db.Exec(context.Background(), plan)
	require.Error(t, err)
	require.True(t, VM.IsRuntimeFault(err))

	res := exec(t, db, ordersScan())
	require.Len(t, res.Rows, 6)
	require.Equal(t, Int(100), res.Rows[0][2]) // untouched
}

func TestWithSinkStreamsRows(t *testing.T) {
	db := seededDB(t)
	var n int
	res, err := db.Exec(context.Background(), ordersScan(), WithSink(func(row []Value) error {
		n++
		return nil
	}))
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Empty(t, res.Rows)
	require.Equal(t, int64(6), res.Status.RowsEmitted)
}

func TestBuiltinsEndToEnd(t *testing.T) {
	db := seededDB(t)
	plan := &PL.Projection{
		Input: ordersScan(),
		Exprs: []PL.Expr{
			&PL.Builtin{Fn: PL.FnUpper, Args: []PL.Expr{col(3)}},
			&PL.Builtin{Fn: PL.FnSubstr, Args: []PL.Expr{
				col(3), &PL.Const{Val: PL.IntDatum(1)}, &PL.Const{Val: PL.IntDatum(2)},
			}},
			&PL.Builtin{Fn: PL.FnConcat, Args: []PL.Expr{col(3), &PL.Const{Val: PL.StrDatum("!")}}},
		},
	}
	res := exec(t, db, plan)
	require.Equal(t, []Value{Str("PAID"), Str("pa"), Str("paid!")}, res.Rows[0])
}

func TestCompileOnceRunTwice(t *testing.T) {
	db := seededDB(t)
	prog, err := Compile(ordersScan())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := db.Run(context.Background(), prog)
		require.NoError(t, err)
		require.Len(t, res.Rows, 6)
	}
}

func TestFreshCompilationsBehaveIdentically(t *testing.T) {
	db := seededDB(t)
	plan := func() PL.Node {
		return &PL.OrderBy{
			Input: ordersScan(),
			Keys:  []PL.SortKey{{Expr: col(2), Desc: true}},
		}
	}

	a, err := Compile(plan())
	require.NoError(t, err)
	b, err := Compile(plan())
	require.NoError(t, err)
	require.NotEqual(t, a.QueryID, b.QueryID)

	ra, err := db.Run(context.Background(), a)
	require.NoError(t, err)
	rb, err := db.Run(context.Background(), b)
	require.NoError(t, err)
	require.Equal(t, ra.Rows, rb.Rows)
}

func TestDisassembleOutput(t *testing.T) {
	prog, err := Compile(ordersScan())
	require.NoError(t, err)
	out := Disassemble(prog)
	require.Contains(t, out, "scan_orders")
	require.Contains(t, out, "TableIterNext")
}
