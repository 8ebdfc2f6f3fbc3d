package CC

import (
	"fmt"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/VM"
)

// pushedFilter is one predicate conjunct of the shape column-vs-constant
// that can be installed on the iterator and evaluated per batch instead
// of per row.
type pushedFilter struct {
	col int32
	op  VM.OpCode
	val VM.Value
}

var filterOps = map[PL.CmpOp]VM.OpCode{
	PL.CmpEq: VM.OpTableFilterEq,
	PL.CmpNe: VM.OpTableFilterNe,
	PL.CmpLt: VM.OpTableFilterLt,
	PL.CmpLe: VM.OpTableFilterLe,
	PL.CmpGt: VM.OpTableFilterGt,
	PL.CmpGe: VM.OpTableFilterGe,
}

// flippedCmp mirrors a comparison for const-vs-column conjuncts.
var flippedCmp = map[PL.CmpOp]PL.CmpOp{
	PL.CmpEq: PL.CmpEq,
	PL.CmpNe: PL.CmpNe,
	PL.CmpLt: PL.CmpGt,
	PL.CmpLe: PL.CmpGe,
	PL.CmpGt: PL.CmpLt,
	PL.CmpGe: PL.CmpLe,
}

// splitPredicate separates pushable conjuncts from the residual
// predicate (nil when everything pushed down).
func splitPredicate(pred PL.Expr) ([]pushedFilter, PL.Expr) {
	if pred == nil {
		return nil, nil
	}
	if l, ok := pred.(*PL.Logic); ok && l.Op == PL.LogicAnd {
		lf, lr := splitPredicate(l.L)
		rf, rr := splitPredicate(l.R)
		filters := append(lf, rf...)
		switch {
		case lr == nil:
			return filters, rr
		case rr == nil:
			return filters, lr
		default:
			return filters, &PL.Logic{Op: PL.LogicAnd, L: lr, R: rr}
		}
	}
	if f, ok := asPushable(pred); ok {
		return []pushedFilter{f}, nil
	}
	return nil, pred
}

func asPushable(e PL.Expr) (pushedFilter, bool) {
	cmp, ok := e.(*PL.Cmp)
	if !ok {
		return pushedFilter{}, false
	}
	if col, okL := cmp.L.(*PL.ColumnRef); okL {
		if c, okR := cmp.R.(*PL.Const); okR && !c.Val.IsNull() {
			return pushedFilter{col: int32(col.Idx), op: filterOps[cmp.Op], val: datumValue(c.Val)}, true
		}
	}
	if c, okL := cmp.L.(*PL.Const); okL && !c.Val.IsNull() {
		if col, okR := cmp.R.(*PL.ColumnRef); okR {
			return pushedFilter{col: int32(col.Idx), op: filterOps[flippedCmp[cmp.Op]], val: datumValue(c.Val)}, true
		}
	}
	return pushedFilter{}, false
}

// seqScanTranslator drives a pipeline over a full-table scan, with
// pushable conjuncts installed on the iterator.
type seqScanTranslator struct {
	translatorBase
	scan     *PL.SeqScan
	slot     int32
	filters  []pushedFilter
	residual PL.Expr
}

func buildSeqScan(c *Context, n PL.Node, cur *Pipeline) error {
	scan := n.(*PL.SeqScan)
	t := &seqScanTranslator{
		translatorBase: translatorBase{ctx: c, node: n},
		scan:           scan,
	}
	t.filters, t.residual = splitPredicate(scan.Predicate)
	cur.Add(t)
	c.register(t)
	return nil
}

func (t *seqScanTranslator) DeclareState(pb *VM.ProgramBuilder) error {
	t.slot = pb.DeclareSlot(fmt.Sprintf("scan_%s", t.scan.TableName), VM.SlotTableIter)
	return nil
}

func (t *seqScanTranslator) Produce(fb *VM.FunctionBuilder) error {
	initOp := VM.OpTableIterInit
	if t.pipe.parallel {
		initOp = VM.OpTableIterPartInit
	}
	fb.EmitAB(initOp, t.slot, t.scan.TableID)
	for _, f := range t.filters {
		fb.EmitABC(f.op, t.slot, f.col, fb.AddConst(f.val))
	}

	loop := fb.AllocLabel()
	done := fb.AllocLabel()
	fb.BindLabel(loop)
	fb.EmitLoopStep(VM.OpTableIterNext, t.slot, done)

	width := t.scan.TableSchema.Width()
	row := make([]int32, width)
	for i := 0; i < width; i++ {
		row[i] = fb.AllocReg()
		fb.EmitABC(VM.OpTableIterCol, row[i], t.slot, int32(i))
	}
	t.pipe.rowIDReg = fb.AllocReg()
	fb.EmitAB(VM.OpTableIterRowID, t.pipe.rowIDReg, t.slot)

	if t.residual != nil {
		cond, err := compileExpr(fb, t.residual, row, t.scan.TableSchema)
		if err != nil {
			return err
		}
		fb.EmitBranch(VM.OpJumpIfFalse, cond, loop)
	}

	if err := t.next(fb, row); err != nil {
		return err
	}
	fb.EmitJump(loop)
	fb.BindLabel(done)
	fb.EmitA(VM.OpTableIterClose, t.slot)
	return nil
}

// indexScanTranslator drives a pipeline over an index scan: exact key
// or a range, ascending or descending, optionally limited.
type indexScanTranslator struct {
	translatorBase
	scan *PL.IndexScan
	slot int32
}

func buildIndexScan(c *Context, n PL.Node, cur *Pipeline) error {
	t := &indexScanTranslator{
		translatorBase: translatorBase{ctx: c, node: n},
		scan:           n.(*PL.IndexScan),
	}
	cur.Add(t)
	c.register(t)
	return nil
}

func (t *indexScanTranslator) DeclareState(pb *VM.ProgramBuilder) error {
	t.slot = pb.DeclareSlot(fmt.Sprintf("ixscan_%d_%d", t.scan.TableID, t.scan.IndexID), VM.SlotIndexIter)
	return nil
}

// ParallelOK: an index scan has no disjoint partitioning; it always
// runs single-threaded.
func (t *indexScanTranslator) ParallelOK() bool { return false }

func (t *indexScanTranslator) boundReg(fb *VM.FunctionBuilder, d *PL.Datum) int32 {
	v := VM.Null()
	if d != nil {
		v = datumValue(*d)
	}
	reg := fb.AllocReg()
	fb.EmitAB(VM.OpLoadConst, reg, fb.AddConst(v))
	return reg
}

func (t *indexScanTranslator) Produce(fb *VM.FunctionBuilder) error {
	fb.EmitABC(VM.OpIndexIterInit, t.slot, t.scan.TableID, t.scan.IndexID)
	if t.scan.Limit > 0 {
		fb.EmitAB(VM.OpIndexIterLimit, t.slot, int32(t.scan.Limit))
	}
	if t.scan.ExactKey != nil {
		key := t.boundReg(fb, t.scan.ExactKey)
		fb.EmitAB(VM.OpIndexIterScanKey, t.slot, key)
	} else {
		low := t.boundReg(fb, t.scan.Low)
		high := t.boundReg(fb, t.scan.High)
		op := VM.OpIndexIterScanAsc
		if t.scan.Desc {
			op = VM.OpIndexIterScanDesc
		}
		fb.EmitABC(op, t.slot, low, high)
	}

	loop := fb.AllocLabel()
	done := fb.AllocLabel()
	fb.BindLabel(loop)
	fb.EmitLoopStep(VM.OpIndexIterNext, t.slot, done)

	width := t.scan.TableSchema.Width()
	row := make([]int32, width)
	for i := 0; i < width; i++ {
		row[i] = fb.AllocReg()
		fb.EmitABC(VM.OpIndexIterCol, row[i], t.slot, int32(i))
	}
	t.pipe.rowIDReg = fb.AllocReg()
	fb.EmitAB(VM.OpIndexIterRowID, t.pipe.rowIDReg, t.slot)

	if err := t.next(fb, row); err != nil {
		return err
	}
	fb.EmitJump(loop)
	fb.BindLabel(done)
	fb.EmitA(VM.OpIndexIterClose, t.slot)
	return nil
}
