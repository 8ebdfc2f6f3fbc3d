package CC

import (
	"fmt"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/VM"
)

// sortState is shared by the two halves of an order-by. Keys that are
// plain column references sort on the materialized row directly; any
// other key expression is appended as an extra, hidden column.
type sortState struct {
	ob         *PL.OrderBy
	topK       int64 // 0 = full sort
	width      int   // visible columns
	keyCols    []int32
	extraExprs []PL.Expr
	slot       int32
	iterSlot   int32
}

func buildOrderBy(c *Context, n PL.Node, cur *Pipeline) error {
	return c.buildOrderByTopK(n.(*PL.OrderBy), cur, 0)
}

// buildOrderByTopK splits the plan at the sort breaker; topK > 0 bounds
// the retained rows at the sort barrier (limit fusion).
func (c *Context) buildOrderByTopK(ob *PL.OrderBy, cur *Pipeline, topK int64) error {
	st := &sortState{ob: ob, topK: topK, width: ob.Input.Schema().Width()}
	for _, k := range ob.Keys {
		if col, ok := k.Expr.(*PL.ColumnRef); ok {
			st.keyCols = append(st.keyCols, int32(col.Idx))
			continue
		}
		st.keyCols = append(st.keyCols, int32(st.width+len(st.extraExprs)))
		st.extraExprs = append(st.extraExprs, k.Expr)
	}

	top := &sortTopTranslator{translatorBase: translatorBase{ctx: c, node: ob}, st: st}
	cur.Add(top)
	c.register(top)

	build := c.newPipeline()
	bottom := &sortBottomTranslator{translatorBase: translatorBase{ctx: c, node: ob}, st: st}
	build.Add(bottom)
	c.register(bottom)
	if err := c.buildNode(ob.Input, build); err != nil {
		return err
	}
	c.finishPipeline(build)
	cur.DependOn(build)
	return nil
}

// sortBottomTranslator materializes rows into the sorter. Insert locks
// internally, so a parallel build pipeline can feed it.
type sortBottomTranslator struct {
	translatorBase
	st *sortState
}

func (t *sortBottomTranslator) DeclareState(pb *VM.ProgramBuilder) error {
	t.st.slot = pb.DeclareSlot(fmt.Sprintf("sorter_p%d", t.pipe.id), VM.SlotSorter)
	t.st.iterSlot = pb.DeclareSlot(fmt.Sprintf("sorter_iter_p%d", t.pipe.id), VM.SlotSorterIter)
	return nil
}

func (t *sortBottomTranslator) EmitInit(fb *VM.FunctionBuilder) error {
	st := t.st
	fb.EmitAB(VM.OpSorterInit, st.slot, int32(st.width+len(st.extraExprs)))
	for i, k := range st.ob.Keys {
		desc := int32(0)
		if k.Desc {
			desc = 1
		}
		fb.EmitABC(VM.OpSorterKey, st.slot, st.keyCols[i], desc)
	}
	return nil
}

func (t *sortBottomTranslator) EmitTeardown(fb *VM.FunctionBuilder) error {
	fb.EmitA(VM.OpSorterIterClose, t.st.iterSlot)
	fb.EmitA(VM.OpSorterFree, t.st.slot)
	return nil
}

func (t *sortBottomTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	st := t.st
	block := fb.AllocRegs(st.width + len(st.extraExprs))
	for i, r := range row {
		fb.EmitAB(VM.OpMove, block+int32(i), r)
	}
	for i, e := range st.extraExprs {
		r, err := compileExpr(fb, e, row, st.ob.Input.Schema())
		if err != nil {
			return err
		}
		fb.EmitAB(VM.OpMove, block+int32(st.width+i), r)
	}
	fb.EmitAB(VM.OpSorterInsert, st.slot, block)
	return nil
}

// sortTopTranslator is the produce side: sort at the barrier, then
// stream rows in order, hiding any appended key columns.
type sortTopTranslator struct {
	translatorBase
	st *sortState
}

func (t *sortTopTranslator) ParallelOK() bool { return false }

func (t *sortTopTranslator) Produce(fb *VM.FunctionBuilder) error {
	st := t.st
	if st.topK > 0 {
		fb.EmitAB(VM.OpSorterSortTopK, st.slot, int32(st.topK))
	} else {
		fb.EmitA(VM.OpSorterSort, st.slot)
	}
	fb.EmitAB(VM.OpSorterIterInit, st.iterSlot, st.slot)

	loop := fb.AllocLabel()
	done := fb.AllocLabel()
	fb.BindLabel(loop)
	fb.EmitLoopStep(VM.OpSorterIterNext, st.iterSlot, done)

	out := make([]int32, st.width)
	for i := 0; i < st.width; i++ {
		out[i] = fb.AllocReg()
		fb.EmitABC(VM.OpSorterIterCol, out[i], st.iterSlot, int32(i))
	}

	if err := t.next(fb, out); err != nil {
		return err
	}
	fb.EmitJump(loop)
	fb.BindLabel(done)
	fb.EmitA(VM.OpSorterIterClose, st.iterSlot)
	return nil
}
