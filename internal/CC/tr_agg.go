package CC

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/VM"
)

var aggKinds = map[PL.AggKind]VM.AggKind{
	PL.AggCountStar: VM.AggCountStar,
	PL.AggCount:     VM.AggCount,
	PL.AggSum:       VM.AggSum,
	PL.AggMin:       VM.AggMin,
	PL.AggMax:       VM.AggMax,
	PL.AggAvg:       VM.AggAvg,
}

// aggState is the slot layout shared by the two halves of an aggregation:
// the bottom translator feeding the table from the build pipeline and
// the top translator draining it into the parent pipeline.
type aggState struct {
	agg      *PL.Aggregate
	grouped  bool
	htSlot   int32
	iterSlot int32
	aggSlots []int32 // plain aggregation: one aggregator slot per spec
}

// buildAggregate splits the plan at the aggregation breaker: the top
// half stays in the current pipeline, the bottom half ends a new build
// pipeline over the child, registered as a dependency.
func buildAggregate(c *Context, n PL.Node, cur *Pipeline) error {
	agg := n.(*PL.Aggregate)
	for _, sp := range agg.Aggs {
		if _, ok := aggKinds[sp.Kind]; !ok {
			return errors.Newf("unmapped aggregate kind %s", sp.Kind)
		}
	}
	st := &aggState{agg: agg, grouped: len(agg.GroupBy) > 0}

	top := &aggTopTranslator{translatorBase: translatorBase{ctx: c, node: n}, st: st}
	cur.Add(top)
	c.register(top)

	build := c.newPipeline()
	bottom := &aggBottomTranslator{translatorBase: translatorBase{ctx: c, node: n}, st: st}
	build.Add(bottom)
	c.register(bottom)
	if err := c.buildNode(agg.Input, build); err != nil {
		return err
	}
	c.finishPipeline(build)
	cur.DependOn(build)
	return nil
}

// aggBottomTranslator folds build-pipeline rows into the aggregation
// state. Safe under parallel build: the hash table locks internally.
type aggBottomTranslator struct {
	translatorBase
	st *aggState
}

func (t *aggBottomTranslator) DeclareState(pb *VM.ProgramBuilder) error {
	st := t.st
	if st.grouped {
		st.htSlot = pb.DeclareSlot(fmt.Sprintf("agg_ht_p%d", t.pipe.id), VM.SlotAggHT)
		st.iterSlot = pb.DeclareSlot(fmt.Sprintf("agg_iter_p%d", t.pipe.id), VM.SlotAggHTIter)
		return nil
	}
	st.aggSlots = make([]int32, len(st.agg.Aggs))
	for i := range st.agg.Aggs {
		st.aggSlots[i] = pb.DeclareSlot(fmt.Sprintf("agg_p%d_%d", t.pipe.id, i), VM.SlotAgg)
	}
	return nil
}

func (t *aggBottomTranslator) EmitInit(fb *VM.FunctionBuilder) error {
	st := t.st
	if st.grouped {
		fb.EmitABC(VM.OpAggHTInit, st.htSlot, int32(len(st.agg.GroupBy)), int32(len(st.agg.Aggs)))
		for i, sp := range st.agg.Aggs {
			fb.EmitABC(VM.OpAggHTAggKind, st.htSlot, int32(i), int32(aggKinds[sp.Kind]))
		}
		return nil
	}
	for i, sp := range st.agg.Aggs {
		fb.EmitAB(VM.OpAggInit, st.aggSlots[i], int32(aggKinds[sp.Kind]))
	}
	return nil
}

func (t *aggBottomTranslator) EmitTeardown(fb *VM.FunctionBuilder) error {
	if t.st.grouped {
		fb.EmitA(VM.OpAggHTIterClose, t.st.iterSlot)
		fb.EmitA(VM.OpAggHTFree, t.st.htSlot)
	}
	return nil
}

func (t *aggBottomTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	st := t.st
	if !st.grouped {
		for i, sp := range st.agg.Aggs {
			arg, err := t.aggArg(fb, sp, row)
			if err != nil {
				return err
			}
			fb.EmitAB(VM.OpAggStep, st.aggSlots[i], arg)
		}
		return nil
	}

	keys, err := compileExprBlock(fb, st.agg.GroupBy, row, st.agg.Input.Schema())
	if err != nil {
		return err
	}
	entry := fb.AllocReg()
	fb.EmitABC(VM.OpAggHTUpsert, entry, st.htSlot, keys)

	args := fb.AllocRegs(len(st.agg.Aggs))
	for i, sp := range st.agg.Aggs {
		arg, err := t.aggArg(fb, sp, row)
		if err != nil {
			return err
		}
		fb.EmitAB(VM.OpMove, args+int32(i), arg)
	}
	fb.EmitABC(VM.OpAggHTStep, st.htSlot, entry, args)
	return nil
}

// aggArg compiles one aggregate argument; count(*) has none, so it
// feeds a constant the accumulator ignores.
func (t *aggBottomTranslator) aggArg(fb *VM.FunctionBuilder, sp PL.AggSpec, row []int32) (int32, error) {
	if sp.Kind == PL.AggCountStar || sp.Arg == nil {
		reg := fb.AllocReg()
		fb.EmitAB(VM.OpLoadImm, reg, 0)
		return reg, nil
	}
	return compileExpr(fb, sp.Arg, row, t.st.agg.Input.Schema())
}

// aggTopTranslator is the produce side: after the build pipeline's
// barrier it transfers the table and streams one row per group.
type aggTopTranslator struct {
	translatorBase
	st *aggState
}

// ParallelOK: draining runs after the barrier, single-threaded.
func (t *aggTopTranslator) ParallelOK() bool { return false }

func (t *aggTopTranslator) Produce(fb *VM.FunctionBuilder) error {
	st := t.st
	if !st.grouped {
		// Single group: exactly one output row, even over empty input.
		out := make([]int32, len(st.agg.Aggs))
		for i := range st.agg.Aggs {
			out[i] = fb.AllocReg()
			fb.EmitAB(VM.OpAggResult, out[i], st.aggSlots[i])
		}
		return t.next(fb, out)
	}

	fb.EmitA(VM.OpAggHTTransfer, st.htSlot)
	fb.EmitAB(VM.OpAggHTIterInit, st.iterSlot, st.htSlot)

	loop := fb.AllocLabel()
	done := fb.AllocLabel()
	fb.BindLabel(loop)
	fb.EmitLoopStep(VM.OpAggHTIterNext, st.iterSlot, done)

	nKeys, nAggs := len(st.agg.GroupBy), len(st.agg.Aggs)
	out := make([]int32, nKeys+nAggs)
	for i := 0; i < nKeys; i++ {
		out[i] = fb.AllocReg()
		fb.EmitABC(VM.OpAggHTIterKey, out[i], st.iterSlot, int32(i))
	}
	for i := 0; i < nAggs; i++ {
		out[nKeys+i] = fb.AllocReg()
		fb.EmitABC(VM.OpAggHTIterAgg, out[nKeys+i], st.iterSlot, int32(i))
	}

	if err := t.next(fb, out); err != nil {
		return err
	}
	fb.EmitJump(loop)
	fb.BindLabel(done)
	fb.EmitA(VM.OpAggHTIterClose, st.iterSlot)
	return nil
}
