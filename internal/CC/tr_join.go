package CC

import (
	"fmt"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/VM"
)

// joinState is shared by the build and probe halves of a hash join.
type joinState struct {
	join       *PL.HashJoin
	buildWidth int
	htSlot     int32
	probeSlot  int32
}

// buildHashJoin splits the plan at the join's build side: child 0 ends
// a new build pipeline (a dependency of the current one); child 1
// streams on through the probe translator in the current pipeline.
func buildHashJoin(c *Context, n PL.Node, cur *Pipeline) error {
	j := n.(*PL.HashJoin)
	st := &joinState{join: j, buildWidth: j.Build.Schema().Width()}

	probe := &joinProbeTranslator{translatorBase: translatorBase{ctx: c, node: n}, st: st}
	cur.Add(probe)
	c.register(probe)

	build := c.newPipeline()
	bottom := &joinBuildTranslator{translatorBase: translatorBase{ctx: c, node: n}, st: st}
	build.Add(bottom)
	c.register(bottom)
	if err := c.buildNode(j.Build, build); err != nil {
		return err
	}
	c.finishPipeline(build)
	cur.DependOn(build)

	return c.buildNode(j.Probe, cur)
}

// joinBuildTranslator materializes build rows into the hash table;
// Insert locks internally so a parallel build pipeline can feed it.
type joinBuildTranslator struct {
	translatorBase
	st *joinState
}

func (t *joinBuildTranslator) DeclareState(pb *VM.ProgramBuilder) error {
	t.st.htSlot = pb.DeclareSlot(fmt.Sprintf("join_ht_p%d", t.pipe.id), VM.SlotJoinHT)
	t.st.probeSlot = pb.DeclareSlot(fmt.Sprintf("join_probe_p%d", t.pipe.id), VM.SlotJoinHTProbe)
	return nil
}

func (t *joinBuildTranslator) EmitInit(fb *VM.FunctionBuilder) error {
	fb.EmitABC(VM.OpJoinHTInit, t.st.htSlot, int32(len(t.st.join.BuildKeys)), int32(t.st.buildWidth))
	return nil
}

// EmitFlush freezes the table once the build loop has drained: the
// barrier between build and probe.
func (t *joinBuildTranslator) EmitFlush(fb *VM.FunctionBuilder) error {
	fb.EmitA(VM.OpJoinHTBuild, t.st.htSlot)
	return nil
}

func (t *joinBuildTranslator) EmitTeardown(fb *VM.FunctionBuilder) error {
	fb.EmitA(VM.OpJoinHTProbeClose, t.st.probeSlot)
	fb.EmitA(VM.OpJoinHTFree, t.st.htSlot)
	return nil
}

func (t *joinBuildTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	keys, err := compileExprBlock(fb, t.st.join.BuildKeys, row, t.st.join.Build.Schema())
	if err != nil {
		return err
	}
	block := materializeRow(fb, row)
	fb.EmitABC(VM.OpJoinHTInsert, t.st.htSlot, keys, block)
	return nil
}

// joinProbeTranslator streams probe rows against the frozen table,
// emitting build columns followed by probe columns per match.
type joinProbeTranslator struct {
	translatorBase
	st *joinState
}

func (t *joinProbeTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	st := t.st
	keys, err := compileExprBlock(fb, st.join.ProbeKeys, row, st.join.Probe.Schema())
	if err != nil {
		return err
	}
	fb.EmitABC(VM.OpJoinHTProbeInit, st.probeSlot, st.htSlot, keys)

	loop := fb.AllocLabel()
	done := fb.AllocLabel()
	fb.BindLabel(loop)
	fb.EmitLoopStep(VM.OpJoinHTProbeNext, st.probeSlot, done)

	out := make([]int32, 0, st.buildWidth+len(row))
	for i := 0; i < st.buildWidth; i++ {
		r := fb.AllocReg()
		fb.EmitABC(VM.OpJoinHTProbeCol, r, st.probeSlot, int32(i))
		out = append(out, r)
	}
	out = append(out, row...)

	if err := t.next(fb, out); err != nil {
		return err
	}
	fb.EmitJump(loop)
	fb.BindLabel(done)
	fb.EmitA(VM.OpJoinHTProbeClose, st.probeSlot)
	return nil
}

// nestLoopTranslator joins without a breaker: both children share the
// pipeline. The outer child drives the loop; per outer row the inner
// subtree's produce loop runs inline, re-opening its iterators.
type nestLoopTranslator struct {
	translatorBase
	join      *PL.NestLoopJoin
	outerRow  []int32
	innerPipe *Pipeline
}

func buildNestLoopJoin(c *Context, n PL.Node, cur *Pipeline) error {
	j := n.(*PL.NestLoopJoin)
	t := &nestLoopTranslator{translatorBase: translatorBase{ctx: c, node: n}, join: j}
	cur.Add(t)
	c.register(t)

	// The inner subtree compiles into a private chain sharing the outer
	// pipeline's function; it is not registered in the pipeline DAG.
	t.innerPipe = newPipeline(cur.id)
	sink := &nestLoopInnerSink{translatorBase: translatorBase{ctx: c, node: n}, outer: t}
	t.innerPipe.Add(sink)
	c.register(sink)
	if err := c.buildNode(j.Inner, t.innerPipe); err != nil {
		return err
	}
	// Breakers under the inner side hang their build pipelines off the
	// private chain; the enclosing pipeline inherits those edges so the
	// builds are scheduled before the fused loop first drains them.
	for _, dep := range t.innerPipe.deps {
		cur.DependOn(dep)
	}

	return c.buildNode(j.Outer, cur)
}

// ParallelOK: the inner chain reuses its iterator slots per outer row.
func (t *nestLoopTranslator) ParallelOK() bool { return false }

func (t *nestLoopTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	// Stash the outer row, then unroll the inner loop beneath it.
	t.outerRow = row
	src, err := t.innerPipe.Source()
	if err != nil {
		return err
	}
	return src.Produce(fb)
}

// nestLoopInnerSink is the root of the inner chain: it sees each inner
// row, concatenates the stashed outer row, applies the join predicate,
// and forwards matches to the join's consumer.
type nestLoopInnerSink struct {
	translatorBase
	outer *nestLoopTranslator
}

func (t *nestLoopInnerSink) Consume(fb *VM.FunctionBuilder, row []int32) error {
	j := t.outer
	out := make([]int32, 0, len(j.outerRow)+len(row))
	out = append(out, j.outerRow...)
	out = append(out, row...)

	if j.join.Predicate != nil {
		cond, err := compileExpr(fb, j.join.Predicate, out, j.join.Schema())
		if err != nil {
			return err
		}
		skip := fb.AllocLabel()
		fb.EmitBranch(VM.OpJumpIfFalse, cond, skip)
		if err := j.next(fb, out); err != nil {
			return err
		}
		fb.BindLabel(skip)
		return nil
	}
	return j.next(fb, out)
}
