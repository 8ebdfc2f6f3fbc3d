package CC

import (
	"fmt"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/VM"
)

// projectionTranslator rewrites each child row into its output
// expressions; pure pass-through, no pipeline break.
type projectionTranslator struct {
	translatorBase
	proj *PL.Projection
}

func buildProjection(c *Context, n PL.Node, cur *Pipeline) error {
	p := n.(*PL.Projection)
	t := &projectionTranslator{translatorBase: translatorBase{ctx: c, node: n}, proj: p}
	cur.Add(t)
	c.register(t)
	return c.buildNode(p.Input, cur)
}

func (t *projectionTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	out := make([]int32, len(t.proj.Exprs))
	for i, e := range t.proj.Exprs {
		r, err := compileExpr(fb, e, row, t.proj.Input.Schema())
		if err != nil {
			return err
		}
		out[i] = r
	}
	return t.next(fb, out)
}

// limitTranslator skips Offset rows and passes through at most Count
// afterwards, using a scalar state slot as the row counter.
type limitTranslator struct {
	translatorBase
	limit *PL.Limit
	slot  int32
}

func buildLimit(c *Context, n PL.Node, cur *Pipeline) error {
	l := n.(*PL.Limit)
	t := &limitTranslator{translatorBase: translatorBase{ctx: c, node: n}, limit: l}
	cur.Add(t)
	c.register(t)

	// Order-by directly below a limit sorts top-K only: the sorter can
	// drop everything past Offset+Count at its barrier.
	if ob, ok := l.Input.(*PL.OrderBy); ok && l.Count > 0 {
		return c.buildOrderByTopK(ob, cur, l.Offset+l.Count)
	}
	return c.buildNode(l.Input, cur)
}

// ParallelOK: the counter makes row arrival order observable.
func (t *limitTranslator) ParallelOK() bool { return false }

func (t *limitTranslator) DeclareState(pb *VM.ProgramBuilder) error {
	t.slot = pb.DeclareSlot(fmt.Sprintf("limit_p%d_%d", t.pipe.id, t.idx), VM.SlotScalar)
	return nil
}

func (t *limitTranslator) EmitInit(fb *VM.FunctionBuilder) error {
	zero := fb.AllocReg()
	fb.EmitAB(VM.OpLoadImm, zero, 0)
	fb.EmitAB(VM.OpStateStore, t.slot, zero)
	return nil
}

func (t *limitTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	seen := fb.AllocReg()
	fb.EmitAB(VM.OpStateLoad, seen, t.slot)
	one := fb.AllocReg()
	fb.EmitAB(VM.OpLoadImm, one, 1)
	fb.EmitABC(VM.OpAddInt, seen, seen, one)
	fb.EmitAB(VM.OpStateStore, t.slot, seen)

	skip := fb.AllocLabel()
	if t.limit.Offset > 0 {
		off := fb.AllocReg()
		fb.EmitAB(VM.OpLoadImm, off, int32(t.limit.Offset))
		cond := fb.AllocReg()
		fb.EmitABC(VM.OpLeInt, cond, seen, off)
		fb.EmitBranch(VM.OpJumpIfTrue, cond, skip)
	}
	if t.limit.Count > 0 {
		lim := fb.AllocReg()
		fb.EmitAB(VM.OpLoadImm, lim, int32(t.limit.Offset+t.limit.Count))
		cond := fb.AllocReg()
		fb.EmitABC(VM.OpGtInt, cond, seen, lim)
		fb.EmitBranch(VM.OpJumpIfTrue, cond, skip)
	}

	if err := t.next(fb, row); err != nil {
		return err
	}
	fb.BindLabel(skip)
	return nil
}

// outputTranslator sits at the root of the final pipeline and emits
// every row it sees to the result sink.
type outputTranslator struct {
	translatorBase
}

func newOutputTranslator(c *Context, n PL.Node) *outputTranslator {
	t := &outputTranslator{translatorBase: translatorBase{ctx: c, node: n}}
	c.register(t)
	return t
}

// ParallelOK: result order must be deterministic.
func (t *outputTranslator) ParallelOK() bool { return false }

func (t *outputTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	block := materializeRow(fb, row)
	fb.EmitAB(VM.OpResultRow, block, int32(len(row)))
	return nil
}
