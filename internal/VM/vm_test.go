package VM

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// buildTestProgram assembles a runnable program around one pipeline body.
// Init and teardown bodies are optional.
func buildTestProgram(t *testing.T, slots []SlotDecl, pipeline, teardown func(fb *FunctionBuilder)) *Program {
	t.Helper()
	pb := NewProgramBuilder("vmtest")
	for _, s := range slots {
		pb.DeclareSlot(s.Name, s.Kind)
	}

	fb := pb.NewFunction("init", RoleInit)
	fb.Emit(OpReturn)
	initID, err := fb.Finish()
	require.NoError(t, err)

	fb = pb.NewFunction("pipe", RolePipeline)
	pipeline(fb)
	fb.Emit(OpReturn)
	pipeID, err := fb.Finish()
	require.NoError(t, err)

	fb = pb.NewFunction("teardown", RoleTeardown)
	if teardown != nil {
		teardown(fb)
	}
	fb.Emit(OpReturn)
	_, err = fb.Finish()
	require.NoError(t, err)

	fb = pb.NewFunction("main", RoleMain)
	fb.EmitA(OpCall, int32(initID))
	fb.EmitA(OpCall, int32(pipeID))
	fb.Emit(OpReturn)
	_, err = fb.Finish()
	require.NoError(t, err)

	prog, err := pb.Build()
	require.NoError(t, err)
	require.NoError(t, Verify(prog))
	return prog
}

func runCollect(t *testing.T, prog *Program, workers int) ([][]Value, Status, error) {
	t.Helper()
	var rows [][]Value
	ec := &ExecContext{
		Sink:    func(row []Value) error { rows = append(rows, row); return nil },
		Arena:   NewArena(64),
		Workers: workers,
	}
	st, err := Run(context.Background(), prog, ec)
	return rows, st, err
}

func TestRunArithmetic(t *testing.T) {
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		a := fb.AllocReg()
		b := fb.AllocReg()
		out := fb.AllocReg()
		fb.EmitAB(OpLoadImm, a, 6)
		fb.EmitAB(OpLoadImm, b, 7)
		fb.EmitABC(OpMulInt, out, a, b)
		fb.EmitAB(OpResultRow, out, 1)
	}, nil)

	rows, st, err := runCollect(t, prog, 1)
	require.NoError(t, err)
	require.Equal(t, [][]Value{{Int(42)}}, rows)
	require.Equal(t, int64(1), st.RowsEmitted)
}

func TestRunLoopSum(t *testing.T) {
	// sum = 5+4+3+2+1 via a countdown loop.
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		n := fb.AllocReg()
		one := fb.AllocReg()
		sum := fb.AllocReg()
		fb.EmitAB(OpLoadImm, n, 5)
		fb.EmitAB(OpLoadImm, one, 1)
		fb.EmitAB(OpLoadImm, sum, 0)
		loop := fb.AllocLabel()
		fb.BindLabel(loop)
		fb.EmitABC(OpAddInt, sum, sum, n)
		fb.EmitABC(OpSubInt, n, n, one)
		fb.EmitBranch(OpJumpIfTrue, n, loop)
		fb.EmitAB(OpResultRow, sum, 1)
	}, nil)

	rows, _, err := runCollect(t, prog, 1)
	require.NoError(t, err)
	require.Equal(t, [][]Value{{Int(15)}}, rows)
}

func TestRunBranchFalse(t *testing.T) {
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		cond := fb.AllocReg()
		out := fb.AllocReg()
		fb.EmitAB(OpLoadImm, cond, 0)
		fb.EmitAB(OpLoadImm, out, 1)
		skip := fb.AllocLabel()
		fb.EmitBranch(OpJumpIfFalse, cond, skip)
		fb.EmitAB(OpLoadImm, out, 2)
		fb.BindLabel(skip)
		fb.EmitAB(OpResultRow, out, 1)
	}, nil)

	rows, _, err := runCollect(t, prog, 1)
	require.NoError(t, err)
	require.Equal(t, [][]Value{{Int(1)}}, rows)
}

func TestRunDivByZeroIsRuntimeFault(t *testing.T) {
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		a := fb.AllocReg()
		b := fb.AllocReg()
		out := fb.AllocReg()
		fb.EmitAB(OpLoadImm, a, 1)
		fb.EmitAB(OpLoadImm, b, 0)
		fb.EmitABC(OpDivInt, out, a, b)
		fb.EmitAB(OpResultRow, out, 1)
	}, nil)

	_, _, err := runCollect(t, prog, 1)
	require.Error(t, err)
	require.True(t, IsRuntimeFault(err))
	require.True(t, errors.Is(err, errDivByZero))

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "pipe", re.Fn)
	require.Equal(t, OpDivInt, re.Op)
	require.Equal(t, 2, re.PC)
}

func TestRunNullOperandFaultOnPrimitiveOp(t *testing.T) {
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		a := fb.AllocReg()
		out := fb.AllocReg()
		fb.EmitAB(OpLoadConst, a, fb.AddConst(Null()))
		fb.EmitABC(OpAddInt, out, a, a)
		fb.EmitAB(OpResultRow, out, 1)
	}, nil)

	_, _, err := runCollect(t, prog, 1)
	require.True(t, errors.Is(err, errNullOperand))
}

func TestRunSqlOpsPropagateNull(t *testing.T) {
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		a := fb.AllocReg()
		b := fb.AllocReg()
		out := fb.AllocReg()
		fb.EmitAB(OpLoadConst, a, fb.AddConst(Null()))
		fb.EmitAB(OpLoadImm, b, 3)
		fb.EmitABC(OpSqlDiv, out, a, b)
		fb.EmitAB(OpResultRow, out, 1)
	}, nil)

	rows, _, err := runCollect(t, prog, 1)
	require.NoError(t, err)
	require.True(t, rows[0][0].IsNull())
}

func TestRunStateSlotRoundTrip(t *testing.T) {
	slots := []SlotDecl{{Name: "counter", Kind: SlotScalar}}
	prog := buildTestProgram(t, slots, func(fb *FunctionBuilder) {
		r := fb.AllocReg()
		out := fb.AllocReg()
		fb.EmitAB(OpLoadImm, r, 11)
		fb.EmitAB(OpStateStore, 0, r)
		fb.EmitAB(OpStateLoad, out, 0)
		fb.EmitAB(OpResultRow, out, 1)
	}, nil)

	rows, _, err := runCollect(t, prog, 1)
	require.NoError(t, err)
	require.Equal(t, [][]Value{{Int(11)}}, rows)
}

func TestTeardownRunsOnceOnSuccess(t *testing.T) {
	marker := func(fb *FunctionBuilder) {
		r := fb.AllocReg()
		fb.EmitAB(OpLoadImm, r, -1)
		fb.EmitAB(OpResultRow, r, 1)
	}
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		r := fb.AllocReg()
		fb.EmitAB(OpLoadImm, r, 1)
		fb.EmitAB(OpResultRow, r, 1)
	}, marker)

	rows, _, err := runCollect(t, prog, 1)
	require.NoError(t, err)
	require.Equal(t, [][]Value{{Int(1)}, {Int(-1)}}, rows)
}

func TestTeardownRunsOnceOnPipelineFailure(t *testing.T) {
	marker := func(fb *FunctionBuilder) {
		r := fb.AllocReg()
		fb.EmitAB(OpLoadImm, r, -1)
		fb.EmitAB(OpResultRow, r, 1)
	}
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		a := fb.AllocReg()
		b := fb.AllocReg()
		out := fb.AllocReg()
		fb.EmitAB(OpLoadImm, a, 1)
		fb.EmitAB(OpLoadImm, b, 0)
		fb.EmitABC(OpRemInt, out, a, b)
		fb.EmitAB(OpResultRow, out, 1)
	}, marker)

	rows, _, err := runCollect(t, prog, 1)
	require.Error(t, err)
	require.Equal(t, [][]Value{{Int(-1)}}, rows)

	// The error from the pipeline wins over teardown bookkeeping.
	require.True(t, IsRuntimeFault(err))
}

func TestParallelPipelineFansOutPerWorker(t *testing.T) {
	pb := NewProgramBuilder("vmtest")
	fb := pb.NewFunction("init", RoleInit)
	fb.Emit(OpReturn)
	initID, err := fb.Finish()
	require.NoError(t, err)

	fb = pb.NewFunction("pipe", RolePipeline)
	fb.SetParallel(true)
	r := fb.AllocReg()
	fb.EmitAB(OpLoadImm, r, 1)
	fb.EmitAB(OpResultRow, r, 1)
	fb.Emit(OpReturn)
	pipeID, err := fb.Finish()
	require.NoError(t, err)

	fb = pb.NewFunction("teardown", RoleTeardown)
	fb.Emit(OpReturn)
	_, err = fb.Finish()
	require.NoError(t, err)

	fb = pb.NewFunction("main", RoleMain)
	fb.EmitA(OpCall, int32(initID))
	fb.EmitA(OpCall, int32(pipeID))
	fb.Emit(OpReturn)
	_, err = fb.Finish()
	require.NoError(t, err)

	prog, err := pb.Build()
	require.NoError(t, err)
	require.NoError(t, Verify(prog))

	rows, st, err := runCollect(t, prog, 4)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, int64(4), st.RowsEmitted)
}

func TestResultRowsAllocatedFromArena(t *testing.T) {
	// Countdown emits three rows; every handed-off copy is carved from
	// the arena and earlier copies stay intact as later ones arrive.
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		n := fb.AllocReg()
		one := fb.AllocReg()
		fb.EmitAB(OpLoadImm, n, 3)
		fb.EmitAB(OpLoadImm, one, 1)
		loop := fb.AllocLabel()
		fb.BindLabel(loop)
		fb.EmitAB(OpResultRow, n, 1)
		fb.EmitABC(OpSubInt, n, n, one)
		fb.EmitBranch(OpJumpIfTrue, n, loop)
	}, nil)

	arena := NewArena(8)
	var rows [][]Value
	ec := &ExecContext{
		Sink:  func(row []Value) error { rows = append(rows, row); return nil },
		Arena: arena,
	}
	_, err := Run(context.Background(), prog, ec)
	require.NoError(t, err)
	require.Equal(t, [][]Value{{Int(3)}, {Int(2)}, {Int(1)}}, rows)
	require.Equal(t, 3, arena.off)
}

func TestRunCancelledContext(t *testing.T) {
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		loop := fb.AllocLabel()
		fb.BindLabel(loop)
		fb.Emit(OpNop)
		fb.EmitJump(loop)
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, prog, &ExecContext{Arena: NewArena(16)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuiltinOpcodes(t *testing.T) {
	prog := buildTestProgram(t, nil, func(fb *FunctionBuilder) {
		s := fb.AllocReg()
		up := fb.AllocReg()
		n := fb.AllocReg()
		fb.EmitAB(OpLoadConst, s, fb.AddConst(Str("abc")))
		fb.EmitAB(OpUpper, up, s)
		fb.EmitAB(OpLength, n, s)
		block := fb.AllocRegs(2)
		fb.EmitAB(OpMove, block, up)
		fb.EmitAB(OpMove, block+1, n)
		fb.EmitAB(OpResultRow, block, 2)
	}, nil)

	rows, _, err := runCollect(t, prog, 1)
	require.NoError(t, err)
	require.Equal(t, [][]Value{{Str("ABC"), Int(3)}}, rows)
}
