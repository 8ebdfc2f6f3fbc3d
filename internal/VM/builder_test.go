package VM

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddConstInterning(t *testing.T) {
	pb := NewProgramBuilder("t")
	a := pb.AddConst(Int(42))
	b := pb.AddConst(Int(42))
	c := pb.AddConst(Str("42"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestDeclareSlot(t *testing.T) {
	pb := NewProgramBuilder("t")
	require.Equal(t, int32(0), pb.DeclareSlot("x", SlotScalar))
	require.Equal(t, int32(1), pb.DeclareSlot("y", SlotScalar))
	require.Equal(t, 2, pb.NumSlots())
}

func TestForwardLabelFixup(t *testing.T) {
	pb := NewProgramBuilder("t")
	fb := pb.NewFunction("f", RolePipeline)
	r := fb.AllocReg()
	fb.EmitAB(OpLoadImm, r, 1)
	done := fb.AllocLabel()
	fb.EmitBranch(OpJumpIfTrue, r, done)
	fb.EmitAB(OpLoadImm, r, 2)
	fb.BindLabel(done)
	fb.Emit(OpReturn)
	id, err := fb.Finish()
	require.NoError(t, err)

	fn := pb.funcs[id]
	require.Equal(t, int32(3), fn.Code[1].B) // branch patched to the bound PC
}

func TestBackwardLabelResolvedImmediately(t *testing.T) {
	pb := NewProgramBuilder("t")
	fb := pb.NewFunction("f", RolePipeline)
	loop := fb.AllocLabel()
	fb.BindLabel(loop)
	fb.Emit(OpNop)
	fb.EmitJump(loop)
	_, err := fb.Finish()
	require.NoError(t, err)
	require.Equal(t, int32(0), pb.funcs[0].Code[1].A)
}

func TestFinishRejectsUnresolvedLabel(t *testing.T) {
	pb := NewProgramBuilder("t")
	fb := pb.NewFunction("f", RolePipeline)
	dangling := fb.AllocLabel()
	fb.EmitJump(dangling)
	_, err := fb.Finish()
	require.Error(t, err)
}

func TestBuildRequiresSpecialFunctions(t *testing.T) {
	pb := NewProgramBuilder("t")
	fb := pb.NewFunction("p", RolePipeline)
	fb.Emit(OpReturn)
	_, err := fb.Finish()
	require.NoError(t, err)

	_, err = pb.Build()
	require.Error(t, err)
}

func TestBuildRegistersRoles(t *testing.T) {
	pb := NewProgramBuilder("t")
	mk := func(name string, role FuncRole) FunctionID {
		fb := pb.NewFunction(name, role)
		fb.Emit(OpReturn)
		id, err := fb.Finish()
		require.NoError(t, err)
		return id
	}
	initID := mk("init", RoleInit)
	p0 := mk("p0", RolePipeline)
	p1 := mk("p1", RolePipeline)
	mk("teardown", RoleTeardown)
	mainID := mk("main", RoleMain)

	prog, err := pb.Build()
	require.NoError(t, err)
	require.Equal(t, initID, prog.InitID)
	require.Equal(t, mainID, prog.MainID)
	require.Equal(t, []FunctionID{p0, p1}, prog.Pipelines)
}

func TestAllocRegsContiguous(t *testing.T) {
	pb := NewProgramBuilder("t")
	fb := pb.NewFunction("f", RolePipeline)
	r0 := fb.AllocReg()
	blk := fb.AllocRegs(3)
	r4 := fb.AllocReg()
	require.Equal(t, int32(0), r0)
	require.Equal(t, int32(1), blk)
	require.Equal(t, int32(4), r4)
}
