package VM

import "github.com/cockroachdb/errors"

// ProgramBuilder accumulates functions, constants, and state slots for one
// program. Constants are interned across functions.
type ProgramBuilder struct {
	queryID string
	funcs   []Function
	consts  []Value
	slots   []SlotDecl

	pipelines  []FunctionID
	initID     FunctionID
	teardownID FunctionID
	mainID     FunctionID
	outputCols []string
}

// NewProgramBuilder creates an empty builder for the given query ID.
func NewProgramBuilder(queryID string) *ProgramBuilder {
	return &ProgramBuilder{queryID: queryID, initID: -1, teardownID: -1, mainID: -1}
}

// AddConst interns v in the constant pool and returns its index.
func (pb *ProgramBuilder) AddConst(v Value) int32 {
	for i, c := range pb.consts {
		if c.T == v.T && c.N == v.N && c.S == v.S {
			return int32(i)
		}
	}
	pb.consts = append(pb.consts, v)
	return int32(len(pb.consts) - 1)
}

// DeclareSlot appends a field to the global state record and returns its
// index. Fields are never removed.
func (pb *ProgramBuilder) DeclareSlot(name string, kind SlotKind) int32 {
	pb.slots = append(pb.slots, SlotDecl{Name: name, Kind: kind})
	return int32(len(pb.slots) - 1)
}

// NumSlots returns the current state-record width.
func (pb *ProgramBuilder) NumSlots() int { return len(pb.slots) }

// SetOutputCols records the result column names.
func (pb *ProgramBuilder) SetOutputCols(names []string) { pb.outputCols = names }

// NewFunction opens a FunctionBuilder; the function is added to the
// program when Finish is called.
func (pb *ProgramBuilder) NewFunction(name string, role FuncRole) *FunctionBuilder {
	return &FunctionBuilder{prog: pb, name: name, role: role}
}

// Build finalises the program.
func (pb *ProgramBuilder) Build() (*Program, error) {
	if pb.mainID < 0 || pb.initID < 0 || pb.teardownID < 0 {
		return nil, errors.AssertionFailedf("program %s missing init/teardown/main function", pb.queryID)
	}
	return &Program{
		QueryID:    pb.queryID,
		Funcs:      pb.funcs,
		Consts:     pb.consts,
		Slots:      pb.slots,
		Pipelines:  pb.pipelines,
		InitID:     pb.initID,
		TeardownID: pb.teardownID,
		MainID:     pb.mainID,
		OutputCols: pb.outputCols,
	}, nil
}

// FunctionBuilder builds one function incrementally: register allocation,
// label allocation, and forward-reference fixups.
type FunctionBuilder struct {
	prog    *ProgramBuilder
	name    string
	role    FuncRole
	instrs  []Instr
	numRegs int
	labels  []int // label index -> resolved PC (-1 = unresolved)
	fixups  []fixup
	parallel bool
}

type fixup struct {
	pc    int // instruction whose jump field needs patching
	label int
	field uint8 // 0 = A, 1 = B
}

// Name returns the function's generated name.
func (fb *FunctionBuilder) Name() string { return fb.name }

// SetParallel marks the function as partition-parallel.
func (fb *FunctionBuilder) SetParallel(p bool) { fb.parallel = p }

// AllocReg allocates the next register and returns its index.
func (fb *FunctionBuilder) AllocReg() int32 {
	r := int32(fb.numRegs)
	fb.numRegs++
	return r
}

// AllocRegs allocates n contiguous registers and returns the first index.
func (fb *FunctionBuilder) AllocRegs(n int) int32 {
	r := int32(fb.numRegs)
	fb.numRegs += n
	return r
}

// AddConst interns a constant in the program's shared pool.
func (fb *FunctionBuilder) AddConst(v Value) int32 { return fb.prog.AddConst(v) }

// AllocLabel allocates a new, unresolved label.
func (fb *FunctionBuilder) AllocLabel() int {
	fb.labels = append(fb.labels, -1)
	return len(fb.labels) - 1
}

// BindLabel resolves a label to the current PC and patches pending
// forward references.
func (fb *FunctionBuilder) BindLabel(label int) {
	fb.labels[label] = len(fb.instrs)
	for _, f := range fb.fixups {
		if f.label != label {
			continue
		}
		if f.field == 0 {
			fb.instrs[f.pc].A = int32(fb.labels[label])
		} else {
			fb.instrs[f.pc].B = int32(fb.labels[label])
		}
	}
}

// PC returns the index of the next instruction to be emitted.
func (fb *FunctionBuilder) PC() int { return len(fb.instrs) }

// Emit appends an instruction with no operands.
func (fb *FunctionBuilder) Emit(op OpCode) int {
	fb.instrs = append(fb.instrs, NewInstr(op))
	return len(fb.instrs) - 1
}

// EmitA appends an instruction with the A operand.
func (fb *FunctionBuilder) EmitA(op OpCode, a int32) int {
	fb.instrs = append(fb.instrs, NewInstrA(op, a))
	return len(fb.instrs) - 1
}

// EmitAB appends an instruction with the A and B operands.
func (fb *FunctionBuilder) EmitAB(op OpCode, a, b int32) int {
	fb.instrs = append(fb.instrs, NewInstrAB(op, a, b))
	return len(fb.instrs) - 1
}

// EmitABC appends an instruction with all three operands.
func (fb *FunctionBuilder) EmitABC(op OpCode, a, b, c int32) int {
	fb.instrs = append(fb.instrs, NewInstrABC(op, a, b, c))
	return len(fb.instrs) - 1
}

// EmitJump appends an unconditional jump to label.
func (fb *FunctionBuilder) EmitJump(label int) int {
	pc := len(fb.instrs)
	fb.instrs = append(fb.instrs, NewInstr(OpJump))
	fb.patchOrDefer(pc, label, 0)
	return pc
}

// EmitBranch appends a conditional jump (OpJumpIfTrue/OpJumpIfFalse) on
// cond to label.
func (fb *FunctionBuilder) EmitBranch(op OpCode, cond int32, label int) int {
	pc := len(fb.instrs)
	fb.instrs = append(fb.instrs, NewInstrA(op, cond))
	fb.patchOrDefer(pc, label, 1)
	return pc
}

// EmitLoopStep appends a slot-iterator step instruction (TableIterNext,
// IndexIterNext, AggHTIterNext, SorterIterNext, JoinHTProbeNext) whose B
// field jumps to label when the iterator is exhausted.
func (fb *FunctionBuilder) EmitLoopStep(op OpCode, slot int32, doneLabel int) int {
	pc := len(fb.instrs)
	fb.instrs = append(fb.instrs, NewInstrA(op, slot))
	fb.patchOrDefer(pc, doneLabel, 1)
	return pc
}

func (fb *FunctionBuilder) patchOrDefer(pc, label int, field uint8) {
	if fb.labels[label] >= 0 {
		if field == 0 {
			fb.instrs[pc].A = int32(fb.labels[label])
		} else {
			fb.instrs[pc].B = int32(fb.labels[label])
		}
		return
	}
	fb.fixups = append(fb.fixups, fixup{pc: pc, label: label, field: field})
}

// Finish seals the function, registers it with the program, and returns
// its id. Unresolved labels are an internal invariant break.
func (fb *FunctionBuilder) Finish() (FunctionID, error) {
	for i, pc := range fb.labels {
		if pc < 0 {
			return -1, errors.AssertionFailedf("function %s: unresolved label %d", fb.name, i)
		}
	}
	pb := fb.prog
	id := FunctionID(len(pb.funcs))
	pb.funcs = append(pb.funcs, Function{
		Name:     fb.name,
		Role:     fb.role,
		NumRegs:  fb.numRegs,
		Code:     fb.instrs,
		Parallel: fb.parallel,
	})
	switch fb.role {
	case RoleInit:
		pb.initID = id
	case RoleTeardown:
		pb.teardownID = id
	case RoleMain:
		pb.mainID = id
	case RolePipeline:
		pb.pipelines = append(pb.pipelines, id)
	}
	return id, nil
}
