package VM

import (
	"github.com/cockroachdb/errors"
)

// Verify statically checks every function of prog against the opcode
// catalog before the program is allowed to run: operand shapes, jump
// targets, terminal instructions, and definite register assignment.
func Verify(prog *Program) error {
	for i := range prog.Funcs {
		if err := verifyFunc(prog, &prog.Funcs[i]); err != nil {
			return err
		}
	}
	return nil
}

func verifyFunc(prog *Program, fn *Function) error {
	if len(fn.Code) == 0 {
		return errors.Newf("verify %s: empty function", fn.Name)
	}
	for pc := range fn.Code {
		if err := verifyInstr(prog, fn, pc); err != nil {
			return err
		}
	}
	// No fall-through: the last instruction must be terminal, and a
	// terminal instruction is exactly Return or an unconditional Jump.
	last := fn.Code[len(fn.Code)-1].OpCode()
	if !opInfos[last].Terminal {
		return errors.Newf("verify %s: function ends with non-terminal %s", fn.Name, last)
	}
	return verifyAssignment(fn)
}

func operandField(in Instr, i int) int32 {
	switch i {
	case 0:
		return in.A
	case 1:
		return in.B
	}
	return in.C
}

func verifyInstr(prog *Program, fn *Function, pc int) error {
	in := fn.Code[pc]
	op := in.OpCode()
	if op >= NumOpCodes {
		return errors.Newf("verify %s: invalid opcode %d at pc=%d", fn.Name, uint16(op), pc)
	}
	info := &opInfos[op]
	for i, kind := range info.Operands {
		v := operandField(in, i)
		switch kind {
		case OperandRegDst, OperandRegSrc:
			if v < 0 || int(v) >= fn.NumRegs {
				return errors.Newf("verify %s: %s at pc=%d: register %d out of range [0,%d)",
					fn.Name, op, pc, v, fn.NumRegs)
			}
		case OperandJump:
			if v < 0 || int(v) >= len(fn.Code) {
				return errors.Newf("verify %s: %s at pc=%d: jump target %d out of range [0,%d)",
					fn.Name, op, pc, v, len(fn.Code))
			}
		case OperandConst:
			if v < 0 || int(v) >= len(prog.Consts) {
				return errors.Newf("verify %s: %s at pc=%d: constant %d out of range [0,%d)",
					fn.Name, op, pc, v, len(prog.Consts))
			}
		case OperandFunc:
			if v < 0 || int(v) >= len(prog.Funcs) {
				return errors.Newf("verify %s: %s at pc=%d: function %d out of range [0,%d)",
					fn.Name, op, pc, v, len(prog.Funcs))
			}
		case OperandSlot:
			if v < 0 || int(v) >= len(prog.Slots) {
				return errors.Newf("verify %s: %s at pc=%d: state slot %d out of range [0,%d)",
					fn.Name, op, pc, v, len(prog.Slots))
			}
		case OperandCount:
			if v < 0 {
				return errors.Newf("verify %s: %s at pc=%d: negative count %d", fn.Name, op, pc, v)
			}
		}
	}
	return nil
}

// successors returns the possible next PCs of the instruction at pc.
func successors(fn *Function, pc int) []int {
	in := fn.Code[pc]
	op := in.OpCode()
	switch op {
	case OpReturn:
		return nil
	case OpJump:
		return []int{int(in.A)}
	}
	next := []int{pc + 1}
	info := &opInfos[op]
	for i, kind := range info.Operands {
		if kind == OperandJump {
			next = append(next, int(operandField(in, i)))
		}
	}
	return next
}

// verifyAssignment runs a definite-assignment dataflow over the CFG:
// every register read must be preceded by a write on all paths from
// entry. Reads and writes are per the operand catalog; a row-start
// operand is checked at its first register.
func verifyAssignment(fn *Function) error {
	n := len(fn.Code)
	// in[pc] = set of definitely-assigned registers on entry to pc.
	// Start fully assigned everywhere except the entry, then intersect.
	assigned := make([][]bool, n)
	visited := make([]bool, n)
	work := []int{0}
	assigned[0] = make([]bool, fn.NumRegs)
	visited[0] = true

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		in := fn.Code[pc]
		op := in.OpCode()
		info := &opInfos[op]

		for i, kind := range info.Operands {
			if kind != OperandRegSrc {
				continue
			}
			r := operandField(in, i)
			if !assigned[pc][r] {
				return errors.Newf("verify %s: %s at pc=%d reads register %d before any write",
					fn.Name, op, pc, r)
			}
		}

		out := assigned[pc]
		var defReg int32 = -1
		for i, kind := range info.Operands {
			if kind == OperandRegDst {
				defReg = operandField(in, i)
			}
		}
		if defReg >= 0 && !out[defReg] {
			out = append([]bool(nil), out...)
			out[defReg] = true
		}

		for _, succ := range successors(fn, pc) {
			if !visited[succ] {
				visited[succ] = true
				assigned[succ] = append([]bool(nil), out...)
				work = append(work, succ)
				continue
			}
			// Merge: intersect; requeue on change.
			changed := false
			for r := 0; r < fn.NumRegs; r++ {
				if assigned[succ][r] && !out[r] {
					assigned[succ][r] = false
					changed = true
				}
			}
			if changed {
				work = append(work, succ)
			}
		}
	}
	return nil
}
