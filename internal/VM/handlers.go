package VM

import (
	"math"

	"github.com/cockroachdb/errors"
)

// handlers is the dispatch table: populated once in init, read-only
// afterwards. Every opcode in the catalog has exactly one handler
// installed here. Population happens in init rather than in the var
// initializer because handler bodies reach back into the table (Call
// re-enters the dispatch loop), which a variable initializer may not do.
var handlers [NumOpCodes]handler

func init() {
	installCoreHandlers(&handlers)
	installSqlHandlers(&handlers)
	installIterHandlers(&handlers)
}

func installCoreHandlers(t *[NumOpCodes]handler) {
	t[OpNop] = bcOpNop

	t[OpAddInt] = bcOpAddInt
	t[OpSubInt] = bcOpSubInt
	t[OpMulInt] = bcOpMulInt
	t[OpDivInt] = bcOpDivInt
	t[OpRemInt] = bcOpRemInt
	t[OpNegInt] = bcOpNegInt
	t[OpBitAndInt] = bcOpBitAndInt
	t[OpBitOrInt] = bcOpBitOrInt
	t[OpBitXorInt] = bcOpBitXorInt
	t[OpBitNotInt] = bcOpBitNotInt

	t[OpAddFloat] = bcOpAddFloat
	t[OpSubFloat] = bcOpSubFloat
	t[OpMulFloat] = bcOpMulFloat
	t[OpDivFloat] = bcOpDivFloat
	t[OpRemFloat] = bcOpRemFloat
	t[OpNegFloat] = bcOpNegFloat

	t[OpEqInt] = bcCmpInt(func(c int) bool { return c == 0 })
	t[OpNeInt] = bcCmpInt(func(c int) bool { return c != 0 })
	t[OpLtInt] = bcCmpInt(func(c int) bool { return c < 0 })
	t[OpLeInt] = bcCmpInt(func(c int) bool { return c <= 0 })
	t[OpGtInt] = bcCmpInt(func(c int) bool { return c > 0 })
	t[OpGeInt] = bcCmpInt(func(c int) bool { return c >= 0 })
	t[OpEqFloat] = bcCmpFloat(func(c int) bool { return c == 0 })
	t[OpNeFloat] = bcCmpFloat(func(c int) bool { return c != 0 })
	t[OpLtFloat] = bcCmpFloat(func(c int) bool { return c < 0 })
	t[OpLeFloat] = bcCmpFloat(func(c int) bool { return c <= 0 })
	t[OpGtFloat] = bcCmpFloat(func(c int) bool { return c > 0 })
	t[OpGeFloat] = bcCmpFloat(func(c int) bool { return c >= 0 })
	t[OpEqStr] = bcCmpStr(func(c int) bool { return c == 0 })
	t[OpNeStr] = bcCmpStr(func(c int) bool { return c != 0 })
	t[OpLtStr] = bcCmpStr(func(c int) bool { return c < 0 })
	t[OpLeStr] = bcCmpStr(func(c int) bool { return c <= 0 })
	t[OpGtStr] = bcCmpStr(func(c int) bool { return c > 0 })
	t[OpGeStr] = bcCmpStr(func(c int) bool { return c >= 0 })

	t[OpNotBool] = bcOpNotBool
	t[OpAndBool] = bcOpAndBool
	t[OpOrBool] = bcOpOrBool

	t[OpJump] = bcOpJump
	t[OpJumpIfTrue] = bcOpJumpIfTrue
	t[OpJumpIfFalse] = bcOpJumpIfFalse
	t[OpCall] = bcOpCall
	t[OpReturn] = bcOpReturn

	t[OpLoadConst] = bcOpLoadConst
	t[OpLoadImm] = bcOpLoadImm
	t[OpMove] = bcOpMove
	t[OpStateLoad] = bcOpStateLoad
	t[OpStateStore] = bcOpStateStore

	t[OpHash] = bcOpHash
	t[OpHashCombine] = bcOpHashCombine

	t[OpResultRow] = bcOpResultRow
	t[OpRowInsert] = bcOpRowInsert
	t[OpRowUpdate] = bcOpRowUpdate
	t[OpRowDelete] = bcOpRowDelete
}

func bcOpNop(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	return pc + 1, nil
}

// intPair reads two int operands, faulting on NULL.
func intPair(fr *frame, in Instr) (int64, int64, error) {
	a, b := fr.regs[in.B], fr.regs[in.C]
	if a.IsNull() || b.IsNull() {
		return 0, 0, errNullOperand
	}
	return a.N, b.N, nil
}

func bcOpAddInt(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := intPair(fr, in)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Int(a + b)
	return pc + 1, nil
}

func bcOpSubInt(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := intPair(fr, in)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Int(a - b)
	return pc + 1, nil
}

func bcOpMulInt(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := intPair(fr, in)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Int(a * b)
	return pc + 1, nil
}

func bcOpDivInt(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := intPair(fr, in)
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, errDivByZero
	}
	fr.regs[in.A] = Int(a / b)
	return pc + 1, nil
}

func bcOpRemInt(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := intPair(fr, in)
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, errDivByZero
	}
	fr.regs[in.A] = Int(a % b)
	return pc + 1, nil
}

func bcOpNegInt(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	v := fr.regs[in.B]
	if v.IsNull() {
		return 0, errNullOperand
	}
	fr.regs[in.A] = Int(-v.N)
	return pc + 1, nil
}

func bcOpBitAndInt(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := intPair(fr, in)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Int(a & b)
	return pc + 1, nil
}

func bcOpBitOrInt(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := intPair(fr, in)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Int(a | b)
	return pc + 1, nil
}

func bcOpBitXorInt(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := intPair(fr, in)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Int(a ^ b)
	return pc + 1, nil
}

func bcOpBitNotInt(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	v := fr.regs[in.B]
	if v.IsNull() {
		return 0, errNullOperand
	}
	fr.regs[in.A] = Int(^v.N)
	return pc + 1, nil
}

func floatPair(fr *frame, in Instr) (float64, float64, error) {
	a, b := fr.regs[in.B], fr.regs[in.C]
	if a.IsNull() || b.IsNull() {
		return 0, 0, errNullOperand
	}
	return a.asFloat(), b.asFloat(), nil
}

func bcOpAddFloat(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := floatPair(fr, in)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Float(a + b)
	return pc + 1, nil
}

func bcOpSubFloat(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := floatPair(fr, in)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Float(a - b)
	return pc + 1, nil
}

func bcOpMulFloat(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := floatPair(fr, in)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Float(a * b)
	return pc + 1, nil
}

func bcOpDivFloat(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := floatPair(fr, in)
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, errDivByZero
	}
	fr.regs[in.A] = Float(a / b)
	return pc + 1, nil
}

func bcOpRemFloat(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	a, b, err := floatPair(fr, in)
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, errDivByZero
	}
	fr.regs[in.A] = Float(math.Mod(a, b))
	return pc + 1, nil
}

func bcOpNegFloat(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	v := fr.regs[in.B]
	if v.IsNull() {
		return 0, errNullOperand
	}
	fr.regs[in.A] = Float(-v.asFloat())
	return pc + 1, nil
}

// bcCmpInt builds a typed integer comparison handler from the keep
// predicate over Compare's result.
func bcCmpInt(keep func(int) bool) handler {
	return func(vm *VM, fr *frame, in Instr, pc int) (int, error) {
		a, b := fr.regs[in.B], fr.regs[in.C]
		if a.IsNull() || b.IsNull() {
			return 0, errNullOperand
		}
		c := 0
		switch {
		case a.N < b.N:
			c = -1
		case a.N > b.N:
			c = 1
		}
		fr.regs[in.A] = Bool(keep(c))
		return pc + 1, nil
	}
}

func bcCmpFloat(keep func(int) bool) handler {
	return func(vm *VM, fr *frame, in Instr, pc int) (int, error) {
		a, b := fr.regs[in.B], fr.regs[in.C]
		if a.IsNull() || b.IsNull() {
			return 0, errNullOperand
		}
		af, bf := a.asFloat(), b.asFloat()
		c := 0
		switch {
		case af < bf:
			c = -1
		case af > bf:
			c = 1
		}
		fr.regs[in.A] = Bool(keep(c))
		return pc + 1, nil
	}
}

func bcCmpStr(keep func(int) bool) handler {
	return func(vm *VM, fr *frame, in Instr, pc int) (int, error) {
		a, b := fr.regs[in.B], fr.regs[in.C]
		if a.IsNull() || b.IsNull() {
			return 0, errNullOperand
		}
		fr.regs[in.A] = Bool(keep(Compare(a, b)))
		return pc + 1, nil
	}
}

func bcOpNotBool(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = Bool(!fr.regs[in.B].Truthy())
	return pc + 1, nil
}

func bcOpAndBool(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = Bool(fr.regs[in.B].Truthy() && fr.regs[in.C].Truthy())
	return pc + 1, nil
}

func bcOpOrBool(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = Bool(fr.regs[in.B].Truthy() || fr.regs[in.C].Truthy())
	return pc + 1, nil
}

func bcOpJump(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	return int(in.A), nil
}

func bcOpJumpIfTrue(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	if fr.regs[in.A].Truthy() {
		return int(in.B), nil
	}
	return pc + 1, nil
}

func bcOpJumpIfFalse(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	if !fr.regs[in.A].Truthy() {
		return int(in.B), nil
	}
	return pc + 1, nil
}

func bcOpCall(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	if err := vm.call(fr.ctx, FunctionID(in.A), 0, 1, nil); err != nil {
		return 0, err
	}
	return pc + 1, nil
}

func bcOpReturn(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	return pcReturn, nil
}

func bcOpLoadConst(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	if in.B < 0 || int(in.B) >= len(vm.prog.Consts) {
		return 0, errors.AssertionFailedf("constant %d out of range [0,%d)", in.B, len(vm.prog.Consts))
	}
	fr.regs[in.A] = vm.prog.Consts[in.B]
	return pc + 1, nil
}

func bcOpLoadImm(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = Int(int64(in.B))
	return pc + 1, nil
}

func bcOpMove(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = fr.regs[in.B]
	return pc + 1, nil
}

func bcOpStateLoad(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slot(fr, in.B)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = s.scalar
	return pc + 1, nil
}

func bcOpStateStore(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		return 0, err
	}
	s.scalar = fr.regs[in.B]
	return pc + 1, nil
}

func bcOpHash(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = Int(int64(Hash(fr.regs[in.B])))
	return pc + 1, nil
}

func bcOpHashCombine(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	h := HashCombine(uint64(fr.regs[in.B].N), uint64(fr.regs[in.C].N))
	fr.regs[in.A] = Int(int64(h))
	return pc + 1, nil
}

func bcOpResultRow(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	start, n := in.A, in.B
	if err := vm.emitRow(fr.regs[start : start+n]); err != nil {
		return 0, err
	}
	return pc + 1, nil
}

func bcOpRowInsert(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	row := fr.regs[in.B : in.B+in.C]
	if _, err := vm.ec.Store.Insert(vm.ec.Txn, in.A, row); err != nil {
		return 0, err
	}
	vm.rowsAffected.Add(1)
	return pc + 1, nil
}

func bcOpRowUpdate(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	width, err := vm.ec.Store.RowWidth(in.A)
	if err != nil {
		return 0, err
	}
	rowID := fr.regs[in.B]
	if rowID.IsNull() {
		return 0, errNullOperand
	}
	row := fr.regs[in.C : in.C+int32(width)]
	ok, err := vm.ec.Store.Update(vm.ec.Txn, in.A, rowID.N, row)
	if err != nil {
		return 0, err
	}
	if ok {
		vm.rowsAffected.Add(1)
	}
	return pc + 1, nil
}

func bcOpRowDelete(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	rowID := fr.regs[in.B]
	if rowID.IsNull() {
		return 0, errNullOperand
	}
	ok, err := vm.ec.Store.Delete(vm.ec.Txn, in.A, rowID.N)
	if err != nil {
		return 0, err
	}
	if ok {
		vm.rowsAffected.Add(1)
	}
	return pc + 1, nil
}
