package VM

import (
	"math"
	"strings"
)

func installSqlHandlers(t *[NumOpCodes]handler) {
	t[OpSqlAdd] = bcOpSqlAdd
	t[OpSqlSub] = bcOpSqlSub
	t[OpSqlMul] = bcOpSqlMul
	t[OpSqlDiv] = bcOpSqlDiv
	t[OpSqlRem] = bcOpSqlRem
	t[OpSqlNeg] = bcOpSqlNeg
	t[OpSqlConcat] = bcOpSqlConcat
	t[OpSqlEq] = bcSqlCmp(func(c int) bool { return c == 0 })
	t[OpSqlNe] = bcSqlCmp(func(c int) bool { return c != 0 })
	t[OpSqlLt] = bcSqlCmp(func(c int) bool { return c < 0 })
	t[OpSqlLe] = bcSqlCmp(func(c int) bool { return c <= 0 })
	t[OpSqlGt] = bcSqlCmp(func(c int) bool { return c > 0 })
	t[OpSqlGe] = bcSqlCmp(func(c int) bool { return c >= 0 })
	t[OpSqlIsNull] = bcOpSqlIsNull
	t[OpSqlIsNotNull] = bcOpSqlIsNotNull

	t[OpAbs] = bcOpAbs
	t[OpSqrt] = bcFloatFn1(math.Sqrt)
	t[OpExp] = bcFloatFn1(math.Exp)
	t[OpLn] = bcFloatFn1(math.Log)
	t[OpLog2] = bcFloatFn1(math.Log2)
	t[OpLog10] = bcFloatFn1(math.Log10)
	t[OpCeil] = bcRoundFn(math.Ceil)
	t[OpFloor] = bcRoundFn(math.Floor)
	t[OpRound] = bcRoundFn(math.Round)
	t[OpPow] = bcFloatFn2(math.Pow)
	t[OpSin] = bcFloatFn1(math.Sin)
	t[OpCos] = bcFloatFn1(math.Cos)
	t[OpTan] = bcFloatFn1(math.Tan)
	t[OpAtan2] = bcFloatFn2(math.Atan2)
	t[OpLower] = bcStrFn1(strings.ToLower)
	t[OpUpper] = bcStrFn1(strings.ToUpper)
	t[OpLength] = bcOpLength
	t[OpTrim] = bcStrFn1(strings.TrimSpace)
	t[OpSubstr] = bcOpSubstr
	t[OpRepeat] = bcOpRepeat
	t[OpReverse] = bcOpReverse
}

func bcOpSqlAdd(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = SqlAdd(fr.regs[in.B], fr.regs[in.C])
	return pc + 1, nil
}

func bcOpSqlSub(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = SqlSub(fr.regs[in.B], fr.regs[in.C])
	return pc + 1, nil
}

func bcOpSqlMul(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = SqlMul(fr.regs[in.B], fr.regs[in.C])
	return pc + 1, nil
}

func bcOpSqlDiv(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	v, err := SqlDiv(fr.regs[in.B], fr.regs[in.C])
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = v
	return pc + 1, nil
}

func bcOpSqlRem(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	v, err := SqlRem(fr.regs[in.B], fr.regs[in.C])
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = v
	return pc + 1, nil
}

func bcOpSqlNeg(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = SqlNeg(fr.regs[in.B])
	return pc + 1, nil
}

func bcOpSqlConcat(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = SqlConcat(fr.regs[in.B], fr.regs[in.C])
	return pc + 1, nil
}

func bcSqlCmp(keep func(int) bool) handler {
	return func(vm *VM, fr *frame, in Instr, pc int) (int, error) {
		fr.regs[in.A] = SqlCmp(fr.regs[in.B], fr.regs[in.C], keep)
		return pc + 1, nil
	}
}

func bcOpSqlIsNull(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = Bool(fr.regs[in.B].IsNull())
	return pc + 1, nil
}

func bcOpSqlIsNotNull(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	fr.regs[in.A] = Bool(!fr.regs[in.B].IsNull())
	return pc + 1, nil
}

// Scalar builtins are null-aware: NULL in, NULL out.

func bcOpAbs(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	v := fr.regs[in.B]
	switch v.T {
	case TagNull:
		fr.regs[in.A] = Null()
	case TagFloat:
		fr.regs[in.A] = Float(math.Abs(v.Float()))
	default:
		n := v.N
		if n < 0 {
			n = -n
		}
		fr.regs[in.A] = Int(n)
	}
	return pc + 1, nil
}

func bcFloatFn1(fn func(float64) float64) handler {
	return func(vm *VM, fr *frame, in Instr, pc int) (int, error) {
		v := fr.regs[in.B]
		if v.IsNull() {
			fr.regs[in.A] = Null()
		} else {
			fr.regs[in.A] = Float(fn(v.asFloat()))
		}
		return pc + 1, nil
	}
}

func bcFloatFn2(fn func(float64, float64) float64) handler {
	return func(vm *VM, fr *frame, in Instr, pc int) (int, error) {
		a, b := fr.regs[in.B], fr.regs[in.C]
		if a.IsNull() || b.IsNull() {
			fr.regs[in.A] = Null()
		} else {
			fr.regs[in.A] = Float(fn(a.asFloat(), b.asFloat()))
		}
		return pc + 1, nil
	}
}

// bcRoundFn keeps integers intact: ceil/floor/round of an int is the int.
func bcRoundFn(fn func(float64) float64) handler {
	return func(vm *VM, fr *frame, in Instr, pc int) (int, error) {
		v := fr.regs[in.B]
		switch v.T {
		case TagNull:
			fr.regs[in.A] = Null()
		case TagInt:
			fr.regs[in.A] = v
		default:
			fr.regs[in.A] = Float(fn(v.asFloat()))
		}
		return pc + 1, nil
	}
}

func bcStrFn1(fn func(string) string) handler {
	return func(vm *VM, fr *frame, in Instr, pc int) (int, error) {
		v := fr.regs[in.B]
		if v.IsNull() {
			fr.regs[in.A] = Null()
		} else {
			fr.regs[in.A] = Str(fn(v.String()))
		}
		return pc + 1, nil
	}
}

func bcOpLength(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	v := fr.regs[in.B]
	if v.IsNull() {
		fr.regs[in.A] = Null()
	} else {
		fr.regs[in.A] = Int(int64(len(v.String())))
	}
	return pc + 1, nil
}

// bcOpSubstr reads three contiguous argument registers starting at B:
// the string, a 1-based start position, and the length.
func bcOpSubstr(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, posV, lenV := fr.regs[in.B], fr.regs[in.B+1], fr.regs[in.B+2]
	if s.IsNull() || posV.IsNull() || lenV.IsNull() {
		fr.regs[in.A] = Null()
		return pc + 1, nil
	}
	str := s.String()
	pos := posV.N - 1
	if pos < 0 {
		pos = 0
	}
	if pos > int64(len(str)) {
		pos = int64(len(str))
	}
	end := pos + lenV.N
	if end < pos {
		end = pos
	}
	if end > int64(len(str)) {
		end = int64(len(str))
	}
	fr.regs[in.A] = Str(str[pos:end])
	return pc + 1, nil
}

func bcOpRepeat(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, n := fr.regs[in.B], fr.regs[in.C]
	if s.IsNull() || n.IsNull() {
		fr.regs[in.A] = Null()
		return pc + 1, nil
	}
	count := n.N
	if count < 0 {
		count = 0
	}
	fr.regs[in.A] = Str(strings.Repeat(s.String(), int(count)))
	return pc + 1, nil
}

func bcOpReverse(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	v := fr.regs[in.B]
	if v.IsNull() {
		fr.regs[in.A] = Null()
		return pc + 1, nil
	}
	r := []rune(v.String())
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	fr.regs[in.A] = Str(string(r))
	return pc + 1, nil
}
