package CC

import (
	"github.com/cockroachdb/errors"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/VM"
)

// datumValue lowers a plan literal into a runtime value.
func datumValue(d PL.Datum) VM.Value {
	switch d.Type {
	case PL.TypeBool:
		return VM.Bool(d.Bool)
	case PL.TypeInt:
		return VM.Int(d.Int)
	case PL.TypeFloat:
		return VM.Float(d.Float)
	case PL.TypeStr:
		return VM.Str(d.Str)
	}
	return VM.Null()
}

// NULL-propagating forms: the fallback for any operand that can be NULL
// at runtime.
var arithOps = map[PL.ArithOp]VM.OpCode{
	PL.ArithAdd: VM.OpSqlAdd,
	PL.ArithSub: VM.OpSqlSub,
	PL.ArithMul: VM.OpSqlMul,
	PL.ArithDiv: VM.OpSqlDiv,
	PL.ArithRem: VM.OpSqlRem,
}

var cmpOps = map[PL.CmpOp]VM.OpCode{
	PL.CmpEq: VM.OpSqlEq,
	PL.CmpNe: VM.OpSqlNe,
	PL.CmpLt: VM.OpSqlLt,
	PL.CmpLe: VM.OpSqlLe,
	PL.CmpGt: VM.OpSqlGt,
	PL.CmpGe: VM.OpSqlGe,
}

// Unboxed forms, picked when both operands are statically null-free and
// share a type. The typed handlers fault on NULL, so a column reference
// (nullable at runtime regardless of its declared type) disqualifies the
// expression.
var typedArithOps = map[PL.TypeID]map[PL.ArithOp]VM.OpCode{
	PL.TypeInt: {
		PL.ArithAdd: VM.OpAddInt,
		PL.ArithSub: VM.OpSubInt,
		PL.ArithMul: VM.OpMulInt,
		PL.ArithDiv: VM.OpDivInt,
		PL.ArithRem: VM.OpRemInt,
	},
	PL.TypeFloat: {
		PL.ArithAdd: VM.OpAddFloat,
		PL.ArithSub: VM.OpSubFloat,
		PL.ArithMul: VM.OpMulFloat,
		PL.ArithDiv: VM.OpDivFloat,
		PL.ArithRem: VM.OpRemFloat,
	},
}

var typedCmpOps = map[PL.TypeID]map[PL.CmpOp]VM.OpCode{
	PL.TypeInt: {
		PL.CmpEq: VM.OpEqInt,
		PL.CmpNe: VM.OpNeInt,
		PL.CmpLt: VM.OpLtInt,
		PL.CmpLe: VM.OpLeInt,
		PL.CmpGt: VM.OpGtInt,
		PL.CmpGe: VM.OpGeInt,
	},
	PL.TypeFloat: {
		PL.CmpEq: VM.OpEqFloat,
		PL.CmpNe: VM.OpNeFloat,
		PL.CmpLt: VM.OpLtFloat,
		PL.CmpLe: VM.OpLeFloat,
		PL.CmpGt: VM.OpGtFloat,
		PL.CmpGe: VM.OpGeFloat,
	},
	PL.TypeStr: {
		PL.CmpEq: VM.OpEqStr,
		PL.CmpNe: VM.OpNeStr,
		PL.CmpLt: VM.OpLtStr,
		PL.CmpLe: VM.OpLeStr,
		PL.CmpGt: VM.OpGtStr,
		PL.CmpGe: VM.OpGeStr,
	},
}

// exprNullFree reports whether e can never evaluate to NULL. Column
// references are always nullable; constants only when the literal is
// NULL itself.
func exprNullFree(e PL.Expr) bool {
	switch x := e.(type) {
	case *PL.Const:
		return !x.Val.IsNull()
	case *PL.ColumnRef:
		return false
	case *PL.Arith:
		return exprNullFree(x.L) && exprNullFree(x.R)
	case *PL.Cmp:
		return exprNullFree(x.L) && exprNullFree(x.R)
	case *PL.Logic:
		if x.Op == PL.LogicNot {
			return exprNullFree(x.L)
		}
		return exprNullFree(x.L) && exprNullFree(x.R)
	case *PL.IsNull:
		return true
	case *PL.Builtin:
		for _, a := range x.Args {
			if !exprNullFree(a) {
				return false
			}
		}
		return true
	}
	return false
}

// unboxedOperandType reports the shared operand type when an unboxed
// opcode is sound for l and r: both statically null-free and identically
// typed. Mixed int/float pairs stay on the Sql forms, which coerce.
func unboxedOperandType(l, r PL.Expr, sch *PL.Schema) (PL.TypeID, bool) {
	if !exprNullFree(l) || !exprNullFree(r) {
		return PL.TypeInvalid, false
	}
	lt, err := PL.TypeOf(l, sch)
	if err != nil {
		return PL.TypeInvalid, false
	}
	rt, err := PL.TypeOf(r, sch)
	if err != nil || lt != rt {
		return PL.TypeInvalid, false
	}
	return lt, true
}

// compileExpr generates code evaluating e over the row registers and
// returns the register holding the result. Column references resolve to
// the row register directly, without a copy. sch is the schema the row
// registers carry; it drives unboxed opcode selection.
func compileExpr(fb *VM.FunctionBuilder, e PL.Expr, row []int32, sch *PL.Schema) (int32, error) {
	switch x := e.(type) {
	case *PL.ColumnRef:
		if x.Idx < 0 || x.Idx >= len(row) {
			return 0, errors.Newf("column ordinal %d out of range for row of width %d", x.Idx, len(row))
		}
		return row[x.Idx], nil

	case *PL.Const:
		dst := fb.AllocReg()
		fb.EmitAB(VM.OpLoadConst, dst, fb.AddConst(datumValue(x.Val)))
		return dst, nil

	case *PL.Arith:
		op, ok := arithOps[x.Op]
		if !ok {
			return 0, errors.AssertionFailedf("unmapped arithmetic operator %s", x.Op)
		}
		if t, ok := unboxedOperandType(x.L, x.R, sch); ok {
			if m, ok := typedArithOps[t]; ok {
				op = m[x.Op]
			}
		}
		return compileBinary(fb, op, x.L, x.R, row, sch)

	case *PL.Cmp:
		op, ok := cmpOps[x.Op]
		if !ok {
			return 0, errors.AssertionFailedf("unmapped comparison operator %s", x.Op)
		}
		if t, ok := unboxedOperandType(x.L, x.R, sch); ok {
			if m, ok := typedCmpOps[t]; ok {
				op = m[x.Op]
			}
		}
		return compileBinary(fb, op, x.L, x.R, row, sch)

	case *PL.Logic:
		l, err := compileExpr(fb, x.L, row, sch)
		if err != nil {
			return 0, err
		}
		dst := fb.AllocReg()
		switch x.Op {
		case PL.LogicNot:
			fb.EmitAB(VM.OpNotBool, dst, l)
		case PL.LogicAnd, PL.LogicOr:
			r, err := compileExpr(fb, x.R, row, sch)
			if err != nil {
				return 0, err
			}
			op := VM.OpAndBool
			if x.Op == PL.LogicOr {
				op = VM.OpOrBool
			}
			fb.EmitABC(op, dst, l, r)
		default:
			return 0, errors.AssertionFailedf("unmapped logic operator %d", x.Op)
		}
		return dst, nil

	case *PL.IsNull:
		l, err := compileExpr(fb, x.L, row, sch)
		if err != nil {
			return 0, err
		}
		dst := fb.AllocReg()
		op := VM.OpSqlIsNull
		if x.Negate {
			op = VM.OpSqlIsNotNull
		}
		fb.EmitAB(op, dst, l)
		return dst, nil

	case *PL.Builtin:
		return compileBuiltin(fb, x, row, sch)
	}
	return 0, errors.AssertionFailedf("unhandled expression %T", e)
}

func compileBinary(fb *VM.FunctionBuilder, op VM.OpCode, l, r PL.Expr, row []int32, sch *PL.Schema) (int32, error) {
	lr, err := compileExpr(fb, l, row, sch)
	if err != nil {
		return 0, err
	}
	rr, err := compileExpr(fb, r, row, sch)
	if err != nil {
		return 0, err
	}
	dst := fb.AllocReg()
	fb.EmitABC(op, dst, lr, rr)
	return dst, nil
}

func compileBuiltin(fb *VM.FunctionBuilder, x *PL.Builtin, row []int32, sch *PL.Schema) (int32, error) {
	switch x.Fn {
	case PL.FnConcat:
		return compileBinary(fb, VM.OpSqlConcat, x.Args[0], x.Args[1], row, sch)

	case PL.FnSubstr:
		// Substr reads three contiguous argument registers.
		args := fb.AllocRegs(3)
		for i, a := range x.Args {
			r, err := compileExpr(fb, a, row, sch)
			if err != nil {
				return 0, err
			}
			fb.EmitAB(VM.OpMove, args+int32(i), r)
		}
		dst := fb.AllocReg()
		fb.EmitAB(VM.OpSubstr, dst, args)
		return dst, nil
	}

	op, ok := builtinOps[x.Fn]
	if !ok {
		return 0, errors.AssertionFailedf("unmapped builtin %s", x.Fn)
	}
	switch len(x.Args) {
	case 1:
		r, err := compileExpr(fb, x.Args[0], row, sch)
		if err != nil {
			return 0, err
		}
		dst := fb.AllocReg()
		fb.EmitAB(op, dst, r)
		return dst, nil
	case 2:
		return compileBinary(fb, op, x.Args[0], x.Args[1], row, sch)
	}
	return 0, errors.AssertionFailedf("builtin %s has unsupported arity %d", x.Fn, len(x.Args))
}

// builtinOps maps one-output builtins onto their opcodes. Substr and
// concat need special emission and are handled inline.
var builtinOps = map[PL.BuiltinFn]VM.OpCode{
	PL.FnAbs:     VM.OpAbs,
	PL.FnSqrt:    VM.OpSqrt,
	PL.FnExp:     VM.OpExp,
	PL.FnLn:      VM.OpLn,
	PL.FnLog2:    VM.OpLog2,
	PL.FnLog10:   VM.OpLog10,
	PL.FnCeil:    VM.OpCeil,
	PL.FnFloor:   VM.OpFloor,
	PL.FnRound:   VM.OpRound,
	PL.FnPow:     VM.OpPow,
	PL.FnSin:     VM.OpSin,
	PL.FnCos:     VM.OpCos,
	PL.FnTan:     VM.OpTan,
	PL.FnAtan2:   VM.OpAtan2,
	PL.FnLower:   VM.OpLower,
	PL.FnUpper:   VM.OpUpper,
	PL.FnLength:  VM.OpLength,
	PL.FnTrim:    VM.OpTrim,
	PL.FnRepeat:  VM.OpRepeat,
	PL.FnReverse: VM.OpReverse,
}

// materializeRow copies the row into a freshly allocated contiguous
// register block, as required by block-operand instructions.
func materializeRow(fb *VM.FunctionBuilder, row []int32) int32 {
	block := fb.AllocRegs(len(row))
	for i, r := range row {
		fb.EmitAB(VM.OpMove, block+int32(i), r)
	}
	return block
}

// compileExprBlock evaluates each expression into a contiguous block.
func compileExprBlock(fb *VM.FunctionBuilder, exprs []PL.Expr, row []int32, sch *PL.Schema) (int32, error) {
	block := fb.AllocRegs(len(exprs))
	for i, e := range exprs {
		r, err := compileExpr(fb, e, row, sch)
		if err != nil {
			return 0, err
		}
		fb.EmitAB(VM.OpMove, block+int32(i), r)
	}
	return block, nil
}
