package PL

import "github.com/cockroachdb/errors"

// Expr is a bound, typed scalar expression over an input row.
type Expr interface {
	exprNode()
}

// ColumnRef references an input column by ordinal.
type ColumnRef struct {
	Idx int
}

// Const is a literal.
type Const struct {
	Val Datum
}

// ArithOp enumerates arithmetic operators.
type ArithOp uint8

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithDiv
	ArithRem
)

var arithNames = [...]string{"+", "-", "*", "/", "%"}

func (o ArithOp) String() string { return arithNames[o] }

// Arith is a binary arithmetic expression.
type Arith struct {
	Op   ArithOp
	L, R Expr
}

// CmpOp enumerates comparison operators.
type CmpOp uint8

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

var cmpNames = [...]string{"=", "!=", "<", "<=", ">", ">="}

func (o CmpOp) String() string { return cmpNames[o] }

// Cmp is a binary comparison; result is bool (or NULL).
type Cmp struct {
	Op   CmpOp
	L, R Expr
}

// LogicOp enumerates boolean connectives.
type LogicOp uint8

const (
	LogicAnd LogicOp = iota
	LogicOr
	LogicNot // unary; R is nil
)

// Logic is a boolean connective.
type Logic struct {
	Op   LogicOp
	L, R Expr
}

// IsNull tests L for NULL; with Negate it is IS NOT NULL.
type IsNull struct {
	L      Expr
	Negate bool
}

// BuiltinFn enumerates scalar builtin functions available in expressions.
type BuiltinFn uint8

const (
	FnAbs BuiltinFn = iota
	FnSqrt
	FnExp
	FnLn
	FnLog2
	FnLog10
	FnCeil
	FnFloor
	FnRound
	FnPow
	FnSin
	FnCos
	FnTan
	FnAtan2
	FnLower
	FnUpper
	FnLength
	FnTrim
	FnSubstr
	FnRepeat
	FnReverse
	FnConcat
)

var builtinNames = [...]string{
	"abs", "sqrt", "exp", "ln", "log2", "log10", "ceil", "floor", "round",
	"pow", "sin", "cos", "tan", "atan2", "lower", "upper", "length", "trim",
	"substr", "repeat", "reverse", "concat",
}

func (f BuiltinFn) String() string { return builtinNames[f] }

// Builtin is a scalar function call.
type Builtin struct {
	Fn   BuiltinFn
	Args []Expr
}

func (*ColumnRef) exprNode() {}
func (*Const) exprNode()     {}
func (*Arith) exprNode()     {}
func (*Cmp) exprNode()       {}
func (*Logic) exprNode()     {}
func (*IsNull) exprNode()    {}
func (*Builtin) exprNode()   {}

// builtinArity maps each builtin to its fixed argument count.
var builtinArity = map[BuiltinFn]int{
	FnAbs: 1, FnSqrt: 1, FnExp: 1, FnLn: 1, FnLog2: 1, FnLog10: 1,
	FnCeil: 1, FnFloor: 1, FnRound: 1, FnPow: 2, FnSin: 1, FnCos: 1,
	FnTan: 1, FnAtan2: 2, FnLower: 1, FnUpper: 1, FnLength: 1, FnTrim: 1,
	FnSubstr: 3, FnRepeat: 2, FnReverse: 1, FnConcat: 2,
}

// TypeOf computes the static result type of e against the input schema.
// Type mismatches are compile-time errors carrying the offending expression.
func TypeOf(e Expr, in *Schema) (TypeID, error) {
	switch x := e.(type) {
	case *ColumnRef:
		if in == nil || x.Idx < 0 || x.Idx >= in.Width() {
			return TypeInvalid, errors.Newf("column ordinal %d out of range for schema of width %d", x.Idx, in.Width())
		}
		return in.Cols[x.Idx].Type, nil
	case *Const:
		if x.Val.IsNull() {
			// NULL literal adopts context type at codegen; typed as int here.
			return TypeInt, nil
		}
		return x.Val.Type, nil
	case *Arith:
		lt, err := TypeOf(x.L, in)
		if err != nil {
			return TypeInvalid, err
		}
		rt, err := TypeOf(x.R, in)
		if err != nil {
			return TypeInvalid, err
		}
		if !lt.Numeric() || !rt.Numeric() {
			return TypeInvalid, errors.Newf("arithmetic %s requires numeric operands, got %s and %s", x.Op, lt, rt)
		}
		if lt == TypeFloat || rt == TypeFloat {
			return TypeFloat, nil
		}
		return TypeInt, nil
	case *Cmp:
		lt, err := TypeOf(x.L, in)
		if err != nil {
			return TypeInvalid, err
		}
		rt, err := TypeOf(x.R, in)
		if err != nil {
			return TypeInvalid, err
		}
		if lt != rt && !(lt.Numeric() && rt.Numeric()) {
			return TypeInvalid, errors.Newf("comparison %s over incompatible types %s and %s", x.Op, lt, rt)
		}
		return TypeBool, nil
	case *Logic:
		lt, err := TypeOf(x.L, in)
		if err != nil {
			return TypeInvalid, err
		}
		if lt != TypeBool {
			return TypeInvalid, errors.Newf("logic operand must be bool, got %s", lt)
		}
		if x.Op != LogicNot {
			rt, err := TypeOf(x.R, in)
			if err != nil {
				return TypeInvalid, err
			}
			if rt != TypeBool {
				return TypeInvalid, errors.Newf("logic operand must be bool, got %s", rt)
			}
		}
		return TypeBool, nil
	case *IsNull:
		if _, err := TypeOf(x.L, in); err != nil {
			return TypeInvalid, err
		}
		return TypeBool, nil
	case *Builtin:
		want, ok := builtinArity[x.Fn]
		if !ok {
			return TypeInvalid, errors.Newf("unknown builtin function %d", x.Fn)
		}
		if len(x.Args) != want {
			return TypeInvalid, errors.Newf("builtin %s expects %d args, got %d", x.Fn, want, len(x.Args))
		}
		argTypes := make([]TypeID, len(x.Args))
		for i, a := range x.Args {
			t, err := TypeOf(a, in)
			if err != nil {
				return TypeInvalid, err
			}
			argTypes[i] = t
		}
		return builtinResultType(x.Fn, argTypes)
	}
	return TypeInvalid, errors.AssertionFailedf("unhandled expression %T", e)
}

func builtinResultType(fn BuiltinFn, args []TypeID) (TypeID, error) {
	switch fn {
	case FnLower, FnUpper, FnTrim, FnSubstr, FnRepeat, FnReverse, FnConcat:
		if args[0] != TypeStr {
			return TypeInvalid, errors.Newf("builtin %s requires a string argument, got %s", fn, args[0])
		}
		return TypeStr, nil
	case FnLength:
		if args[0] != TypeStr {
			return TypeInvalid, errors.Newf("length requires a string argument, got %s", args[0])
		}
		return TypeInt, nil
	case FnAbs:
		if !args[0].Numeric() {
			return TypeInvalid, errors.Newf("abs requires a numeric argument, got %s", args[0])
		}
		return args[0], nil
	default:
		// Remaining math/trig builtins take and return float.
		for _, t := range args {
			if !t.Numeric() {
				return TypeInvalid, errors.Newf("builtin %s requires numeric arguments, got %s", fn, t)
			}
		}
		return TypeFloat, nil
	}
}
