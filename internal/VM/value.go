package VM

import (
	"fmt"
	"math"
	"strings"
)

// Tag identifies the runtime type of a Value. Tag order matches the
// compile-time TypeID order in internal/PL.
type Tag uint8

const (
	TagNull  Tag = 0 // SQL NULL
	TagBool  Tag = 1 // bool (N==1 is true)
	TagInt   Tag = 2 // int64
	TagFloat Tag = 3 // float64 bits stored in N via math.Float64bits
	TagStr   Tag = 4 // string
)

// Value is a typed SQL scalar held in a register or constant pool slot.
// No interface{} boxing on the hot path.
type Value struct {
	N int64  // int64 value; also stores float64 bits
	S string // TagStr content
	T Tag
}

// Constructors.
func Null() Value           { return Value{T: TagNull} }
func Int(n int64) Value     { return Value{T: TagInt, N: n} }
func Float(f float64) Value { return Value{T: TagFloat, N: int64(math.Float64bits(f))} }
func Str(s string) Value    { return Value{T: TagStr, S: s} }
func Bool(b bool) Value {
	if b {
		return Value{T: TagBool, N: 1}
	}
	return Value{T: TagBool}
}

// Accessors.
func (v Value) IsNull() bool   { return v.T == TagNull }
func (v Value) Int() int64     { return v.N }
func (v Value) Float() float64 { return math.Float64frombits(uint64(v.N)) }
func (v Value) Str() string    { return v.S }
func (v Value) Bool() bool     { return v.N != 0 }

// Truthy reports whether v drives a conditional jump; NULL is not truthy.
func (v Value) Truthy() bool {
	switch v.T {
	case TagNull:
		return false
	case TagStr:
		return v.S != ""
	default:
		return v.N != 0
	}
}

// Interface converts v for the output-sink boundary only.
func (v Value) Interface() interface{} {
	switch v.T {
	case TagNull:
		return nil
	case TagBool:
		return v.N != 0
	case TagInt:
		return v.N
	case TagFloat:
		return v.Float()
	case TagStr:
		return v.S
	}
	return nil
}

func (v Value) String() string {
	switch v.T {
	case TagNull:
		return "NULL"
	case TagBool:
		if v.N != 0 {
			return "true"
		}
		return "false"
	case TagInt:
		return fmt.Sprintf("%d", v.N)
	case TagFloat:
		return fmt.Sprintf("%g", v.Float())
	case TagStr:
		return v.S
	}
	return "?"
}

func (v Value) asFloat() float64 {
	switch v.T {
	case TagFloat:
		return v.Float()
	case TagInt, TagBool:
		return float64(v.N)
	}
	return 0
}

// SqlAdd and friends are NULL-propagating SQL arithmetic. Division and
// remainder by zero are typed runtime faults, not NULLs.
func SqlAdd(a, b Value) Value {
	if a.T == TagNull || b.T == TagNull {
		return Null()
	}
	if a.T == TagFloat || b.T == TagFloat {
		return Float(a.asFloat() + b.asFloat())
	}
	return Int(a.N + b.N)
}

func SqlSub(a, b Value) Value {
	if a.T == TagNull || b.T == TagNull {
		return Null()
	}
	if a.T == TagFloat || b.T == TagFloat {
		return Float(a.asFloat() - b.asFloat())
	}
	return Int(a.N - b.N)
}

func SqlMul(a, b Value) Value {
	if a.T == TagNull || b.T == TagNull {
		return Null()
	}
	if a.T == TagFloat || b.T == TagFloat {
		return Float(a.asFloat() * b.asFloat())
	}
	return Int(a.N * b.N)
}

func SqlDiv(a, b Value) (Value, error) {
	if a.T == TagNull || b.T == TagNull {
		return Null(), nil
	}
	if a.T == TagFloat || b.T == TagFloat {
		bf := b.asFloat()
		if bf == 0 {
			return Null(), errDivByZero
		}
		return Float(a.asFloat() / bf), nil
	}
	if b.N == 0 {
		return Null(), errDivByZero
	}
	return Int(a.N / b.N), nil
}

func SqlRem(a, b Value) (Value, error) {
	if a.T == TagNull || b.T == TagNull {
		return Null(), nil
	}
	if a.T == TagInt && b.T == TagInt {
		if b.N == 0 {
			return Null(), errDivByZero
		}
		return Int(a.N % b.N), nil
	}
	bf := b.asFloat()
	if bf == 0 {
		return Null(), errDivByZero
	}
	return Float(math.Mod(a.asFloat(), bf)), nil
}

func SqlNeg(a Value) Value {
	switch a.T {
	case TagInt:
		return Int(-a.N)
	case TagFloat:
		return Float(-a.Float())
	}
	return Null()
}

// SqlConcat concatenates string renderings, NULL-propagating.
func SqlConcat(a, b Value) Value {
	if a.T == TagNull || b.T == TagNull {
		return Null()
	}
	return Str(a.String() + b.String())
}

// Compare orders two non-NULL values: -1, 0, or 1. NULL sorts before
// everything (used by the sorter; SQL comparisons go through SqlCmp).
func Compare(a, b Value) int {
	if a.T == TagNull && b.T == TagNull {
		return 0
	}
	if a.T == TagNull {
		return -1
	}
	if b.T == TagNull {
		return 1
	}
	if a.T == TagStr || b.T == TagStr {
		return strings.Compare(a.String(), b.String())
	}
	if a.T == TagInt && b.T == TagInt {
		switch {
		case a.N < b.N:
			return -1
		case a.N > b.N:
			return 1
		}
		return 0
	}
	af, bf := a.asFloat(), b.asFloat()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

// SqlCmp applies a three-valued comparison: NULL operands yield NULL.
func SqlCmp(a, b Value, keep func(int) bool) Value {
	if a.T == TagNull || b.T == TagNull {
		return Null()
	}
	return Bool(keep(Compare(a, b)))
}

const (
	fnvOffset64 = 0xcbf29ce484222325
	fnvPrime64  = 0x100000001b3
)

// Hash computes a 64-bit FNV-1a hash of v's tag and payload.
func Hash(v Value) uint64 {
	h := uint64(fnvOffset64)
	h ^= uint64(v.T)
	h *= fnvPrime64
	if v.T == TagStr {
		for i := 0; i < len(v.S); i++ {
			h ^= uint64(v.S[i])
			h *= fnvPrime64
		}
		return h
	}
	n := uint64(v.N)
	for i := 0; i < 8; i++ {
		h ^= n & 0xff
		h *= fnvPrime64
		n >>= 8
	}
	return h
}

// HashCombine folds h2 into h1.
func HashCombine(h1, h2 uint64) uint64 {
	return h1 ^ (h2 + 0x9e3779b97f4a7c15 + (h1 << 6) + (h1 >> 2))
}

// ValuesEqual is SQL grouping equality: NULLs group together.
func ValuesEqual(a, b Value) bool {
	if a.T == TagNull || b.T == TagNull {
		return a.T == b.T
	}
	return Compare(a, b) == 0
}
