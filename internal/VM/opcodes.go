package VM

import "fmt"

// OpCode is the 16-bit opcode of the bytecode ISA. The instruction set is
// closed: every opcode, its operand shape, and its handler are declared in
// the tables below and never mutated after process start.
type OpCode uint16

const (
	OpNop OpCode = iota

	// Primitive integer arithmetic. NULL operands are a runtime fault;
	// SQL expressions use the null-aware Sql* family instead.
	OpAddInt
	OpSubInt
	OpMulInt
	OpDivInt
	OpRemInt
	OpNegInt
	OpBitAndInt
	OpBitOrInt
	OpBitXorInt
	OpBitNotInt

	// Primitive float arithmetic.
	OpAddFloat
	OpSubFloat
	OpMulFloat
	OpDivFloat
	OpRemFloat
	OpNegFloat

	// Primitive comparisons, one family per type.
	OpEqInt
	OpNeInt
	OpLtInt
	OpLeInt
	OpGtInt
	OpGeInt
	OpEqFloat
	OpNeFloat
	OpLtFloat
	OpLeFloat
	OpGtFloat
	OpGeFloat
	OpEqStr
	OpNeStr
	OpLtStr
	OpLeStr
	OpGtStr
	OpGeStr

	// Boolean connectives.
	OpNotBool
	OpAndBool
	OpOrBool

	// Control flow.
	OpJump
	OpJumpIfTrue
	OpJumpIfFalse
	OpCall
	OpReturn

	// Register and global-state access.
	OpLoadConst
	OpLoadImm
	OpMove
	OpStateLoad
	OpStateStore

	// Null-aware SQL value operations.
	OpSqlAdd
	OpSqlSub
	OpSqlMul
	OpSqlDiv
	OpSqlRem
	OpSqlNeg
	OpSqlConcat
	OpSqlEq
	OpSqlNe
	OpSqlLt
	OpSqlLe
	OpSqlGt
	OpSqlGe
	OpSqlIsNull
	OpSqlIsNotNull

	// Hashing.
	OpHash
	OpHashCombine

	// Table iteration. The partitioned variant binds the executing
	// worker's partition at runtime.
	OpTableIterInit
	OpTableIterPartInit
	OpTableFilterEq
	OpTableFilterNe
	OpTableFilterLt
	OpTableFilterLe
	OpTableFilterGt
	OpTableFilterGe
	OpTableIterNext
	OpTableIterCol
	OpTableIterRowID
	OpTableIterClose

	// Index iteration.
	OpIndexIterInit
	OpIndexIterScanKey
	OpIndexIterScanAsc
	OpIndexIterScanDesc
	OpIndexIterLimit
	OpIndexIterNext
	OpIndexIterCol
	OpIndexIterRowID
	OpIndexIterClose

	// Aggregation hash table.
	OpAggHTInit
	OpAggHTAggKind
	OpAggHTUpsert
	OpAggHTStep
	OpAggHTTransfer
	OpAggHTIterInit
	OpAggHTIterNext
	OpAggHTIterKey
	OpAggHTIterAgg
	OpAggHTIterClose
	OpAggHTFree

	// Plain (single-group) aggregator.
	OpAggInit
	OpAggStep
	OpAggResult
	OpAggReset

	// Join hash table.
	OpJoinHTInit
	OpJoinHTInsert
	OpJoinHTBuild
	OpJoinHTProbeInit
	OpJoinHTProbeNext
	OpJoinHTProbeCol
	OpJoinHTProbeClose
	OpJoinHTFree

	// Sorter.
	OpSorterInit
	OpSorterKey
	OpSorterInsert
	OpSorterSort
	OpSorterSortTopK
	OpSorterIterInit
	OpSorterIterNext
	OpSorterIterCol
	OpSorterIterClose
	OpSorterFree

	// Output.
	OpResultRow

	// Mutation.
	OpRowInsert
	OpRowUpdate
	OpRowDelete

	// Scalar builtins (null-aware).
	OpAbs
	OpSqrt
	OpExp
	OpLn
	OpLog2
	OpLog10
	OpCeil
	OpFloor
	OpRound
	OpPow
	OpSin
	OpCos
	OpTan
	OpAtan2
	OpLower
	OpUpper
	OpLength
	OpTrim
	OpSubstr
	OpRepeat
	OpReverse

	NumOpCodes // sentinel — must be last
)

// OperandKind classifies one operand field of an instruction. The operand
// shape of every opcode is fixed and known statically; it is never
// data-dependent.
type OperandKind uint8

const (
	OperandNone   OperandKind = iota
	OperandRegDst             // register written by the instruction
	OperandRegSrc             // register read (for row-start operands, the first of a contiguous block)
	OperandImm                // signed 32-bit immediate
	OperandConst              // constant-pool index
	OperandJump               // absolute PC within the function
	OperandFunc               // function index in the program
	OperandSlot               // global-state slot index
	OperandCount              // unsigned count
)

var operandKindNames = [...]string{
	"none", "reg!", "reg", "imm", "const", "jump", "func", "slot", "count",
}

func (k OperandKind) String() string { return operandKindNames[k] }

// OpInfo is one row of the instruction catalog: display name, operand
// kinds for the A/B/C fields, and whether the opcode terminates a basic
// block (verifier: a bytecode is terminal iff Return or unconditional
// Jump).
type OpInfo struct {
	Name     string
	Operands []OperandKind
	Terminal bool
}

func (op OpCode) String() string {
	if op < NumOpCodes {
		return opInfos[op].Name
	}
	return fmt.Sprintf("OpCode(%d)", uint16(op))
}

// Info returns the catalog row for op.
func (op OpCode) Info() *OpInfo { return &opInfos[op] }

func regs3() []OperandKind { return []OperandKind{OperandRegDst, OperandRegSrc, OperandRegSrc} }
func regs2() []OperandKind { return []OperandKind{OperandRegDst, OperandRegSrc} }

// opInfos is the single source of truth for the ISA: it drives the
// disassembler, the static verifier, and the operand-shape checks. It is
// constructed once and read-only afterwards.
var opInfos = [NumOpCodes]OpInfo{
	OpNop: {Name: "Nop"},

	OpAddInt:    {Name: "AddInt", Operands: regs3()},
	OpSubInt:    {Name: "SubInt", Operands: regs3()},
	OpMulInt:    {Name: "MulInt", Operands: regs3()},
	OpDivInt:    {Name: "DivInt", Operands: regs3()},
	OpRemInt:    {Name: "RemInt", Operands: regs3()},
	OpNegInt:    {Name: "NegInt", Operands: regs2()},
	OpBitAndInt: {Name: "BitAndInt", Operands: regs3()},
	OpBitOrInt:  {Name: "BitOrInt", Operands: regs3()},
	OpBitXorInt: {Name: "BitXorInt", Operands: regs3()},
	OpBitNotInt: {Name: "BitNotInt", Operands: regs2()},

	OpAddFloat: {Name: "AddFloat", Operands: regs3()},
	OpSubFloat: {Name: "SubFloat", Operands: regs3()},
	OpMulFloat: {Name: "MulFloat", Operands: regs3()},
	OpDivFloat: {Name: "DivFloat", Operands: regs3()},
	OpRemFloat: {Name: "RemFloat", Operands: regs3()},
	OpNegFloat: {Name: "NegFloat", Operands: regs2()},

	OpEqInt:   {Name: "EqInt", Operands: regs3()},
	OpNeInt:   {Name: "NeInt", Operands: regs3()},
	OpLtInt:   {Name: "LtInt", Operands: regs3()},
	OpLeInt:   {Name: "LeInt", Operands: regs3()},
	OpGtInt:   {Name: "GtInt", Operands: regs3()},
	OpGeInt:   {Name: "GeInt", Operands: regs3()},
	OpEqFloat: {Name: "EqFloat", Operands: regs3()},
	OpNeFloat: {Name: "NeFloat", Operands: regs3()},
	OpLtFloat: {Name: "LtFloat", Operands: regs3()},
	OpLeFloat: {Name: "LeFloat", Operands: regs3()},
	OpGtFloat: {Name: "GtFloat", Operands: regs3()},
	OpGeFloat: {Name: "GeFloat", Operands: regs3()},
	OpEqStr:   {Name: "EqStr", Operands: regs3()},
	OpNeStr:   {Name: "NeStr", Operands: regs3()},
	OpLtStr:   {Name: "LtStr", Operands: regs3()},
	OpLeStr:   {Name: "LeStr", Operands: regs3()},
	OpGtStr:   {Name: "GtStr", Operands: regs3()},
	OpGeStr:   {Name: "GeStr", Operands: regs3()},

	OpNotBool: {Name: "NotBool", Operands: regs2()},
	OpAndBool: {Name: "AndBool", Operands: regs3()},
	OpOrBool:  {Name: "OrBool", Operands: regs3()},

	OpJump:        {Name: "Jump", Operands: []OperandKind{OperandJump}, Terminal: true},
	OpJumpIfTrue:  {Name: "JumpIfTrue", Operands: []OperandKind{OperandRegSrc, OperandJump}},
	OpJumpIfFalse: {Name: "JumpIfFalse", Operands: []OperandKind{OperandRegSrc, OperandJump}},
	OpCall:        {Name: "Call", Operands: []OperandKind{OperandFunc}},
	OpReturn:      {Name: "Return", Terminal: true},

	OpLoadConst:  {Name: "LoadConst", Operands: []OperandKind{OperandRegDst, OperandConst}},
	OpLoadImm:    {Name: "LoadImm", Operands: []OperandKind{OperandRegDst, OperandImm}},
	OpMove:       {Name: "Move", Operands: regs2()},
	OpStateLoad:  {Name: "StateLoad", Operands: []OperandKind{OperandRegDst, OperandSlot}},
	OpStateStore: {Name: "StateStore", Operands: []OperandKind{OperandSlot, OperandRegSrc}},

	OpSqlAdd:       {Name: "SqlAdd", Operands: regs3()},
	OpSqlSub:       {Name: "SqlSub", Operands: regs3()},
	OpSqlMul:       {Name: "SqlMul", Operands: regs3()},
	OpSqlDiv:       {Name: "SqlDiv", Operands: regs3()},
	OpSqlRem:       {Name: "SqlRem", Operands: regs3()},
	OpSqlNeg:       {Name: "SqlNeg", Operands: regs2()},
	OpSqlConcat:    {Name: "SqlConcat", Operands: regs3()},
	OpSqlEq:        {Name: "SqlEq", Operands: regs3()},
	OpSqlNe:        {Name: "SqlNe", Operands: regs3()},
	OpSqlLt:        {Name: "SqlLt", Operands: regs3()},
	OpSqlLe:        {Name: "SqlLe", Operands: regs3()},
	OpSqlGt:        {Name: "SqlGt", Operands: regs3()},
	OpSqlGe:        {Name: "SqlGe", Operands: regs3()},
	OpSqlIsNull:    {Name: "SqlIsNull", Operands: regs2()},
	OpSqlIsNotNull: {Name: "SqlIsNotNull", Operands: regs2()},

	OpHash:        {Name: "Hash", Operands: regs2()},
	OpHashCombine: {Name: "HashCombine", Operands: regs3()},

	OpTableIterInit:     {Name: "TableIterInit", Operands: []OperandKind{OperandSlot, OperandImm}},
	OpTableIterPartInit: {Name: "TableIterPartInit", Operands: []OperandKind{OperandSlot, OperandImm}},
	OpTableFilterEq:     {Name: "TableFilterEq", Operands: []OperandKind{OperandSlot, OperandImm, OperandConst}},
	OpTableFilterNe:     {Name: "TableFilterNe", Operands: []OperandKind{OperandSlot, OperandImm, OperandConst}},
	OpTableFilterLt:     {Name: "TableFilterLt", Operands: []OperandKind{OperandSlot, OperandImm, OperandConst}},
	OpTableFilterLe:     {Name: "TableFilterLe", Operands: []OperandKind{OperandSlot, OperandImm, OperandConst}},
	OpTableFilterGt:     {Name: "TableFilterGt", Operands: []OperandKind{OperandSlot, OperandImm, OperandConst}},
	OpTableFilterGe:     {Name: "TableFilterGe", Operands: []OperandKind{OperandSlot, OperandImm, OperandConst}},
	OpTableIterNext:     {Name: "TableIterNext", Operands: []OperandKind{OperandSlot, OperandJump}},
	OpTableIterCol:      {Name: "TableIterCol", Operands: []OperandKind{OperandRegDst, OperandSlot, OperandImm}},
	OpTableIterRowID:    {Name: "TableIterRowID", Operands: []OperandKind{OperandRegDst, OperandSlot}},
	OpTableIterClose:    {Name: "TableIterClose", Operands: []OperandKind{OperandSlot}},

	OpIndexIterInit:     {Name: "IndexIterInit", Operands: []OperandKind{OperandSlot, OperandImm, OperandImm}},
	OpIndexIterScanKey:  {Name: "IndexIterScanKey", Operands: []OperandKind{OperandSlot, OperandRegSrc}},
	OpIndexIterScanAsc:  {Name: "IndexIterScanAsc", Operands: []OperandKind{OperandSlot, OperandRegSrc, OperandRegSrc}},
	OpIndexIterScanDesc: {Name: "IndexIterScanDesc", Operands: []OperandKind{OperandSlot, OperandRegSrc, OperandRegSrc}},
	OpIndexIterLimit:    {Name: "IndexIterLimit", Operands: []OperandKind{OperandSlot, OperandImm}},
	OpIndexIterNext:     {Name: "IndexIterNext", Operands: []OperandKind{OperandSlot, OperandJump}},
	OpIndexIterCol:      {Name: "IndexIterCol", Operands: []OperandKind{OperandRegDst, OperandSlot, OperandImm}},
	OpIndexIterRowID:    {Name: "IndexIterRowID", Operands: []OperandKind{OperandRegDst, OperandSlot}},
	OpIndexIterClose:    {Name: "IndexIterClose", Operands: []OperandKind{OperandSlot}},

	OpAggHTInit:      {Name: "AggHTInit", Operands: []OperandKind{OperandSlot, OperandImm, OperandImm}},
	OpAggHTAggKind:   {Name: "AggHTAggKind", Operands: []OperandKind{OperandSlot, OperandImm, OperandImm}},
	OpAggHTUpsert:    {Name: "AggHTUpsert", Operands: []OperandKind{OperandRegDst, OperandSlot, OperandRegSrc}},
	OpAggHTStep:      {Name: "AggHTStep", Operands: []OperandKind{OperandSlot, OperandRegSrc, OperandRegSrc}},
	OpAggHTTransfer:  {Name: "AggHTTransfer", Operands: []OperandKind{OperandSlot}},
	OpAggHTIterInit:  {Name: "AggHTIterInit", Operands: []OperandKind{OperandSlot, OperandSlot}},
	OpAggHTIterNext:  {Name: "AggHTIterNext", Operands: []OperandKind{OperandSlot, OperandJump}},
	OpAggHTIterKey:   {Name: "AggHTIterKey", Operands: []OperandKind{OperandRegDst, OperandSlot, OperandImm}},
	OpAggHTIterAgg:   {Name: "AggHTIterAgg", Operands: []OperandKind{OperandRegDst, OperandSlot, OperandImm}},
	OpAggHTIterClose: {Name: "AggHTIterClose", Operands: []OperandKind{OperandSlot}},
	OpAggHTFree:      {Name: "AggHTFree", Operands: []OperandKind{OperandSlot}},

	OpAggInit:   {Name: "AggInit", Operands: []OperandKind{OperandSlot, OperandImm}},
	OpAggStep:   {Name: "AggStep", Operands: []OperandKind{OperandSlot, OperandRegSrc}},
	OpAggResult: {Name: "AggResult", Operands: []OperandKind{OperandRegDst, OperandSlot}},
	OpAggReset:  {Name: "AggReset", Operands: []OperandKind{OperandSlot}},

	OpJoinHTInit:       {Name: "JoinHTInit", Operands: []OperandKind{OperandSlot, OperandImm, OperandImm}},
	OpJoinHTInsert:     {Name: "JoinHTInsert", Operands: []OperandKind{OperandSlot, OperandRegSrc, OperandRegSrc}},
	OpJoinHTBuild:      {Name: "JoinHTBuild", Operands: []OperandKind{OperandSlot}},
	OpJoinHTProbeInit:  {Name: "JoinHTProbeInit", Operands: []OperandKind{OperandSlot, OperandSlot, OperandRegSrc}},
	OpJoinHTProbeNext:  {Name: "JoinHTProbeNext", Operands: []OperandKind{OperandSlot, OperandJump}},
	OpJoinHTProbeCol:   {Name: "JoinHTProbeCol", Operands: []OperandKind{OperandRegDst, OperandSlot, OperandImm}},
	OpJoinHTProbeClose: {Name: "JoinHTProbeClose", Operands: []OperandKind{OperandSlot}},
	OpJoinHTFree:       {Name: "JoinHTFree", Operands: []OperandKind{OperandSlot}},

	OpSorterInit:      {Name: "SorterInit", Operands: []OperandKind{OperandSlot, OperandImm}},
	OpSorterKey:       {Name: "SorterKey", Operands: []OperandKind{OperandSlot, OperandImm, OperandImm}},
	OpSorterInsert:    {Name: "SorterInsert", Operands: []OperandKind{OperandSlot, OperandRegSrc}},
	OpSorterSort:      {Name: "SorterSort", Operands: []OperandKind{OperandSlot}},
	OpSorterSortTopK:  {Name: "SorterSortTopK", Operands: []OperandKind{OperandSlot, OperandImm}},
	OpSorterIterInit:  {Name: "SorterIterInit", Operands: []OperandKind{OperandSlot, OperandSlot}},
	OpSorterIterNext:  {Name: "SorterIterNext", Operands: []OperandKind{OperandSlot, OperandJump}},
	OpSorterIterCol:   {Name: "SorterIterCol", Operands: []OperandKind{OperandRegDst, OperandSlot, OperandImm}},
	OpSorterIterClose: {Name: "SorterIterClose", Operands: []OperandKind{OperandSlot}},
	OpSorterFree:      {Name: "SorterFree", Operands: []OperandKind{OperandSlot}},

	OpResultRow: {Name: "ResultRow", Operands: []OperandKind{OperandRegSrc, OperandCount}},

	OpRowInsert: {Name: "RowInsert", Operands: []OperandKind{OperandImm, OperandRegSrc, OperandCount}},
	OpRowUpdate: {Name: "RowUpdate", Operands: []OperandKind{OperandImm, OperandRegSrc, OperandRegSrc}},
	OpRowDelete: {Name: "RowDelete", Operands: []OperandKind{OperandImm, OperandRegSrc}},

	OpAbs:     {Name: "Abs", Operands: regs2()},
	OpSqrt:    {Name: "Sqrt", Operands: regs2()},
	OpExp:     {Name: "Exp", Operands: regs2()},
	OpLn:      {Name: "Ln", Operands: regs2()},
	OpLog2:    {Name: "Log2", Operands: regs2()},
	OpLog10:   {Name: "Log10", Operands: regs2()},
	OpCeil:    {Name: "Ceil", Operands: regs2()},
	OpFloor:   {Name: "Floor", Operands: regs2()},
	OpRound:   {Name: "Round", Operands: regs2()},
	OpPow:     {Name: "Pow", Operands: regs3()},
	OpSin:     {Name: "Sin", Operands: regs2()},
	OpCos:     {Name: "Cos", Operands: regs2()},
	OpTan:     {Name: "Tan", Operands: regs2()},
	OpAtan2:   {Name: "Atan2", Operands: regs3()},
	OpLower:   {Name: "Lower", Operands: regs2()},
	OpUpper:   {Name: "Upper", Operands: regs2()},
	OpLength:  {Name: "Length", Operands: regs2()},
	OpTrim:    {Name: "Trim", Operands: regs2()},
	OpSubstr:  {Name: "Substr", Operands: regs2()}, // B is the first of 3 contiguous arg registers
	OpRepeat:  {Name: "Repeat", Operands: regs3()},
	OpReverse: {Name: "Reverse", Operands: regs2()},
}
