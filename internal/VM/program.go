package VM

import "github.com/cockroachdb/errors"

// FunctionID indexes a function within a program.
type FunctionID int32

// FuncRole tags what a generated function is for.
type FuncRole uint8

const (
	RoleInit FuncRole = iota
	RolePipeline
	RoleTeardown
	RoleMain
)

var funcRoleNames = [...]string{"init", "pipeline", "teardown", "main"}

func (r FuncRole) String() string { return funcRoleNames[r] }

// Function is one generated function: a linear instruction sequence over a
// statically sized register file. Immutable once its program is built.
type Function struct {
	Name    string
	Role    FuncRole
	NumRegs int
	Code    []Instr
	// Parallel marks a pipeline function that may be invoked once per
	// input partition across worker goroutines.
	Parallel bool
}

// SlotKind classifies a global-state slot.
type SlotKind uint8

const (
	SlotScalar SlotKind = iota // a plain Value (counters, flags)
	SlotTableIter
	SlotIndexIter
	SlotAggHT
	SlotAggHTIter
	SlotAgg // plain aggregator
	SlotJoinHT
	SlotJoinHTProbe
	SlotSorter
	SlotSorterIter
)

var slotKindNames = [...]string{
	"scalar", "tableIter", "indexIter", "aggHT", "aggHTIter", "agg",
	"joinHT", "joinHTProbe", "sorter", "sorterIter",
}

func (k SlotKind) String() string { return slotKindNames[k] }

// SlotDecl declares one field of the global program state record. Fields
// are appended during state declaration and never removed.
type SlotDecl struct {
	Name string
	Kind SlotKind
}

// Program is the compiled output: a function table, a shared constant
// pool, and the global-state record layout. It is an in-memory artifact
// for one query execution, immutable once emitted, and consumed only by a
// backend.
type Program struct {
	// QueryID scopes generated identifiers across concurrently compiled
	// queries.
	QueryID string
	Funcs   []Function
	Consts  []Value
	Slots   []SlotDecl
	// Pipeline function IDs in registration (execution) order.
	Pipelines []FunctionID
	InitID     FunctionID
	TeardownID FunctionID
	MainID     FunctionID
	// OutputCols names the result columns; empty when the plan has no
	// output schema.
	OutputCols []string
}

// Func returns the function with the given id.
func (p *Program) Func(id FunctionID) (*Function, error) {
	if id < 0 || int(id) >= len(p.Funcs) {
		return nil, errors.Newf("function id %d out of range (program has %d functions)", id, len(p.Funcs))
	}
	return &p.Funcs[id], nil
}

// FuncByName is a test/debug helper.
func (p *Program) FuncByName(name string) *Function {
	for i := range p.Funcs {
		if p.Funcs[i].Name == name {
			return &p.Funcs[i]
		}
	}
	return nil
}
