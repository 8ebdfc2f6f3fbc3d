// Package querypipe is the public surface of the engine: build a plan,
// compile it into a bytecode program, and execute it against an
// in-memory store inside a transaction.
package querypipe

import (
	"context"

	"go.uber.org/zap"

	"github.com/querypipe/querypipe/internal/CC"
	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/SB"
	"github.com/querypipe/querypipe/internal/TM"
	"github.com/querypipe/querypipe/internal/VM"
	"github.com/querypipe/querypipe/internal/log"
)

// Re-exported value and status types, so callers build rows and read
// results without importing internal packages.
type (
	Value   = VM.Value
	Status  = VM.Status
	Program = VM.Program
	Schema  = PL.Schema
	Column  = PL.Column
)

// Value constructors.
var (
	Null  = VM.Null
	Int   = VM.Int
	Float = VM.Float
	Str   = VM.Str
	Bool  = VM.Bool
)

// DB couples a store with a transaction manager.
type DB struct {
	store *SB.Store
	tm    *TM.Manager
}

// New creates an empty database.
func New() *DB {
	return &DB{store: SB.NewStore(), tm: TM.NewManager()}
}

// Store exposes the storage backend for table and index setup.
func (db *DB) Store() *SB.Store { return db.store }

// CreateTable registers a table.
func (db *DB) CreateTable(id int32, name string, width int) error {
	_, err := db.store.CreateTable(id, name, width)
	return err
}

// CreateIndex builds a secondary index over one column.
func (db *DB) CreateIndex(tableID, indexID int32, keyCol int) error {
	return db.store.CreateIndex(tableID, indexID, keyCol)
}

// Load inserts rows outside any query, in its own committed transaction.
func (db *DB) Load(tableID int32, rows ...[]Value) error {
	txn := db.tm.Begin()
	for _, row := range rows {
		if _, err := db.store.Insert(txn, tableID, row); err != nil {
			txn.Abort()
			return err
		}
	}
	return txn.Commit(nil)
}

// Compile lowers a physical plan into a verified bytecode program.
func Compile(plan PL.Node) (*Program, error) {
	return CC.Compile(plan)
}

// Disassemble renders a compiled program.
func Disassemble(prog *Program) string {
	return VM.Disassemble(prog)
}

// Result is one executed query: column names, collected rows, and the
// execution status.
type Result struct {
	Cols   []string
	Rows   [][]Value
	Status Status
}

// RunOption tweaks one execution.
type RunOption func(*runConfig)

type runConfig struct {
	workers int
	sink    VM.RowSink
}

// WithWorkers sets the parallel pipeline worker budget (default 1).
func WithWorkers(n int) RunOption {
	return func(c *runConfig) { c.workers = n }
}

// WithSink streams rows to fn instead of collecting them in the Result.
func WithSink(fn func(row []Value) error) RunOption {
	return func(c *runConfig) { c.sink = fn }
}

// Run executes a compiled program in a fresh transaction: commit on
// success, abort (undoing mutations) on failure.
func (db *DB) Run(ctx context.Context, prog *Program, opts ...RunOption) (*Result, error) {
	cfg := runConfig{workers: 1}
	for _, o := range opts {
		o(&cfg)
	}

	res := &Result{Cols: prog.OutputCols}
	sink := cfg.sink
	if sink == nil {
		sink = func(row []Value) error {
			res.Rows = append(res.Rows, row)
			return nil
		}
	}

	txn := db.tm.Begin()
	ec := &VM.ExecContext{
		Txn:     txn,
		Store:   db.store,
		Sink:    sink,
		Arena:   VM.NewArena(1024),
		Workers: cfg.workers,
	}
	status, err := VM.Run(ctx, prog, ec)
	res.Status = status
	if err != nil {
		txn.Abort()
		log.Warn("query aborted", zap.String("query", prog.QueryID), zap.Error(err))
		return res, err
	}
	if err := txn.Commit(nil); err != nil {
		return res, err
	}
	return res, nil
}

// Exec compiles and runs a plan in one call.
func (db *DB) Exec(ctx context.Context, plan PL.Node, opts ...RunOption) (*Result, error) {
	prog, err := Compile(plan)
	if err != nil {
		return nil, err
	}
	return db.Run(ctx, prog, opts...)
}
