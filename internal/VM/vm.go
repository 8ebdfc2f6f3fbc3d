package VM

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/querypipe/querypipe/internal/log"
)

// pcReturn is the sentinel next-PC a handler returns to leave the
// current function.
const pcReturn = -1

// frame is the per-invocation register file. Parallel pipeline workers
// each get their own frame; locals overlays the global state record for
// slots a worker must own privately (its partition cursor, scalar
// scratch).
type frame struct {
	ctx    context.Context
	regs   []Value
	part   int
	parts  int
	locals map[int32]*slotVal
}

type handler func(vm *VM, fr *frame, in Instr, pc int) (int, error)

// VM executes one compiled program against an ExecContext. A VM instance
// is good for a single Run.
type VM struct {
	prog *Program
	ec   *ExecContext

	slots []slotVal

	sinkMu       sync.Mutex
	rowsEmitted  atomic.Int64
	rowsAffected atomic.Int64

	toreDown bool
}

// New prepares a VM for prog.
func New(prog *Program, ec *ExecContext) *VM {
	vm := &VM{prog: prog, ec: ec, slots: make([]slotVal, len(prog.Slots))}
	for i := range vm.slots {
		vm.slots[i].kind = prog.Slots[i].Kind
	}
	return vm
}

// Run executes the program: its main function drives init and the
// pipeline functions in dependency order; teardown runs here, exactly
// once, even when a pipeline fails.
func (vm *VM) Run(ctx context.Context) (Status, error) {
	log.Debug("program start",
		zap.String("query", vm.prog.QueryID),
		zap.Int("pipelines", len(vm.prog.Pipelines)),
		zap.Int("slots", len(vm.slots)))

	err := vm.call(ctx, vm.prog.MainID, 0, 1, nil)
	if terr := vm.teardown(ctx); terr != nil && err == nil {
		err = terr
	}
	st := Status{
		RowsEmitted:  vm.rowsEmitted.Load(),
		RowsAffected: vm.rowsAffected.Load(),
	}
	if err != nil {
		log.Warn("program failed", zap.String("query", vm.prog.QueryID), zap.Error(err))
		return st, err
	}
	log.Debug("program done",
		zap.String("query", vm.prog.QueryID),
		zap.Int64("rows", st.RowsEmitted))
	return st, nil
}

// Run compiles-and-goes in one call for callers that do not reuse the VM.
func Run(ctx context.Context, prog *Program, ec *ExecContext) (Status, error) {
	return New(prog, ec).Run(ctx)
}

// teardown runs the teardown function once, then force-releases every
// slot as a backstop for resources the bytecode did not reach.
func (vm *VM) teardown(ctx context.Context) error {
	if vm.toreDown {
		return nil
	}
	vm.toreDown = true
	err := vm.call(context.WithoutCancel(ctx), vm.prog.TeardownID, 0, 1, nil)
	for i := range vm.slots {
		vm.slots[i].release()
	}
	return err
}

// call executes function id in a fresh frame. A parallel pipeline
// function fans out across the worker budget, one disjoint scan
// partition per worker, and joins before returning: the Wait is the
// hard barrier between a pipeline and its dependents.
func (vm *VM) call(ctx context.Context, id FunctionID, part, parts int, locals map[int32]*slotVal) error {
	fn, err := vm.prog.Func(id)
	if err != nil {
		return err
	}
	if fn.Parallel && vm.workers() > 1 && locals == nil {
		return vm.callParallel(ctx, id, fn)
	}
	fr := &frame{
		ctx:    ctx,
		regs:   make([]Value, fn.NumRegs),
		part:   part,
		parts:  parts,
		locals: locals,
	}
	return vm.exec(fr, fn)
}

func (vm *VM) workers() int {
	if vm.ec.Workers > 0 {
		return vm.ec.Workers
	}
	return 1
}

func (vm *VM) callParallel(ctx context.Context, id FunctionID, fn *Function) error {
	n := vm.workers()
	log.Debug("parallel pipeline",
		zap.String("query", vm.prog.QueryID),
		zap.String("fn", fn.Name),
		zap.Int("workers", n))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		part := i
		g.Go(func() error {
			return vm.call(gctx, id, part, n, make(map[int32]*slotVal))
		})
	}
	return g.Wait()
}

// exec is the dispatch loop: table-driven, one handler per opcode, each
// handler returning the next PC. Fault sentinels are wrapped with the
// faulting position; collaborator errors pass through unchanged.
func (vm *VM) exec(fr *frame, fn *Function) error {
	code := fn.Code
	pc := 0
	steps := 0
	for pc >= 0 && pc < len(code) {
		in := code[pc]
		op := in.OpCode()
		if op >= NumOpCodes {
			return errors.AssertionFailedf("function %s: invalid opcode %d at pc=%d", fn.Name, uint16(op), pc)
		}
		h := handlers[op]
		if h == nil {
			return errors.AssertionFailedf("function %s: no handler for %s", fn.Name, op)
		}
		next, err := h(vm, fr, in, pc)
		if err != nil {
			if isFaultSentinel(err) {
				return &RuntimeError{Fn: fn.Name, PC: pc, Op: op, cause: err}
			}
			return err
		}
		if next == pcReturn {
			return nil
		}
		pc = next

		steps++
		if steps&1023 == 0 {
			if err := fr.ctx.Err(); err != nil {
				return err
			}
			if vm.ec.Txn != nil && vm.ec.Txn.Aborted() {
				return errors.Newf("transaction %d aborted during %s", vm.ec.Txn.ID(), fn.Name)
			}
		}
	}
	return errors.AssertionFailedf("function %s: control fell off end of code at pc=%d", fn.Name, pc)
}

// slot resolves a state-slot read: the worker overlay first, then the
// shared record.
func (vm *VM) slot(fr *frame, idx int32) (*slotVal, error) {
	if idx < 0 || int(idx) >= len(vm.slots) {
		return nil, errors.AssertionFailedf("state slot %d out of range [0,%d)", idx, len(vm.slots))
	}
	if fr.locals != nil {
		if s, ok := fr.locals[idx]; ok {
			return s, nil
		}
	}
	return &vm.slots[idx], nil
}

// slotOwned resolves a state-slot write that must be private to the
// executing worker (cursor installs, scalar stores). Outside parallel
// frames it is the shared slot.
func (vm *VM) slotOwned(fr *frame, idx int32) (*slotVal, error) {
	if idx < 0 || int(idx) >= len(vm.slots) {
		return nil, errors.AssertionFailedf("state slot %d out of range [0,%d)", idx, len(vm.slots))
	}
	if fr.locals == nil {
		return &vm.slots[idx], nil
	}
	s, ok := fr.locals[idx]
	if !ok {
		s = &slotVal{kind: vm.prog.Slots[idx].Kind}
		fr.locals[idx] = s
	}
	return s, nil
}

// emitRow hands one result row to the sink. The sink is single-threaded
// by contract; the lock covers parallel tail pipelines. The handed-off
// copy outlives the frame registers, so it comes from the arena when the
// caller supplied one. The copy happens under the sink lock, which also
// serializes arena access.
func (vm *VM) emitRow(row []Value) error {
	vm.rowsEmitted.Add(1)
	if vm.ec.Sink == nil {
		return nil
	}
	vm.sinkMu.Lock()
	defer vm.sinkMu.Unlock()
	var out []Value
	if vm.ec.Arena != nil {
		out = vm.ec.Arena.Alloc(len(row))
	} else {
		out = make([]Value, len(row))
	}
	copy(out, row)
	return vm.ec.Sink(out)
}
