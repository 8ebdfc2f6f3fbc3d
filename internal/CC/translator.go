package CC

import (
	"github.com/cockroachdb/errors"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/VM"
)

// Translator generates the code for one plan operator. A source
// translator drives its pipeline loop through Produce; every other
// translator reacts to rows through Consume. State hooks contribute to
// the shared state record and the init/teardown functions.
type Translator interface {
	Node() PL.Node

	// DeclareState appends the operator's slots to the program state
	// record.
	DeclareState(pb *VM.ProgramBuilder) error
	// EmitInit contributes to the init function.
	EmitInit(fb *VM.FunctionBuilder) error
	// EmitFlush contributes code after the pipeline loop completes
	// (e.g. freezing a build table).
	EmitFlush(fb *VM.FunctionBuilder) error
	// EmitTeardown contributes to the teardown function.
	EmitTeardown(fb *VM.FunctionBuilder) error

	// Produce generates the pipeline's driving loop. Only the pipeline
	// source is asked to produce.
	Produce(fb *VM.FunctionBuilder) error
	// Consume generates the operator's reaction to one row of its
	// child, held in the row registers.
	Consume(fb *VM.FunctionBuilder, row []int32) error

	// ParallelOK reports whether the operator tolerates concurrent
	// invocation across partition workers.
	ParallelOK() bool

	attach(p *Pipeline, idx int)
}

// translatorBase carries the wiring every translator shares. Hooks
// default to no-ops; Produce defaults to an invariant break since only
// sources may be asked to produce.
type translatorBase struct {
	ctx  *Context
	node PL.Node
	pipe *Pipeline
	idx  int
}

func (b *translatorBase) Node() PL.Node                              { return b.node }
func (b *translatorBase) DeclareState(pb *VM.ProgramBuilder) error   { return nil }
func (b *translatorBase) EmitInit(fb *VM.FunctionBuilder) error      { return nil }
func (b *translatorBase) EmitFlush(fb *VM.FunctionBuilder) error     { return nil }
func (b *translatorBase) EmitTeardown(fb *VM.FunctionBuilder) error  { return nil }
func (b *translatorBase) ParallelOK() bool                           { return true }

func (b *translatorBase) Produce(fb *VM.FunctionBuilder) error {
	return errors.AssertionFailedf("%s translator is not a pipeline source", b.node.Kind())
}

func (b *translatorBase) Consume(fb *VM.FunctionBuilder, row []int32) error {
	return errors.AssertionFailedf("%s translator does not consume rows", b.node.Kind())
}

func (b *translatorBase) attach(p *Pipeline, idx int) {
	b.pipe = p
	b.idx = idx
}

// next forwards the operator's output row to its consumer.
func (b *translatorBase) next(fb *VM.FunctionBuilder, row []int32) error {
	return b.pipe.consumeAbove(b.idx, fb, row)
}

// translatorCtor builds the translator(s) for one node kind and wires
// the node's subtree into pipelines.
type translatorCtor func(c *Context, n PL.Node, cur *Pipeline) error

// translatorCtors is the operator dispatch table: one constructor per
// plan node kind, populated once in init and immutable afterwards. A
// kind without a constructor is a compile configuration error, reported
// with the node's identity rather than silently skipped. Population
// happens in init rather than in the var initializer because the
// constructors recurse through buildNode back into the table, which a
// variable initializer may not do.
var translatorCtors [PL.NumNodeKinds]translatorCtor

func init() {
	translatorCtors[PL.KindSeqScan] = buildSeqScan
	translatorCtors[PL.KindIndexScan] = buildIndexScan
	translatorCtors[PL.KindProjection] = buildProjection
	translatorCtors[PL.KindAggregate] = buildAggregate
	translatorCtors[PL.KindOrderBy] = buildOrderBy
	translatorCtors[PL.KindHashJoin] = buildHashJoin
	translatorCtors[PL.KindNestLoopJoin] = buildNestLoopJoin
	translatorCtors[PL.KindLimit] = buildLimit
	translatorCtors[PL.KindInsert] = buildInsert
	translatorCtors[PL.KindUpdate] = buildUpdate
	translatorCtors[PL.KindDelete] = buildDelete
}

// buildNode dispatches n to its translator constructor.
func (c *Context) buildNode(n PL.Node, cur *Pipeline) error {
	if n == nil {
		return errors.AssertionFailedf("nil plan node")
	}
	k := n.Kind()
	if int(k) >= len(translatorCtors) || translatorCtors[k] == nil {
		return errors.Newf("no translator registered for plan operator %s (%T)", k, n)
	}
	return translatorCtors[k](c, n, cur)
}
