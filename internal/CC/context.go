package CC

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/VM"
	"github.com/querypipe/querypipe/internal/log"
)

// Context is the per-query compilation state: the pipeline DAG under
// construction, every translator created for the plan, and the program
// builder receiving the generated code. Generated names are scoped by a
// fresh query id so concurrent compilations never collide.
type Context struct {
	queryID     string
	pb          *VM.ProgramBuilder
	pipelines   []*Pipeline // registered post-order: dependencies first
	nextPipe    int
	translators []Translator
}

// Compile lowers a physical plan tree into a verified bytecode program.
func Compile(plan PL.Node) (*VM.Program, error) {
	if plan == nil {
		return nil, errors.Newf("cannot compile a nil plan")
	}
	if err := checkPlanTypes(plan); err != nil {
		return nil, err
	}
	queryID := uuid.NewString()[:8]
	c := &Context{
		queryID: queryID,
		pb:      VM.NewProgramBuilder(queryID),
	}

	root := c.newPipeline()
	mutator := isMutator(plan.Kind())
	if mutator {
		if err := c.buildNode(plan, root); err != nil {
			return nil, err
		}
	} else {
		root.Add(newOutputTranslator(c, plan))
		if err := c.buildNode(plan, root); err != nil {
			return nil, err
		}
	}
	c.finishPipeline(root)

	order, err := topoOrder([]*Pipeline{root})
	if err != nil {
		return nil, err
	}
	// Every constructed pipeline must be reachable from the root through
	// dependency edges; one left behind would hold state nothing builds.
	if len(order) != len(c.pipelines) {
		return nil, errors.AssertionFailedf(
			"%d pipelines constructed but only %d scheduled", len(c.pipelines), len(order))
	}
	for _, p := range order {
		p.computeParallel()
	}

	// Global state record: every translator appends its slots; an empty
	// record still gets a placeholder field so the layout is never
	// zero-width.
	for _, t := range c.translators {
		if err := t.DeclareState(c.pb); err != nil {
			return nil, err
		}
	}
	if c.pb.NumSlots() == 0 {
		c.pb.DeclareSlot("placeholder", VM.SlotScalar)
	}

	initID, err := c.emitInit()
	if err != nil {
		return nil, err
	}
	for i, p := range order {
		if err := c.emitPipeline(p, i); err != nil {
			return nil, err
		}
	}
	if _, err := c.emitTeardown(); err != nil {
		return nil, err
	}
	if err := c.emitMain(initID, order); err != nil {
		return nil, err
	}

	if !mutator {
		c.pb.SetOutputCols(plan.Schema().Names())
	}

	prog, err := c.pb.Build()
	if err != nil {
		return nil, err
	}
	if err := VM.Verify(prog); err != nil {
		return nil, err
	}
	log.Debug("plan compiled",
		zap.String("query", queryID),
		zap.Int("pipelines", len(order)),
		zap.Int("functions", len(prog.Funcs)),
		zap.Int("slots", len(prog.Slots)))
	return prog, nil
}

func isMutator(k PL.NodeKind) bool {
	return k == PL.KindInsert || k == PL.KindUpdate || k == PL.KindDelete
}

func (c *Context) newPipeline() *Pipeline {
	p := newPipeline(c.nextPipe)
	c.nextPipe++
	return p
}

// finishPipeline registers a completed pipeline. Registration happens
// when the subtree walk returns, so dependencies register before their
// dependents.
func (c *Context) finishPipeline(p *Pipeline) {
	c.pipelines = append(c.pipelines, p)
}

func (c *Context) register(t Translator) {
	c.translators = append(c.translators, t)
}

func (c *Context) fnName(suffix string) string {
	return fmt.Sprintf("q_%s_%s", c.queryID, suffix)
}

func (c *Context) emitInit() (VM.FunctionID, error) {
	fb := c.pb.NewFunction(c.fnName("init"), VM.RoleInit)
	for _, t := range c.translators {
		if err := t.EmitInit(fb); err != nil {
			return -1, err
		}
	}
	fb.Emit(VM.OpReturn)
	return fb.Finish()
}

func (c *Context) emitPipeline(p *Pipeline, ord int) error {
	fb := c.pb.NewFunction(c.fnName(fmt.Sprintf("pipeline_%d", ord)), VM.RolePipeline)
	fb.SetParallel(p.parallel)
	src, err := p.Source()
	if err != nil {
		return err
	}
	if err := src.Produce(fb); err != nil {
		return err
	}
	for _, t := range p.translators {
		if err := t.EmitFlush(fb); err != nil {
			return err
		}
	}
	fb.Emit(VM.OpReturn)
	p.fnID, err = fb.Finish()
	return err
}

func (c *Context) emitTeardown() (VM.FunctionID, error) {
	fb := c.pb.NewFunction(c.fnName("teardown"), VM.RoleTeardown)
	for _, t := range c.translators {
		if err := t.EmitTeardown(fb); err != nil {
			return -1, err
		}
	}
	fb.Emit(VM.OpReturn)
	return fb.Finish()
}

// emitMain generates the driver: init, then every pipeline in
// dependency order. Teardown is invoked by the executor so it runs
// exactly once even when a pipeline fails.
func (c *Context) emitMain(initID VM.FunctionID, order []*Pipeline) error {
	fb := c.pb.NewFunction(c.fnName("main"), VM.RoleMain)
	fb.EmitA(VM.OpCall, int32(initID))
	for _, p := range order {
		fb.EmitA(VM.OpCall, int32(p.fnID))
	}
	fb.Emit(VM.OpReturn)
	_, err := fb.Finish()
	return err
}
