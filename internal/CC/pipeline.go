// Package CC compiles physical plan trees into register bytecode
// programs: plans are decomposed into pipelines at their materialization
// breakers, and each operator contributes code through a
// produce/consume translator protocol.
package CC

import (
	"github.com/cockroachdb/errors"

	"github.com/querypipe/querypipe/internal/VM"
)

// Pipeline is one fused loop of the decomposed plan: a chain of
// translators with the pipeline root first and the driving source last.
// Dependencies on other pipelines (whose materialized state this one
// reads) form an explicit DAG; execution order is a topological sort of
// that DAG.
type Pipeline struct {
	id          int
	translators []Translator
	deps        []*Pipeline

	// rowIDReg holds the register carrying the current source row id,
	// set by the scan translator during produce; -1 until then.
	rowIDReg int32

	parallel bool
	fnID     VM.FunctionID
}

func newPipeline(id int) *Pipeline {
	return &Pipeline{id: id, rowIDReg: -1, fnID: -1}
}

// Add appends t below every translator registered so far.
func (p *Pipeline) Add(t Translator) {
	t.attach(p, len(p.translators))
	p.translators = append(p.translators, t)
}

// Source returns the driving translator (the leaf-most one).
func (p *Pipeline) Source() (Translator, error) {
	if len(p.translators) == 0 {
		return nil, errors.AssertionFailedf("pipeline %d has no translators", p.id)
	}
	return p.translators[len(p.translators)-1], nil
}

// DependOn records that p consumes state materialized by dep.
func (p *Pipeline) DependOn(dep *Pipeline) {
	p.deps = append(p.deps, dep)
}

// consumeAbove forwards a row from the translator at idx to the one
// above it; the pipeline root absorbs its rows.
func (p *Pipeline) consumeAbove(idx int, fb *VM.FunctionBuilder, row []int32) error {
	if idx == 0 {
		return nil
	}
	return p.translators[idx-1].Consume(fb, row)
}

// computeParallel decides whether the pipeline may fan out across scan
// partitions: every translator must tolerate concurrent invocation and
// the source must be partitionable.
func (p *Pipeline) computeParallel() {
	if len(p.translators) == 0 {
		return
	}
	src := p.translators[len(p.translators)-1]
	if _, ok := src.(*seqScanTranslator); !ok {
		return
	}
	for _, t := range p.translators {
		if !t.ParallelOK() {
			return
		}
	}
	p.parallel = true
}

// topoOrder returns the pipelines reachable from roots in dependency
// order: every pipeline after all of its dependencies.
func topoOrder(roots []*Pipeline) ([]*Pipeline, error) {
	var out []*Pipeline
	state := map[*Pipeline]int{} // 0 unvisited, 1 in progress, 2 done
	var visit func(p *Pipeline) error
	visit = func(p *Pipeline) error {
		switch state[p] {
		case 2:
			return nil
		case 1:
			return errors.AssertionFailedf("pipeline dependency cycle through pipeline %d", p.id)
		}
		state[p] = 1
		for _, d := range p.deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		state[p] = 2
		out = append(out, p)
		return nil
	}
	for _, r := range roots {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}
