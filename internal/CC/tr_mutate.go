package CC

import (
	"github.com/cockroachdb/errors"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/internal/VM"
)

// insertTranslator appends each input row into the target table.
type insertTranslator struct {
	translatorBase
	ins *PL.Insert
}

func buildInsert(c *Context, n PL.Node, cur *Pipeline) error {
	m := n.(*PL.Insert)
	t := &insertTranslator{translatorBase: translatorBase{ctx: c, node: n}, ins: m}
	cur.Add(t)
	c.register(t)
	return c.buildNode(m.Input, cur)
}

// ParallelOK: mutation order must follow input order.
func (t *insertTranslator) ParallelOK() bool { return false }

func (t *insertTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	block := materializeRow(fb, row)
	fb.EmitABC(VM.OpRowInsert, t.ins.TableID, block, int32(len(row)))
	return nil
}

// updateTranslator rewrites the set columns of each scanned row in
// place, addressing rows by the id the scan produces.
type updateTranslator struct {
	translatorBase
	upd *PL.Update
}

func buildUpdate(c *Context, n PL.Node, cur *Pipeline) error {
	m := n.(*PL.Update)
	if len(m.SetCols) != len(m.SetExprs) {
		return errors.Newf("update of table %d: %d set columns but %d set expressions",
			m.TableID, len(m.SetCols), len(m.SetExprs))
	}
	t := &updateTranslator{translatorBase: translatorBase{ctx: c, node: n}, upd: m}
	cur.Add(t)
	c.register(t)
	return c.buildNode(m.Input, cur)
}

func (t *updateTranslator) ParallelOK() bool { return false }

func (t *updateTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	if t.pipe.rowIDReg < 0 {
		return errors.Newf("update of table %d: input does not expose row ids (want a scan over the target table)", t.upd.TableID)
	}
	// New row image: the scanned row with set columns overwritten.
	block := materializeRow(fb, row)
	for i, col := range t.upd.SetCols {
		if col < 0 || col >= len(row) {
			return errors.Newf("update of table %d: set column %d out of range [0,%d)", t.upd.TableID, col, len(row))
		}
		r, err := compileExpr(fb, t.upd.SetExprs[i], row, t.upd.Input.Schema())
		if err != nil {
			return err
		}
		fb.EmitAB(VM.OpMove, block+int32(col), r)
	}
	fb.EmitABC(VM.OpRowUpdate, t.upd.TableID, t.pipe.rowIDReg, block)
	return nil
}

// deleteTranslator removes each scanned row by id.
type deleteTranslator struct {
	translatorBase
	del *PL.Delete
}

func buildDelete(c *Context, n PL.Node, cur *Pipeline) error {
	m := n.(*PL.Delete)
	t := &deleteTranslator{translatorBase: translatorBase{ctx: c, node: n}, del: m}
	cur.Add(t)
	c.register(t)
	return c.buildNode(m.Input, cur)
}

func (t *deleteTranslator) ParallelOK() bool { return false }

func (t *deleteTranslator) Consume(fb *VM.FunctionBuilder, row []int32) error {
	if t.pipe.rowIDReg < 0 {
		return errors.Newf("delete from table %d: input does not expose row ids (want a scan over the target table)", t.del.TableID)
	}
	fb.EmitAB(VM.OpRowDelete, t.del.TableID, t.pipe.rowIDReg)
	return nil
}
