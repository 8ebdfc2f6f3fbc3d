package VM

func installIterHandlers(t *[NumOpCodes]handler) {
	t[OpTableIterInit] = bcOpTableIterInit
	t[OpTableIterPartInit] = bcOpTableIterPartInit
	t[OpTableFilterEq] = bcOpTableFilter
	t[OpTableFilterNe] = bcOpTableFilter
	t[OpTableFilterLt] = bcOpTableFilter
	t[OpTableFilterLe] = bcOpTableFilter
	t[OpTableFilterGt] = bcOpTableFilter
	t[OpTableFilterGe] = bcOpTableFilter
	t[OpTableIterNext] = bcOpTableIterNext
	t[OpTableIterCol] = bcOpTableIterCol
	t[OpTableIterRowID] = bcOpTableIterRowID
	t[OpTableIterClose] = bcOpSlotRelease
	t[OpIndexIterInit] = bcOpIndexIterInit
	t[OpIndexIterScanKey] = bcOpIndexIterScanKey
	t[OpIndexIterScanAsc] = bcOpIndexIterScanAsc
	t[OpIndexIterScanDesc] = bcOpIndexIterScanDesc
	t[OpIndexIterLimit] = bcOpIndexIterLimit
	t[OpIndexIterNext] = bcOpIndexIterNext
	t[OpIndexIterCol] = bcOpIndexIterCol
	t[OpIndexIterRowID] = bcOpIndexIterRowID
	t[OpIndexIterClose] = bcOpSlotRelease

	t[OpAggHTInit] = bcOpAggHTInit
	t[OpAggHTAggKind] = bcOpAggHTAggKind
	t[OpAggHTUpsert] = bcOpAggHTUpsert
	t[OpAggHTStep] = bcOpAggHTStep
	t[OpAggHTTransfer] = bcOpAggHTTransfer
	t[OpAggHTIterInit] = bcOpAggHTIterInit
	t[OpAggHTIterNext] = bcOpAggHTIterNext
	t[OpAggHTIterKey] = bcOpAggHTIterKey
	t[OpAggHTIterAgg] = bcOpAggHTIterAgg
	t[OpAggHTIterClose] = bcOpSlotRelease
	t[OpAggHTFree] = bcOpSlotRelease

	t[OpAggInit] = bcOpAggInit
	t[OpAggStep] = bcOpAggStep
	t[OpAggResult] = bcOpAggResult
	t[OpAggReset] = bcOpAggReset

	t[OpJoinHTInit] = bcOpJoinHTInit
	t[OpJoinHTInsert] = bcOpJoinHTInsert
	t[OpJoinHTBuild] = bcOpJoinHTBuild
	t[OpJoinHTProbeInit] = bcOpJoinHTProbeInit
	t[OpJoinHTProbeNext] = bcOpJoinHTProbeNext
	t[OpJoinHTProbeCol] = bcOpJoinHTProbeCol
	t[OpJoinHTProbeClose] = bcOpSlotRelease
	t[OpJoinHTFree] = bcOpSlotRelease

	t[OpSorterInit] = bcOpSorterInit
	t[OpSorterKey] = bcOpSorterKey
	t[OpSorterInsert] = bcOpSorterInsert
	t[OpSorterSort] = bcOpSorterSort
	t[OpSorterSortTopK] = bcOpSorterSortTopK
	t[OpSorterIterInit] = bcOpSorterIterInit
	t[OpSorterIterNext] = bcOpSorterIterNext
	t[OpSorterIterCol] = bcOpSorterIterCol
	t[OpSorterIterClose] = bcOpSlotRelease
	t[OpSorterFree] = bcOpSlotRelease
}

// bcOpSlotRelease closes and clears whatever the slot owns; shared
// across every Close/Free opcode since release is kind-agnostic and
// idempotent.
func bcOpSlotRelease(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slot(fr, in.A)
	if err != nil {
		return 0, err
	}
	s.release()
	return pc + 1, nil
}

func bcOpTableIterInit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	iter, err := vm.ec.Store.OpenScan(in.B, 0, 1)
	if err != nil {
		return 0, err
	}
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		iter.Close()
		return 0, err
	}
	s.obj = &tableCursor{iter: iter}
	return pc + 1, nil
}

// bcOpTableIterPartInit binds the executing worker's disjoint partition.
func bcOpTableIterPartInit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	iter, err := vm.ec.Store.OpenScan(in.B, fr.part, fr.parts)
	if err != nil {
		return 0, err
	}
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		iter.Close()
		return 0, err
	}
	s.obj = &tableCursor{iter: iter}
	return pc + 1, nil
}

func bcOpTableFilter(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slot(fr, in.A)
	if err != nil {
		return 0, err
	}
	tc, err := s.tableCursor()
	if err != nil {
		return 0, err
	}
	tc.installFilter(batchFilter{col: in.B, op: in.OpCode(), val: vm.prog.Consts[in.C]})
	return pc + 1, nil
}

func bcOpTableIterNext(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slot(fr, in.A)
	if err != nil {
		return 0, err
	}
	tc, err := s.tableCursor()
	if err != nil {
		return 0, err
	}
	ok, err := tc.next(vm.ec.Txn)
	if err != nil {
		return 0, err
	}
	if !ok {
		return int(in.B), nil
	}
	return pc + 1, nil
}

func bcOpTableIterCol(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slot(fr, in.B)
	if err != nil {
		return 0, err
	}
	tc, err := s.tableCursor()
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = tc.col(in.C)
	return pc + 1, nil
}

func bcOpTableIterRowID(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slot(fr, in.B)
	if err != nil {
		return 0, err
	}
	tc, err := s.tableCursor()
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Int(tc.rowID())
	return pc + 1, nil
}

func bcOpIndexIterInit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	iter, err := vm.ec.Store.OpenIndex(in.B, in.C)
	if err != nil {
		return 0, err
	}
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		iter.Close()
		return 0, err
	}
	s.obj = &indexCursor{iter: iter, tableID: in.B, store: vm.ec.Store, limit: -1}
	return pc + 1, nil
}

func indexCursorAt(vm *VM, fr *frame, idx int32) (*indexCursor, error) {
	s, err := vm.slot(fr, idx)
	if err != nil {
		return nil, err
	}
	return s.indexCursor()
}

func bcOpIndexIterScanKey(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ic, err := indexCursorAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	if err := ic.iter.ScanKey(fr.regs[in.B]); err != nil {
		return 0, err
	}
	return pc + 1, nil
}

func bcOpIndexIterScanAsc(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ic, err := indexCursorAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	if err := ic.iter.ScanRange(fr.regs[in.B], fr.regs[in.C], false, ic.limit); err != nil {
		return 0, err
	}
	return pc + 1, nil
}

func bcOpIndexIterScanDesc(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ic, err := indexCursorAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	if err := ic.iter.ScanRange(fr.regs[in.B], fr.regs[in.C], true, ic.limit); err != nil {
		return 0, err
	}
	return pc + 1, nil
}

func bcOpIndexIterLimit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ic, err := indexCursorAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	ic.limit = int64(in.B)
	return pc + 1, nil
}

func bcOpIndexIterNext(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ic, err := indexCursorAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	if !ic.next() {
		return int(in.B), nil
	}
	return pc + 1, nil
}

func bcOpIndexIterCol(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ic, err := indexCursorAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	v, err := ic.col(vm.ec.Txn, in.C)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = v
	return pc + 1, nil
}

func bcOpIndexIterRowID(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ic, err := indexCursorAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Int(ic.rowID)
	return pc + 1, nil
}

func bcOpAggHTInit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		return 0, err
	}
	s.obj = NewAggHashTable(int(in.B), int(in.C))
	return pc + 1, nil
}

func aggHTAt(vm *VM, fr *frame, idx int32) (*AggHashTable, error) {
	s, err := vm.slot(fr, idx)
	if err != nil {
		return nil, err
	}
	return s.aggHT()
}

func bcOpAggHTAggKind(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ht, err := aggHTAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	ht.SetAggKind(in.B, AggKind(in.C))
	return pc + 1, nil
}

func bcOpAggHTUpsert(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ht, err := aggHTAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	keys := fr.regs[in.C : in.C+int32(ht.NumKeys())]
	idx, err := ht.Upsert(keys)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = Int(int64(idx))
	return pc + 1, nil
}

func bcOpAggHTStep(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ht, err := aggHTAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	entry := fr.regs[in.B]
	if entry.IsNull() {
		return 0, errNullOperand
	}
	args := fr.regs[in.C : in.C+int32(ht.NumAggs())]
	if err := ht.StepRow(int32(entry.N), args); err != nil {
		return 0, err
	}
	return pc + 1, nil
}

func bcOpAggHTTransfer(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ht, err := aggHTAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	ht.Transfer()
	return pc + 1, nil
}

func bcOpAggHTIterInit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ht, err := aggHTAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		return 0, err
	}
	s.obj = newAggHTIter(ht)
	return pc + 1, nil
}

func aggHTIterAt(vm *VM, fr *frame, idx int32) (*aggHTIter, error) {
	s, err := vm.slot(fr, idx)
	if err != nil {
		return nil, err
	}
	return s.aggHTIter()
}

func bcOpAggHTIterNext(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	it, err := aggHTIterAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	if !it.next() {
		return int(in.B), nil
	}
	return pc + 1, nil
}

func bcOpAggHTIterKey(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	it, err := aggHTIterAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = it.key(in.C)
	return pc + 1, nil
}

func bcOpAggHTIterAgg(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	it, err := aggHTIterAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = it.result(in.C)
	return pc + 1, nil
}

func bcOpAggInit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		return 0, err
	}
	s.obj = NewAggregator(AggKind(in.B))
	return pc + 1, nil
}

func aggAt(vm *VM, fr *frame, idx int32) (*Aggregator, error) {
	s, err := vm.slot(fr, idx)
	if err != nil {
		return nil, err
	}
	return s.aggregator()
}

func bcOpAggStep(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ag, err := aggAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	ag.Step(fr.regs[in.B])
	return pc + 1, nil
}

func bcOpAggResult(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ag, err := aggAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = ag.Result()
	return pc + 1, nil
}

func bcOpAggReset(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ag, err := aggAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	ag.Reset()
	return pc + 1, nil
}

func bcOpJoinHTInit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		return 0, err
	}
	s.obj = NewJoinHashTable(int(in.B), int(in.C))
	return pc + 1, nil
}

func joinHTAt(vm *VM, fr *frame, idx int32) (*JoinHashTable, error) {
	s, err := vm.slot(fr, idx)
	if err != nil {
		return nil, err
	}
	return s.joinHT()
}

func bcOpJoinHTInsert(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ht, err := joinHTAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	keys := fr.regs[in.B : in.B+int32(ht.NumKeys())]
	row := fr.regs[in.C : in.C+int32(ht.RowWidth())]
	if err := ht.Insert(keys, row); err != nil {
		return 0, err
	}
	return pc + 1, nil
}

func bcOpJoinHTBuild(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ht, err := joinHTAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	ht.Build()
	return pc + 1, nil
}

func bcOpJoinHTProbeInit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	ht, err := joinHTAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	keys := fr.regs[in.C : in.C+int32(ht.NumKeys())]
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		return 0, err
	}
	s.obj = ht.probe(keys)
	return pc + 1, nil
}

func joinProbeAt(vm *VM, fr *frame, idx int32) (*joinProbe, error) {
	s, err := vm.slot(fr, idx)
	if err != nil {
		return nil, err
	}
	return s.joinProbe()
}

func bcOpJoinHTProbeNext(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	p, err := joinProbeAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	if !p.next() {
		return int(in.B), nil
	}
	return pc + 1, nil
}

func bcOpJoinHTProbeCol(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	p, err := joinProbeAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = p.col(in.C)
	return pc + 1, nil
}

func bcOpSorterInit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		return 0, err
	}
	s.obj = NewSorter(int(in.B))
	return pc + 1, nil
}

func sorterAt(vm *VM, fr *frame, idx int32) (*Sorter, error) {
	s, err := vm.slot(fr, idx)
	if err != nil {
		return nil, err
	}
	return s.sorter()
}

func bcOpSorterKey(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	so, err := sorterAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	so.AddKey(in.B, in.C != 0)
	return pc + 1, nil
}

func bcOpSorterInsert(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	so, err := sorterAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	row := fr.regs[in.B : in.B+int32(so.RowWidth())]
	if err := so.Insert(row); err != nil {
		return 0, err
	}
	return pc + 1, nil
}

func bcOpSorterSort(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	so, err := sorterAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	so.Sort()
	return pc + 1, nil
}

func bcOpSorterSortTopK(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	so, err := sorterAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	so.SortTopK(int64(in.B))
	return pc + 1, nil
}

func bcOpSorterIterInit(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	so, err := sorterAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	s, err := vm.slotOwned(fr, in.A)
	if err != nil {
		return 0, err
	}
	s.obj = newSorterIter(so)
	return pc + 1, nil
}

func sorterIterAt(vm *VM, fr *frame, idx int32) (*sorterIter, error) {
	s, err := vm.slot(fr, idx)
	if err != nil {
		return nil, err
	}
	return s.sorterIter()
}

func bcOpSorterIterNext(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	it, err := sorterIterAt(vm, fr, in.A)
	if err != nil {
		return 0, err
	}
	if !it.next() {
		return int(in.B), nil
	}
	return pc + 1, nil
}

func bcOpSorterIterCol(vm *VM, fr *frame, in Instr, pc int) (int, error) {
	it, err := sorterIterAt(vm, fr, in.B)
	if err != nil {
		return 0, err
	}
	fr.regs[in.A] = it.col(in.C)
	return pc + 1, nil
}
