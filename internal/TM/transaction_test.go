package TM

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTxnLifecycle(t *testing.T) {
	m := NewManager()
	a := m.Begin()
	b := m.Begin()
	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, TxnActive, a.Status())
	require.False(t, a.Aborted())

	require.NoError(t, a.Commit(nil))
	require.Equal(t, TxnCommitted, a.Status())

	b.Abort()
	require.True(t, b.Aborted())
}

func TestCommitTwiceFails(t *testing.T) {
	txn := NewManager().Begin()
	require.NoError(t, txn.Commit(nil))
	require.Error(t, txn.Commit(nil))
}

func TestCommitCallback(t *testing.T) {
	txn := NewManager().Begin()
	called := false
	require.NoError(t, txn.Commit(func() { called = true }))
	require.True(t, called)
}

func TestAbortRunsUndoInReverse(t *testing.T) {
	txn := NewManager().Begin()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, txn.OnUndo(func() { order = append(order, i) }))
	}
	txn.Abort()
	require.Equal(t, []int{2, 1, 0}, order)
}

func TestAbortTwiceIsNoop(t *testing.T) {
	txn := NewManager().Begin()
	runs := 0
	require.NoError(t, txn.OnUndo(func() { runs++ }))
	txn.Abort()
	txn.Abort()
	require.Equal(t, 1, runs)
}

func TestCommitDropsUndo(t *testing.T) {
	txn := NewManager().Begin()
	runs := 0
	require.NoError(t, txn.OnUndo(func() { runs++ }))
	require.NoError(t, txn.Commit(nil))
	txn.Abort()
	require.Equal(t, 0, runs)
}

func TestOnUndoAfterFinishFails(t *testing.T) {
	txn := NewManager().Begin()
	require.NoError(t, txn.Commit(nil))
	require.Error(t, txn.OnUndo(func() {}))

	txn = NewManager().Begin()
	txn.Abort()
	require.Error(t, txn.OnUndo(func() {}))
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "active", TxnActive.String())
	require.Equal(t, "committed", TxnCommitted.String())
	require.Equal(t, "aborted", TxnAborted.String())
}
