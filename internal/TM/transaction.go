// Package TM is the transaction collaborator: begin/commit/abort with
// undo actions. Aborting the enclosing transaction is the only
// cancellation channel a compiled program observes.
package TM

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// TxnStatus is the lifecycle state of a transaction.
type TxnStatus uint8

const (
	TxnActive TxnStatus = iota
	TxnCommitted
	TxnAborted
)

var statusNames = [...]string{"active", "committed", "aborted"}

func (s TxnStatus) String() string { return statusNames[s] }

// Txn is one transaction handle. Mutating collaborators register undo
// actions; Abort runs them in reverse order.
type Txn struct {
	id     uint64
	mu     sync.Mutex
	status TxnStatus
	undo   []func()
}

// ID returns the transaction id.
func (t *Txn) ID() uint64 { return t.id }

// Status returns the current lifecycle state.
func (t *Txn) Status() TxnStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Aborted reports whether the transaction has been aborted.
func (t *Txn) Aborted() bool { return t.Status() == TxnAborted }

// OnUndo registers an action run if the transaction aborts.
func (t *Txn) OnUndo(fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TxnActive {
		return errors.Newf("txn %d is %s; cannot register undo", t.id, t.status)
	}
	t.undo = append(t.undo, fn)
	return nil
}

// Commit finalizes the transaction and invokes callback afterwards.
func (t *Txn) Commit(callback func()) error {
	t.mu.Lock()
	if t.status != TxnActive {
		s := t.status
		t.mu.Unlock()
		return errors.Newf("txn %d is already %s", t.id, s)
	}
	t.status = TxnCommitted
	t.undo = nil
	t.mu.Unlock()
	if callback != nil {
		callback()
	}
	return nil
}

// Abort rolls back the transaction, running undo actions in reverse.
// Aborting twice is a no-op.
func (t *Txn) Abort() {
	t.mu.Lock()
	if t.status != TxnActive {
		t.mu.Unlock()
		return
	}
	t.status = TxnAborted
	undo := t.undo
	t.undo = nil
	t.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// Manager hands out transactions.
type Manager struct {
	next atomic.Uint64
}

// NewManager creates a transaction manager.
func NewManager() *Manager { return &Manager{} }

// Begin starts a new transaction.
func (m *Manager) Begin() *Txn {
	return &Txn{id: m.next.Add(1)}
}
