package VM

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Fault sentinels raised by handlers for runtime data errors. The dispatch
// loop wraps them into a RuntimeError carrying position information.
var (
	errDivByZero   = errors.New("division by zero")
	errNullOperand = errors.New("NULL operand in non-null-aware operation")
)

// RuntimeError is a typed runtime fault from the VM: a data error inside
// the compiled program, as opposed to a collaborator error, which passes
// through unchanged.
type RuntimeError struct {
	Fn    string
	PC    int
	Op    OpCode
	cause error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime fault in %s at pc=%d (%s): %v", e.Fn, e.PC, e.Op, e.cause)
}

func (e *RuntimeError) Unwrap() error { return e.cause }

// IsRuntimeFault reports whether err is a typed VM runtime fault.
func IsRuntimeFault(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

func isFaultSentinel(err error) bool {
	return errors.Is(err, errDivByZero) || errors.Is(err, errNullOperand)
}
