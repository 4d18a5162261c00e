package bitmask

import "fmt"

// InvariantError describes a violation found by VerifyInvariants. It is
// never returned from Set/Get/Remove; those are unconditionally correct by
// construction. It exists purely for debug assertions and tests.
type InvariantError struct {
	msg string
}

func (e *InvariantError) Error() string {
	return "bitmask: invariant violation: " + e.msg
}

func newInvariantError(format string, args ...any) error {
	return &InvariantError{msg: fmt.Sprintf(format, args...)}
}
