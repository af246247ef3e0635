package sandbox

import (
	"errors"
	"fmt"
)

// ErrNoResult reports that a program executed without producing a result
// set. It follows the same retry path as an execution error.
var ErrNoResult = errors.New("query produced no result")

// SecurityError reports a program that was rejected before execution, either
// because it contained a denylisted token or because it was not a single
// read-only statement. The check is textual, not a parser-level guarantee;
// the snapshot isolation and the locked database configuration are the
// layers that actually contain a query that slips through.
type SecurityError struct {
	// Token is the denylisted token that triggered the rejection, empty
	// for structural rejections.
	Token  string
	Reason string
}

func (e *SecurityError) Error() string {
	return "query rejected: " + e.Reason
}

// ExecError reports a program that failed during execution. The underlying
// message is echoed back into the next generation attempt verbatim.
type ExecError struct {
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
