// Package interp provides the execution surface of the embedded Python
// runtime: synchronous eval, typed value retrieval, and exit hooks that run
// once when the interpreter session ends.
package interp

import "context"

// Interpreter is the contract the bridge setup relies on. Eval runs
// statements, EvalString and EvalInt evaluate a single expression and coerce
// the result. OnExit registers a hook invoked exactly once when the
// interpreter session terminates; hooks run in reverse registration order.
type Interpreter interface {
	Eval(ctx context.Context, code string) error
	EvalString(ctx context.Context, expr string) (string, error)
	EvalInt(ctx context.Context, expr string) (int, error)
	OnExit(hook func())
}

// RemoteError is an exception raised inside the interpreter. ObjectID names
// the stored exception object, which remains recoverable from the live
// session for as long as the interpreter runs.
type RemoteError struct {
	ObjectID string
	Message  string
}

func (e *RemoteError) Error() string {
	if e.ObjectID != "" {
		return "interpreter error [" + e.ObjectID + "]: " + e.Message
	}
	return "interpreter error: " + e.Message
}
