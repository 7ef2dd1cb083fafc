package gateway

import (
	"context"
	"sync"

	"pybridge/internal/interp"
	"pybridge/internal/logging"
)

// Detach before stop: the interpreter-side session holds a back-reference to
// the host session, and stopping it with that reference still attached would
// stop the host session as a side effect. That ordering is load-bearing.
const detachScript = `if "session" in globals() and session is not None:
    session.detach_host()
`

const stopScript = `if "session" in globals() and session is not None:
    session.stop()
session = None
conf = None
ctx = None
_pybridge_gateway = None
`

// Coordinator tears one bridge session down, in order: sever the
// interpreter-side session's back-reference to the host session, stop the
// interpreter-side session, reset the session state bundle, and shut the
// listener down. The whole procedure runs at most once, whether triggered by
// the interpreter's exit hook or by Session.Close.
type Coordinator struct {
	logger logging.Logger
	in     interp.Interpreter
	handle *Handle
	state  *State

	once sync.Once
}

func newCoordinator(logger logging.Logger, in interp.Interpreter, handle *Handle, state *State) *Coordinator {
	return &Coordinator{logger: logger, in: in, handle: handle, state: state}
}

// Install registers the teardown as the interpreter's exit procedure. Called
// last during setup, so teardown never runs against a half-initialized
// bridge.
func (c *Coordinator) Install() {
	c.in.OnExit(c.run)
}

func (c *Coordinator) run() {
	c.once.Do(c.teardown)
}

// teardown is best-effort cleanup, not a transaction: each step is expected
// to succeed under normal conditions and failures are only logged.
func (c *Coordinator) teardown() {
	ctx := context.Background()

	if err := c.in.Eval(ctx, detachScript); err != nil {
		c.logger.Warn("detach session back-reference failed", "err", err.Error())
	}
	if err := c.in.Eval(ctx, stopScript); err != nil {
		c.logger.Warn("stop interpreter session failed", "err", err.Error())
	}
	c.state.Reset()
	if err := c.handle.Shutdown(ctx); err != nil {
		c.logger.Warn("listener shutdown failed", "err", err.Error())
	}
	c.logger.Info("bridge shut down")
}
