package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"pybridge/internal/compute"
	"pybridge/internal/interp"
	"pybridge/internal/logging"
)

const importScript = "import pybridge_client as _pbc"

// Setup progress milestones, reported in order.
const (
	progressImports    = 0.2
	progressAuth       = 0.4
	progressBound      = 0.7
	progressRegistered = 1.0
)

// ProgressFunc receives fractional setup progress in [0, 1]. Purely
// observational; it has no effect on control flow.
type ProgressFunc func(fraction float64)

type SetupOptions struct {
	Interpreter interp.Interpreter
	Compute     compute.Session
	EntryPoint  Target

	// State is the session-scoped bundle owned by this bridge instance. A
	// caller running several sessions in one process passes the same bundle
	// each time; defaults to a fresh one.
	State *State

	Progress ProgressFunc
	Logger   logging.Logger
}

// Session owns one live bridge and its teardown.
type Session struct {
	logger logging.Logger
	in     interp.Interpreter
	state  *State
	handle handleRef
	coord  *Coordinator
}

// StartSession runs the bridge setup end to end: environment export,
// interpreter imports, authentication negotiation, listener start and
// bind-wait, callback channel registration, and finally the exit hook. The
// steps block in order, so run this on a worker goroutine. There is no retry
// and no mid-flight cancellation of the bridge start itself: a failure
// aborts the rest of setup and surfaces as a single *SetupError, and nothing
// is left published. Interpreter global state mutated before the failure is
// not rolled back.
func StartSession(ctx context.Context, opts SetupOptions) (*Session, error) {
	if opts.Interpreter == nil {
		return nil, errors.New("interpreter is required")
	}
	if opts.Compute == nil {
		return nil, errors.New("compute session is required")
	}
	if opts.EntryPoint == nil {
		return nil, errors.New("entry point is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(float64) {}
	}
	state := opts.State
	if state == nil {
		state = NewState()
	}

	s := &Session{logger: logger, in: opts.Interpreter, state: state}

	includes, err := ConfigureEnvironment(ctx, opts.Interpreter, opts.Compute)
	if err != nil {
		return nil, setupErr("environment", err)
	}
	if includes != "" {
		state.setIncludesPath(includes)
	}

	if err := opts.Interpreter.Eval(ctx, importScript); err != nil {
		return nil, setupErr("imports", err)
	}
	progress(progressImports)

	requireAuth := ShouldAuthenticate(ctx, opts.Interpreter)
	secret := ""
	if requireAuth {
		secret = SharedSecret()
	}
	logger.Debug("authentication negotiated", "enabled", requireAuth)
	progress(progressAuth)

	h, err := NewBridge(logger).Start(opts.EntryPoint, requireAuth, secret)
	if err != nil {
		return nil, setupErr("listener", err)
	}
	if err := s.handle.set(h); err != nil {
		_ = h.Shutdown(context.Background())
		return nil, setupErr("listener", err)
	}
	state.setGateway(h, opts.EntryPoint)
	progress(progressBound)

	if err := Register(ctx, opts.Interpreter, h, secret, state); err != nil {
		// No partial bridge stays published for later use; the interpreter
		// globals mutated so far are the documented exception.
		state.Reset()
		_ = h.Shutdown(context.Background())
		return nil, setupErr("register", err)
	}

	s.coord = newCoordinator(logger, opts.Interpreter, h, state)
	s.coord.Install()
	progress(progressRegistered)

	logger.Info("bridge session ready",
		"port", h.Port(),
		"callback_port", h.CallbackPort(),
		"auth", h.AuthEnabled())
	return s, nil
}

// Handle returns the published bridge handle.
func (s *Session) Handle() *Handle {
	return s.handle.get()
}

// State returns the session-scoped state bundle.
func (s *Session) State() *State {
	return s.state
}

// Close releases the bridge on any exit path of the owning session. It
// shares the exit hook's once guard, so the teardown runs at most once no
// matter which side triggers it first.
func (s *Session) Close() error {
	if s.coord != nil {
		s.coord.run()
	}
	return nil
}

// RemoteError fetches the stored interpreter exception identified by
// objectID from the live bridge.
func (s *Session) RemoteError(ctx context.Context, objectID string) (string, error) {
	return LookupRemoteError(ctx, s.in, objectID)
}

// LookupRemoteError fetches the stored interpreter exception identified by
// objectID. It works for as long as the interpreter is alive, including
// after a failed setup that produced no session.
func LookupRemoteError(ctx context.Context, in interp.Interpreter, objectID string) (string, error) {
	expr := fmt.Sprintf("__pybridge_errors__[%s]", strconv.Quote(objectID))
	return in.EvalString(ctx, expr)
}
