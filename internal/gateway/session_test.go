package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"pybridge/internal/compute"
	"pybridge/internal/interp"
)

func startTestSession(t *testing.T, in *fakeInterp, st *State) *Session {
	t.Helper()
	sess := newSession(compute.ModeLocal, nil)
	s, err := StartSession(context.Background(), SetupOptions{
		Interpreter: in,
		Compute:     sess,
		EntryPoint:  NewSessionEntryPoint(sess),
		State:       st,
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return s
}

func TestStartSessionCallbackRendezvous(t *testing.T) {
	in := newFakeInterp()
	in.callbackPort = 45677

	s := startTestSession(t, in, nil)
	defer func() { _ = s.Close() }()

	// The callback client must target exactly the port the interpreter-side
	// callback server reported as its own.
	if got := s.Handle().CallbackPort(); got != 45677 {
		t.Fatalf("callback client port = %d, want 45677", got)
	}
	if s.Handle().Port() <= 0 {
		t.Fatalf("bridge port = %d, want a real port", s.Handle().Port())
	}
	if s.State().ActiveSession() == "" {
		t.Fatalf("active session pointer not set after registration")
	}
	if s.State().Gateway() != s.Handle() {
		t.Fatalf("state bundle does not cache the published handle")
	}
}

func TestStartSessionProgressMilestones(t *testing.T) {
	in := newFakeInterp()
	sess := newSession(compute.ModeLocal, nil)

	var fractions []float64
	s, err := StartSession(context.Background(), SetupOptions{
		Interpreter: in,
		Compute:     sess,
		EntryPoint:  NewSessionEntryPoint(sess),
		Progress:    func(f float64) { fractions = append(fractions, f) },
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	defer func() { _ = s.Close() }()

	want := []float64{progressImports, progressAuth, progressBound, progressRegistered}
	if len(fractions) != len(want) {
		t.Fatalf("progress reported %d times, want %d: %v", len(fractions), len(want), fractions)
	}
	for i, f := range want {
		if fractions[i] != f {
			t.Fatalf("milestone %d = %v, want %v", i, fractions[i], f)
		}
	}
}

func TestStartSessionSurfacesRemoteError(t *testing.T) {
	in := newFakeInterp()
	in.onEval = func(code string) error {
		if code == importScript {
			return &interp.RemoteError{ObjectID: "e4f1", Message: "No module named pybridge_client"}
		}
		return nil
	}

	sess := newSession(compute.ModeLocal, nil)
	_, err := StartSession(context.Background(), SetupOptions{
		Interpreter: in,
		Compute:     sess,
		EntryPoint:  NewSessionEntryPoint(sess),
	})
	if err == nil {
		t.Fatalf("StartSession succeeded, want failure")
	}

	var setup *SetupError
	if !errors.As(err, &setup) {
		t.Fatalf("error type %T, want *SetupError", err)
	}
	if setup.Step != "imports" {
		t.Fatalf("failed step = %q, want imports", setup.Step)
	}
	if setup.ObjectID != "e4f1" {
		t.Fatalf("object id = %q, want e4f1", setup.ObjectID)
	}
	var remote *interp.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("originating remote error not recoverable via errors.As")
	}

	// The traceback stays retrievable from the interpreter even though no
	// session was produced.
	in.strings[`__pybridge_errors__["e4f1"]`] = "ModuleNotFoundError: No module named 'pybridge_client'"
	tb, err := LookupRemoteError(context.Background(), in, "e4f1")
	if err != nil {
		t.Fatalf("LookupRemoteError: %v", err)
	}
	if tb == "" {
		t.Fatalf("empty traceback for stored error object")
	}
}

func TestStartSessionRegisterFailureUnpublishes(t *testing.T) {
	in := newFakeInterp()
	in.onEval = func(code string) error {
		if code == namespaceScript {
			return errors.New("namespace registration refused")
		}
		return nil
	}

	st := NewState()
	sess := newSession(compute.ModeLocal, nil)
	_, err := StartSession(context.Background(), SetupOptions{
		Interpreter: in,
		Compute:     sess,
		EntryPoint:  NewSessionEntryPoint(sess),
		State:       st,
	})
	if err == nil {
		t.Fatalf("StartSession succeeded, want failure")
	}
	if st.Gateway() != nil {
		t.Fatalf("failed setup left a handle published in the state bundle")
	}
}

// cascadeSession simulates the host session object: stopping it other than
// through the detach path is an error.
type cascadeSession struct {
	*compute.LocalSession
	mu        sync.Mutex
	stopCalls int
}

func (c *cascadeSession) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopCalls++
	c.mu.Unlock()
	return errors.New("host session stopped through cascade")
}

func TestShutdownDetachesBeforeStop(t *testing.T) {
	in := newFakeInterp()
	host := &cascadeSession{LocalSession: newSession(compute.ModeLocal, nil)}

	detached := false
	in.onEval = func(code string) error {
		switch code {
		case detachScript:
			detached = true
		case stopScript:
			// The interpreter-side stop cascades into the host session only
			// while the back-reference is still attached.
			if !detached {
				return host.Stop(context.Background())
			}
		}
		return nil
	}

	s, err := StartSession(context.Background(), SetupOptions{
		Interpreter: in,
		Compute:     host,
		EntryPoint:  NewSessionEntryPoint(host),
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !detached {
		t.Fatalf("teardown never detached the session back-reference")
	}
	if host.stopCalls != 0 {
		t.Fatalf("host session stop cascaded %d times, want 0", host.stopCalls)
	}
	if di, si := in.evalIndex("detach_host"), in.evalIndex("session.stop()"); di < 0 || si < 0 || di > si {
		t.Fatalf("teardown order wrong: detach at %d, stop at %d", di, si)
	}
}

func TestShutdownRunsOnce(t *testing.T) {
	in := newFakeInterp()
	s := startTestSession(t, in, nil)

	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	evalsAfterFirst := in.evalCount()

	// A second Close and a late exit hook must both be no-ops.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	in.runExitHooks()

	if in.evalCount() != evalsAfterFirst {
		t.Fatalf("teardown ran more than once: %d evals, then %d", evalsAfterFirst, in.evalCount())
	}
}

func TestExitHookTriggersTeardown(t *testing.T) {
	in := newFakeInterp()
	s := startTestSession(t, in, nil)

	in.runExitHooks()

	if in.evalIndex("session.stop()") < 0 {
		t.Fatalf("exit hook did not run the teardown procedure")
	}
	// Close after the hook already fired must not repeat teardown.
	evals := in.evalCount()
	_ = s.Close()
	if in.evalCount() != evals {
		t.Fatalf("Close repeated teardown after exit hook ran")
	}
}

func TestTwoSetupTeardownCyclesSameProcess(t *testing.T) {
	st := NewState()
	secret := SharedSecret()

	for cycle := 1; cycle <= 2; cycle++ {
		t.Run(fmt.Sprintf("cycle%d", cycle), func(t *testing.T) {
			in := newFakeInterp()
			s := startTestSession(t, in, st)

			if st.Gateway() == nil {
				t.Fatalf("state bundle missing gateway during session")
			}
			if st.CallbackSeq() != 1 {
				t.Fatalf("callback counter = %d, want 1 (stale state from a previous cycle?)", st.CallbackSeq())
			}

			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			if st.Gateway() != nil {
				t.Fatalf("gateway cache survived teardown")
			}
			if st.ActiveSession() != "" {
				t.Fatalf("active session pointer survived teardown")
			}
			if st.CallbackSeq() != 0 {
				t.Fatalf("callback counter = %d after teardown, want 0", st.CallbackSeq())
			}
			if st.IncludesPath() != "" {
				t.Fatalf("includes path survived teardown")
			}
		})
	}

	if SharedSecret() != secret {
		t.Fatalf("shared secret changed across sessions in one process")
	}
}
