package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeInterp scripts the interpreter side of the handshake so lifecycle
// tests run without a Python process.
type fakeInterp struct {
	mu    sync.Mutex
	evals []string
	hooks []func()

	version    string
	versionErr error

	callbackPort int

	// onEval, when set, decides the outcome of each Eval call.
	onEval func(code string) error

	// strings answers EvalString for expressions other than the version
	// probe.
	strings map[string]string
}

func newFakeInterp() *fakeInterp {
	return &fakeInterp{
		version:      "0.10.9",
		callbackPort: 45913,
		strings:      make(map[string]string),
	}
}

func (f *fakeInterp) Eval(ctx context.Context, code string) error {
	f.mu.Lock()
	f.evals = append(f.evals, code)
	onEval := f.onEval
	f.mu.Unlock()
	if onEval != nil {
		return onEval(code)
	}
	return nil
}

func (f *fakeInterp) EvalString(ctx context.Context, expr string) (string, error) {
	if expr == versionProbe {
		if f.versionErr != nil {
			return "", f.versionErr
		}
		return f.version, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.strings[expr]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unexpected expression: %q", expr)
}

func (f *fakeInterp) EvalInt(ctx context.Context, expr string) (int, error) {
	if expr == callbackPortProbe {
		return f.callbackPort, nil
	}
	return 0, fmt.Errorf("unexpected expression: %q", expr)
}

func (f *fakeInterp) OnExit(hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, hook)
}

func (f *fakeInterp) evalIndex(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, code := range f.evals {
		if strings.Contains(code, substr) {
			return i
		}
	}
	return -1
}

func (f *fakeInterp) evalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.evals)
}

func (f *fakeInterp) runExitHooks() {
	f.mu.Lock()
	hooks := f.hooks
	f.hooks = nil
	f.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}
