package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pybridge/internal/compute"
	"pybridge/internal/interp"
)

const (
	// PythonEnvVar selects the interpreter executable the session's workers
	// run.
	PythonEnvVar = "PYBRIDGE_PYTHON"

	// DefaultPythonExec must stay a bare PATH-resolvable name: cluster
	// workers cannot resolve a driver-local path.
	DefaultPythonExec = "python3"

	// PythonExecKey is the driver-side override on the session config.
	PythonExecKey = "bridge.python.exec"

	// PythonIncludesKey optionally extends the interpreter module path.
	PythonIncludesKey = "bridge.python.includes"

	includesEnvVar = "PYBRIDGE_PYTHONPATH"
)

// ConfigureEnvironment exports the interpreter executable into the
// interpreter's environment and returns the includes path, if configured.
// In local mode the driver-side override wins when present; in cluster mode
// the default always wins regardless of any override. Must run before
// anything in the interpreter references the compute session: worker
// executable resolution is cached at session creation.
func ConfigureEnvironment(ctx context.Context, in interp.Interpreter, sess compute.Session) (string, error) {
	exe := DefaultPythonExec
	if sess.Mode() == compute.ModeLocal {
		if v, ok := sess.Config().Get(PythonExecKey); ok && strings.TrimSpace(v) != "" {
			exe = v
		}
	}
	if err := in.Eval(ctx, setEnvCode(PythonEnvVar, exe)); err != nil {
		return "", err
	}

	includes, ok := sess.Config().Get(PythonIncludesKey)
	if !ok || strings.TrimSpace(includes) == "" {
		return "", nil
	}
	if err := in.Eval(ctx, setEnvCode(includesEnvVar, includes)); err != nil {
		return "", err
	}
	return includes, nil
}

func setEnvCode(name string, value string) string {
	return fmt.Sprintf("import os; os.environ[%s] = %s",
		strconv.Quote(name), strconv.Quote(value))
}
