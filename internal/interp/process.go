package interp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sync"
	"time"

	"pybridge/internal/logging"

	"github.com/google/uuid"
)

// bootstrap is the program handed to the interpreter on startup. It runs a
// line-delimited JSON request loop on stdin/stdout and keeps raised
// exceptions in __pybridge_errors__ keyed by object id so the host can fetch
// them later.
const bootstrap = `import json, sys, traceback, uuid

__pybridge_errors__ = {}

def __pybridge_main__():
    out = sys.stdout
    for line in sys.stdin:
        line = line.strip()
        if not line:
            continue
        req = json.loads(line)
        op = req.get("op")
        if op == "exit":
            break
        resp = {"id": req.get("id")}
        try:
            if op == "exec":
                exec(compile(req["code"], "<pybridge>", "exec"), globals())
            elif op == "eval":
                resp["value"] = eval(compile(req["code"], "<pybridge>", "eval"), globals())
            else:
                raise ValueError("unknown op: %r" % op)
        except BaseException as e:
            oid = uuid.uuid4().hex
            __pybridge_errors__[oid] = "".join(
                traceback.format_exception(type(e), e, e.__traceback__))
            resp["error"] = {
                "message": str(e) or type(e).__name__,
                "object_id": oid,
            }
        out.write(json.dumps(resp, default=str) + "\n")
        out.flush()

__pybridge_main__()
`

const closeWait = 5 * time.Second

type ProcessOptions struct {
	Command string
	Args    []string
	Env     map[string]string
	Logger  logging.Logger
}

// Process runs the interpreter as a child process speaking the bootstrap's
// line protocol. It implements Interpreter.
type Process struct {
	logger logging.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	writeMu sync.Mutex
	enc     *json.Encoder

	pendingMu sync.Mutex
	pending   map[string]chan response

	hooksMu sync.Mutex
	hooks   []func()

	closeOnce sync.Once
	closeErr  error

	// done closes when the read loop observes EOF or the process exits.
	done chan struct{}
}

type request struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Code string `json:"code,omitempty"`
}

type response struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value,omitempty"`
	Error *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Message  string `json:"message"`
	ObjectID string `json:"object_id,omitempty"`
}

func StartProcess(ctx context.Context, opts ProcessOptions) (*Process, error) {
	if opts.Command == "" {
		return nil, errors.New("interpreter command is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop{}
	}

	args := append(append([]string{}, opts.Args...), "-c", bootstrap)
	cmd := exec.CommandContext(ctx, opts.Command, args...)
	cmd.Env = mergeEnv(os.Environ(), opts.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("interpreter stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("interpreter stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("interpreter stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start interpreter: %w", err)
	}

	p := &Process{
		logger:  logger,
		cmd:     cmd,
		stdin:   stdin,
		enc:     json.NewEncoder(stdin),
		pending: make(map[string]chan response),
		done:    make(chan struct{}),
	}
	go p.readLoop(stdout)
	go p.stderrLoop(stderr)

	logger.Debug("interpreter started", "command", opts.Command, "pid", cmd.Process.Pid)
	return p, nil
}

func (p *Process) Eval(ctx context.Context, code string) error {
	_, err := p.roundTrip(ctx, "exec", code)
	return err
}

func (p *Process) EvalString(ctx context.Context, expr string) (string, error) {
	raw, err := p.roundTrip(ctx, "eval", expr)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected string result for %q, got %s", expr, string(raw))
	}
	return s, nil
}

func (p *Process) EvalInt(ctx context.Context, expr string) (int, error) {
	raw, err := p.roundTrip(ctx, "eval", expr)
	if err != nil {
		return 0, err
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("expected integer result for %q, got %s", expr, string(raw))
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer result for %q, got %v", expr, f)
	}
	return int(f), nil
}

func (p *Process) OnExit(hook func()) {
	if hook == nil {
		return
	}
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.hooks = append(p.hooks, hook)
}

// Close runs exit hooks, asks the interpreter to leave its request loop, and
// waits for the process. Safe to call more than once.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.runExitHooks()

		p.writeMu.Lock()
		_ = p.enc.Encode(request{ID: uuid.NewString(), Op: "exit"})
		_ = p.stdin.Close()
		p.writeMu.Unlock()

		waited := make(chan error, 1)
		go func() { waited <- p.cmd.Wait() }()
		select {
		case err := <-waited:
			p.closeErr = err
		case <-time.After(closeWait):
			p.logger.Warn("interpreter did not exit, killing", "pid", p.cmd.Process.Pid)
			_ = p.cmd.Process.Kill()
			p.closeErr = <-waited
		}
	})
	return p.closeErr
}

func (p *Process) runExitHooks() {
	p.hooksMu.Lock()
	hooks := p.hooks
	p.hooks = nil
	p.hooksMu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

func (p *Process) roundTrip(ctx context.Context, op string, code string) (json.RawMessage, error) {
	req := request{ID: uuid.NewString(), Op: op, Code: code}
	ch := make(chan response, 1)

	p.pendingMu.Lock()
	p.pending[req.ID] = ch
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, req.ID)
		p.pendingMu.Unlock()
	}()

	p.writeMu.Lock()
	err := p.enc.Encode(req)
	p.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write to interpreter: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, errors.New("interpreter exited")
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &RemoteError{ObjectID: resp.Error.ObjectID, Message: resp.Error.Message}
		}
		return resp.Value, nil
	}
}

func (p *Process) readLoop(stdout io.Reader) {
	defer close(p.done)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			p.logger.Warn("invalid interpreter response", "err", err.Error())
			continue
		}
		p.pendingMu.Lock()
		ch := p.pending[resp.ID]
		p.pendingMu.Unlock()
		if ch == nil {
			p.logger.Debug("orphan interpreter response", "id", resp.ID)
			continue
		}
		ch <- resp
	}
}

func (p *Process) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		p.logger.Debug("interpreter stderr", "line", scanner.Text())
	}
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := append([]string{}, base...)
	for k, v := range extra {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
