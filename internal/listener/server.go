// Package listener implements the bridge listener: a loopback websocket
// server the interpreter-side client gateway connects to, and the host-side
// callback client for the reverse direction. The lifecycle code in
// internal/gateway configures endpoints, ports, and the authentication
// toggle; the wire format itself lives in internal/protocol.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"pybridge/internal/logging"
	"pybridge/internal/protocol"

	"nhooyr.io/websocket"
)

const (
	connectTimeout = 10 * time.Second
	readTimeout    = 10 * time.Second

	// UnboundPort is reported until the listener has bound a real port.
	UnboundPort = -1
)

// Target is the entry point exposed to the interpreter: the root of the
// remote object graph reachable over the bridge.
type Target interface {
	Invoke(ctx context.Context, method string, args []any) (any, error)
}

type Options struct {
	// Addr defaults to an ephemeral port on the loopback interface.
	Addr string

	// Token enables authentication: every incoming frame must carry it.
	Token string

	Logger logging.Logger
}

// Server owns the accept goroutine and one handler goroutine per connection.
// Callers see only two lifecycle events: started (via Start) and shut down
// (via Shutdown); everything in between is the server's own business.
type Server struct {
	opts  Options
	entry Target

	mu      sync.Mutex
	ln      net.Listener
	httpSrv *http.Server
	port    int
	bindErr error

	bound        chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewServer validates the options and builds an unstarted server. A token
// must be plain printable ASCII with no whitespace; anything else fails here
// so the caller can decide to proceed without authentication.
func NewServer(entry Target, opts Options) (*Server, error) {
	if entry == nil {
		return nil, errors.New("listener entry point is required")
	}
	if err := validateToken(opts.Token); err != nil {
		return nil, err
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	return &Server{
		opts:  opts,
		entry: entry,
		port:  UnboundPort,
		bound: make(chan struct{}),
	}, nil
}

func validateToken(token string) error {
	if token == "" {
		return nil
	}
	for _, r := range token {
		if r <= ' ' || r > '~' {
			return fmt.Errorf("auth token contains unusable character %q", r)
		}
	}
	return nil
}

// Start begins listening in the background and returns immediately. The
// bound port becomes observable through Port and Bound once binding
// completes; if binding fails the server stays unbound and records the error.
func (s *Server) Start() {
	go s.run()
}

func (s *Server) run() {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.mu.Lock()
		s.bindErr = err
		s.mu.Unlock()
		s.opts.Logger.Error("listener bind failed", "addr", s.opts.Addr, "err", err.Error())
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/bridge", s.handleWS)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: connectTimeout,
	}

	s.mu.Lock()
	s.ln = ln
	s.httpSrv = httpSrv
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.mu.Unlock()
	close(s.bound)

	s.opts.Logger.Debug("listener bound", "port", s.Port(), "auth", s.opts.Token != "")

	if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.opts.Logger.Warn("listener stopped", "err", err.Error())
	}
}

func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Bound closes once the listener has a real port.
func (s *Server) Bound() <-chan struct{} {
	return s.bound
}

// BindErr reports a bind failure, if one happened. The bind wait itself is
// unbounded; callers needing a deadline impose their own.
func (s *Server) BindErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindErr
}

// Shutdown stops the accept goroutine and all per-connection handlers. Safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		httpSrv := s.httpSrv
		s.mu.Unlock()
		if httpSrv == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s.shutdownErr = httpSrv.Shutdown(shutdownCtx)
		s.opts.Logger.Debug("listener shut down", "port", s.Port())
	})
	return s.shutdownErr
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	for {
		data, err := readFrame(ctx, conn)
		if err != nil {
			return
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			s.opts.Logger.Warn("invalid envelope", "err", err.Error())
			continue
		}
		if s.opts.Token != "" && env.Token != s.opts.Token {
			s.opts.Logger.Warn("frame rejected: bad token", "remote", r.RemoteAddr)
			_ = conn.Close(websocket.StatusPolicyViolation, "invalid token")
			return
		}

		switch env.Type {
		case protocol.TypeInvoke:
			s.dispatch(ctx, conn, env)
		default:
			s.opts.Logger.Debug("ignored frame", "type", env.Type)
		}
	}
}

func readFrame(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	readCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	_, data, err := conn.Read(readCtx)
	return data, err
}

func (s *Server) dispatch(ctx context.Context, conn *websocket.Conn, env *protocol.Envelope) {
	var payload protocol.InvokePayload
	result := protocol.ResultPayload{}
	if err := decodePayload(env.Payload, &payload); err != nil {
		result.Error = &protocol.ResultError{Message: "invalid invoke payload", Code: "bad_payload"}
	} else if strings.TrimSpace(payload.Method) == "" {
		result.Error = &protocol.ResultError{Message: "missing method", Code: "bad_payload"}
	} else {
		value, err := s.entry.Invoke(ctx, payload.Method, payload.Args)
		if err != nil {
			result.Error = &protocol.ResultError{Message: err.Error(), Code: "invoke_failed"}
		} else {
			result.OK = true
			result.Value = value
		}
	}

	reply := protocol.Envelope{
		V:       1,
		Type:    protocol.TypeResult,
		ReqID:   env.ReqID,
		Ts:      time.Now().Unix(),
		Payload: protocol.MustMarshalJSON(result),
	}
	data, err := protocol.EncodeEnvelope(reply)
	if err != nil {
		s.opts.Logger.Warn("encode result failed", "req_id", env.ReqID, "err", err.Error())
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.opts.Logger.Debug("write result failed", "req_id", env.ReqID, "err", err.Error())
	}
}

func decodePayload(raw []byte, v any) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(raw, v)
}
