package gateway

import (
	"context"
	"errors"
	"sync"

	"pybridge/internal/listener"
)

// Target aliases the listener's entry-point contract so callers wire their
// object graph without importing the transport package.
type Target = listener.Target

// Handle identifies one running listener instance: the bound port, the
// authentication mode in effect, and the callback client for the reverse
// direction. Exactly one live handle exists per session.
type Handle struct {
	server      *listener.Server
	callback    *listener.Client
	authEnabled bool
}

func (h *Handle) Port() int {
	return h.server.Port()
}

func (h *Handle) AuthEnabled() bool {
	return h.authEnabled
}

// RedirectCallback re-homes the callback client onto the port the
// interpreter-side callback server actually bound.
func (h *Handle) RedirectCallback(port int) {
	h.callback.Redirect(port)
}

// CallbackPort reports where the callback client currently points.
func (h *Handle) CallbackPort() int {
	return h.callback.Port()
}

// Callback invokes a method on the interpreter side over the reverse channel.
func (h *Handle) Callback(ctx context.Context, method string, args []any) (any, error) {
	return h.callback.Call(ctx, method, args)
}

// Shutdown stops the listener and drops the callback connection.
func (h *Handle) Shutdown(ctx context.Context) error {
	cbErr := h.callback.Close()
	srvErr := h.server.Shutdown(ctx)
	if srvErr != nil {
		return srvErr
	}
	return cbErr
}

// handleRef is the single settable reference a session publishes its handle
// through. Written exactly once, by the bridge start path only.
type handleRef struct {
	mu sync.Mutex
	h  *Handle
}

func (r *handleRef) set(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.h != nil {
		return errors.New("bridge handle already published")
	}
	r.h = h
	return nil
}

func (r *handleRef) get() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.h
}
