package gateway

import (
	"context"
	"testing"

	"pybridge/internal/listener"
)

// entryFunc adapts a function to the listener entry-point contract. A nil
// function answers every method with nil.
type entryFunc func(ctx context.Context, method string, args []any) (any, error)

func (f entryFunc) Invoke(ctx context.Context, method string, args []any) (any, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, method, args)
}

func shutdownServer(t *testing.T, srv *listener.Server) {
	t.Helper()
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("listener shutdown: %v", err)
	}
}
