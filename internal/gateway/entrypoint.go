package gateway

import (
	"context"
	"fmt"

	"pybridge/internal/compute"
)

// SessionEntryPoint exposes a compute session as the root of the remote
// object graph: the object the interpreter-side session wrapper talks to.
type SessionEntryPoint struct {
	sess compute.Session
}

func NewSessionEntryPoint(sess compute.Session) *SessionEntryPoint {
	return &SessionEntryPoint{sess: sess}
}

func (e *SessionEntryPoint) Invoke(ctx context.Context, method string, args []any) (any, error) {
	switch method {
	case "mode":
		return e.sess.Mode().String(), nil
	case "getConf":
		if len(args) != 1 {
			return nil, fmt.Errorf("getConf expects one argument, got %d", len(args))
		}
		key, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("getConf expects a string key, got %T", args[0])
		}
		value, found := e.sess.Config().Get(key)
		if !found {
			return nil, nil
		}
		return value, nil
	case "stop":
		return nil, e.sess.Stop(ctx)
	default:
		return nil, fmt.Errorf("unknown entry point method: %q", method)
	}
}
