package gateway

import (
	"time"

	"pybridge/internal/listener"
)

const portPollInterval = 20 * time.Millisecond

type portReporter interface {
	Port() int
}

type boundNotifier interface {
	Bound() <-chan struct{}
}

// AwaitPort blocks until the listener reports a real port and returns it. It
// prefers the one-shot bind notification when the listener provides one and
// falls back to polling every 20ms otherwise. There is no deadline: a
// listener that never binds parks the caller forever, so callers that cannot
// wait unbounded must wrap this with their own deadline.
func AwaitPort(r portReporter) int {
	if n, ok := r.(boundNotifier); ok {
		<-n.Bound()
		return r.Port()
	}
	for {
		if p := r.Port(); p != listener.UnboundPort {
			return p
		}
		time.Sleep(portPollInterval)
	}
}
