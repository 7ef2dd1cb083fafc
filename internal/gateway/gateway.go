// Package gateway owns the bridge lifecycle: negotiating authentication,
// starting the listener and waiting for it to bind, wiring the reverse
// callback channel, seeding the interpreter namespace, and tearing the whole
// thing down exactly once.
package gateway

import (
	"pybridge/internal/listener"
	"pybridge/internal/logging"
)

// Bridge builds and starts listeners for one session.
type Bridge struct {
	logger logging.Logger
}

func NewBridge(logger logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Bridge{logger: logger}
}

// Start constructs a listener bound to an ephemeral loopback port with the
// fixed connect and read timeouts, attaches entry as the object the
// interpreter can reach, and applies secret as the required token when
// requireAuth is set. If applying the token fails the bridge falls back to
// no authentication rather than failing the session; this is best-effort
// hardening, not a security guarantee. Returns only after a real port is
// observed. The listener's accept goroutine belongs to the listener.
func (b *Bridge) Start(entry Target, requireAuth bool, secret string) (*Handle, error) {
	srv, authed, err := b.buildServer(entry, requireAuth, secret)
	if err != nil {
		return nil, err
	}
	srv.Start()
	port := AwaitPort(srv)

	token := ""
	if authed {
		token = secret
	}
	h := &Handle{
		server:      srv,
		callback:    listener.NewClient(token, b.logger),
		authEnabled: authed,
	}
	b.logger.Info("bridge listening", "port", port, "auth", authed)
	return h, nil
}

func (b *Bridge) buildServer(entry Target, requireAuth bool, secret string) (*listener.Server, bool, error) {
	if requireAuth {
		srv, err := listener.NewServer(entry, listener.Options{Token: secret, Logger: b.logger})
		if err == nil {
			return srv, true, nil
		}
		b.logger.Warn("token setup failed, continuing without authentication", "err", err.Error())
	}
	srv, err := listener.NewServer(entry, listener.Options{Logger: b.logger})
	return srv, false, err
}
