package gateway

import (
	"context"
	"fmt"
	"strconv"

	"pybridge/internal/interp"

	"github.com/google/uuid"
)

// The handshake is a two-phase rendezvous: neither side knows the other's
// ephemeral port until after binding. Phase one builds the interpreter-side
// client gateway against the bridge's bound port and starts a callback
// server on a port of its own choosing; phase two reads that port back and
// re-homes the host-side callback client onto it.
const handshakeScript = `import pybridge_client as _pbc
_pybridge_gateway = _pbc.ClientGateway(
    port=%d,
    auto_field=True,
    auto_convert=True,
    auth_token=%s)
_pybridge_gateway.start_callback_server(port=0)
`

const callbackPortProbe = "_pybridge_gateway.callback_server_port()"

// The minimal namespace the interpreter needs to reach the compute session
// without repeating the handshake: the session conf wrapper, a session built
// from the entry point, and the context derived from it.
const namespaceScript = `conf = _pbc.SessionConf(_pybridge_gateway)
session = _pbc.Session(_pybridge_gateway.entry_point, conf)
ctx = session.context
`

// Register wires the reverse callback channel and seeds the interpreter
// namespace. The token interpolated into the handshake is always the
// process-generated shared secret; it must never come from user input, since
// it lands inside an evaluated string.
func Register(ctx context.Context, in interp.Interpreter, h *Handle, secret string, st *State) error {
	token := "None"
	if h.AuthEnabled() {
		token = strconv.Quote(secret)
	}
	script := fmt.Sprintf(handshakeScript, h.Port(), token)
	if err := in.Eval(ctx, script); err != nil {
		return fmt.Errorf("callback handshake: %w", err)
	}

	port, err := in.EvalInt(ctx, callbackPortProbe)
	if err != nil {
		return fmt.Errorf("read callback port: %w", err)
	}
	h.RedirectCallback(port)
	st.bumpCallbackSeq()

	if err := in.Eval(ctx, namespaceScript); err != nil {
		return fmt.Errorf("register namespace: %w", err)
	}
	st.setSession(uuid.NewString())
	return nil
}
