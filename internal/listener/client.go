package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"pybridge/internal/logging"
	"pybridge/internal/protocol"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// loopbackHost is where the interpreter-side callback server always lives.
const loopbackHost = "127.0.0.1"

// Client is the host-side end of the callback channel: it dials the
// interpreter's callback server and issues invocations on it. The target
// port is unknown until the interpreter reports where its server bound, so
// the client starts unhomed and is pointed at the real port via Redirect.
type Client struct {
	token  string
	logger logging.Logger

	mu   sync.Mutex
	port int
	conn *websocket.Conn
}

func NewClient(token string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Client{token: token, logger: logger, port: UnboundPort}
}

// Redirect points the client at the port the interpreter-side callback
// server actually bound, on the default loopback address. Any existing
// connection is dropped; the next call dials the new endpoint.
func (c *Client) Redirect(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "redirect")
		c.conn = nil
	}
	c.port = port
	c.logger.Debug("callback client redirected", "port", port)
}

func (c *Client) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// Call invokes a method on the interpreter side and waits for its result.
// Calls are serialized; the lock also keeps a concurrent Redirect from
// swapping the connection out mid-exchange.
func (c *Client) Call(ctx context.Context, method string, args []any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.ensureConnLocked(ctx)
	if err != nil {
		return nil, err
	}

	reqID := uuid.NewString()
	env := protocol.Envelope{
		V:     1,
		Type:  protocol.TypeInvoke,
		ReqID: reqID,
		Token: c.token,
		Ts:    time.Now().Unix(),
		Payload: protocol.MustMarshalJSON(protocol.InvokePayload{
			Method: method,
			Args:   args,
		}),
	}
	data, err := protocol.EncodeEnvelope(env)
	if err != nil {
		return nil, err
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.dropConnLocked()
		return nil, fmt.Errorf("callback write: %w", err)
	}

	for {
		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		_, raw, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			c.dropConnLocked()
			return nil, fmt.Errorf("callback read: %w", err)
		}
		reply, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			c.logger.Warn("invalid callback reply", "err", err.Error())
			continue
		}
		if reply.Type != protocol.TypeResult || reply.ReqID != reqID {
			c.logger.Debug("ignored callback frame", "type", reply.Type, "req_id", reply.ReqID)
			continue
		}
		var result protocol.ResultPayload
		if err := json.Unmarshal(reply.Payload, &result); err != nil {
			return nil, fmt.Errorf("decode callback result: %w", err)
		}
		if result.Error != nil {
			return nil, fmt.Errorf("callback %s failed: %s", method, result.Error.Message)
		}
		return result.Value, nil
	}
}

func (c *Client) ensureConnLocked(ctx context.Context) (*websocket.Conn, error) {
	if c.port == UnboundPort {
		return nil, errors.New("callback client has no endpoint yet")
	}
	if c.conn != nil {
		return c.conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	url := fmt.Sprintf("ws://%s:%d/callback", loopbackHost, c.port)
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial callback server: %w", err)
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) dropConnLocked() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusInternalError, "")
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close(websocket.StatusNormalClosure, "")
		c.conn = nil
		return err
	}
	return nil
}
