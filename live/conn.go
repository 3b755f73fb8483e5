package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"nhooyr.io/websocket"
)

// Conn is one raw bidirectional connection to the service.
type Conn interface {
	Send(payload string) error
	Recv() (Update, error)
	Close() error
}

// Dialer opens a Conn. The returned connection has already completed the
// setup handshake.
type Dialer func(ctx context.Context) (Conn, error)

type wsConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// WebsocketDialer dials the service endpoint and performs the setup
// handshake declaring the audio format and requested capabilities.
func WebsocketDialer(cfg Config) Dialer {
	return func(ctx context.Context) (Conn, error) {
		endpoint, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("endpoint: %w", err)
		}

		headers := http.Header{}
		if cfg.APIKey != "" {
			headers.Set("Authorization", "Token "+cfg.APIKey)
		}

		connCtx, cancel := context.WithCancel(ctx)
		conn, _, err := websocket.Dial(connCtx, endpoint.String(), &websocket.DialOptions{HTTPHeader: headers})
		if err != nil {
			cancel()
			return nil, err
		}

		c := &wsConn{conn: conn, ctx: connCtx, cancel: cancel}
		if err := c.writeJSON(newSetupMessage()); err != nil {
			c.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
		return c, nil
	}
}

func (c *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

func (c *wsConn) Send(payload string) error {
	return c.writeJSON(newMediaMessage(payload))
}

func (c *wsConn) Recv() (Update, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return Update{}, err
	}

	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		// Unrecognized message shapes are ignored, not fatal.
		return Update{}, nil
	}
	return msg.update(), nil
}

func (c *wsConn) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
