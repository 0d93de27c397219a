package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/wire"

	"golang.org/x/net/websocket"
)

// WebsocketDialer is the duplex push channel, preferred over polling.
type WebsocketDialer struct {
	client *Client
}

func NewWebsocketDialer(client *Client) *WebsocketDialer {
	return &WebsocketDialer{client: client}
}

func (d *WebsocketDialer) Name() string { return "websocket" }

func (d *WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	wsURL, err := d.client.socketURL()
	if err != nil {
		return nil, domain.WrapFailure(domain.ErrTransport, err, "invalid push channel url")
	}
	cfg, err := websocket.NewConfig(wsURL, d.client.baseURL)
	if err != nil {
		return nil, domain.WrapFailure(domain.ErrTransport, err, "invalid push channel url")
	}
	if token := d.client.bearer(); token != "" {
		cfg.Header = make(http.Header)
		cfg.Header.Set("Authorization", "Bearer "+token)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, domain.WrapFailure(domain.ErrTransport, err, "dial %s", wsURL)
	}
	return &websocketConn{ws: ws}, nil
}

type websocketConn struct {
	ws *websocket.Conn
}

func (c *websocketConn) RequestSnapshot(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()
	if err := websocket.JSON.Send(c.ws, wire.Frame{Event: wire.RequestSnapshot}); err != nil {
		return domain.WrapFailure(domain.ErrTransport, err, "request snapshot")
	}
	return nil
}

func (c *websocketConn) Receive(ctx context.Context) (domain.Event, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()

	var f wire.Frame
	if err := websocket.JSON.Receive(c.ws, &f); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isDecodeError(err) {
			return nil, domain.WrapFailure(domain.ErrChannel, err, "malformed frame")
		}
		return nil, domain.WrapFailure(domain.ErrTransport, err, "push channel dropped")
	}
	return wire.Decode(f)
}

func (c *websocketConn) Close() error {
	return c.ws.Close()
}

// isDecodeError reports whether a frame arrived but was not valid JSON.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
