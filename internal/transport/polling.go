package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/wire"
)

// PollingDialer is the fallback push channel. It long-polls the event log
// with a sequence cursor; a poll without a cursor asks for a snapshot.
type PollingDialer struct {
	client     *Client
	httpClient *http.Client
}

// NewPollingDialer creates a polling dialer. pollTimeout is the server side
// hold time; the HTTP timeout is set comfortably above it.
func NewPollingDialer(client *Client, pollTimeout time.Duration) *PollingDialer {
	if pollTimeout <= 0 {
		pollTimeout = 25 * time.Second
	}
	return &PollingDialer{
		client:     client,
		httpClient: &http.Client{Timeout: pollTimeout + client.httpClient.Timeout},
	}
}

func (d *PollingDialer) Name() string { return "polling" }

// Dial checks that the service answers before handing out a connection.
func (d *PollingDialer) Dial(ctx context.Context) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.client.baseURL+"/healthz", nil)
	if err != nil {
		return nil, domain.WrapFailure(domain.ErrTransport, err, "build health request")
	}
	resp, err := d.client.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapFailure(domain.ErrTransport, err, "service unreachable")
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFailure(domain.ErrTransport, "service unhealthy: %s", resp.Status)
	}
	return &pollingConn{dialer: d}, nil
}

const snapshotCursor = -1

type polled struct {
	event domain.Event
	err   error
}

// pollingConn is used by a single reader goroutine.
type pollingConn struct {
	dialer  *PollingDialer
	cursor  int64
	pending []polled
	closed  bool
}

// RequestSnapshot polls without a cursor right away so the snapshot is
// queued ahead of any later event.
func (c *pollingConn) RequestSnapshot(ctx context.Context) error {
	return c.poll(ctx, snapshotCursor)
}

func (c *pollingConn) Receive(ctx context.Context) (domain.Event, error) {
	for len(c.pending) == 0 {
		if c.closed {
			return nil, domain.NewFailure(domain.ErrTransport, "polling connection closed")
		}
		if err := c.poll(ctx, c.cursor); err != nil {
			return nil, err
		}
	}
	next := c.pending[0]
	c.pending = c.pending[1:]
	return next.event, next.err
}

func (c *pollingConn) Close() error {
	c.closed = true
	return nil
}

func (c *pollingConn) poll(ctx context.Context, after int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dialer.client.pollURL(after), nil)
	if err != nil {
		return domain.WrapFailure(domain.ErrTransport, err, "build poll request")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.dialer.client.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.dialer.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.WrapFailure(domain.ErrTransport, err, "poll events")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.WrapFailure(domain.ErrTransport, decodeFailure(resp), "poll events")
	}

	var batch wire.PollResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return domain.WrapFailure(domain.ErrTransport, fmt.Errorf("decode poll response: %w", err), "poll events")
	}
	for _, f := range batch.Events {
		ev, err := wire.Decode(f)
		c.pending = append(c.pending, polled{event: ev, err: err})
	}
	c.cursor = batch.Seq
	return nil
}
