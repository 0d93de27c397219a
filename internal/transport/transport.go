// Package transport connects a station's roster to the member service: one
// auto-reconnecting push channel plus the imperative REST calls.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Status string

const (
	StatusDisconnected Status = "Disconnected"
	StatusConnecting   Status = "Connecting"
	StatusConnected    Status = "Connected"
)

type NoticeKind string

const (
	// NoticeChannelError reports a fault on an otherwise healthy channel.
	NoticeChannelError NoticeKind = "channel_error"
	// NoticeConnectionLost reports a dropped or failed connection that will
	// be retried.
	NoticeConnectionLost NoticeKind = "connection_lost"
	// NoticePersistentFailure reports that automatic reconnects stopped.
	NoticePersistentFailure NoticeKind = "persistent_failure"
)

// Notice is a non-fatal message for the UI collaborator.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

const DefaultMaxAttempts = 5

type Option func(*Transport)

// WithMaxAttempts bounds consecutive failed connection attempts.
func WithMaxAttempts(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

func WithBackoff(b Backoff) Option {
	return func(t *Transport) { t.backoff = b }
}

// WithMetrics registers connection metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(t *Transport) {
		if reg == nil {
			return
		}
		factory := promauto.With(reg)
		t.metrics = &transportMetrics{
			connected: factory.NewGauge(prometheus.GaugeOpts{
				Name: "checkin_client_connected",
				Help: "1 while the push channel is connected",
			}),
			attempts: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "checkin_client_connect_attempts_total",
				Help: "push channel connection attempts by transport and result",
			}, []string{"transport", "result"}),
			events: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "checkin_client_events_total",
				Help: "push events applied by event name",
			}, []string{"event"}),
		}
	}
}

type transportMetrics struct {
	connected prometheus.Gauge
	attempts  *prometheus.CounterVec
	events    *prometheus.CounterVec
}

// Transport owns the push connection of one station and feeds every
// confirmed change into the roster.
type Transport struct {
	client      *Client
	roster      Roster
	dialers     []Dialer
	maxAttempts int
	backoff     Backoff
	metrics     *transportMetrics
	log         *slog.Logger

	mu        sync.Mutex
	status    Status
	baseCtx   context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	running   bool
	closed    bool
	onStatus  []func(Status)
	onNotice  []func(Notice)
	connected string
}

// New creates a transport. Dialers are tried in order on every connection
// attempt, so the preferred one goes first.
func New(client *Client, r Roster, dialers []Dialer, opts ...Option) *Transport {
	t := &Transport{
		client:      client,
		roster:      r,
		dialers:     dialers,
		maxAttempts: DefaultMaxAttempts,
		backoff:     Backoff{Min: 500 * time.Millisecond, Max: 8 * time.Second},
		status:      StatusDisconnected,
		log:         logger.WithService("transport"),
	}
	closed := make(chan struct{})
	close(closed)
	t.done = closed
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnStatus registers fn for connection status changes. Handlers run on the
// push goroutine and must not block.
func (t *Transport) OnStatus(fn func(Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStatus = append(t.onStatus, fn)
}

// OnNotice registers fn for non-fatal notifications.
func (t *Transport) OnNotice(fn func(Notice)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onNotice = append(t.onNotice, fn)
}

func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ActiveTransport returns the name of the dialer in use while connected.
func (t *Transport) ActiveTransport() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Start runs the push loop until ctx is done or reconnects are exhausted.
func (t *Transport) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.baseCtx = ctx
	t.startLocked()
}

// Reconnect restarts the push loop after a persistent failure. It does
// nothing while the loop is running.
func (t *Transport) Reconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.baseCtx == nil || t.baseCtx.Err() != nil {
		return
	}
	t.startLocked()
}

func (t *Transport) startLocked() {
	if t.running {
		return
	}
	ctx, cancel := context.WithCancel(t.baseCtx)
	t.cancel = cancel
	t.running = true
	done := make(chan struct{})
	t.done = done
	go func() {
		defer close(done)
		defer cancel()
		t.run(ctx)
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()
}

// Done is closed when the current push loop has stopped.
func (t *Transport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Close stops the push loop and waits for it.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-done
}

func (t *Transport) run(ctx context.Context) {
	failures := 0
	for {
		conn, name, err := t.connect(ctx)
		if err == nil {
			failures = 0
			t.setConnected(name)
			err = t.consume(ctx, conn)
			_ = conn.Close()
		}
		t.setStatus(StatusDisconnected)
		if ctx.Err() != nil {
			return
		}

		failures++
		if failures >= t.maxAttempts {
			t.log.Error("Push channel unavailable, giving up", "attempts", failures, "error", err)
			t.notify(Notice{Kind: NoticePersistentFailure, Message: "connection to the member service failed repeatedly", Err: err})
			return
		}
		delay := t.backoff.Delay(failures)
		t.log.Warn("Push channel disconnected, retrying", "attempt", failures, "delay", delay, "error", err)
		t.notify(Notice{Kind: NoticeConnectionLost, Message: "connection lost, retrying", Err: err})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect tries each dialer in preference order. The snapshot request is
// sent before the connection is reported Connected and before anything is
// read from it.
func (t *Transport) connect(ctx context.Context) (Conn, string, error) {
	t.setStatus(StatusConnecting)
	var errs []error
	for _, d := range t.dialers {
		conn, err := d.Dial(ctx)
		if err == nil {
			if err = conn.RequestSnapshot(ctx); err != nil {
				_ = conn.Close()
			}
		}
		t.countAttempt(d.Name(), err)
		if err != nil {
			t.log.Debug("Push transport failed", "transport", d.Name(), "error", err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			continue
		}
		return conn, d.Name(), nil
	}
	if len(errs) == 0 {
		return nil, "", domain.NewFailure(domain.ErrTransport, "no push transport configured")
	}
	return nil, "", domain.WrapFailure(domain.ErrTransport, errors.Join(errs...), "all push transports failed")
}

// consume applies events in arrival order until the connection drops.
func (t *Transport) consume(ctx context.Context, conn Conn) error {
	for {
		ev, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrChannel) {
				t.channelError(err)
				continue
			}
			return err
		}
		if t.metrics != nil {
			t.metrics.events.WithLabelValues(string(ev.Kind())).Inc()
		}
		if err := Dispatch(t.roster, ev); err != nil {
			t.channelError(err)
		}
	}
}

func (t *Transport) channelError(err error) {
	t.log.Warn("Push channel error", "error", err)
	t.notify(Notice{Kind: NoticeChannelError, Message: domain.Message(err), Err: err})
}

func (t *Transport) setConnected(name string) {
	t.mu.Lock()
	t.connected = name
	t.mu.Unlock()
	t.log.Info("Push channel connected", "transport", name)
	t.setStatus(StatusConnected)
}

func (t *Transport) setStatus(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	if s != StatusConnected {
		t.connected = ""
	}
	handlers := append([]func(Status){}, t.onStatus...)
	t.mu.Unlock()

	if t.metrics != nil {
		if s == StatusConnected {
			t.metrics.connected.Set(1)
		} else {
			t.metrics.connected.Set(0)
		}
	}
	for _, fn := range handlers {
		fn(s)
	}
}

func (t *Transport) notify(n Notice) {
	t.mu.Lock()
	handlers := append([]func(Notice){}, t.onNotice...)
	t.mu.Unlock()
	for _, fn := range handlers {
		fn(n)
	}
}

func (t *Transport) countAttempt(name string, err error) {
	if t.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	t.metrics.attempts.WithLabelValues(name, result).Inc()
}

// Client returns the REST client, e.g. to log in.
func (t *Transport) Client() *Client {
	return t.client
}

// List fetches the member list over REST and applies it as a snapshot.
func (t *Transport) List(ctx context.Context) ([]domain.Member, error) {
	members, err := t.client.List(ctx)
	if err != nil {
		return nil, err
	}
	t.roster.ApplySnapshot(members)
	return members, nil
}

func (t *Transport) Create(ctx context.Context, m domain.Member) (*domain.Member, error) {
	created, err := t.client.Create(ctx, m)
	if err != nil {
		return nil, err
	}
	t.roster.ApplyUpsert(*created)
	return created, nil
}

func (t *Transport) Update(ctx context.Context, m domain.Member) (*domain.Member, error) {
	updated, err := t.client.Update(ctx, m)
	if err != nil {
		return nil, err
	}
	t.roster.ApplyUpsert(*updated)
	return updated, nil
}

func (t *Transport) Delete(ctx context.Context, id int64) error {
	if err := t.client.Delete(ctx, id); err != nil {
		return err
	}
	t.roster.ApplyRemoval(id)
	return nil
}

func (t *Transport) Checkin(ctx context.Context, displayKey string, lotteryNumber int32) (*domain.Member, error) {
	m, err := t.client.Checkin(ctx, displayKey, lotteryNumber)
	if err != nil {
		return nil, err
	}
	t.roster.ApplyUpsert(*m)
	return m, nil
}

func (t *Transport) SetState(ctx context.Context, id int64, state domain.MemberState) (*domain.Member, error) {
	m, err := t.client.SetState(ctx, id, state)
	if err != nil {
		return nil, err
	}
	t.roster.ApplyUpsert(*m)
	return m, nil
}
