// Package hub fans member events out to every connected station and keeps
// a bounded, sequenced log of recent frames for long-polling clients.
package hub

import (
	"context"
	"sync"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/logger"
	"checkin-sync/internal/wire"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultLogSize      = 512
	SubscriberQueueSize = 64
)

type hubMetrics struct {
	connections prometheus.Gauge
	published   *prometheus.CounterVec
	dropped     prometheus.Counter
}

type Hub struct {
	mu       sync.Mutex
	seq      int64
	frames   []wire.Frame // ring buffer ordered oldest first
	capacity int
	subs     map[string]chan wire.Frame
	wake     chan struct{}
	metrics  *hubMetrics
}

// New creates a hub retaining the last logSize frames. A nil registry
// disables metrics.
func New(logSize int, promRegistry prometheus.Registerer) *Hub {
	if logSize <= 0 {
		logSize = DefaultLogSize
	}
	h := &Hub{
		capacity: logSize,
		subs:     make(map[string]chan wire.Frame),
		wake:     make(chan struct{}),
	}
	if promRegistry != nil {
		h.initMetrics(promRegistry)
	}
	return h
}

func (h *Hub) initMetrics(promRegistry prometheus.Registerer) {
	factory := promauto.With(promRegistry)
	h.metrics = &hubMetrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "checkin_push_connections",
			Help: "number of stations subscribed to the push channel",
		}),
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_push_events_total",
			Help: "events published on the push channel by name",
		}, []string{"event"}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_push_dropped_subscribers_total",
			Help: "subscribers disconnected because they fell behind",
		}),
	}
}

// Publish stamps ev with the next sequence number, records it and delivers
// it to every subscriber. A subscriber whose queue is full is disconnected;
// it recovers through the resync it performs on reconnect.
func (h *Hub) Publish(ev domain.Event) (wire.Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	frame, err := wire.Encode(ev, h.seq+1)
	if err != nil {
		return wire.Frame{}, err
	}
	h.seq = frame.Seq

	if len(h.frames) == h.capacity {
		copy(h.frames, h.frames[1:])
		h.frames = h.frames[:len(h.frames)-1]
	}
	h.frames = append(h.frames, frame)

	for id, ch := range h.subs {
		select {
		case ch <- frame:
		default:
			logger.Warn("Push subscriber fell behind, disconnecting", "subscriber", id, "seq", frame.Seq)
			delete(h.subs, id)
			close(ch)
			if h.metrics != nil {
				h.metrics.dropped.Inc()
				h.metrics.connections.Dec()
			}
		}
	}

	close(h.wake)
	h.wake = make(chan struct{})

	if h.metrics != nil {
		h.metrics.published.WithLabelValues(frame.Event).Inc()
	}
	return frame, nil
}

// Subscribe registers a live subscriber. The returned channel is closed by
// cancel or when the subscriber falls behind.
func (h *Hub) Subscribe() (string, <-chan wire.Frame, func()) {
	id := uuid.NewString()
	ch := make(chan wire.Frame, SubscriberQueueSize)

	h.mu.Lock()
	h.subs[id] = ch
	if h.metrics != nil {
		h.metrics.connections.Inc()
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
			if h.metrics != nil {
				h.metrics.connections.Dec()
			}
		}
	}
	return id, ch, cancel
}

// Seq returns the sequence number of the last published frame.
func (h *Hub) Seq() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Since returns the frames published after seq `after`. complete is false
// when the log no longer holds every frame after `after` (or the cursor is
// from the future, e.g. after a server restart); the caller must resync.
func (h *Hub) Since(after int64) (frames []wire.Frame, seq int64, complete bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinceLocked(after)
}

func (h *Hub) sinceLocked(after int64) ([]wire.Frame, int64, bool) {
	if after > h.seq {
		return nil, h.seq, false
	}
	if len(h.frames) > 0 && after < h.frames[0].Seq-1 {
		return nil, h.seq, false
	}
	if len(h.frames) == 0 && after < h.seq {
		return nil, h.seq, false
	}
	var out []wire.Frame
	for _, f := range h.frames {
		if f.Seq > after {
			out = append(out, f)
		}
	}
	return out, h.seq, true
}

// Wait is Since that blocks until at least one frame is available, the log
// can no longer serve the cursor, or ctx is done.
func (h *Hub) Wait(ctx context.Context, after int64) ([]wire.Frame, int64, bool) {
	for {
		h.mu.Lock()
		frames, seq, complete := h.sinceLocked(after)
		wake := h.wake
		h.mu.Unlock()

		if len(frames) > 0 || !complete {
			return frames, seq, complete
		}
		select {
		case <-ctx.Done():
			return nil, seq, true
		case <-wake:
		}
	}
}
