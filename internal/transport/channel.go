package transport

import (
	"context"

	"checkin-sync/internal/domain"
)

// Dialer opens one push channel connection.
type Dialer interface {
	// Name identifies the transport in logs, metrics and status notices.
	Name() string
	Dial(ctx context.Context) (Conn, error)
}

// Conn is an open push channel. Receive returns decoded events in arrival
// order; a domain.ErrChannel failure means one frame was rejected and the
// connection is still usable, any other error means it dropped.
type Conn interface {
	RequestSnapshot(ctx context.Context) error
	Receive(ctx context.Context) (domain.Event, error)
	Close() error
}
