package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/logger"
	"checkin-sync/internal/service"
	"checkin-sync/internal/wire"

	"golang.org/x/net/websocket"
)

// EventLog is the part of the hub the push endpoints read from.
type EventLog interface {
	Subscribe() (string, <-chan wire.Frame, func())
	Wait(ctx context.Context, after int64) ([]wire.Frame, int64, bool)
}

// PushHandler serves the push channel over a websocket and over long-polling.
type PushHandler struct {
	memberSvc   service.MemberService
	events      EventLog
	pollTimeout time.Duration
}

func NewPushHandler(memberSvc service.MemberService, events EventLog, pollTimeout time.Duration) *PushHandler {
	if pollTimeout <= 0 {
		pollTimeout = 25 * time.Second
	}
	return &PushHandler{memberSvc: memberSvc, events: events, pollTimeout: pollTimeout}
}

// Socket upgrades the request. Stations are not browsers, so the origin
// check of websocket.Handler is skipped.
func (h *PushHandler) Socket(w http.ResponseWriter, r *http.Request) {
	websocket.Server{Handler: h.serveConn}.ServeHTTP(w, r)
}

func (h *PushHandler) serveConn(conn *websocket.Conn) {
	defer conn.Close()
	ctx := conn.Request().Context()

	subID, frames, cancel := h.events.Subscribe()
	defer cancel()
	log := logger.Get().With("subscriber", subID, "remote", conn.Request().RemoteAddr)
	log.Info("Push subscriber connected")

	requests := make(chan struct{}, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			var f wire.Frame
			if err := websocket.JSON.Receive(conn, &f); err != nil {
				if !errors.Is(err, io.EOF) {
					log.Debug("Push subscriber read failed", "error", err)
				}
				return
			}
			if f.Event != wire.RequestSnapshot {
				log.Warn("Ignoring unexpected client frame", "event", f.Event)
				continue
			}
			select {
			case requests <- struct{}{}:
			default:
			}
		}
	}()

	// Frames already reflected by the last snapshot sent are skipped.
	var floor int64
	for {
		select {
		case <-readerDone:
			log.Info("Push subscriber disconnected")
			return
		case <-requests:
			members, seq, err := h.memberSvc.Snapshot(ctx)
			if err != nil {
				log.Error("Failed to build snapshot", "error", err)
				h.sendError(conn, "snapshot unavailable")
				continue
			}
			frame, err := wire.Encode(domain.SnapshotEvent{Members: members}, seq)
			if err != nil {
				log.Error("Failed to encode snapshot", "error", err)
				continue
			}
			if err := websocket.JSON.Send(conn, frame); err != nil {
				log.Debug("Push subscriber write failed", "error", err)
				return
			}
			floor = seq
		case f, ok := <-frames:
			if !ok {
				h.sendError(conn, "subscriber fell behind")
				return
			}
			if f.Seq <= floor {
				continue
			}
			if err := websocket.JSON.Send(conn, f); err != nil {
				log.Debug("Push subscriber write failed", "error", err)
				return
			}
		}
	}
}

func (h *PushHandler) sendError(conn *websocket.Conn, msg string) {
	frame, err := wire.Encode(domain.ErrorEvent{Message: msg}, 0)
	if err != nil {
		return
	}
	_ = websocket.JSON.Send(conn, frame)
}

// Poll is the long-polling rendition of the push channel. A request without
// a cursor, or with one the event log can no longer serve, is answered with
// a snapshot.
func (h *PushHandler) Poll(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("after"); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil || after < 0 {
			writeStatus(w, http.StatusBadRequest, "validation", "invalid cursor")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), h.pollTimeout)
		frames, seq, complete := h.events.Wait(ctx, after)
		cancel()
		if complete {
			if frames == nil {
				frames = []wire.Frame{}
			}
			writeJSON(w, http.StatusOK, wire.PollResponse{Seq: seq, Events: frames})
			return
		}
	}

	members, seq, err := h.memberSvc.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	frame, err := wire.Encode(domain.SnapshotEvent{Members: members}, seq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.PollResponse{Seq: seq, Events: []wire.Frame{frame}})
}
