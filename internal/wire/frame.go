// Package wire defines the JSON framing shared by the push channel server
// and its clients. Decode is the single validation point between raw
// frames and domain.Event values.
package wire

import (
	"encoding/json"
	"fmt"

	"checkin-sync/internal/domain"
)

// RequestSnapshot is the only client-to-server frame.
const RequestSnapshot = "request_snapshot"

type Frame struct {
	Event string          `json:"event"`
	Seq   int64           `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PollResponse is returned by the long-poll endpoint.
type PollResponse struct {
	Seq    int64   `json:"seq"`
	Events []Frame `json:"events"`
}

type removalPayload struct {
	ID int64 `json:"id"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Encode turns ev into a frame stamped with seq.
func Encode(ev domain.Event, seq int64) (Frame, error) {
	var payload any
	switch e := ev.(type) {
	case domain.SnapshotEvent:
		members := e.Members
		if members == nil {
			members = []domain.Member{}
		}
		payload = members
	case domain.UpsertEvent:
		if !domain.IsUpsertKind(e.Change) {
			return Frame{}, fmt.Errorf("wire: %q is not a member change event", e.Change)
		}
		payload = e.Member
	case domain.RemovalEvent:
		payload = removalPayload{ID: e.ID}
	case domain.ErrorEvent:
		payload = errorPayload{Message: e.Message}
	default:
		return Frame{}, fmt.Errorf("wire: unsupported event %T", ev)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: marshal %s: %w", ev.Kind(), err)
	}
	return Frame{Event: string(ev.Kind()), Seq: seq, Data: data}, nil
}

// Decode validates f and converts it to a domain event. Every rejection is
// a domain.ErrChannel failure.
func Decode(f Frame) (domain.Event, error) {
	kind := domain.EventKind(f.Event)
	switch {
	case kind == domain.EventMembersList:
		var members []domain.Member
		if err := json.Unmarshal(f.Data, &members); err != nil {
			return nil, domain.WrapFailure(domain.ErrChannel, err, "malformed %s payload", kind)
		}
		seen := make(map[int64]struct{}, len(members))
		for i := range members {
			if err := checkMember(kind, &members[i]); err != nil {
				return nil, err
			}
			if _, dup := seen[members[i].ID]; dup {
				return nil, domain.NewFailure(domain.ErrChannel, "%s repeats member id %d", kind, members[i].ID)
			}
			seen[members[i].ID] = struct{}{}
		}
		if members == nil {
			members = []domain.Member{}
		}
		return domain.SnapshotEvent{Members: members}, nil

	case domain.IsUpsertKind(kind):
		var m domain.Member
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return nil, domain.WrapFailure(domain.ErrChannel, err, "malformed %s payload", kind)
		}
		if err := checkMember(kind, &m); err != nil {
			return nil, err
		}
		return domain.UpsertEvent{Change: kind, Member: m}, nil

	case kind == domain.EventMemberDeleted:
		var p removalPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, domain.WrapFailure(domain.ErrChannel, err, "malformed %s payload", kind)
		}
		if p.ID <= 0 {
			return nil, domain.NewFailure(domain.ErrChannel, "%s without a member id", kind)
		}
		return domain.RemovalEvent{ID: p.ID}, nil

	case kind == domain.EventChannelError:
		var p errorPayload
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &p); err != nil {
				return nil, domain.WrapFailure(domain.ErrChannel, err, "malformed %s payload", kind)
			}
		}
		if p.Message == "" {
			p.Message = "unspecified channel error"
		}
		return domain.ErrorEvent{Message: p.Message}, nil
	}
	return nil, domain.NewFailure(domain.ErrChannel, "unknown event %q", f.Event)
}

func checkMember(kind domain.EventKind, m *domain.Member) error {
	if m.ID <= 0 {
		return domain.NewFailure(domain.ErrChannel, "%s member without id", kind)
	}
	if !m.State.Valid() {
		return domain.NewFailure(domain.ErrChannel, "%s member %d has unknown state %q", kind, m.ID, m.State)
	}
	return nil
}
