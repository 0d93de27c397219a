package transport

import "checkin-sync/internal/domain"

// Roster is the merge target for decoded events and successful calls.
type Roster interface {
	ApplySnapshot(members []domain.Member)
	ApplyUpsert(m domain.Member) bool
	ApplyRemoval(id int64) bool
}

// Dispatch applies ev to r. It is the only place that maps push events to
// roster operations. A channel error event leaves r untouched and comes
// back as a domain.ErrChannel failure for the caller to surface.
func Dispatch(r Roster, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.SnapshotEvent:
		r.ApplySnapshot(e.Members)
	case domain.UpsertEvent:
		r.ApplyUpsert(e.Member)
	case domain.RemovalEvent:
		r.ApplyRemoval(e.ID)
	case domain.ErrorEvent:
		return domain.NewFailure(domain.ErrChannel, "%s", e.Message)
	default:
		return domain.NewFailure(domain.ErrChannel, "unhandled event %T", ev)
	}
	return nil
}
