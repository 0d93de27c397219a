package domain

type EventKind string

const (
	EventMembersList        EventKind = "members_list"
	EventMemberAdded        EventKind = "member_added"
	EventMemberEdited       EventKind = "member_edited"
	EventMemberDeleted      EventKind = "member_deleted"
	EventMemberCheckedIn    EventKind = "member_checked_in"
	EventMemberStateChanged EventKind = "member_state_changed"
	EventChannelError       EventKind = "error"
)

// Event is the closed set of push notifications. Only the types in this
// file implement it.
type Event interface {
	Kind() EventKind
	isEvent()
}

// SnapshotEvent carries the full authoritative member list.
type SnapshotEvent struct {
	Members []Member
}

// UpsertEvent carries a full member snapshot for one of the per-member
// change kinds (added, edited, checked in, state changed).
type UpsertEvent struct {
	Change EventKind
	Member Member
}

// RemovalEvent names the id of a deleted member.
type RemovalEvent struct {
	ID int64
}

// ErrorEvent is a fault reported by the push channel itself.
type ErrorEvent struct {
	Message string
}

func (SnapshotEvent) Kind() EventKind { return EventMembersList }
func (e UpsertEvent) Kind() EventKind { return e.Change }
func (RemovalEvent) Kind() EventKind { return EventMemberDeleted }
func (ErrorEvent) Kind() EventKind { return EventChannelError }
func (SnapshotEvent) isEvent() {}
func (UpsertEvent) isEvent() {}
func (RemovalEvent) isEvent() {}
func (ErrorEvent) isEvent() {}

// IsUpsertKind reports whether k carries a single full member.
func IsUpsertKind(k EventKind) bool {
	switch k {
	case EventMemberAdded, EventMemberEdited, EventMemberCheckedIn, EventMemberStateChanged:
		return true
	}
	return false
}
