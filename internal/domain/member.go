package domain

import (
	"strings"
	"time"
)

type MemberState string

const (
	MemberStateNotCheckedIn        MemberState = "NOT_CHECKED_IN"
	MemberStateCheckedIn           MemberState = "CHECKED_IN"
	MemberStateInterviewCalled     MemberState = "INTERVIEW_CALLED"
	MemberStateInterviewInProgress MemberState = "INTERVIEW_IN_PROGRESS"
	MemberStateInterviewDone       MemberState = "INTERVIEW_DONE"
)

// pipeline order: NotCheckedIn -> CheckedIn -> InterviewCalled -> InterviewInProgress -> InterviewDone
var memberStateRank = map[MemberState]int{
	MemberStateNotCheckedIn:        0,
	MemberStateCheckedIn:           1,
	MemberStateInterviewCalled:     2,
	MemberStateInterviewInProgress: 3,
	MemberStateInterviewDone:       4,
}

// Valid reports whether s is one of the known pipeline states.
func (s MemberState) Valid() bool {
	_, ok := memberStateRank[s]
	return ok
}

// Rank returns the position of s in the pipeline, or -1 for unknown states.
func (s MemberState) Rank() int {
	r, ok := memberStateRank[s]
	if !ok {
		return -1
	}
	return r
}

// CheckedIn reports whether s is CHECKED_IN or any later stage.
func (s MemberState) CheckedIn() bool {
	return s.Rank() >= memberStateRank[MemberStateCheckedIn]
}

// InInterview reports whether the member has been called or is being interviewed.
func (s MemberState) InInterview() bool {
	return s == MemberStateInterviewCalled || s == MemberStateInterviewInProgress
}

// ParseMemberState accepts the wire value in any case, with '-' or ' ' as separators.
func ParseMemberState(v string) (MemberState, bool) {
	norm := strings.ToUpper(strings.TrimSpace(v))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	s := MemberState(norm)
	return s, s.Valid()
}

type Member struct {
	ID            int64       `json:"id"`
	DisplayKey    string      `json:"display_key"`
	Name          string      `json:"name"`
	Organization  string      `json:"organization"`
	FormerRole    string      `json:"former_role"`
	JoinYear      string      `json:"join_year"`
	Department    string      `json:"department"`
	LotteryNumber *int32      `json:"lottery_number"`
	State         MemberState `json:"state"`
	CheckinTime   *time.Time  `json:"checkin_time"`
	Version       int64       `json:"version"`
}

// Clone returns a deep copy; pointer fields are duplicated.
func (m Member) Clone() Member {
	c := m
	if m.LotteryNumber != nil {
		n := *m.LotteryNumber
		c.LotteryNumber = &n
	}
	if m.CheckinTime != nil {
		t := *m.CheckinTime
		c.CheckinTime = &t
	}
	return c
}

// Validate checks the fields staff must supply on create and edit.
func (m *Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return NewFailure(ErrValidation, "name is required")
	}
	if m.State != "" && !m.State.Valid() {
		return NewFailure(ErrValidation, "unknown member state %q", m.State)
	}
	if m.LotteryNumber != nil && *m.LotteryNumber <= 0 {
		return NewFailure(ErrValidation, "lottery number must be positive")
	}
	return nil
}

// Key returns the identifier used for manual lookups: the display key when
// set, otherwise the full name.
func (m *Member) Key() string {
	if m.DisplayKey != "" {
		return m.DisplayKey
	}
	return m.Name
}

// Int32Ptr is a small helper for building optional lottery numbers.
func Int32Ptr(v int32) *int32 {
	return &v
}
