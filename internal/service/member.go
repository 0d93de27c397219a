package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/logger"
	"checkin-sync/internal/repository"
)

type memberService struct {
	// mu orders commits and their events: a frame with a higher sequence
	// number always describes a later commit.
	mu        sync.Mutex
	repo      repository.MemberRepository
	publisher Publisher
	now       func() time.Time
	log       *slog.Logger
}

func NewMemberService(repo repository.MemberRepository, publisher Publisher) MemberService {
	return &memberService{
		repo:      repo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.WithService("member"),
	}
}

func (s *memberService) ListMembers(ctx context.Context) ([]domain.Member, error) {
	return s.repo.List(ctx)
}

func (s *memberService) Snapshot(ctx context.Context) ([]domain.Member, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, err := s.repo.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	return members, s.publisher.Seq(), nil
}

func (s *memberService) CreateMember(ctx context.Context, m *domain.Member) (*domain.Member, error) {
	m.DisplayKey = strings.TrimSpace(m.DisplayKey)
	m.Name = strings.TrimSpace(m.Name)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.State == "" {
		m.State = domain.MemberStateNotCheckedIn
	}
	normalizeCheckin(m, s.now)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, translate(err, "member")
	}
	s.log.Info("Member added", "id", m.ID, "name", m.Name)
	s.publish(domain.UpsertEvent{Change: domain.EventMemberAdded, Member: *m})
	return m, nil
}

// UpdateMember replaces the descriptive fields and the lottery number. State
// and check-in time only change through Checkin and SetState.
func (s *memberService) UpdateMember(ctx context.Context, id int64, edit *domain.Member) (*domain.Member, error) {
	edit.DisplayKey = strings.TrimSpace(edit.DisplayKey)
	edit.Name = strings.TrimSpace(edit.Name)
	edit.State = ""
	if err := edit.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "member")
	}
	m.DisplayKey = edit.DisplayKey
	m.Name = edit.Name
	m.Organization = edit.Organization
	m.FormerRole = edit.FormerRole
	m.JoinYear = edit.JoinYear
	m.Department = edit.Department
	m.LotteryNumber = edit.LotteryNumber
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, translate(err, "member")
	}
	s.log.Info("Member edited", "id", m.ID, "version", m.Version)
	s.publish(domain.UpsertEvent{Change: domain.EventMemberEdited, Member: *m})
	return m, nil
}

func (s *memberService) DeleteMember(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return translate(err, "member")
	}
	if m.State.InInterview() {
		return domain.NewFailure(domain.ErrConflict, "%s is in an interview and cannot be deleted", m.Name)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return translate(err, "member")
	}
	s.log.Info("Member deleted", "id", id, "name", m.Name)
	s.publish(domain.RemovalEvent{ID: id})
	return nil
}

func (s *memberService) Checkin(ctx context.Context, displayKey string, lotteryNumber int32) (*domain.Member, error) {
	displayKey = strings.TrimSpace(displayKey)
	if displayKey == "" {
		return nil, domain.NewFailure(domain.ErrValidation, "display key is required")
	}
	if lotteryNumber <= 0 {
		return nil, domain.NewFailure(domain.ErrValidation, "lottery number must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.repo.GetByDisplayKey(ctx, displayKey)
	if err != nil {
		return nil, translate(err, "member "+displayKey)
	}
	if m.State.InInterview() {
		return nil, domain.NewFailure(domain.ErrConflict, "%s is in an interview", m.Name)
	}
	if m.State.CheckedIn() {
		if m.LotteryNumber != nil && *m.LotteryNumber == lotteryNumber {
			return m, nil
		}
		if m.LotteryNumber != nil {
			return nil, domain.NewFailure(domain.ErrConflict, "%s already checked in with lottery number %d", m.Name, *m.LotteryNumber)
		}
	}
	if holder, err := s.repo.GetByLotteryNumber(ctx, lotteryNumber); err == nil && holder.ID != m.ID {
		return nil, domain.NewFailure(domain.ErrConflict, "lottery number %d is already assigned to %s", lotteryNumber, holder.Name)
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	m.LotteryNumber = &lotteryNumber
	if !m.State.CheckedIn() {
		m.State = domain.MemberStateCheckedIn
	}
	normalizeCheckin(m, s.now)
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, translate(err, "member")
	}
	s.log.Info("Member checked in", "id", m.ID, "name", m.Name, "lottery_number", lotteryNumber)
	s.publish(domain.UpsertEvent{Change: domain.EventMemberCheckedIn, Member: *m})
	return m, nil
}

// SetState moves a member to any pipeline state. Backward moves are allowed
// so staff can correct mistakes; the lottery number is kept either way.
func (s *memberService) SetState(ctx context.Context, id int64, state domain.MemberState) (*domain.Member, error) {
	if !state.Valid() {
		return nil, domain.NewFailure(domain.ErrValidation, "unknown member state %q", state)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "member")
	}
	if m.State == state {
		return m, nil
	}
	m.State = state
	normalizeCheckin(m, s.now)
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, translate(err, "member")
	}
	s.log.Info("Member state changed", "id", m.ID, "state", m.State)
	s.publish(domain.UpsertEvent{Change: domain.EventMemberStateChanged, Member: *m})
	return m, nil
}

// BroadcastSnapshot pushes the full list to every station.
func (s *memberService) BroadcastSnapshot(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	s.publish(domain.SnapshotEvent{Members: members})
	return nil
}

// publish must be called with mu held.
func (s *memberService) publish(ev domain.Event) {
	if _, err := s.publisher.Publish(ev); err != nil {
		s.log.Error("Failed to publish member event", "event", ev.Kind(), "error", err)
	}
}

// normalizeCheckin keeps check-in time present exactly when the state is
// CHECKED_IN or later.
func normalizeCheckin(m *domain.Member, now func() time.Time) {
	if m.State.CheckedIn() {
		if m.CheckinTime == nil {
			t := now()
			m.CheckinTime = &t
		}
		return
	}
	m.CheckinTime = nil
}

func translate(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.WrapFailure(domain.ErrNotFound, err, "%s not found", what)
	case errors.Is(err, repository.ErrDuplicate):
		return domain.WrapFailure(domain.ErrConflict, err, "%s conflicts with an existing record", what)
	}
	return err
}
