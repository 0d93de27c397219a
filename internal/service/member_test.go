package service_test

import (
	"context"
	"sync"
	"testing"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/hub"
	"checkin-sync/internal/repository"
	"checkin-sync/internal/repository/memory"
	"checkin-sync/internal/service"
	"checkin-sync/internal/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func isUpsert(kind domain.EventKind, id int64) interface{} {
	return mock.MatchedBy(func(ev domain.Event) bool {
		up, ok := ev.(domain.UpsertEvent)
		return ok && up.Change == kind && up.Member.ID == id
	})
}

func TestMemberService_CreateMember(t *testing.T) {
	repo := new(MockMemberRepo)
	pub := new(MockPublisher)
	svc := service.NewMemberService(repo, pub)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo.On("Create", ctx, mock.AnythingOfType("*domain.Member")).Run(func(args mock.Arguments) {
			m := args.Get(1).(*domain.Member)
			m.ID = 10
			m.Version = 1
		}).Return(nil).Once()
		pub.On("Publish", isUpsert(domain.EventMemberAdded, 10)).Return(wire.Frame{Seq: 1}, nil).Once()

		m, err := svc.CreateMember(ctx, &domain.Member{Name: "  Alice  ", DisplayKey: "2012 "})
		require.NoError(t, err)
		assert.Equal(t, int64(10), m.ID)
		assert.Equal(t, "Alice", m.Name)
		assert.Equal(t, "2012", m.DisplayKey)
		assert.Equal(t, domain.MemberStateNotCheckedIn, m.State)
		assert.Nil(t, m.CheckinTime)
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("MissingName", func(t *testing.T) {
		_, err := svc.CreateMember(ctx, &domain.Member{})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("DuplicateLottery", func(t *testing.T) {
		repo.On("Create", ctx, mock.AnythingOfType("*domain.Member")).Return(repository.ErrDuplicate).Once()

		_, err := svc.CreateMember(ctx, &domain.Member{Name: "Bob", LotteryNumber: domain.Int32Ptr(4)})
		assert.ErrorIs(t, err, domain.ErrConflict)
		pub.AssertNumberOfCalls(t, "Publish", 1)
	})
}

func TestMemberService_UpdateMember(t *testing.T) {
	repo := new(MockMemberRepo)
	pub := new(MockPublisher)
	svc := service.NewMemberService(repo, pub)
	ctx := context.Background()

	t.Run("KeepsStateAndCheckin", func(t *testing.T) {
		stored := &domain.Member{ID: 3, Name: "Carol", State: domain.MemberStateInterviewCalled, LotteryNumber: domain.Int32Ptr(8), Version: 2}
		repo.On("GetByID", ctx, int64(3)).Return(stored, nil).Once()
		repo.On("Update", ctx, stored).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Member).Version++
		}).Return(nil).Once()
		pub.On("Publish", isUpsert(domain.EventMemberEdited, 3)).Return(wire.Frame{}, nil).Once()

		m, err := svc.UpdateMember(ctx, 3, &domain.Member{Name: "Carol Pham", Department: "K14", State: domain.MemberStateNotCheckedIn, LotteryNumber: domain.Int32Ptr(8)})
		require.NoError(t, err)
		assert.Equal(t, "Carol Pham", m.Name)
		assert.Equal(t, "K14", m.Department)
		assert.Equal(t, domain.MemberStateInterviewCalled, m.State)
		assert.Equal(t, int64(3), m.Version)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo.On("GetByID", ctx, int64(99)).Return(nil, repository.ErrNotFound).Once()

		_, err := svc.UpdateMember(ctx, 99, &domain.Member{Name: "Nobody"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestMemberService_DeleteMember(t *testing.T) {
	repo := new(MockMemberRepo)
	pub := new(MockPublisher)
	svc := service.NewMemberService(repo, pub)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo.On("GetByID", ctx, int64(1)).Return(&domain.Member{ID: 1, Name: "Alice", State: domain.MemberStateCheckedIn}, nil).Once()
		repo.On("Delete", ctx, int64(1)).Return(nil).Once()
		pub.On("Publish", domain.RemovalEvent{ID: 1}).Return(wire.Frame{}, nil).Once()

		assert.NoError(t, svc.DeleteMember(ctx, 1))
		pub.AssertExpectations(t)
	})

	t.Run("InInterview", func(t *testing.T) {
		repo.On("GetByID", ctx, int64(3)).Return(&domain.Member{ID: 3, Name: "Carol", State: domain.MemberStateInterviewInProgress}, nil).Once()

		err := svc.DeleteMember(ctx, 3)
		assert.ErrorIs(t, err, domain.ErrConflict)
		repo.AssertNotCalled(t, "Delete", ctx, int64(3))
	})

	t.Run("NotFound", func(t *testing.T) {
		repo.On("GetByID", ctx, int64(4)).Return(nil, repository.ErrNotFound).Once()

		assert.ErrorIs(t, svc.DeleteMember(ctx, 4), domain.ErrNotFound)
	})
}

func TestMemberService_Checkin(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := new(MockMemberRepo)
		pub := new(MockPublisher)
		svc := service.NewMemberService(repo, pub)

		stored := &domain.Member{ID: 1, Name: "Alice", DisplayKey: "2012", State: domain.MemberStateNotCheckedIn}
		repo.On("GetByDisplayKey", ctx, "2012").Return(stored, nil)
		repo.On("GetByLotteryNumber", ctx, int32(42)).Return(nil, repository.ErrNotFound)
		repo.On("Update", ctx, stored).Return(nil)
		pub.On("Publish", isUpsert(domain.EventMemberCheckedIn, 1)).Return(wire.Frame{}, nil).Once()

		m, err := svc.Checkin(ctx, " 2012 ", 42)
		require.NoError(t, err)
		assert.Equal(t, domain.MemberStateCheckedIn, m.State)
		require.NotNil(t, m.LotteryNumber)
		assert.Equal(t, int32(42), *m.LotteryNumber)
		assert.NotNil(t, m.CheckinTime)
		pub.AssertExpectations(t)
	})

	t.Run("Validation", func(t *testing.T) {
		svc := service.NewMemberService(new(MockMemberRepo), new(MockPublisher))

		_, err := svc.Checkin(ctx, "", 1)
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = svc.Checkin(ctx, "2012", 0)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownMember", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := service.NewMemberService(repo, new(MockPublisher))
		repo.On("GetByDisplayKey", ctx, "nobody").Return(nil, repository.ErrNotFound)

		_, err := svc.Checkin(ctx, "nobody", 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("MidInterview", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := service.NewMemberService(repo, new(MockPublisher))
		repo.On("GetByDisplayKey", ctx, "2012").Return(&domain.Member{ID: 1, Name: "Alice", State: domain.MemberStateInterviewCalled, LotteryNumber: domain.Int32Ptr(3)}, nil)

		_, err := svc.Checkin(ctx, "2012", 3)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("SameNumberAgainIsNoop", func(t *testing.T) {
		repo := new(MockMemberRepo)
		pub := new(MockPublisher)
		svc := service.NewMemberService(repo, pub)
		repo.On("GetByDisplayKey", ctx, "2012").Return(&domain.Member{ID: 1, Name: "Alice", State: domain.MemberStateCheckedIn, LotteryNumber: domain.Int32Ptr(42)}, nil)

		m, err := svc.Checkin(ctx, "2012", 42)
		require.NoError(t, err)
		assert.Equal(t, int32(42), *m.LotteryNumber)
		pub.AssertNotCalled(t, "Publish", mock.Anything)
	})

	t.Run("DifferentNumber", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := service.NewMemberService(repo, new(MockPublisher))
		repo.On("GetByDisplayKey", ctx, "2012").Return(&domain.Member{ID: 1, Name: "Alice", State: domain.MemberStateCheckedIn, LotteryNumber: domain.Int32Ptr(42)}, nil)

		_, err := svc.Checkin(ctx, "2012", 43)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("NumberHeldByOther", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := service.NewMemberService(repo, new(MockPublisher))
		repo.On("GetByDisplayKey", ctx, "2012").Return(&domain.Member{ID: 1, Name: "Alice", State: domain.MemberStateNotCheckedIn}, nil)
		repo.On("GetByLotteryNumber", ctx, int32(7)).Return(&domain.Member{ID: 2, Name: "Bob"}, nil)

		_, err := svc.Checkin(ctx, "2012", 7)
		assert.ErrorIs(t, err, domain.ErrConflict)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

func TestMemberService_SetState(t *testing.T) {
	ctx := context.Background()

	t.Run("BackwardMoveClearsCheckinKeepsLottery", func(t *testing.T) {
		repo := memory.NewMemberRepository()
		h := hub.New(16, nil)
		svc := service.NewMemberService(repo, h)

		created, err := svc.CreateMember(ctx, &domain.Member{Name: "Alice", DisplayKey: "2012"})
		require.NoError(t, err)
		_, err = svc.Checkin(ctx, "2012", 5)
		require.NoError(t, err)

		m, err := svc.SetState(ctx, created.ID, domain.MemberStateNotCheckedIn)
		require.NoError(t, err)
		assert.Nil(t, m.CheckinTime)
		require.NotNil(t, m.LotteryNumber)
		assert.Equal(t, int32(5), *m.LotteryNumber)
		assert.Equal(t, int64(3), h.Seq())
	})

	t.Run("Unchanged", func(t *testing.T) {
		repo := new(MockMemberRepo)
		pub := new(MockPublisher)
		svc := service.NewMemberService(repo, pub)
		repo.On("GetByID", ctx, int64(1)).Return(&domain.Member{ID: 1, State: domain.MemberStateInterviewDone}, nil)

		_, err := svc.SetState(ctx, 1, domain.MemberStateInterviewDone)
		require.NoError(t, err)
		pub.AssertNotCalled(t, "Publish", mock.Anything)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("InvalidState", func(t *testing.T) {
		svc := service.NewMemberService(new(MockMemberRepo), new(MockPublisher))
		_, err := svc.SetState(ctx, 1, "LOST")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestMemberService_SnapshotSequenceMatchesCommits(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMemberRepository()
	h := hub.New(256, nil)
	svc := service.NewMemberService(repo, h)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.CreateMember(ctx, &domain.Member{Name: "Member"})
		}()
	}
	wg.Wait()

	members, seq, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 20)
	assert.Equal(t, int64(20), seq)

	// Replaying the log from scratch yields the ids in commit order.
	frames, _, complete := h.Since(0)
	require.True(t, complete)
	var last int64
	for _, f := range frames {
		ev, err := wire.Decode(f)
		require.NoError(t, err)
		id := ev.(domain.UpsertEvent).Member.ID
		assert.Greater(t, id, last)
		last = id
	}
}

func TestMemberService_BroadcastSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := new(MockMemberRepo)
	pub := new(MockPublisher)
	svc := service.NewMemberService(repo, pub)

	members := []domain.Member{{ID: 1, Name: "Alice", State: domain.MemberStateCheckedIn}}
	repo.On("List", ctx).Return(members, nil)
	pub.On("Publish", domain.SnapshotEvent{Members: members}).Return(wire.Frame{}, nil).Once()

	require.NoError(t, svc.BroadcastSnapshot(ctx))
	pub.AssertExpectations(t)
}
