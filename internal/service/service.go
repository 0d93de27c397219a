package service

import (
	"context"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/wire"
)

// Publisher delivers member events to connected stations.
type Publisher interface {
	Publish(ev domain.Event) (wire.Frame, error)
	Seq() int64
}

type MemberService interface {
	ListMembers(ctx context.Context) ([]domain.Member, error)
	// Snapshot returns the member list together with the sequence number of
	// the last event it reflects.
	Snapshot(ctx context.Context) ([]domain.Member, int64, error)
	CreateMember(ctx context.Context, member *domain.Member) (*domain.Member, error)
	UpdateMember(ctx context.Context, id int64, member *domain.Member) (*domain.Member, error)
	DeleteMember(ctx context.Context, id int64) error
	Checkin(ctx context.Context, displayKey string, lotteryNumber int32) (*domain.Member, error)
	SetState(ctx context.Context, id int64, state domain.MemberState) (*domain.Member, error)
	BroadcastSnapshot(ctx context.Context) error
}

type AuthService interface {
	Register(ctx context.Context, username, password, displayKey string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, *domain.User, error) // access token, user
}
