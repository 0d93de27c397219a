package repository

import (
	"context"
	"errors"

	"checkin-sync/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type MemberRepository interface {
	// Create assigns the member id and sets Version to 1.
	Create(ctx context.Context, member *domain.Member) error
	GetByID(ctx context.Context, id int64) (*domain.Member, error)
	GetByDisplayKey(ctx context.Context, key string) (*domain.Member, error)
	GetByLotteryNumber(ctx context.Context, lotteryNumber int32) (*domain.Member, error)
	List(ctx context.Context) ([]domain.Member, error)
	// Update writes every mutable field and bumps Version on member.
	Update(ctx context.Context, member *domain.Member) error
	Delete(ctx context.Context, id int64) error
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}
