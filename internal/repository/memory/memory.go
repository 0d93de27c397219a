// Package memory keeps members and staff users in process memory. It backs
// local runs (database.type: memory) and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/repository"
)

type Store struct {
	repository.MemberRepository
	repository.UserRepository
}

func NewStore() *Store {
	return &Store{
		MemberRepository: NewMemberRepository(),
		UserRepository:   NewUserRepository(),
	}
}

type memberRepository struct {
	mu      sync.RWMutex
	members map[int64]domain.Member
	lastID  int64
}

func NewMemberRepository() repository.MemberRepository {
	return &memberRepository{members: make(map[int64]domain.Member)}
}

func (r *memberRepository) Create(ctx context.Context, m *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLottery(m.LotteryNumber, 0); err != nil {
		return err
	}
	if m.State == "" {
		m.State = domain.MemberStateNotCheckedIn
	}
	r.lastID++
	m.ID = r.lastID
	m.Version = 1
	r.members[m.ID] = m.Clone()
	return nil
}

func (r *memberRepository) GetByID(ctx context.Context, id int64) (*domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: member %d", repository.ErrNotFound, id)
	}
	c := m.Clone()
	return &c, nil
}

func (r *memberRepository) GetByDisplayKey(ctx context.Context, key string) (*domain.Member, error) {
	for _, m := range r.sorted() {
		if strings.EqualFold(m.DisplayKey, key) || (m.DisplayKey == "" && strings.EqualFold(m.Name, key)) {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("%w: display key %q", repository.ErrNotFound, key)
}

func (r *memberRepository) GetByLotteryNumber(ctx context.Context, lotteryNumber int32) (*domain.Member, error) {
	for _, m := range r.sorted() {
		if m.LotteryNumber != nil && *m.LotteryNumber == lotteryNumber {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("%w: lottery number %d", repository.ErrNotFound, lotteryNumber)
}

func (r *memberRepository) List(ctx context.Context) ([]domain.Member, error) {
	return r.sorted(), nil
}

func (r *memberRepository) Update(ctx context.Context, m *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.members[m.ID]
	if !ok {
		return fmt.Errorf("%w: member %d", repository.ErrNotFound, m.ID)
	}
	if err := r.checkLottery(m.LotteryNumber, m.ID); err != nil {
		return err
	}
	m.Version = current.Version + 1
	r.members[m.ID] = m.Clone()
	return nil
}

func (r *memberRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return fmt.Errorf("%w: member %d", repository.ErrNotFound, id)
	}
	delete(r.members, id)
	return nil
}

// checkLottery enforces the unique lottery number constraint. Caller holds mu.
func (r *memberRepository) checkLottery(n *int32, self int64) error {
	if n == nil {
		return nil
	}
	for id, m := range r.members {
		if id != self && m.LotteryNumber != nil && *m.LotteryNumber == *n {
			return fmt.Errorf("%w: lottery number %d", repository.ErrDuplicate, *n)
		}
	}
	return nil
}

func (r *memberRepository) sorted() []domain.Member {
	r.mu.RLock()
	out := make([]domain.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type userRepository struct {
	mu     sync.RWMutex
	users  map[string]domain.User
	lastID int32
}

func NewUserRepository() repository.UserRepository {
	return &userRepository{users: make(map[string]domain.User)}
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(u.Username)
	if _, exists := r.users[key]; exists {
		return fmt.Errorf("%w: username %q", repository.ErrDuplicate, u.Username)
	}
	r.lastID++
	u.ID = r.lastID
	u.CreatedOn = time.Now().Format("2006-01-02")
	r.users[key] = *u
	return nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[strings.ToLower(username)]
	if !ok {
		return nil, fmt.Errorf("%w: username %q", repository.ErrNotFound, username)
	}
	return &u, nil
}
