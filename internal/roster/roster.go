// Package roster holds the member list one staff session sees. All
// mutation goes through ApplySnapshot, ApplyUpsert and ApplyRemoval; UI code
// only ever reads copies.
package roster

import (
	"sort"
	"strings"
	"sync"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/logger"
)

const changeQueueSize = 32

type ChangeKind string

const (
	ChangeSnapshot ChangeKind = "snapshot"
	ChangeUpsert   ChangeKind = "upsert"
	ChangeRemoval  ChangeKind = "removal"
)

// Change tells subscribers that the view moved. It is a hint: readers
// call Read for the actual state, so a dropped Change loses nothing.
type Change struct {
	Kind ChangeKind
	ID   int64
}

type Option func(*Store)

// WithStaleGuard makes ApplyUpsert ignore a member whose Version is lower
// than the stored one. Without it the most recently arrived upsert wins.
func WithStaleGuard() Option {
	return func(s *Store) {
		s.staleGuard = true
	}
}

type Store struct {
	mu         sync.RWMutex
	members    map[int64]domain.Member
	staleGuard bool

	subMu   sync.Mutex
	subs    map[int]chan Change
	lastSub int
}

func New(opts ...Option) *Store {
	s := &Store{
		members: make(map[int64]domain.Member),
		subs:    make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplySnapshot replaces the whole set with members.
func (s *Store) ApplySnapshot(members []domain.Member) {
	next := make(map[int64]domain.Member, len(members))
	for _, m := range members {
		next[m.ID] = m.Clone()
	}
	s.mu.Lock()
	s.members = next
	s.mu.Unlock()

	logger.Debug("Roster snapshot applied", "members", len(next))
	s.notify(Change{Kind: ChangeSnapshot})
}

// ApplyUpsert inserts m or replaces the stored entry with the same id. It
// reports whether the visible state changed.
func (s *Store) ApplyUpsert(m domain.Member) bool {
	s.mu.Lock()
	current, exists := s.members[m.ID]
	if exists && sameMember(current, m) {
		s.mu.Unlock()
		return false
	}
	if exists && s.staleGuard && m.Version > 0 && m.Version < current.Version {
		s.mu.Unlock()
		logger.Debug("Roster ignored stale upsert", "id", m.ID, "version", m.Version, "stored_version", current.Version)
		return false
	}
	s.members[m.ID] = m.Clone()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpsert, ID: m.ID})
	return true
}

// ApplyRemoval drops the member with id. Unknown ids are ignored.
func (s *Store) ApplyRemoval(id int64) bool {
	s.mu.Lock()
	if _, ok := s.members[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.members, id)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeRemoval, ID: id})
	return true
}

// Read returns an independent copy of every member, ordered by id.
func (s *Store) Read() []domain.Member {
	s.mu.RLock()
	out := make([]domain.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Get(id int64) (domain.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return domain.Member{}, false
	}
	return m.Clone(), true
}

// FindByDisplayKey matches the lookup key of each member: the display key,
// or the full name for members without one. Comparison ignores case and
// surrounding space.
func (s *Store) FindByDisplayKey(key string) (domain.Member, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Member{}, false
	}
	for _, m := range s.Read() {
		if strings.EqualFold(m.Key(), key) {
			return m, true
		}
	}
	return domain.Member{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Subscribe returns a channel that receives a Change after every mutation
// that altered the view.
func (s *Store) Subscribe() (int, <-chan Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.lastSub++
	ch := make(chan Change, changeQueueSize)
	s.subs[s.lastSub] = ch
	return s.lastSub, ch
}

func (s *Store) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- c:
		default:
			logger.Debug("Roster subscriber queue full, change dropped", "subscriber", id, "kind", c.Kind)
		}
	}
}

func sameMember(a, b domain.Member) bool {
	if a.ID != b.ID ||
		a.DisplayKey != b.DisplayKey ||
		a.Name != b.Name ||
		a.Organization != b.Organization ||
		a.FormerRole != b.FormerRole ||
		a.JoinYear != b.JoinYear ||
		a.Department != b.Department ||
		a.State != b.State ||
		a.Version != b.Version {
		return false
	}
	if (a.LotteryNumber == nil) != (b.LotteryNumber == nil) {
		return false
	}
	if a.LotteryNumber != nil && *a.LotteryNumber != *b.LotteryNumber {
		return false
	}
	if (a.CheckinTime == nil) != (b.CheckinTime == nil) {
		return false
	}
	if a.CheckinTime != nil && !a.CheckinTime.Equal(*b.CheckinTime) {
		return false
	}
	return true
}
