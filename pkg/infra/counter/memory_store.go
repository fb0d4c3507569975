package counter

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store satisfying the same atomic-increment
// contract as the Redis implementation. It backs deterministic unit tests
// and single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	lists   map[string]*memoryList
	zsets   map[string][]scoredMember
	now     func() time.Time
}

type memoryEntry struct {
	value     int64
	expiresAt time.Time
}

type memoryList struct {
	values    []int64
	expiresAt time.Time
}

type scoredMember struct {
	score  float64
	member string
}

type MemoryStoreOpts struct {
	TimeProvider func() time.Time
}

func NewMemoryStore(opts *MemoryStoreOpts) *MemoryStore {
	now := time.Now
	if opts != nil && opts.TimeProvider != nil {
		now = opts.TimeProvider
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		lists:   make(map[string]*memoryList),
		zsets:   make(map[string][]scoredMember),
		now:     now,
	}
}

func (s *MemoryStore) IncrementWithWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	return s.incrementBy(key, 1, window)
}

func (s *MemoryStore) IncrementByWithWindow(_ context.Context, key string, delta int64, window time.Duration) (int64, error) {
	return s.incrementBy(key, delta, window)
}

func (s *MemoryStore) incrementBy(key string, delta int64, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.liveEntry(key)
	if entry == nil {
		entry = &memoryEntry{expiresAt: s.now().Add(window)}
		s.entries[key] = entry
	}
	entry.value += delta
	return entry.value, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.liveEntry(key)
	if entry == nil {
		return 0, nil
	}
	return entry.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
		delete(s.lists, key)
		delete(s.zsets, key)
	}
	return nil
}

func (s *MemoryStore) TimeToLive(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.liveEntry(key)
	if entry == nil {
		return 0, nil
	}
	return entry.expiresAt.Sub(s.now()), nil
}

func (s *MemoryStore) RangeAppend(_ context.Context, key string, value int64, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.liveList(key)
	if list == nil {
		list = &memoryList{}
		s.lists[key] = list
	}
	list.values = append(list.values, value)
	if len(list.values) > historyMaxLen {
		list.values = list.values[len(list.values)-historyMaxLen:]
	}
	list.expiresAt = s.now().Add(window)
	return nil
}

func (s *MemoryStore) RangeQuery(_ context.Context, key string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.liveList(key)
	if list == nil {
		return nil, nil
	}
	out := make([]int64, len(list.values))
	copy(out, list.values)
	return out, nil
}

func (s *MemoryStore) SortedAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.zsets[key]
	for i := range members {
		if members[i].member == member {
			members[i].score = score
			return nil
		}
	}
	s.zsets[key] = append(members, scoredMember{score: score, member: member})
	return nil
}

func (s *MemoryStore) SortedRemove(_ context.Context, key string, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.zsets[key]
	for i := range members {
		if members[i].member == member {
			s.zsets[key] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) SortedReplace(_ context.Context, key string, oldMember string, score float64, newMember string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.zsets[key]
	for i := range members {
		if members[i].member == oldMember {
			members = append(members[:i], members[i+1:]...)
			break
		}
	}
	for i := range members {
		if members[i].member == newMember {
			members[i].score = score
			s.zsets[key] = members
			return nil
		}
	}
	s.zsets[key] = append(members, scoredMember{score: score, member: newMember})
	return nil
}

func (s *MemoryStore) SortedRange(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]scoredMember, len(s.zsets[key]))
	copy(members, s.zsets[key])
	// Descending score, descending member for ties: ZREVRANGE order.
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].score != members[j].score {
			return members[i].score > members[j].score
		}
		return members[i].member > members[j].member
	})
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.member)
	}
	return out, nil
}

func (s *MemoryStore) liveEntry(key string) *memoryEntry {
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return entry
}

func (s *MemoryStore) liveList(key string) *memoryList {
	list, ok := s.lists[key]
	if !ok {
		return nil
	}
	if !s.now().Before(list.expiresAt) {
		delete(s.lists, key)
		return nil
	}
	return list
}
