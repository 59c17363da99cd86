package conversation

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chiehyu-lin/line-ai-relay/internal/model/conversation"
)

// DefaultUserCap bounds how many distinct users the in-memory store tracks.
const DefaultUserCap = 1000

// MemoryStore keeps transcripts in process memory. Distinct users are held
// in an LRU list so long-running deployments stay bounded: when the cap is
// reached, the least recently active user's transcript is evicted.
type MemoryStore struct {
	mu      sync.Mutex
	userCap int
	order   *list.List               // front = most recently active user
	users   map[string]*list.Element // value is *userEntry
}

type userEntry struct {
	userID string
	turns  []conversation.Turn
}

// NewMemoryStore creates an in-memory store tracking at most userCap users.
func NewMemoryStore(userCap int) *MemoryStore {
	if userCap <= 0 {
		userCap = DefaultUserCap
	}
	return &MemoryStore{
		userCap: userCap,
		order:   list.New(),
		users:   make(map[string]*list.Element),
	}
}

func (s *MemoryStore) Append(_ context.Context, userID, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.touch(userID)
	entry.turns = append(entry.turns, conversation.Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	if n := len(entry.turns); n > MaxTranscriptTurns {
		entry.turns = append(entry.turns[:0:0], entry.turns[n-MaxTranscriptTurns:]...)
	}
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, userID string, limit int) ([]conversation.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	s.order.MoveToFront(elem)

	turns := elem.Value.(*userEntry).turns
	if limit <= 0 || limit > len(turns) {
		limit = len(turns)
	}
	out := make([]conversation.Turn, limit)
	copy(out, turns[len(turns)-limit:])
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// touch returns the entry for userID, creating it and evicting the least
// recently active user once the cap is exceeded. Caller holds s.mu.
func (s *MemoryStore) touch(userID string) *userEntry {
	if elem, ok := s.users[userID]; ok {
		s.order.MoveToFront(elem)
		return elem.Value.(*userEntry)
	}

	entry := &userEntry{userID: userID, turns: make([]conversation.Turn, 0, MaxTranscriptTurns)}
	s.users[userID] = s.order.PushFront(entry)

	if s.order.Len() > s.userCap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.users, oldest.Value.(*userEntry).userID)
	}
	return entry
}
