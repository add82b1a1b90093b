package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/store"
)

const (
	defaultRunTTL          = time.Hour
	defaultConversationTTL = 24 * time.Hour
)

// MemoryStore keeps runs and conversations in process. Entries older than their TTL are
// dropped lazily on access.
type MemoryStore struct {
	mu              sync.RWMutex
	runs            map[string]store.Run
	events          map[string][]events.Event
	seq             map[string]int64
	conversations   map[string]store.Conversation
	runTTL          time.Duration
	conversationTTL time.Duration
	now             func() time.Time
}

type Option func(*MemoryStore)

func WithRunTTL(ttl time.Duration) Option {
	return func(m *MemoryStore) {
		if ttl > 0 {
			m.runTTL = ttl
		}
	}
}

func WithConversationTTL(ttl time.Duration) Option {
	return func(m *MemoryStore) {
		if ttl > 0 {
			m.conversationTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

func New(opts ...Option) *MemoryStore {
	m := &MemoryStore{
		runs:            map[string]store.Run{},
		events:          map[string][]events.Event{},
		seq:             map[string]int64{},
		conversations:   map[string]store.Conversation{},
		runTTL:          defaultRunTTL,
		conversationTTL: defaultConversationTTL,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) CreateRun(ctx context.Context, run store.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC().Format(time.RFC3339Nano)
	if run.CreatedAt == "" {
		run.CreatedAt = now
	}
	if run.UpdatedAt == "" {
		run.UpdatedAt = run.CreatedAt
	}
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, runID string) (store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireRunsLocked()
	run, ok := m.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	run.Steps = append([]store.RunStep(nil), run.Steps...)
	return run, nil
}

func (m *MemoryStore) UpdateRunStatus(ctx context.Context, runID string, status string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = status
	if reason != "" {
		run.Reason = reason
	}
	run.UpdatedAt = m.now().UTC().Format(time.RFC3339Nano)
	m.runs[runID] = run
	return nil
}

// ListRuns returns the live runs, newest first.
func (m *MemoryStore) ListRuns(ctx context.Context) ([]store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireRunsLocked()
	results := make([]store.Run, 0, len(m.runs))
	for _, run := range m.runs {
		run.Steps = append([]store.RunStep(nil), run.Steps...)
		results = append(results, run)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt == results[j].CreatedAt {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt > results[j].CreatedAt
	})
	return results, nil
}

// AppendEvent records an event for a known run. Events for unknown runs are rejected so
// the log never outlives the run that expires it.
func (m *MemoryStore) AppendEvent(ctx context.Context, event events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[event.RunID]
	if !ok {
		return store.ErrNotFound
	}
	m.events[event.RunID] = append(m.events[event.RunID], event)
	if event.Seq > m.seq[event.RunID] {
		m.seq[event.RunID] = event.Seq
	}
	m.runs[event.RunID] = store.ApplyEvent(run, event)
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, runID string, afterSeq int64) ([]events.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.events[runID]
	filtered := make([]events.Event, 0, len(list))
	for _, event := range list {
		if event.Seq > afterSeq {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

func (m *MemoryStore) NextSeq(ctx context.Context, runID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return 0, store.ErrNotFound
	}
	m.seq[runID] += 1
	return m.seq[runID], nil
}

func (m *MemoryStore) SaveConversation(ctx context.Context, conversation store.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conversation.LastActivity.IsZero() {
		conversation.LastActivity = m.now()
	}
	conversation.History = append([]store.Turn(nil), conversation.History...)
	m.conversations[conversation.ID] = conversation
	return nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, conversationID string) (store.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conversation, ok := m.conversations[conversationID]
	if !ok || m.conversationExpired(conversation, m.now()) {
		return store.Conversation{}, store.ErrNotFound
	}
	conversation.History = append([]store.Turn(nil), conversation.History...)
	return conversation, nil
}

func (m *MemoryStore) DeleteConversation(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, conversationID)
	return nil
}

func (m *MemoryStore) CountConversations(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	count := 0
	for _, conversation := range m.conversations {
		if !m.conversationExpired(conversation, now) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) PruneConversations(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, conversation := range m.conversations {
		if m.conversationExpired(conversation, now) {
			delete(m.conversations, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) conversationExpired(conversation store.Conversation, now time.Time) bool {
	return now.Sub(conversation.LastActivity) > m.conversationTTL
}

// expireRunsLocked drops runs whose last update is older than the run TTL, together
// with their event logs.
func (m *MemoryStore) expireRunsLocked() {
	cutoff := m.now().Add(-m.runTTL)
	for id, run := range m.runs {
		updated, err := time.Parse(time.RFC3339Nano, run.UpdatedAt)
		if err != nil || !updated.Before(cutoff) {
			continue
		}
		delete(m.runs, id)
		delete(m.events, id)
		delete(m.seq, id)
	}
}
