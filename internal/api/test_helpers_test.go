package api

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/config"
	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/influencer"
	"github.com/influai/control-plane/internal/llm"
	"github.com/influai/control-plane/internal/store"
	"github.com/influai/control-plane/internal/store/memory"
)

type MockWorkflowService struct {
	mock.Mock
}

func (m *MockWorkflowService) StartRun(ctx context.Context, runID string, req automation.Request, delays map[events.Phase]time.Duration) error {
	args := m.Called(ctx, runID, req, delays)
	return args.Error(0)
}

func (m *MockWorkflowService) CancelRun(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

func (m *MockWorkflowService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockVoice struct {
	mock.Mock
}

func (m *MockVoice) SignedURL(ctx context.Context, agentID string) (string, error) {
	args := m.Called(ctx, agentID)
	return args.String(0), args.Error(1)
}

// scriptedModel answers every prompt with the same text, or fails when err is set.
type scriptedModel struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts [][]llm.Message
}

func (m *scriptedModel) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, append([]llm.Message(nil), messages...))
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

type fixedSearcher struct {
	candidates []influencer.Candidate
	err        error
}

func (s fixedSearcher) Search(ctx context.Context, query influencer.Query) ([]influencer.Candidate, error) {
	return s.candidates, s.err
}

func unpacedDriver(model llm.Provider, searcher influencer.Searcher) *automation.Driver {
	return automation.NewDriver(model, searcher, automation.WithPacing(func(time.Duration) time.Duration { return 0 }))
}

type testDeps struct {
	store  *memory.MemoryStore
	broker *events.Broker
}

func newDeps() testDeps {
	return testDeps{store: memory.New(), broker: events.NewBroker()}
}

func newTestServer(t *testing.T, deps testDeps, workflows WorkflowService, cfg config.Config, opts ...Option) *httptest.Server {
	t.Helper()
	server := NewServer(deps.store, deps.broker, workflows, cfg, opts...)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		ts.Close()
		server.cancelAllRuns()
		server.runsWG.Wait()
	})
	return ts
}

var _ store.Store = (*memory.MemoryStore)(nil)
