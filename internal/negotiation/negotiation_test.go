package negotiation

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/influai/control-plane/internal/llm"
	"github.com/influai/control-plane/internal/store"
	"github.com/influai/control-plane/internal/store/memory"
)

type scriptedModel struct {
	replies []string
	err     error
	calls   [][]llm.Message
}

func (m *scriptedModel) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	m.calls = append(m.calls, append([]llm.Message(nil), messages...))
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
}

func newService(model llm.Provider, conversations ConversationStore) *Service {
	svc := NewService(model, "gemini-1.5-flash", conversations, nil)
	svc.now = fixedNow
	return svc
}

func TestClean(t *testing.T) {
	in := "  **Subject** for the top influencer\n\nCall [Your Phone Number] or DM @[Your Instagram Handle]. -- Priyansh Arora, leading negotiator, best in the business *  "
	require.Equal(t,
		"Subject for the team at InfluAI\n\nCall hello@influai.com or DM @InfluAI. -- InfluAI team, InfluAI representative, InfluAI",
		Clean(in))
}

func TestCleanStripsEmphasisBeforeRewritingPhrases(t *testing.T) {
	require.Equal(t,
		"Work with the team at InfluAI and the team at InfluAI",
		Clean("Work with the **top** influencer and the top *influencer"))
	require.Equal(t, "Signed, InfluAI team", Clean("Signed, **Priyansh** Arora"))
}

func TestSplitEmail(t *testing.T) {
	subject, body := SplitEmail("Collab with InfluAI\n\nHi Flo,\n\nWe love your work.")
	require.Equal(t, "Collab with InfluAI", subject)
	require.Equal(t, "Hi Flo,\n\nWe love your work.", body)

	subject, body = SplitEmail("single paragraph only")
	require.Equal(t, "single paragraph only", subject)
	require.Equal(t, "single paragraph only", body)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("Offer $500", map[string]any{"name": "Flo", "followers": "1.2M"})
	require.True(t, strings.HasPrefix(prompt, "You are writing an email as a representative from InfluAI."))
	require.Contains(t, prompt, "--- Influencer Profile ---\nfollowers: 1.2M\nname: Flo\n")
	require.Contains(t, prompt, "--- User Instruction ---\nOffer $500\n")
	require.Contains(t, prompt, "Anchor rate 20% above typical")

	require.Contains(t, BuildPrompt("x", nil), "--- Influencer Profile ---\nNone\n")
}

func TestStart(t *testing.T) {
	model := &scriptedModel{replies: []string{"**Let's collaborate**\n\nHi Flo,\nwe are the top influencer agency."}}
	mem := memory.New(memory.WithClock(fixedNow))
	svc := newService(model, mem)

	draft, err := svc.Start(context.Background(), "  Offer $500 ", map[string]any{"name": "Flo"})
	require.NoError(t, err)
	require.Equal(t, "Let's collaborate", draft.Subject)
	require.Equal(t, "Hi Flo,\nwe are the team at InfluAI agency.", draft.Body)
	require.Regexp(t, regexp.MustCompile(`^conv_20250304050607_[0-9a-f]{8}$`), draft.ConversationID)

	conversation, err := mem.GetConversation(context.Background(), draft.ConversationID)
	require.NoError(t, err)
	require.Len(t, conversation.History, 2)
	require.Contains(t, conversation.History[0].Content, "Offer $500")

	require.Len(t, model.calls, 1)
	require.Equal(t, llm.RoleUser, model.calls[0][0].Role)
}

func TestStartValidationAndEmptyResponse(t *testing.T) {
	svc := newService(&scriptedModel{}, memory.New())
	_, err := svc.Start(context.Background(), "   ", nil)
	require.ErrorIs(t, err, ErrPromptRequired)

	_, err = svc.Start(context.Background(), "hello", nil)
	require.ErrorIs(t, err, llm.ErrEmptyResponse)

	failing := newService(&scriptedModel{err: errors.New("quota")}, memory.New())
	_, err = failing.Start(context.Background(), "hello", nil)
	require.EqualError(t, err, "quota")
}

func TestReplyContinuesHistory(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(memory.WithClock(fixedNow))
	model := &scriptedModel{replies: []string{"Subject\n\nBody", "Sure, **$600** works."}}
	svc := newService(model, mem)

	draft, err := svc.Start(ctx, "Offer $500", nil)
	require.NoError(t, err)

	reply, err := svc.Reply(ctx, draft.ConversationID, "Can you do $600?")
	require.NoError(t, err)
	require.Equal(t, "Sure, $600 works.", reply.Response)
	require.Equal(t, draft.ConversationID, reply.ConversationID)

	history := model.calls[1]
	require.Len(t, history, 3)
	require.Equal(t, llm.RoleAssistant, history[1].Role)
	require.Equal(t, "Subject\n\nBody", history[1].Content)
	require.Equal(t, "Can you do $600?", history[2].Content)

	conversation, err := mem.GetConversation(ctx, draft.ConversationID)
	require.NoError(t, err)
	require.Len(t, conversation.History, 4)
}

func TestReplyUnknownConversationSeedsHistory(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(memory.WithClock(fixedNow))
	model := &scriptedModel{replies: []string{"Hello!"}}
	svc := newService(model, mem)

	reply, err := svc.Reply(ctx, "conv_unknown", "Hi there")
	require.NoError(t, err)
	require.Equal(t, "Hello!", reply.Response)
	require.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: newConversationSeed},
		{Role: llm.RoleUser, Content: "Hi there"},
	}, model.calls[0])

	_, err = svc.Reply(ctx, "", "x")
	require.ErrorIs(t, err, ErrConversationIDRequired)
	_, err = svc.Reply(ctx, "conv_unknown", " ")
	require.ErrorIs(t, err, ErrMessageRequired)
}

func TestEndAndHealth(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(memory.WithClock(fixedNow))
	svc := newService(&scriptedModel{replies: []string{"S\n\nB"}}, mem)

	draft, err := svc.Start(ctx, "Offer", nil)
	require.NoError(t, err)

	health, err := svc.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, Health{Status: "ok", Model: "gemini-1.5-flash", ActiveConversations: 1}, health)

	require.NoError(t, svc.End(ctx, draft.ConversationID))
	require.NoError(t, svc.End(ctx, draft.ConversationID))
	require.ErrorIs(t, svc.End(ctx, ""), ErrConversationIDRequired)

	_, err = mem.GetConversation(ctx, draft.ConversationID)
	require.ErrorIs(t, err, store.ErrNotFound)
	health, err = svc.Health(ctx)
	require.NoError(t, err)
	require.Zero(t, health.ActiveConversations)
}
