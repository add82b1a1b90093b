package negotiation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/llm"
	"github.com/influai/control-plane/internal/metrics"
	"github.com/influai/control-plane/internal/store"
)

var (
	ErrPromptRequired         = errors.New("userPrompt is required")
	ErrConversationIDRequired = errors.New("conversationId is required")
	ErrMessageRequired        = errors.New("userMessage is required")
)

type ConversationStore interface {
	SaveConversation(ctx context.Context, conversation store.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (store.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	CountConversations(ctx context.Context) (int, error)
	PruneConversations(ctx context.Context, now time.Time) (int, error)
}

type Draft struct {
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	ConversationID string `json:"conversationId"`
}

type Reply struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
}

type Health struct {
	Status              string `json:"status"`
	Model               string `json:"model"`
	ActiveConversations int    `json:"active_conversations"`
}

type Service struct {
	model         llm.Provider
	modelName     string
	conversations ConversationStore
	logger        *zap.Logger
	now           func() time.Time
}

func NewService(model llm.Provider, modelName string, conversations ConversationStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		model:         model,
		modelName:     modelName,
		conversations: conversations,
		logger:        logger,
		now:           time.Now,
	}
}

// Start drafts the first outreach email and opens a conversation for follow-ups.
func (s *Service) Start(ctx context.Context, userPrompt string, influencerData map[string]any) (Draft, error) {
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return Draft{}, ErrPromptRequired
	}
	prompt := BuildPrompt(userPrompt, influencerData)
	text, err := s.generate(ctx, "negotiate", []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return Draft{}, err
	}
	subject, body := SplitEmail(text)

	id, err := s.newConversationID()
	if err != nil {
		return Draft{}, err
	}
	conversation := store.Conversation{
		ID: id,
		History: []store.Turn{
			{Role: llm.RoleUser, Content: prompt},
			{Role: llm.RoleAssistant, Content: text},
		},
		LastActivity: s.now(),
	}
	if err := s.conversations.SaveConversation(ctx, conversation); err != nil {
		return Draft{}, fmt.Errorf("save conversation: %w", err)
	}
	return Draft{Subject: subject, Body: body, ConversationID: id}, nil
}

// Reply continues a conversation. An unknown or expired id starts a fresh history under
// the same id instead of failing.
func (s *Service) Reply(ctx context.Context, conversationID string, userMessage string) (Reply, error) {
	conversationID = strings.TrimSpace(conversationID)
	userMessage = strings.TrimSpace(userMessage)
	if conversationID == "" {
		return Reply{}, ErrConversationIDRequired
	}
	if userMessage == "" {
		return Reply{}, ErrMessageRequired
	}
	if _, err := s.conversations.PruneConversations(ctx, s.now()); err != nil {
		s.logger.Warn("prune conversations failed", zap.Error(err))
	}

	conversation, err := s.conversations.GetConversation(ctx, conversationID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Warn("conversation not found, initializing new history", zap.String("conversation_id", conversationID))
		conversation = store.Conversation{
			ID:      conversationID,
			History: []store.Turn{{Role: llm.RoleUser, Content: newConversationSeed}},
		}
	case err != nil:
		return Reply{}, fmt.Errorf("load conversation: %w", err)
	}

	conversation.History = append(conversation.History, store.Turn{Role: llm.RoleUser, Content: userMessage})
	conversation.LastActivity = s.now()
	if err := s.conversations.SaveConversation(ctx, conversation); err != nil {
		return Reply{}, fmt.Errorf("save conversation: %w", err)
	}

	text, err := s.generate(ctx, "reply", toMessages(conversation.History))
	if err != nil {
		return Reply{}, err
	}
	conversation.History = append(conversation.History, store.Turn{Role: llm.RoleAssistant, Content: text})
	conversation.LastActivity = s.now()
	if err := s.conversations.SaveConversation(ctx, conversation); err != nil {
		return Reply{}, fmt.Errorf("save conversation: %w", err)
	}
	return Reply{Response: text, ConversationID: conversationID}, nil
}

// End forgets a conversation. Unknown ids are not an error.
func (s *Service) End(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ErrConversationIDRequired
	}
	return s.conversations.DeleteConversation(ctx, conversationID)
}

func (s *Service) Health(ctx context.Context) (Health, error) {
	if _, err := s.conversations.PruneConversations(ctx, s.now()); err != nil {
		return Health{}, err
	}
	count, err := s.conversations.CountConversations(ctx)
	if err != nil {
		return Health{}, err
	}
	return Health{Status: "ok", Model: s.modelName, ActiveConversations: count}, nil
}

func (s *Service) generate(ctx context.Context, operation string, messages []llm.Message) (string, error) {
	if s.model == nil {
		metrics.ObserveNegotiation(operation, false)
		return "", errors.New("negotiation model is not configured")
	}
	text, err := s.model.Generate(ctx, messages)
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyResponse
	}
	metrics.ObserveNegotiation(operation, err == nil)
	if err != nil {
		s.logger.Error("negotiation model call failed", zap.String("operation", operation), zap.Error(err))
		return "", err
	}
	return Clean(text), nil
}

func (s *Service) newConversationID() (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate conversation id: %w", err)
	}
	return fmt.Sprintf("conv_%s_%s", s.now().Format("20060102150405"), hex.EncodeToString(suffix)), nil
}

func toMessages(history []store.Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(history))
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}
