package store

import (
	"context"
	"errors"
	"time"

	"github.com/influai/control-plane/internal/events"
)

var ErrNotFound = errors.New("not found")

const (
	RunModeInline   = "inline"
	RunModeDetached = "detached"
)

type Run struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Name       string    `json:"name"`
	Goals      string    `json:"goals"`
	Industry   string    `json:"industry"`
	Budget     string    `json:"budget"`
	Steps      []RunStep `json:"steps,omitempty"`
	Candidates int       `json:"candidates"`
	LastSeq    int64     `json:"last_seq"`
	CreatedAt  string    `json:"created_at"`
	UpdatedAt  string    `json:"updated_at"`
}

// Turn is one message of a negotiation conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Conversation struct {
	ID           string    `json:"id"`
	History      []Turn    `json:"history"`
	LastActivity time.Time `json:"last_activity"`
}

type Store interface {
	CreateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status string, reason string) error
	ListRuns(ctx context.Context) ([]Run, error)
	AppendEvent(ctx context.Context, event events.Event) error
	ListEvents(ctx context.Context, runID string, afterSeq int64) ([]events.Event, error)
	NextSeq(ctx context.Context, runID string) (int64, error)

	SaveConversation(ctx context.Context, conversation Conversation) error
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	CountConversations(ctx context.Context) (int, error)
	PruneConversations(ctx context.Context, now time.Time) (int, error)

	Ping(ctx context.Context) error
}
