// Package redisstore keeps runs, their event logs and negotiation conversations in Redis
// so several control-plane replicas share them. Every key carries a TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/store"
)

const maxTxRetries = 5

// advanceSeq raises the counter to ARGV[1] if it is lower and refreshes its TTL.
var advanceSeq = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local incoming = tonumber(ARGV[1])
if incoming > current then
  redis.call('SET', KEYS[1], incoming)
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

type Options struct {
	KeySpace        string
	RunTTL          time.Duration
	ConversationTTL time.Duration
	Now             func() time.Time
}

type Store struct {
	client          redis.UniversalClient
	keySpace        string
	runTTL          time.Duration
	conversationTTL time.Duration
	now             func() time.Time
}

func New(client redis.UniversalClient, opts Options) *Store {
	if opts.KeySpace == "" {
		opts.KeySpace = "influai"
	}
	if opts.RunTTL <= 0 {
		opts.RunTTL = time.Hour
	}
	if opts.ConversationTTL <= 0 {
		opts.ConversationTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		client:          client,
		keySpace:        opts.KeySpace,
		runTTL:          opts.RunTTL,
		conversationTTL: opts.ConversationTTL,
		now:             opts.Now,
	}
}

func (s *Store) runKey(id string) string { return fmt.Sprintf("%s:run:%s", s.keySpace, id) }
func (s *Store) eventsKey(id string) string { return fmt.Sprintf("%s:run:%s:events", s.keySpace, id) }
func (s *Store) seqKey(id string) string { return fmt.Sprintf("%s:run:%s:seq", s.keySpace, id) }
func (s *Store) runIndexKey() string { return s.keySpace + ":runs" }
func (s *Store) conversationKey(id string) string { return fmt.Sprintf("%s:conv:%s", s.keySpace, id) }
func (s *Store) conversationIndexKey() string { return s.keySpace + ":conversations" }

func (s *Store) CreateRun(ctx context.Context, run store.Run) error {
	now := s.now().UTC()
	if run.CreatedAt == "" {
		run.CreatedAt = now.Format(time.RFC3339Nano)
	}
	if run.UpdatedAt == "" {
		run.UpdatedAt = run.CreatedAt
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.runKey(run.ID), payload, s.runTTL)
		pipe.ZAdd(ctx, s.runIndexKey(), redis.Z{Score: float64(now.UnixNano()), Member: run.ID})
		return nil
	})
	return err
}

func (s *Store) GetRun(ctx context.Context, runID string) (store.Run, error) {
	raw, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, err
	}
	var run store.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return store.Run{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status string, reason string) error {
	return s.updateRun(ctx, runID, func(run store.Run) store.Run {
		run.Status = status
		if reason != "" {
			run.Reason = reason
		}
		run.UpdatedAt = s.now().UTC().Format(time.RFC3339Nano)
		return run
	})
}

// updateRun applies fn under WATCH so concurrent writers never lose an update.
func (s *Store) updateRun(ctx context.Context, runID string, fn func(store.Run) store.Run) error {
	key := s.runKey(runID)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		var run store.Run
		if err := json.Unmarshal(raw, &run); err != nil {
			return fmt.Errorf("decode run %s: %w", runID, err)
		}
		payload, err := json.Marshal(fn(run))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.runTTL)
			return nil
		})
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update run %s: too much contention", runID)
}

// ListRuns returns the live runs, newest first. Index entries whose run key expired are
// removed on the way.
func (s *Store) ListRuns(ctx context.Context) ([]store.Run, error) {
	ids, err := s.client.ZRevRange(ctx, s.runIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	runs := make([]store.Run, 0, len(ids))
	var stale []any
	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.runIndexKey(), stale...).Err(); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) AppendEvent(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.eventsKey(event.RunID), payload)
		pipe.Expire(ctx, s.eventsKey(event.RunID), s.runTTL)
		return nil
	})
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		ttl := strconv.FormatInt(s.runTTL.Milliseconds(), 10)
		if err := advanceSeq.Run(ctx, s.client, []string{s.seqKey(event.RunID)}, event.Seq, ttl).Err(); err != nil {
			return err
		}
	}
	err = s.updateRun(ctx, event.RunID, func(run store.Run) store.Run {
		return store.ApplyEvent(run, event)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Store) ListEvents(ctx context.Context, runID string, afterSeq int64) ([]events.Event, error) {
	raw, err := s.client.LRange(ctx, s.eventsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(raw))
	for _, item := range raw {
		var event events.Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("decode event of run %s: %w", runID, err)
		}
		if event.Seq > afterSeq {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *Store) NextSeq(ctx context.Context, runID string) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.seqKey(runID))
		pipe.Expire(ctx, s.seqKey(runID), s.runTTL)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *Store) SaveConversation(ctx context.Context, conversation store.Conversation) error {
	if conversation.LastActivity.IsZero() {
		conversation.LastActivity = s.now()
	}
	payload, err := json.Marshal(conversation)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.conversationKey(conversation.ID), payload, s.conversationTTL)
		pipe.ZAdd(ctx, s.conversationIndexKey(), redis.Z{
			Score:  float64(conversation.LastActivity.Unix()),
			Member: conversation.ID,
		})
		return nil
	})
	return err
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (store.Conversation, error) {
	raw, err := s.client.Get(ctx, s.conversationKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.Conversation{}, store.ErrNotFound
		}
		return store.Conversation{}, err
	}
	var conversation store.Conversation
	if err := json.Unmarshal(raw, &conversation); err != nil {
		return store.Conversation{}, fmt.Errorf("decode conversation %s: %w", conversationID, err)
	}
	return conversation, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.conversationKey(conversationID))
		pipe.ZRem(ctx, s.conversationIndexKey(), conversationID)
		return nil
	})
	return err
}

func (s *Store) CountConversations(ctx context.Context) (int, error) {
	minScore := strconv.FormatInt(s.now().Add(-s.conversationTTL).Unix(), 10)
	count, err := s.client.ZCount(ctx, s.conversationIndexKey(), minScore, "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// PruneConversations trims the activity index; the conversation keys expire on their own.
func (s *Store) PruneConversations(ctx context.Context, now time.Time) (int, error) {
	maxScore := "(" + strconv.FormatInt(now.Add(-s.conversationTTL).Unix(), 10)
	removed, err := s.client.ZRemRangeByScore(ctx, s.conversationIndexKey(), "-inf", maxScore).Result()
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
