package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"qrchat/internal/apperr"
	"qrchat/internal/models"
	"qrchat/internal/redis"
)

// RedisStore keeps the transcript as a redis list of JSON documents. Ids come
// from an INCR counter so they stay unique across processes sharing a prefix.
type RedisStore struct {
	client *redis.Client
	seqKey string
	msgKey string

	mu   sync.Mutex
	last time.Time
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "chat"
	}
	return &RedisStore{
		client: client,
		seqKey: prefix + ":messages:seq",
		msgKey: prefix + ":messages",
	}
}

func (s *RedisStore) Append(ctx context.Context, content string, sender models.Sender) (*models.Message, error) {
	if err := models.ValidateNew(content, sender); err != nil {
		return nil, err
	}
	id, err := s.client.Incr(ctx, s.seqKey)
	if err != nil {
		return nil, apperr.Storage("failed to save message", fmt.Errorf("redis incr: %w", err))
	}

	msg := &models.Message{
		ID:        strconv.FormatInt(id, 10),
		Content:   content,
		Sender:    sender,
		Timestamp: s.nextTimestamp(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, apperr.Storage("failed to save message", err)
	}
	if err := s.client.RPush(ctx, s.msgKey, payload); err != nil {
		return nil, apperr.Storage("failed to save message", fmt.Errorf("redis rpush: %w", err))
	}
	return msg, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Message, error) {
	raw, err := s.client.LRange(ctx, s.msgKey, 0, -1)
	if err != nil {
		return nil, apperr.Storage("failed to fetch messages", fmt.Errorf("redis lrange: %w", err))
	}
	messages := make([]*models.Message, 0, len(raw))
	for _, item := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, apperr.Storage("failed to fetch messages", fmt.Errorf("decode message: %w", err))
		}
		messages = append(messages, &m)
	}
	sortByTimestamp(messages)
	return messages, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := models.Timestamp()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	return now
}
