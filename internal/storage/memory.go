package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"qrchat/internal/models"
)

// MemoryStore keeps messages for the lifetime of the process. Identifiers are
// a counter starting at 1.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	last     time.Time
	messages []models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(_ context.Context, content string, sender models.Sender) (*models.Message, error) {
	if err := models.ValidateNew(content, sender); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := models.Timestamp()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now

	msg := models.Message{
		ID:        strconv.FormatInt(s.nextID, 10),
		Content:   content,
		Sender:    sender,
		Timestamp: now,
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.Message, error) {
	s.mu.RLock()
	result := make([]*models.Message, len(s.messages))
	for i := range s.messages {
		msg := s.messages[i]
		result[i] = &msg
	}
	s.mu.RUnlock()

	sortByTimestamp(result)
	return result, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
