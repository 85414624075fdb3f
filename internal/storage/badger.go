package storage

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"qrchat/internal/apperr"
	"qrchat/internal/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/oklog/ulid/v2"
)

const badgerMessagePrefix = "msg:"

// BadgerStore is an embedded on-disk store. Keys are
// msg:<unix nanos, zero padded>:<ulid>, so a prefix scan yields the transcript
// already in timestamp order.
type BadgerStore struct {
	db *badger.DB

	mu      sync.Mutex
	last    time.Time
	entropy io.Reader
}

// OpenBadgerStore opens (or creates) the badger directory at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	if path == "" {
		return nil, fmt.Errorf("badger path must be provided")
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", path, err)
	}
	return &BadgerStore{
		db:      db,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// nextID stamps a non-decreasing timestamp and a ULID that sorts after every
// id handed out before it.
func (s *BadgerStore) nextID() (time.Time, ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := models.Timestamp()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	return now, id, err
}

func (s *BadgerStore) Append(_ context.Context, content string, sender models.Sender) (*models.Message, error) {
	if err := models.ValidateNew(content, sender); err != nil {
		return nil, err
	}
	now, id, err := s.nextID()
	if err != nil {
		return nil, apperr.Storage("failed to save message", fmt.Errorf("generate id: %w", err))
	}

	msg := &models.Message{
		ID:        id.String(),
		Content:   content,
		Sender:    sender,
		Timestamp: now,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, apperr.Storage("failed to save message", err)
	}

	key := fmt.Sprintf("%s%019d:%s", badgerMessagePrefix, now.UnixNano(), msg.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return nil, apperr.Storage("failed to save message", fmt.Errorf("badger set: %w", err))
	}
	return msg, nil
}

func (s *BadgerStore) List(_ context.Context) ([]*models.Message, error) {
	var messages []*models.Message
	prefix := []byte(badgerMessagePrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var m models.Message
				if err := json.Unmarshal(v, &m); err != nil {
					return fmt.Errorf("decode message: %w", err)
				}
				messages = append(messages, &m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Storage("failed to fetch messages", err)
	}
	return messages, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
