package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"qrchat/internal/config"
	"qrchat/internal/metrics"
	"qrchat/internal/models"
	"qrchat/internal/redis"
)

// Store is the durable ordered list of chat messages. Implementations are
// append-only: no variant exposes update or delete.
type Store interface {
	// Append validates content, stamps a fresh id and timestamp, persists the
	// message and returns the stored record.
	Append(ctx context.Context, content string, sender models.Sender) (*models.Message, error)
	// List returns every message ordered by timestamp, ties in insertion order.
	List(ctx context.Context) ([]*models.Message, error)
	Close() error
}

// Open builds the store variant selected by cfg.Store.Driver. Backends that
// need a server are connected here, except mongo which dials on first use.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	driver := strings.ToLower(cfg.Store.Driver)
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "mongo":
		conn := NewMongoConn(cfg.Mongo.URI)
		return NewMongoStore(conn, cfg.Mongo.Database, cfg.Mongo.Collection), nil
	case "sqlite", "sqlite3", "mysql":
		db, err := OpenSQL(driver, cfg)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, db, driver); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLStore(db), nil
	case "redis":
		client, err := redis.NewRedisClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		return NewRedisStore(client, cfg.Redis.Prefix), nil
	case "badger":
		return OpenBadgerStore(cfg.Badger.Path)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// stampClock hands out creation timestamps that never go backwards within
// the process, even if the wall clock does.
type stampClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *stampClock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := models.Timestamp()
	if c.now != nil {
		now = c.now()
	}
	if now.Before(c.last) {
		now = c.last
	}
	c.last = now
	return now
}

// sortByTimestamp orders messages by timestamp, keeping the relative order of
// equal timestamps.
func sortByTimestamp(messages []*models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
}

type instrumented struct {
	Store
	metrics *metrics.Metrics
}

// Instrument counts store operations on m.
func Instrument(s Store, m *metrics.Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{Store: s, metrics: m}
}

func (s *instrumented) Append(ctx context.Context, content string, sender models.Sender) (*models.Message, error) {
	msg, err := s.Store.Append(ctx, content, sender)
	s.metrics.StoreOp("append", err)
	return msg, err
}

func (s *instrumented) List(ctx context.Context) ([]*models.Message, error) {
	messages, err := s.Store.List(ctx)
	s.metrics.StoreOp("list", err)
	return messages, err
}
