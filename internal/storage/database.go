package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"qrchat/internal/apperr"
	"qrchat/internal/config"
	"qrchat/internal/models"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// OpenSQL connects to the relational database configured for dbType.
func OpenSQL(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok && dbType == "sqlite" {
		dbCfg, ok = cfg.Databases["sqlite3"]
	}
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// every connection to :memory: is a separate database
		if strings.Contains(dbCfg.DSN, ":memory:") {
			db.SetMaxOpenConns(1)
		}
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			params := dbCfg.Params
			if params == "" {
				params = "parseTime=true&loc=UTC"
			}
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the messages table is present.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				content TEXT NOT NULL,
				sender TEXT NOT NULL CHECK (sender IN ('user', 'ai')),
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				content MEDIUMTEXT NOT NULL,
				sender VARCHAR(8) NOT NULL,
				created_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_messages_created_at (created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

// SQLStore persists messages in a relational table; ids come from the
// autoincrement column.
type SQLStore struct {
	db    *sql.DB
	clock stampClock
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Append(ctx context.Context, content string, sender models.Sender) (*models.Message, error) {
	if err := models.ValidateNew(content, sender); err != nil {
		return nil, err
	}
	now := s.clock.next()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (content, sender, created_at) VALUES (?, ?, ?)`,
		content, string(sender), now,
	)
	if err != nil {
		return nil, apperr.Storage("failed to save message", fmt.Errorf("insert message: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Storage("failed to save message", fmt.Errorf("message id: %w", err))
	}
	return &models.Message{
		ID:        strconv.FormatInt(id, 10),
		Content:   content,
		Sender:    sender,
		Timestamp: now,
	}, nil
}

func (s *SQLStore) List(ctx context.Context) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, sender, created_at FROM messages ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, apperr.Storage("failed to fetch messages", fmt.Errorf("list messages: %w", err))
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var (
			id     int64
			sender string
			m      = new(models.Message)
		)
		if err := rows.Scan(&id, &m.Content, &sender, &m.Timestamp); err != nil {
			return nil, apperr.Storage("failed to fetch messages", fmt.Errorf("scan message: %w", err))
		}
		m.ID = strconv.FormatInt(id, 10)
		m.Sender = models.Sender(sender)
		m.Timestamp = m.Timestamp.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("failed to fetch messages", err)
	}
	return messages, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
