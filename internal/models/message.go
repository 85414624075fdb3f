package models

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"qrchat/internal/apperr"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// MaxContentLength bounds the stored content of a single message, in characters.
const MaxContentLength = 10000

// Message is a single persisted chat entry. Identifier and timestamp are
// assigned by the store that created it.
type Message struct {
	ID        string
	Content   string
	Sender    Sender
	Timestamp time.Time
}

type messageJSON struct {
	MongoID   string    `json:"_id"`
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON emits the identifier under both "_id" and "id"; web clients
// built against the document store read either.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		MongoID:   m.ID,
		ID:        m.ID,
		Content:   m.Content,
		Sender:    m.Sender,
		Timestamp: m.Timestamp.UTC(),
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.ID = raw.ID
	if m.ID == "" {
		m.ID = raw.MongoID
	}
	m.Content = raw.Content
	m.Sender = raw.Sender
	m.Timestamp = raw.Timestamp
	return nil
}

// ValidateNew checks the fields a caller supplies when creating a message.
func ValidateNew(content string, sender Sender) error {
	if !sender.Valid() {
		return apperr.Validation("invalid sender %q", sender)
	}
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return apperr.Validation("content cannot be empty")
	}
	if n > MaxContentLength {
		return apperr.Validation("content exceeds %d characters (got %d)", MaxContentLength, n)
	}
	return nil
}

// Timestamp returns the creation time stores stamp on new messages. It is
// truncated to milliseconds, the coarsest resolution among the backends.
func Timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
