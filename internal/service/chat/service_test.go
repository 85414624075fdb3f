package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"qrchat/internal/apperr"
	"qrchat/internal/metrics"
	"qrchat/internal/models"
	"qrchat/internal/service/ai"
	"qrchat/internal/storage"
)

type fakeReplier struct {
	reply string
	err   error
	calls int
	got   string
}

func (f *fakeReplier) Respond(_ context.Context, text string) (string, error) {
	f.calls++
	f.got = text
	return f.reply, f.err
}

type failingStore struct {
	storage.Store
	failOn int
	calls  int
}

func (s *failingStore) Append(ctx context.Context, content string, sender models.Sender) (*models.Message, error) {
	s.calls++
	if s.calls == s.failOn {
		return nil, apperr.Storage("failed to save message", errors.New("disk full"))
	}
	return s.Store.Append(ctx, content, sender)
}

func listAll(t *testing.T, s storage.Store) []*models.Message {
	t.Helper()
	messages, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return messages
}

func TestTurnPersistsBothMessagesInOrder(t *testing.T) {
	store := storage.NewMemoryStore()
	replier := &fakeReplier{reply: "Hi! How can I help?"}
	svc := NewService(store, replier, nil, metrics.New())

	userMsg, aiMsg, err := svc.Turn(context.Background(), Request{Message: "Hello"})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if userMsg.Sender != models.SenderUser || userMsg.Content != "Hello" {
		t.Fatalf("unexpected user message %+v", userMsg)
	}
	if aiMsg.Sender != models.SenderAI || aiMsg.Content != "Hi! How can I help?" {
		t.Fatalf("unexpected ai message %+v", aiMsg)
	}
	if aiMsg.Timestamp.Before(userMsg.Timestamp) {
		t.Fatal("ai message must not precede the user message")
	}
	if replier.got != "Hello" {
		t.Fatalf("replier got %q", replier.got)
	}

	messages := listAll(t, store)
	if len(messages) != 2 || messages[0].ID != userMsg.ID || messages[1].ID != aiMsg.ID {
		t.Fatalf("unexpected transcript %+v", messages)
	}
}

func TestTurnValidationWritesNothing(t *testing.T) {
	cases := []struct {
		name string
		text string
		rule string
	}{
		{"empty", "", "required"},
		{"too long", strings.Repeat("x", MaxMessageLength+1), "max"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			replier := &fakeReplier{reply: "unused"}
			svc := NewService(store, replier, nil, nil)

			_, _, err := svc.Turn(context.Background(), Request{Message: tc.text})
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var reqErr *RequestError
			if !errors.As(err, &reqErr) || len(reqErr.Fields) != 1 || reqErr.Fields[0].Rule != tc.rule {
				t.Fatalf("expected %s field error, got %+v", tc.rule, reqErr)
			}
			if replier.calls != 0 {
				t.Fatal("replier must not be called")
			}
			if got := listAll(t, store); len(got) != 0 {
				t.Fatalf("expected empty store, got %d messages", len(got))
			}
		})
	}
}

func TestTurnAcceptsMaximumLength(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), &fakeReplier{reply: "ok"}, nil, nil)
	text := strings.Repeat("ü", MaxMessageLength)
	if _, _, err := svc.Turn(context.Background(), Request{Message: text}); err != nil {
		t.Fatalf("expected %d characters to be accepted: %v", MaxMessageLength, err)
	}
}

func TestTurnAcceptsSingleSpace(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewService(store, &fakeReplier{reply: "ok"}, nil, nil)
	user, reply, err := svc.Turn(context.Background(), Request{Message: " "})
	if err != nil {
		t.Fatalf("expected a one-space message to be accepted: %v", err)
	}
	if user.Content != " " || reply.Content != "ok" {
		t.Fatalf("unexpected turn %+v / %+v", user, reply)
	}
	if got := listAll(t, store); len(got) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(got))
	}
}

func TestTurnProviderFailureLeavesUserMessage(t *testing.T) {
	store := storage.NewMemoryStore()
	replier := &fakeReplier{err: errors.New("connection refused")}
	svc := NewService(store, replier, nil, nil)

	_, _, err := svc.Turn(context.Background(), Request{Message: "Hello"})
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	messages := listAll(t, store)
	if len(messages) != 1 || messages[0].Sender != models.SenderUser {
		t.Fatalf("expected only the user message, got %+v", messages)
	}
}

func TestTurnQuotaAdvisoryIsStored(t *testing.T) {
	store := storage.NewMemoryStore()
	m := metrics.New()
	svc := NewService(store, &fakeReplier{reply: ai.QuotaAdvisory}, nil, m)

	_, aiMsg, err := svc.Turn(context.Background(), Request{Message: "Hello"})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if aiMsg.Content != ai.QuotaAdvisory {
		t.Fatalf("expected advisory, got %q", aiMsg.Content)
	}
	if got := listAll(t, store); len(got) != 2 {
		t.Fatalf("expected two messages, got %d", len(got))
	}
}

func TestTurnOversizedReplyIsUpstream(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewService(store, &fakeReplier{reply: strings.Repeat("y", models.MaxContentLength+1)}, nil, nil)

	_, _, err := svc.Turn(context.Background(), Request{Message: "Hello"})
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if got := listAll(t, store); len(got) != 1 {
		t.Fatalf("expected only the user message, got %d", len(got))
	}
}

func TestTurnStorageFailure(t *testing.T) {
	store := &failingStore{Store: storage.NewMemoryStore(), failOn: 1}
	replier := &fakeReplier{reply: "unused"}
	svc := NewService(store, replier, nil, nil)

	_, _, err := svc.Turn(context.Background(), Request{Message: "Hello"})
	if !apperr.Is(err, apperr.KindStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if replier.calls != 0 {
		t.Fatal("replier must not be called when the user message was not saved")
	}
}

func TestHistoryNeverNil(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), &fakeReplier{}, nil, nil)
	messages, err := svc.History(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if messages == nil || len(messages) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", messages)
	}
}
