package chatview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"qrchat/internal/api"
	"qrchat/internal/metrics"
	"qrchat/internal/models"
	"qrchat/internal/service/chat"
	"qrchat/internal/service/voice"
	"qrchat/internal/storage"
)

type echoReplier struct{}

func (echoReplier) Respond(_ context.Context, text string) (string, error) {
	return "You said: " + text, nil
}

type fixedTranscriber struct{}

func (fixedTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return "hello", nil
}

type fixedSynthesizer struct{}

func (fixedSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := storage.NewMemoryStore()
	m := metrics.New()
	chatService := chat.NewService(store, echoReplier{}, nil, m)
	bridge := voice.NewBridge(fixedTranscriber{}, echoReplier{}, fixedSynthesizer{}, nil, m)
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(chatService, bridge, m, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client := NewClient(newServer(t).URL+"/", nil)

	messages, err := client.ListMessages(ctx)
	req.NoError(err)
	req.Empty(messages)

	result, err := client.SendChat(ctx, "Hello")
	req.NoError(err)
	req.Equal("Hello", result.UserMessage.Content)
	req.Equal(models.SenderUser, result.UserMessage.Sender)
	req.Equal("You said: Hello", result.AIMessage.Content)

	messages, err = client.ListMessages(ctx)
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal(result.UserMessage.ID, messages[0].ID)
	req.True(result.AIMessage.Timestamp.Equal(messages[1].Timestamp))

	audio, err := client.VoiceQuery(ctx, []byte("RIFF"), "")
	req.NoError(err)
	req.Equal("mp3:You said: hello", string(audio))
}

func TestClientValidationError(t *testing.T) {
	req := require.New(t)
	client := NewClient(newServer(t).URL, nil)

	_, err := client.SendChat(context.Background(), strings.Repeat("x", 1001))
	var apiErr *APIError
	req.ErrorAs(err, &apiErr)
	req.Equal(http.StatusBadRequest, apiErr.Status)
	req.Equal("Invalid request format", apiErr.Message)
	req.NotEmpty(apiErr.Errors)

	_, err = client.VoiceQuery(context.Background(), nil, "query.wav")
	req.ErrorAs(err, &apiErr)
	req.Equal(http.StatusBadRequest, apiErr.Status)
}

type fakeBackend struct {
	mu       sync.Mutex
	sent     []string
	messages []*models.Message
	sendErr  error
	listErr  error
	lists    int
	release  chan struct{}
	started  chan struct{}
}

func (b *fakeBackend) ListMessages(context.Context) ([]*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists++
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]*models.Message(nil), b.messages...), nil
}

func (b *fakeBackend) SendChat(_ context.Context, text string) (*ChatResult, error) {
	if b.started != nil {
		close(b.started)
	}
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return nil, b.sendErr
	}
	b.sent = append(b.sent, text)
	user := &models.Message{ID: "u", Content: text, Sender: models.SenderUser}
	reply := &models.Message{ID: "a", Content: "reply to " + text, Sender: models.SenderAI}
	b.messages = append(b.messages, user, reply)
	return &ChatResult{UserMessage: user, AIMessage: reply}, nil
}

func (b *fakeBackend) VoiceQuery(context.Context, []byte, string) ([]byte, error) {
	return []byte("mp3"), nil
}

type recordingSpeaker struct {
	said []string
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.said = append(s.said, text)
	return nil
}

func TestSubmitBlankIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	v := NewView(backend, nil)
	v.SetInput("   \n ")

	result, err := v.Submit(context.Background())
	require.NoError(t, err)
	require.Nil(t, result)
	require.Empty(t, backend.sent)
}

func TestSubmitClearsInputAndRefetches(t *testing.T) {
	req := require.New(t)
	backend := &fakeBackend{}
	v := NewView(backend, nil)
	v.SetInput("  What is this?  ")

	result, err := v.Submit(context.Background())
	req.NoError(err)
	req.Equal("reply to What is this?", result.AIMessage.Content)
	req.Equal([]string{"What is this?"}, backend.sent)
	req.Equal("", v.Input())
	req.Equal(1, backend.lists)
	req.Len(v.Messages(), 2)
}

func TestSubmitAddsImageNote(t *testing.T) {
	req := require.New(t)
	backend := &fakeBackend{}
	v := NewView(backend, nil)
	req.NoError(v.StageImages("front.jpg", "back.jpg"))
	v.SetInput("Is this the right size?")

	_, err := v.Submit(context.Background())
	req.NoError(err)
	req.Equal([]string{"Is this the right size?\n\n[2 image(s) attached]"}, backend.sent)
	req.Empty(v.StagedImages())
}

func TestStageImagesLimit(t *testing.T) {
	v := NewView(&fakeBackend{}, nil)
	require.NoError(t, v.StageImages("1", "2", "3", "4", "5"))
	require.ErrorIs(t, v.StageImages("6"), ErrTooManyImages)
	require.Len(t, v.StagedImages(), MaxImages)
}

func TestSubmitFailureKeepsInput(t *testing.T) {
	req := require.New(t)
	backend := &fakeBackend{sendErr: &APIError{Status: 500, Message: "Failed to get AI response"}}
	v := NewView(backend, nil)
	req.NoError(v.StageImages("a.png"))
	v.SetInput("Hello")

	_, err := v.Submit(context.Background())
	req.Error(err)
	req.Equal("Hello", v.Input())
	req.Len(v.StagedImages(), 1)
	req.Equal(0, backend.lists)

	backend.sendErr = nil
	_, err = v.Submit(context.Background())
	req.NoError(err, "in-flight flag must be released after a failure")
}

func TestSubmitInFlightGuard(t *testing.T) {
	req := require.New(t)
	backend := &fakeBackend{release: make(chan struct{}), started: make(chan struct{})}
	v := NewView(backend, nil)
	v.SetInput("first")

	done := make(chan error, 1)
	go func() {
		_, err := v.Submit(context.Background())
		done <- err
	}()
	<-backend.started

	_, err := v.Submit(context.Background())
	req.ErrorIs(err, ErrTurnInFlight)

	close(backend.release)
	req.NoError(<-done)
	req.Equal([]string{"first"}, backend.sent)
}

func TestSubmitAutoSpeak(t *testing.T) {
	req := require.New(t)
	speaker := &recordingSpeaker{}
	v := NewView(&fakeBackend{}, speaker)

	v.SetInput("quiet")
	_, err := v.Submit(context.Background())
	req.NoError(err)
	req.Empty(speaker.said)

	v.SetAutoSpeak(true)
	v.SetInput("loud")
	_, err = v.Submit(context.Background())
	req.NoError(err)
	req.Equal([]string{"reply to loud"}, speaker.said)
}

func TestSubmitRefreshFailureStillReturnsResult(t *testing.T) {
	req := require.New(t)
	backend := &fakeBackend{listErr: errors.New("offline")}
	v := NewView(backend, nil)
	v.SetInput("Hello")

	result, err := v.Submit(context.Background())
	req.Error(err)
	req.NotNil(result)
	req.Equal("", v.Input())
}

func TestApplyScanAndToggles(t *testing.T) {
	req := require.New(t)
	v := NewView(&fakeBackend{}, nil)
	v.SetScannerVisible(true)
	req.True(v.ScannerVisible())

	prompt := v.ApplyScan("https://shop.example.com/product/abc123")
	req.Contains(prompt, "abc123")
	req.Equal(prompt, v.Input())
	req.False(v.ScannerVisible())

	req.True(v.ToggleVoiceInput())
	req.True(v.VoiceInput())
	req.False(v.ToggleVoiceInput())
}
