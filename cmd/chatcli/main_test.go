package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"qrchat/internal/api"
	"qrchat/internal/chatview"
	"qrchat/internal/metrics"
	"qrchat/internal/service/chat"
	"qrchat/internal/service/voice"
	"qrchat/internal/storage"
)

type echoReplier struct{}

func (echoReplier) Respond(_ context.Context, text string) (string, error) {
	return "echo: " + text, nil
}

type fixedTranscriber struct{}

func (fixedTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return "where is it made", nil
}

type fixedSynthesizer struct{}

func (fixedSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

func newTestView(t *testing.T) *chatview.View {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	chatService := chat.NewService(storage.NewMemoryStore(), echoReplier{}, nil, m)
	bridge := voice.NewBridge(fixedTranscriber{}, echoReplier{}, fixedSynthesizer{}, nil, m)
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(chatService, bridge, m, nil)))
	t.Cleanup(srv.Close)
	return chatview.NewView(chatview.NewClient(srv.URL, nil), nil)
}

func TestHandleLineChat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	v := newTestView(t)
	var out bytes.Buffer

	quit, err := handleLine(ctx, &out, v, "  hello there ")
	req.NoError(err)
	req.False(quit)
	req.Contains(out.String(), "echo: hello there")
	req.Len(v.Messages(), 2)

	out.Reset()
	_, err = handleLine(ctx, &out, v, "/history")
	req.NoError(err)
	req.Contains(out.String(), "hello there")
	req.Contains(out.String(), "echo: hello there")
}

func TestHandleLineCommands(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	v := newTestView(t)
	var out bytes.Buffer

	_, err := handleLine(ctx, &out, v, "/image a.png b.png")
	req.NoError(err)
	req.Len(v.StagedImages(), 2)

	_, err = handleLine(ctx, &out, v, "/qr https://shop.example.com/item?id=sku-9")
	req.NoError(err)
	messages := v.Messages()
	req.Len(messages, 2)
	req.Contains(messages[0].Content, "product sku-9")
	req.Contains(messages[0].Content, "[2 image(s) attached]")
	req.Empty(v.StagedImages())

	_, err = handleLine(ctx, &out, v, "/speak on")
	req.NoError(err)
	req.True(v.AutoSpeak())
	_, err = handleLine(ctx, &out, v, "/speak off")
	req.NoError(err)
	req.False(v.AutoSpeak())

	_, err = handleLine(ctx, &out, v, "/qr")
	req.Error(err)
	_, err = handleLine(ctx, &out, v, "/bogus")
	req.Error(err)

	quit, err := handleLine(ctx, &out, v, "/quit")
	req.NoError(err)
	req.True(quit)
}

func TestHandleLineVoice(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "question.wav")
	dest := filepath.Join(dir, "answer.mp3")
	req.NoError(os.WriteFile(in, []byte("RIFF0000WAVE"), 0o644))

	v := newTestView(t)
	var out bytes.Buffer
	_, err := handleLine(context.Background(), &out, v, "/voice "+in+" "+dest)
	req.NoError(err)

	spoken, err := os.ReadFile(dest)
	req.NoError(err)
	req.Equal("echo: where is it made", string(spoken))
	req.Empty(v.Messages())
}

func TestScanImagesNoCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.png")
	v := newTestView(t)
	err := scanImages(context.Background(), &bytes.Buffer{}, v, []string{path})
	require.Error(t, err)
	require.False(t, v.ScannerVisible())
}
