package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"qrchat/internal/config"
	"qrchat/internal/metrics"

	"github.com/sashabaranov/go-openai"
)

// SpeechClient wraps the provider's audio endpoints: transcription and
// speech synthesis.
type SpeechClient struct {
	client             *openai.Client
	transcriptionModel string
	speechModel        openai.SpeechModel
	voice              openai.SpeechVoice
	metrics            *metrics.Metrics
}

// NewSpeechClient builds the client from the openai provider entry and the
// voice settings.
func NewSpeechClient(cfg *config.Config, m *metrics.Metrics) *SpeechClient {
	provCfg := cfg.Provider("openai")
	clientCfg := openai.DefaultConfig(provCfg.APIKey)
	if provCfg.BaseURL != "" {
		clientCfg.BaseURL = provCfg.BaseURL
	}

	transcriptionModel := cfg.Voice.TranscriptionModel
	if transcriptionModel == "" {
		transcriptionModel = openai.Whisper1
	}
	speechModel := cfg.Voice.SpeechModel
	if speechModel == "" {
		speechModel = string(openai.TTSModel1)
	}
	voice := cfg.Voice.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}

	return &SpeechClient{
		client:             openai.NewClientWithConfig(clientCfg),
		transcriptionModel: transcriptionModel,
		speechModel:        openai.SpeechModel(speechModel),
		voice:              openai.SpeechVoice(voice),
		metrics:            m,
	}
}

// Transcribe converts recorded audio to text. filename only tells the
// provider which container format to expect.
func (c *SpeechClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	c.metrics.ProviderCall("transcribe", start, err)
	if err != nil {
		return "", fmt.Errorf("create transcription: %w", err)
	}
	return resp.Text, nil
}

// Synthesize renders text as mp3 speech.
func (c *SpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          c.speechModel,
		Input:          text,
		Voice:          c.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		c.metrics.ProviderCall("synthesize", start, err)
		return nil, fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	c.metrics.ProviderCall("synthesize", start, err)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	return data, nil
}
