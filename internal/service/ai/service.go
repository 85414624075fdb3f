package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"qrchat/internal/apperr"
	"qrchat/internal/config"
	"qrchat/internal/metrics"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	SystemPrompt = "You are a helpful AI assistant. Provide clear, concise, and helpful responses to user questions. Be friendly and conversational while remaining informative."

	// ApologyReply is returned when the provider answers with no content.
	ApologyReply = "I apologize, but I couldn't generate a response at this time. Please try again."

	// QuotaAdvisory replaces the reply when the provider account is out of quota.
	QuotaAdvisory = "⚠️ OpenAI API quota exceeded. Please add credits to your OpenAI account."

	DefaultMaxTokens   = 1000
	DefaultTemperature = float32(0.7)
)

var defaultModels = map[string]string{
	"openai": "gpt-4o",
	"claude": "claude-3-5-sonnet-latest",
	"gemini": "gemini-2.0-flash",
}

// NewChatModel builds the eino chat model for the configured provider.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	provider := cfg.BasicConfig.ChatProvider
	if provider == "" {
		provider = config.DefaultProvider
	}
	provCfg := cfg.Provider(provider)
	modelName := provCfg.Model
	if modelName == "" {
		modelName = defaultModels[provider]
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: DefaultMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", provider, err)
	}
	return chatModel, nil
}

// Responder turns one user utterance into one assistant reply.
type Responder struct {
	chatModel   model.BaseChatModel
	log         *zap.Logger
	metrics     *metrics.Metrics
	maxTokens   int
	temperature float32
}

func NewResponder(chatModel model.BaseChatModel, log *zap.Logger, m *metrics.Metrics) *Responder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Responder{
		chatModel:   chatModel,
		log:         log,
		metrics:     m,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
	}
}

// Respond asks the model for a reply to text. Quota exhaustion yields
// QuotaAdvisory with a nil error; any other provider failure is an upstream
// error.
func (r *Responder) Respond(ctx context.Context, text string) (string, error) {
	start := time.Now()
	reply, err := r.generate(ctx, text)
	r.metrics.ProviderCall("chat", start, err)
	if err != nil {
		if IsQuotaError(err) {
			r.log.Warn("provider quota exhausted", zap.Error(err))
			return QuotaAdvisory, nil
		}
		r.log.Error("provider chat failed", zap.Error(err))
		return "", apperr.Upstream("Failed to get AI response", err)
	}
	if strings.TrimSpace(reply) == "" {
		return ApologyReply, nil
	}
	return reply, nil
}

func (r *Responder) generate(ctx context.Context, text string) (string, error) {
	input := []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(text),
	}
	streamReader, err := r.chatModel.Stream(ctx, input,
		model.WithMaxTokens(r.maxTokens),
		model.WithTemperature(r.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generate ai stream: %w", err)
	}
	defer streamReader.Close()

	var b strings.Builder
	for {
		chunk, err := streamReader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("receive ai stream: %w", err)
		}
		if chunk != nil {
			b.WriteString(chunk.Content)
		}
	}
	return b.String(), nil
}
