// Package chat runs one text turn: persist the user message, ask the model,
// persist the reply.
package chat

import (
	"context"
	"errors"

	"qrchat/internal/apperr"
	"qrchat/internal/metrics"
	"qrchat/internal/models"
	"qrchat/internal/service/ai"
	"qrchat/internal/storage"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// MaxMessageLength bounds the text of a chat request, in characters.
const MaxMessageLength = 1000

// Replier produces the assistant reply for a user message.
type Replier interface {
	Respond(ctx context.Context, text string) (string, error)
}

// Request is the body of a chat call.
type Request struct {
	Message string `json:"message" validate:"required,min=1,max=1000"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// RequestError is returned when a chat request fails validation. It carries
// the validation kind so callers mapping errors to statuses treat it as such.
type RequestError struct {
	Fields []FieldError
	err    error
}

func (e *RequestError) Error() string {
	return e.err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.err
}

type Service struct {
	store    storage.Store
	replier  Replier
	validate *validator.Validate
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(store storage.Store, replier Replier, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		replier:  replier,
		validate: validator.New(),
		log:      log,
		metrics:  m,
	}
}

// Validate checks a chat request without touching the store.
func (s *Service) Validate(req Request) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("Invalid request format")
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   "message",
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return &RequestError{
		Fields: fields,
		err:    apperr.Validation("Invalid request format"),
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		return "Message cannot be empty"
	case "max":
		return "Message too long"
	default:
		return "Invalid message"
	}
}

// Turn stores text as a user message, asks for a reply and stores it. The
// user message stays persisted when the provider fails.
func (s *Service) Turn(ctx context.Context, req Request) (*models.Message, *models.Message, error) {
	userMsg, aiMsg, err := s.turn(ctx, req)
	outcome := outcomeOf(err)
	if err == nil && aiMsg.Content == ai.QuotaAdvisory {
		outcome = metrics.OutcomeQuota
	}
	s.metrics.Turn(outcome)
	if err != nil {
		s.log.Warn("chat turn failed", zap.String("outcome", outcome), zap.Error(err))
	} else {
		s.log.Info("chat turn", zap.String("outcome", outcome),
			zap.String("user_message_id", userMsg.ID),
			zap.String("ai_message_id", aiMsg.ID))
	}
	return userMsg, aiMsg, err
}

func (s *Service) turn(ctx context.Context, req Request) (*models.Message, *models.Message, error) {
	if err := s.Validate(req); err != nil {
		return nil, nil, err
	}

	userMsg, err := s.store.Append(ctx, req.Message, models.SenderUser)
	if err != nil {
		return nil, nil, err
	}

	reply, err := s.replier.Respond(ctx, req.Message)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Upstream("Failed to get AI response", err)
		}
		return nil, nil, err
	}

	aiMsg, err := s.store.Append(ctx, reply, models.SenderAI)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			return nil, nil, apperr.Upstream("AI response could not be stored", err)
		}
		return nil, nil, err
	}
	return userMsg, aiMsg, nil
}

// History returns the full transcript.
func (s *Service) History(ctx context.Context) ([]*models.Message, error) {
	messages, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("list messages failed", zap.Error(err))
		return nil, err
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return messages, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return metrics.OutcomeValidation
	case apperr.KindStorage:
		return metrics.OutcomeStorage
	default:
		return metrics.OutcomeUpstream
	}
}
