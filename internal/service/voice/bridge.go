// Package voice answers spoken queries: audio in, synthesized audio out.
package voice

import (
	"context"
	"strings"

	"qrchat/internal/apperr"
	"qrchat/internal/metrics"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const DefaultFilename = "query.wav"

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Synthesizer renders text as speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Replier produces the assistant reply for a transcript.
type Replier interface {
	Respond(ctx context.Context, text string) (string, error)
}

// Bridge runs transcribe, respond and synthesize for one query. Nothing is
// written to the message store.
type Bridge struct {
	transcriber Transcriber
	replier     Replier
	synthesizer Synthesizer
	log         *zap.Logger
	metrics     *metrics.Metrics
}

func NewBridge(t Transcriber, r Replier, s Synthesizer, log *zap.Logger, m *metrics.Metrics) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{transcriber: t, replier: r, synthesizer: s, log: log, metrics: m}
}

// HandleVoiceQuery returns mp3 audio answering the spoken question in audio.
func (b *Bridge) HandleVoiceQuery(ctx context.Context, audio []byte, filename string) ([]byte, error) {
	speech, err := b.handle(ctx, audio, filename)
	b.metrics.VoiceQuery(outcome(err))
	return speech, err
}

func (b *Bridge) handle(ctx context.Context, audio []byte, filename string) ([]byte, error) {
	if len(audio) == 0 {
		return nil, apperr.Validation("No audio file uploaded")
	}

	name := uploadName(audio, filename)
	transcript, err := b.transcriber.Transcribe(ctx, audio, name)
	if err != nil {
		b.log.Error("voice transcription failed", zap.String("filename", name), zap.Error(err))
		return nil, apperr.Upstream("Failed to transcribe audio", err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, apperr.Upstream("Failed to transcribe audio", nil)
	}
	b.log.Debug("voice transcript", zap.Int("chars", len(transcript)))

	reply, err := b.replier.Respond(ctx, transcript)
	if err != nil {
		return nil, err
	}

	speech, err := b.synthesizer.Synthesize(ctx, reply)
	if err != nil {
		b.log.Error("voice synthesis failed", zap.Error(err))
		return nil, apperr.Upstream("Failed to synthesize speech", err)
	}
	return speech, nil
}

// uploadName picks a filename whose extension matches the sniffed audio
// container, keeping the client's name when it already agrees.
func uploadName(audio []byte, filename string) string {
	mtype := mimetype.Detect(audio)
	if !strings.HasPrefix(mtype.String(), "audio/") && !strings.HasPrefix(mtype.String(), "video/") {
		if filename != "" {
			return filename
		}
		return DefaultFilename
	}
	ext := mtype.Extension()
	if filename != "" && strings.HasSuffix(strings.ToLower(filename), ext) {
		return filename
	}
	return "query" + ext
}

func outcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindUnknown:
		if err == nil {
			return metrics.OutcomeOK
		}
		return metrics.OutcomeUpstream
	case apperr.KindValidation:
		return metrics.OutcomeValidation
	case apperr.KindStorage:
		return metrics.OutcomeStorage
	default:
		return metrics.OutcomeUpstream
	}
}
