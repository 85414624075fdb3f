package qr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
)

// ErrNoCode is returned by a Decoder when the frame holds no readable code.
var ErrNoCode = errors.New("qr: no code in frame")

// FrameSource yields frames from a camera or a set of images. Frame returns
// io.EOF once the source is exhausted.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Decoder reads the payload of a QR code in a frame.
type Decoder interface {
	Decode(frame image.Image) (string, error)
}

const DefaultScanInterval = 100 * time.Millisecond

// Scanner polls a FrameSource until a frame decodes, the source fails or the
// context is cancelled. The source is closed on every exit.
type Scanner struct {
	Source   FrameSource
	Decoder  Decoder
	Interval time.Duration
	Log      *zap.Logger
}

func NewScanner(source FrameSource, decoder Decoder, log *zap.Logger) *Scanner {
	if decoder == nil {
		decoder = NewZXingDecoder()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{Source: source, Decoder: decoder, Interval: DefaultScanInterval, Log: log}
}

// Scan returns the first decoded payload.
func (s *Scanner) Scan(ctx context.Context) (string, error) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	defer func() {
		if err := s.Source.Close(); err != nil {
			log.Warn("close frame source", zap.Error(err))
		}
	}()

	var tick <-chan time.Time
	if s.Interval > 0 {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for frames := 0; ; frames++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		frame, err := s.Source.Frame(ctx)
		if err != nil {
			return "", fmt.Errorf("read frame: %w", err)
		}
		text, err := s.Decoder.Decode(frame)
		if err == nil {
			log.Debug("qr decoded", zap.Int("frames", frames+1))
			return text, nil
		}
		if !errors.Is(err, ErrNoCode) {
			log.Debug("qr decode failed", zap.Error(err))
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-tick:
			}
		}
	}
}
