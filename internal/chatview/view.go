package chatview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"qrchat/internal/models"
	"qrchat/internal/qr"
)

// MaxImages is the number of images that can be staged for one message.
const MaxImages = 5

var (
	// ErrTurnInFlight is returned by Submit while a previous turn is pending.
	ErrTurnInFlight  = errors.New("a message is already being sent")
	ErrTooManyImages = fmt.Errorf("at most %d images can be attached", MaxImages)
)

// Backend is the subset of Client the view drives.
type Backend interface {
	ListMessages(ctx context.Context) ([]*models.Message, error)
	SendChat(ctx context.Context, text string) (*ChatResult, error)
	VoiceQuery(ctx context.Context, audio []byte, filename string) ([]byte, error)
}

// Speaker reads a reply aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// View mirrors the server transcript and holds the input state of one chat
// screen. The transcript is refetched after every successful write.
type View struct {
	backend Backend
	speaker Speaker

	mu             sync.Mutex
	messages       []*models.Message
	input          string
	images         []string
	inFlight       bool
	voiceInput     bool
	autoSpeak      bool
	scannerVisible bool
}

func NewView(backend Backend, speaker Speaker) *View {
	return &View{backend: backend, speaker: speaker}
}

// Refresh replaces the local transcript with the server's.
func (v *View) Refresh(ctx context.Context) error {
	messages, err := v.backend.ListMessages(ctx)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.messages = messages
	v.mu.Unlock()
	return nil
}

// Messages returns a snapshot of the transcript.
func (v *View) Messages() []*models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*models.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

func (v *View) SetInput(text string) {
	v.mu.Lock()
	v.input = text
	v.mu.Unlock()
}

func (v *View) Input() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.input
}

// StageImages adds images to the next message. Only their count is sent.
func (v *View) StageImages(names ...string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.images)+len(names) > MaxImages {
		return ErrTooManyImages
	}
	v.images = append(v.images, names...)
	return nil
}

func (v *View) StagedImages() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.images...)
}

func (v *View) ClearImages() {
	v.mu.Lock()
	v.images = nil
	v.mu.Unlock()
}

func (v *View) ToggleVoiceInput() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.voiceInput = !v.voiceInput
	return v.voiceInput
}

func (v *View) VoiceInput() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.voiceInput
}

func (v *View) SetAutoSpeak(on bool) {
	v.mu.Lock()
	v.autoSpeak = on
	v.mu.Unlock()
}

func (v *View) AutoSpeak() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.autoSpeak
}

func (v *View) SetScannerVisible(visible bool) {
	v.mu.Lock()
	v.scannerVisible = visible
	v.mu.Unlock()
}

func (v *View) ScannerVisible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scannerVisible
}

// ApplyScan closes the scanner and puts the prompt for the scanned payload in
// the input buffer.
func (v *View) ApplyScan(payload string) string {
	prompt := qr.Prompt(payload)
	v.mu.Lock()
	v.scannerVisible = false
	if prompt != "" {
		v.input = prompt
	}
	v.mu.Unlock()
	return prompt
}

// ComposeMessage appends the attachment note to text when images are staged.
func ComposeMessage(text string, images int) string {
	if images <= 0 {
		return text
	}
	return fmt.Sprintf("%s\n\n[%d image(s) attached]", text, images)
}

// Submit sends the input buffer as one chat turn. Blank input is a no-op and
// returns a nil result. On success the input and staged images are cleared,
// the transcript is refetched and, with auto-speak on, the reply is spoken.
func (v *View) Submit(ctx context.Context) (*ChatResult, error) {
	v.mu.Lock()
	text := strings.TrimSpace(v.input)
	if text == "" {
		v.mu.Unlock()
		return nil, nil
	}
	if v.inFlight {
		v.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	v.inFlight = true
	message := ComposeMessage(text, len(v.images))
	v.mu.Unlock()

	result, err := v.backend.SendChat(ctx, message)

	v.mu.Lock()
	v.inFlight = false
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	v.input = ""
	v.images = nil
	autoSpeak := v.autoSpeak
	v.mu.Unlock()

	if err := v.Refresh(ctx); err != nil {
		return result, fmt.Errorf("refresh messages: %w", err)
	}
	if autoSpeak && v.speaker != nil && result.AIMessage != nil {
		if err := v.speaker.Speak(ctx, result.AIMessage.Content); err != nil {
			return result, fmt.Errorf("speak reply: %w", err)
		}
	}
	return result, nil
}

// Voice sends recorded audio and returns the spoken reply. Nothing is added
// to the transcript.
func (v *View) Voice(ctx context.Context, audio []byte, filename string) ([]byte, error) {
	return v.backend.VoiceQuery(ctx, audio, filename)
}
