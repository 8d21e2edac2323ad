package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"dorian/pkg/ai"
	"dorian/pkg/domain"
)

// ErrEmptyAudio is returned when no audio bytes were received.
var ErrEmptyAudio = errors.New("audio required")

// Voice answers spoken questions with text plus synthesized speech.
type Voice struct {
	responder ai.AudioResponder
	speech    ai.SpeechSynthesizer
	timeout   time.Duration
}

func NewVoice(responder ai.AudioResponder, speech ai.SpeechSynthesizer, timeout time.Duration) *Voice {
	return &Voice{responder: responder, speech: speech, timeout: timeout}
}

// Reply has the model answer the recording directly, then voices the answer.
func (v *Voice) Reply(ctx context.Context, mimeType string, audio []byte) (domain.VoiceAnswer, error) {
	if len(audio) == 0 {
		return domain.VoiceAnswer{}, ErrEmptyAudio
	}
	callCtx, cancel := boundedCall(ctx, v.timeout)
	text, err := v.responder.RespondToAudio(callCtx, baseInstruction, mimeType, audio)
	cancel()
	if err != nil {
		return domain.VoiceAnswer{}, fmt.Errorf("respond to audio: %w", err)
	}

	callCtx, cancel = boundedCall(ctx, v.timeout)
	defer cancel()
	speech, err := v.speech.Synthesize(callCtx, text)
	if err != nil {
		return domain.VoiceAnswer{}, fmt.Errorf("synthesize reply: %w", err)
	}
	return domain.VoiceAnswer{
		Response:     text,
		AudioContent: base64.StdEncoding.EncodeToString(speech),
	}, nil
}
