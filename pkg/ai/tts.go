package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

// SpeechSynthesizer turns text into encoded audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// VoiceConfig selects the Cloud Text-to-Speech voice and tuning.
type VoiceConfig struct {
	LanguageCode   string
	Name           string
	SpeakingRate   float64
	Pitch          float64
	EffectsProfile []string
}

// DefaultVoice is a warm Spanish (US) neural voice, slightly slow and low.
var DefaultVoice = VoiceConfig{
	LanguageCode:   "es-US",
	Name:           "es-US-Neural2-C",
	SpeakingRate:   0.9,
	Pitch:          -5,
	EffectsProfile: []string{"small-bluetooth-speaker-class-device"},
}

// GoogleTTS synthesizes MP3 audio with Google Cloud Text-to-Speech.
type GoogleTTS struct {
	svc   *texttospeech.Service
	voice VoiceConfig
}

// NewGoogleTTS builds a synthesizer authenticated with an API key.
// Extra client options are appended (endpoint overrides in tests).
func NewGoogleTTS(ctx context.Context, apiKey string, voice VoiceConfig, opts ...option.ClientOption) (*GoogleTTS, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("text-to-speech api key required")
	}
	if voice.LanguageCode == "" {
		voice = DefaultVoice
	}
	svc, err := texttospeech.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("init text-to-speech: %w", err)
	}
	return &GoogleTTS{svc: svc, voice: voice}, nil
}

// Synthesize returns MP3 bytes for text.
func (t *GoogleTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text to synthesize is empty")
	}
	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: t.voice.LanguageCode,
			Name:         t.voice.Name,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:    "MP3",
			SpeakingRate:     t.voice.SpeakingRate,
			Pitch:            t.voice.Pitch,
			EffectsProfileId: t.voice.EffectsProfile,
		},
	}
	resp, err := t.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode audio content: %w", err)
	}
	return audio, nil
}
