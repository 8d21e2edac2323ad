package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
)

type fakeResponder struct {
	system, mime string
	audio        []byte
	err          error
}

func (f *fakeResponder) RespondToAudio(_ context.Context, systemPrompt, mimeType string, audio []byte) (string, error) {
	f.system, f.mime, f.audio = systemPrompt, mimeType, audio
	if f.err != nil {
		return "", f.err
	}
	return "Hola, lector.", nil
}

type fakeSynth struct{ text string }

func (f *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.text = text
	return []byte("mp3-bytes"), nil
}

func TestVoiceReply(t *testing.T) {
	responder := &fakeResponder{}
	synth := &fakeSynth{}
	v := NewVoice(responder, synth, 0)

	got, err := v.Reply(context.Background(), "audio/webm", []byte("raw"))
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if responder.system != baseInstruction || responder.mime != "audio/webm" {
		t.Fatalf("responder called with system=%q mime=%q", responder.system, responder.mime)
	}
	if synth.text != "Hola, lector." {
		t.Fatalf("synthesized %q", synth.text)
	}
	if got.Response != "Hola, lector." || got.AudioContent != base64.StdEncoding.EncodeToString([]byte("mp3-bytes")) {
		t.Fatalf("reply = %+v", got)
	}
}

func TestVoiceReplyErrors(t *testing.T) {
	v := NewVoice(&fakeResponder{}, &fakeSynth{}, 0)
	if _, err := v.Reply(context.Background(), "audio/webm", nil); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
	boom := errors.New("boom")
	v = NewVoice(&fakeResponder{err: boom}, &fakeSynth{}, 0)
	if _, err := v.Reply(context.Background(), "audio/webm", []byte("raw")); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}
