package ai

import (
	"context"
	"sync"
)

// ChatSession is a stateful conversation with a fixed system prompt.
// History is only extended when the model answers, so a failed send can be
// retried with the same message without duplicating the user turn.
type ChatSession struct {
	gen          ChatGenerator
	systemPrompt string
	maxTurns     int

	mu      sync.Mutex
	history []Turn
}

// NewChatSession starts an empty conversation. maxTurns bounds the number of
// question/answer pairs replayed to the model; zero keeps everything.
func NewChatSession(gen ChatGenerator, systemPrompt string, maxTurns int) *ChatSession {
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &ChatSession{gen: gen, systemPrompt: systemPrompt, maxTurns: maxTurns}
}

// Send appends message to the conversation and returns the model reply.
func (s *ChatSession) Send(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]Turn, 0, len(s.history)+1)
	turns = append(turns, s.history...)
	turns = append(turns, Turn{Role: RoleUser, Content: message})

	reply, err := s.gen.GenerateChat(ctx, s.systemPrompt, turns)
	if err != nil {
		return "", err
	}
	s.history = append(turns, Turn{Role: RoleModel, Content: reply})
	if s.maxTurns > 0 && len(s.history) > 2*s.maxTurns {
		s.history = append([]Turn(nil), s.history[len(s.history)-2*s.maxTurns:]...)
	}
	return reply, nil
}

// History returns a copy of the recorded turns.
func (s *ChatSession) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}
