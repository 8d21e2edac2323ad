// Package assistant answers free-text questions about the user's library.
// Each question is classified, optionally enriched with library rows, and
// sent to a per-session chat.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dorian/internal/util"
	"dorian/pkg/ai"
	"dorian/pkg/domain"
	"dorian/pkg/store"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question required")

const defaultRetryDelay = 2 * time.Second

// DispatchError is a chat failure reported back to the caller together with
// the question that triggered it.
type DispatchError struct {
	Question string
	Err      error
}

func (e *DispatchError) Error() string {
	return e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Config wires the assistant's collaborators.
type Config struct {
	Generator ai.Generator
	Library   store.LibraryReader
	// Sessions overrides the registry built from SessionTTL and MaxTurns.
	Sessions   *SessionRegistry
	SessionTTL time.Duration
	MaxTurns   int
	// RetryDelay is the pause before the single rate-limit retry.
	// Negative means no pause.
	RetryDelay     time.Duration
	LLMTimeout     time.Duration
	StorageTimeout time.Duration
}

// Assistant is the question answering pipeline.
type Assistant struct {
	classifier *Classifier
	assembler  *Assembler
	sessions   *SessionRegistry
	retryDelay time.Duration
	llmTimeout time.Duration
}

func New(cfg Config) (*Assistant, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator required")
	}
	if cfg.Library == nil {
		return nil, fmt.Errorf("library reader required")
	}
	retryDelay := cfg.RetryDelay
	switch {
	case retryDelay == 0:
		retryDelay = defaultRetryDelay
	case retryDelay < 0:
		retryDelay = 0
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewSessionRegistry(cfg.Generator, cfg.SessionTTL, cfg.MaxTurns)
	}
	return &Assistant{
		classifier: NewClassifier(cfg.Generator, retryDelay, cfg.LLMTimeout),
		assembler:  NewAssembler(cfg.Library, cfg.Generator, cfg.LLMTimeout, cfg.StorageTimeout),
		sessions:   sessions,
		retryDelay: retryDelay,
		llmTimeout: cfg.LLMTimeout,
	}, nil
}

// Sessions exposes the registry backing this assistant.
func (a *Assistant) Sessions() *SessionRegistry {
	return a.sessions
}

// Answer replies to question within sessionID's conversation. Classifier
// and library failures degrade to a plain chat turn; a failed chat turn is
// returned as *DispatchError. Cancellation of ctx is returned as ctx.Err().
func (a *Assistant) Answer(ctx context.Context, question, sessionID string) (domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return domain.Answer{}, ErrEmptyQuestion
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	logger := util.LoggerFromContext(ctx).With("session_id", sessionID)
	handle := a.sessions.get(sessionID)

	classification, err := a.classifier.Classify(ctx, question)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Answer{}, ctxErr
		}
		logger.Warn("classification failed, answering without library data", "err", err)
		classification = Classification{}
	}
	logger.Debug("question classified",
		"needs_db", classification.NeedsDB,
		"required_data", classification.RequiredData,
		"query_type", classification.QueryType,
	)

	prompt := question
	if classification.NeedsDB {
		libraryJSON, err := a.assembler.Assemble(ctx, question, classification)
		switch {
		case err == nil:
			prompt = contextualPrompt(libraryJSON, question)
		case ctx.Err() != nil:
			return domain.Answer{}, ctx.Err()
		default:
			logger.Warn("library context unavailable, forwarding question as is", "err", err)
		}
	}

	reply, err := a.send(ctx, handle, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Answer{}, ctxErr
		}
		logger.Error("chat send failed", "err", err)
		return domain.Answer{}, &DispatchError{Question: question, Err: err}
	}
	return domain.Answer{Response: reply, SessionID: sessionID}, nil
}

func (a *Assistant) send(ctx context.Context, h *chatHandle, prompt string) (string, error) {
	h.turnMu.Lock()
	defer h.turnMu.Unlock()
	return withRateLimitRetry(ctx, "chat", a.retryDelay, func(ctx context.Context) (string, error) {
		callCtx, cancel := boundedCall(ctx, a.llmTimeout)
		defer cancel()
		return h.chat.Send(callCtx, prompt)
	})
}
