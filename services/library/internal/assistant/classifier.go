package assistant

import (
	"context"
	"fmt"
	"time"

	"dorian/pkg/ai"
)

// Classifier decides whether a question needs library data.
type Classifier struct {
	gen        ai.TextGenerator
	retryDelay time.Duration
	timeout    time.Duration
}

func NewClassifier(gen ai.TextGenerator, retryDelay, timeout time.Duration) *Classifier {
	return &Classifier{gen: gen, retryDelay: retryDelay, timeout: timeout}
}

// Classify asks the model to route question. Unparseable answers produce
// the zero Classification; only upstream failures return an error.
func (c *Classifier) Classify(ctx context.Context, question string) (Classification, error) {
	raw, err := withRateLimitRetry(ctx, "classify", c.retryDelay, func(ctx context.Context) (string, error) {
		callCtx, cancel := boundedCall(ctx, c.timeout)
		defer cancel()
		return c.gen.GenerateText(callCtx, analysisInstruction, analysisPrefix+question)
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classify question: %w", err)
	}
	return parseClassification(raw), nil
}
