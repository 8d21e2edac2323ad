package assistant

import (
	"context"
	"time"

	"dorian/internal/util"
	"dorian/pkg/ai"
)

// withRateLimitRetry runs call once more after delay if the first attempt
// was rejected for rate limiting. Any other error is returned as is.
func withRateLimitRetry(ctx context.Context, op string, delay time.Duration, call func(context.Context) (string, error)) (string, error) {
	out, err := call(ctx)
	if err == nil || !ai.IsRateLimited(err) {
		return out, err
	}
	util.LoggerFromContext(ctx).Warn("llm rate limited, retrying", "op", op, "delay_ms", delay.Milliseconds())
	if err := sleepCtx(ctx, delay); err != nil {
		return "", err
	}
	return call(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// boundedCall derives a per-call context. A zero timeout leaves ctx as is.
func boundedCall(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
