// Package security counts security events per client address and reports
// when a burst crosses its alert threshold.
package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event outcomes with alert rules.
const (
	OutcomeFail        = "fail"
	OutcomeRateLimited = "rate_limited"
)

var eventCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

type rule struct {
	threshold int64
	window    time.Duration
}

var rules = map[string]rule{
	"library.authorize|" + OutcomeFail:    {threshold: 10, window: 5 * time.Minute},
	"library.ask|" + OutcomeRateLimited:   {threshold: 20, window: time.Minute},
	"library.audio|" + OutcomeRateLimited: {threshold: 10, window: time.Minute},
	"library.upload|" + OutcomeFail:       {threshold: 20, window: 5 * time.Minute},
}

// Alert is the outcome of observing one event.
type Alert struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// Alerter aggregates events in fixed Redis windows.
type Alerter struct {
	client redis.Scripter
	prefix string
}

// NewAlerter wraps an existing Redis client.
func NewAlerter(client redis.Scripter, prefix string) (*Alerter, error) {
	if client == nil {
		return nil, errors.New("security: redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "dorian:alerts"
	}
	return &Alerter{client: client, prefix: prefix}, nil
}

// Observe records the event for ip. Events without a rule are ignored.
func (a *Alerter) Observe(ctx context.Context, event, outcome, ip string) (Alert, error) {
	if a == nil {
		return Alert{}, nil
	}
	r, ok := rules[strings.TrimSpace(event)+"|"+strings.TrimSpace(outcome)]
	if !ok {
		return Alert{}, nil
	}
	windowMs := r.window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, segment(event), segment(outcome), segment(ip), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := eventCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return Alert{}, fmt.Errorf("count %s event: %w", event, err)
	}
	return Alert{
		Triggered: count >= r.threshold,
		Count:     count,
		Threshold: r.threshold,
		Window:    r.window,
	}, nil
}

func segment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "|", "_", " ", "_").Replace(in)
}
