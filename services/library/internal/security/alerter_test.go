package security

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAlerter(t *testing.T) *Alerter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	alerter, err := NewAlerter(client, "test:alerts")
	if err != nil {
		t.Fatalf("new alerter: %v", err)
	}
	return alerter
}

func TestObserveTriggersAtThreshold(t *testing.T) {
	alerter := newTestAlerter(t)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		alert, err := alerter.Observe(ctx, "library.authorize", OutcomeFail, "203.0.113.9")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if alert.Triggered != (i == 10) {
			t.Fatalf("attempt %d triggered = %v (count %d)", i, alert.Triggered, alert.Count)
		}
	}

	alert, err := alerter.Observe(ctx, "library.authorize", OutcomeFail, "203.0.113.10")
	if err != nil || alert.Triggered || alert.Count != 1 {
		t.Fatalf("other ip = %+v %v", alert, err)
	}
}

func TestObserveIgnoresEventsWithoutRule(t *testing.T) {
	alerter := newTestAlerter(t)
	alert, err := alerter.Observe(context.Background(), "library.authorize", "success", "203.0.113.9")
	if err != nil || alert.Triggered || alert.Count != 0 {
		t.Fatalf("alert = %+v %v", alert, err)
	}
}

func TestNilAlerterIsNoop(t *testing.T) {
	var alerter *Alerter
	if alert, err := alerter.Observe(context.Background(), "library.authorize", OutcomeFail, ""); err != nil || alert.Triggered {
		t.Fatalf("alert = %+v %v", alert, err)
	}
	if _, err := NewAlerter(nil, ""); err == nil {
		t.Fatal("expected error without client")
	}
}
