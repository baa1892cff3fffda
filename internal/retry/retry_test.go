package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func TestForeverSucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := Forever(context.Background(), Options{Logger: zerolog.Nop()}, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil || got != 42 || calls != 1 {
		t.Fatalf("got=%d err=%v calls=%d", got, err, calls)
	}
}

func TestForeverRetriesUntilSuccess(t *testing.T) {
	calls := 0
	var alerts []string
	opts := Options{
		AlertEvery: 10,
		OnAlert:    func(ctx context.Context, msg string) { alerts = append(alerts, msg) },
		Logger:     zerolog.Nop(),
	}
	got, err := Forever(context.Background(), opts, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 9 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if calls != 10 {
		t.Fatalf("expected 10 attempts, got %d", calls)
	}
	if len(alerts) != 0 {
		t.Fatalf("9 failures should not escalate, got %v", alerts)
	}
}

// 计数器在整个调用期间累计，不随每次尝试重置: 若每次重置则永远不会告警。
// 25 次连续失败应在第 10、20 次各告警一次。
func TestForeverCounterSurvivesAttempts(t *testing.T) {
	calls := 0
	failures := 0
	var alerts []string
	opts := Options{
		AlertEvery: 10,
		OnAlert:    func(ctx context.Context, msg string) { alerts = append(alerts, msg) },
		OnFailure:  func(error) { failures++ },
		Logger:     zerolog.Nop(),
	}
	_, err := Forever(context.Background(), opts, func(ctx context.Context) (int, error) {
		calls++
		if calls <= 25 {
			return 0, fmt.Errorf("attempt %d", calls)
		}
		return calls, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failures != 25 {
		t.Fatalf("expected 25 failure callbacks, got %d", failures)
	}
	want := []string{
		"Failed task with attempt 10, retrying",
		"Failed task with attempt 20, retrying",
	}
	if len(alerts) != len(want) {
		t.Fatalf("expected %d escalations, got %v", len(want), alerts)
	}
	for i := range want {
		if alerts[i] != want[i] {
			t.Fatalf("alert %d: want %q, got %q", i, want[i], alerts[i])
		}
	}
}

func TestForeverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Forever(ctx, Options{Logger: zerolog.Nop()}, func(ctx context.Context) (int, error) {
		calls++
		if calls == 3 {
			cancel()
		}
		return 0, errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestForeverDefaultAlertEvery(t *testing.T) {
	calls := 0
	alerts := 0
	opts := Options{
		OnAlert: func(ctx context.Context, msg string) { alerts++ },
		Logger:  zerolog.Nop(),
	}
	_, _ = Forever(context.Background(), opts, func(ctx context.Context) (int, error) {
		calls++
		if calls <= DefaultAlertEvery {
			return 0, errors.New("x")
		}
		return 1, nil
	})
	if alerts != 1 {
		t.Fatalf("expected one escalation at the default threshold, got %d", alerts)
	}
}
