package archive

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), RetryConfig{MaxRetries: 3}, func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryStopsWhenCancelledBetweenAttempts(t *testing.T) {
	// retryWait is a const, so the real 10s wait cannot be shortened.
	// Cancelling the context during the first attempt makes the wait
	// before the second attempt return at once with the context's error.
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	boom := errors.New("boom")

	_, err := Retry(ctx, RetryConfig{MaxRetries: 3}, func() (int, error) {
		calls++
		cancel()
		return 0, boom
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cancellation should stop further attempts)", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRetryVoidPropagatesSuccess(t *testing.T) {
	calls := 0
	err := RetryVoid(context.Background(), RetryConfig{MaxRetries: 2}, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("RetryVoid: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestParseIPBanDuration(t *testing.T) {
	d, ok := parseIPBanDuration("your ip address has been temporarily banned (ban expires in 1 hour and 30 minutes)")
	if !ok {
		t.Fatal("expected ban detected")
	}
	if d != 90*time.Minute {
		t.Errorf("duration = %v, want 90m", d)
	}

	if _, ok := parseIPBanDuration("some other error"); ok {
		t.Error("expected no ban detected")
	}
}
