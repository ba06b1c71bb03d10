package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestExecute_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestExecute_ExhaustsBudget(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errBoom
	})

	if calls != 4 {
		t.Errorf("op called %d times, want 4", calls)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Execute() error = %v, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", exhausted.Attempts)
	}
	if !errors.Is(err, errBoom) {
		t.Error("ExhaustedError should unwrap to the last error")
	}
}

func TestExecute_PermanentStopsImmediately(t *testing.T) {
	permanent := errors.New("invalid api key")
	policy := fastPolicy(5)
	policy.IsTransient = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})

	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("Execute() error = %v, want the permanent error", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("permanent failure must not be reported as exhausted retries")
	}
}

func TestExecute_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := fastPolicy(100).Execute(ctx, func(ctx context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errBoom
	})

	if err == nil {
		t.Fatal("Execute() should fail after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if calls > 3 {
		t.Errorf("op called %d times after cancel, want few", calls)
	}
}

func TestExecute_CallTimeoutAppliesPerAttempt(t *testing.T) {
	policy := fastPolicy(2)
	policy.CallTimeout = 10 * time.Millisecond

	calls := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})

	if calls != 2 {
		t.Errorf("op called %d times, want 2 (timeout is per attempt)", calls)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Errorf("Execute() error = %v, want *ExhaustedError", err)
	}
}

func TestExecute_ZeroAttemptsClampedToOne(t *testing.T) {
	calls := 0
	err := fastPolicy(0).Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("Execute() calls = %d err = %v, want 1 call and nil", calls, err)
	}
}
