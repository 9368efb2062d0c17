package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunOnStartAndKeepsGoingAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	sched := New(Options{Interval: 20 * time.Millisecond, RunOnStart: true}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx, func(context.Context, time.Time) error {
			if calls.Add(1) >= 3 {
				cancel()
			}
			return errors.New("boom")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if calls.Load() < 3 {
		t.Fatalf("calls = %d, want at least 3", calls.Load())
	}
}

func TestTickTimeoutBoundsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := New(Options{Interval: time.Hour, RunOnStart: true, TickTimeout: 10 * time.Millisecond}, zerolog.Nop())
	var tickErr error
	go func() {
		_ = sched.Run(ctx, func(tickCtx context.Context, _ time.Time) error {
			<-tickCtx.Done()
			tickErr = tickCtx.Err()
			cancel()
			return tickErr
		})
	}()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("tick was not cancelled by its timeout")
	}
	if !errors.Is(tickErr, context.DeadlineExceeded) {
		t.Fatalf("tick error = %v, want deadline exceeded", tickErr)
	}
}

func TestNextTickAlignment(t *testing.T) {
	sched := New(Options{Interval: 30 * time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2026, 3, 10, 1, 10, 0, 0, time.UTC)
	if got := sched.nextTick(now); !got.Equal(time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)) {
		t.Fatalf("nextTick = %s", got)
	}
	onBoundary := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)
	if got := sched.nextTick(onBoundary); !got.Equal(onBoundary.Add(30 * time.Minute)) {
		t.Fatalf("nextTick on boundary = %s", got)
	}
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
